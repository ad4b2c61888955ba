package dashboard

import "testing"

func TestCountBadge(t *testing.T) {
	total := 40
	tests := []struct {
		name   string
		loaded int
		total  *int
		want   string
	}{
		{"known total", 20, &total, "20/40"},
		{"unknown total", 20, nil, "20"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := stripANSI(CountBadge(tt.loaded, tt.total))
			if got != tt.want {
				t.Errorf("CountBadge() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPaneWidths(t *testing.T) {
	tests := []struct {
		name      string
		total     int
		wantLeft  int
		wantRight int
	}{
		{"normal", 90, 30, 60},
		{"narrow clamps left", 60, MinLeftWidth, 60 - MinLeftWidth},
		{"narrower than minimum", 20, MinLeftWidth, 0},
		{"zero", 0, 0, 0},
		{"negative", -5, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Given: a terminal width
			// When: PaneWidths is computed
			left, right := PaneWidths(tt.total)

			// Then: the left pane is a third, never below the minimum
			if left != tt.wantLeft || right != tt.wantRight {
				t.Errorf("PaneWidths(%d) = (%d, %d), want (%d, %d)", tt.total, left, right, tt.wantLeft, tt.wantRight)
			}
		})
	}
}

func TestBorders_Differ(t *testing.T) {
	if FocusedBorder().GetBorderTopForeground() == UnfocusedBorder().GetBorderTopForeground() {
		t.Error("focused and unfocused borders share a color")
	}
}
