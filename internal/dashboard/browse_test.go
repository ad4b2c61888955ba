package dashboard

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/smileynet/fedicache/internal/entity"
)

func sampleItems() []Item {
	return []Item{
		{ID: "1", Title: "first post"},
		{ID: "2", Title: "second post"},
		{ID: "3", Title: "third post"},
	}
}

func loaded(items []Item) browseState {
	return browseState{}.apply(items, entity.ListState{Fetched: true}, true)
}

func TestBrowse_LoadingState(t *testing.T) {
	// Given: a browse state whose list does not exist yet
	bs := browseState{}

	// When: the view is rendered with a spinner frame
	plain := stripANSI(bs.View(40, 20, "⣾"))

	// Then: a loading indicator is shown
	if !strings.Contains(plain, "⣾ Loading...") {
		t.Errorf("loading view = %q, want spinner and Loading", plain)
	}
}

func TestBrowse_FetchingEmptyListIsLoading(t *testing.T) {
	bs := browseState{}.apply(nil, entity.ListState{Fetching: true}, true)
	if !strings.Contains(bs.View(40, 20, ""), "Loading") {
		t.Error("fetching empty list should show Loading")
	}
}

func TestBrowse_ItemsView(t *testing.T) {
	// Given: a browse state with items
	bs := loaded(sampleItems())

	// When: the view is rendered
	plain := stripANSI(bs.View(60, 20, ""))

	// Then: every title is listed and the first row has the cursor
	for _, it := range sampleItems() {
		if !strings.Contains(plain, it.Title) {
			t.Errorf("view missing %q:\n%s", it.Title, plain)
		}
	}
	if !strings.HasPrefix(plain, CursorMarker+"first post") {
		t.Errorf("first row should carry the cursor:\n%s", plain)
	}
}

func TestBrowse_EmptyView(t *testing.T) {
	bs := loaded(nil)
	if !strings.Contains(bs.View(40, 20, ""), "Nothing here") {
		t.Errorf("empty view = %q", bs.View(40, 20, ""))
	}
}

func TestBrowse_ErrorKeepsItems(t *testing.T) {
	// Given: a list whose last fetch failed
	bs := browseState{}.apply(sampleItems(), entity.ListState{Error: errors.New("timeout")}, true)

	// When: the view is rendered
	plain := stripANSI(bs.View(60, 20, ""))

	// Then: the items stay visible with the error below them
	if !strings.Contains(plain, "first post") || !strings.Contains(plain, "Error: timeout") {
		t.Errorf("view = %q", plain)
	}
}

func TestBrowse_StaleNotice(t *testing.T) {
	bs := browseState{}.apply(sampleItems(), entity.ListState{Invalid: true}, true)
	if !strings.Contains(stripANSI(bs.View(60, 20, "")), "stale") {
		t.Error("invalid list should be marked stale")
	}
}

func TestBrowse_CursorWraps(t *testing.T) {
	tests := []struct {
		name string
		keys []string
		want string
	}{
		{"down", []string{"j"}, "2"},
		{"down twice", []string{"down", "down"}, "3"},
		{"down wraps", []string{"j", "j", "j"}, "1"},
		{"up wraps", []string{"k"}, "3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bs := loaded(sampleItems())
			for _, k := range tt.keys {
				bs = bs.handleKey(keyMsg(k))
			}
			if got := bs.SelectedID(); got != tt.want {
				t.Errorf("SelectedID() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBrowse_CursorFollowsID(t *testing.T) {
	// Given: the cursor on item 2
	bs := loaded(sampleItems()).handleKey(keyMsg("j"))

	// When: a new item is prepended
	items := append([]Item{{ID: "0", Title: "newest"}}, sampleItems()...)
	bs = bs.apply(items, entity.ListState{}, true)

	// Then: the cursor stays on item 2
	if bs.SelectedID() != "2" {
		t.Errorf("SelectedID() = %q, want 2", bs.SelectedID())
	}

	// When: item 2 disappears
	bs = bs.apply([]Item{{ID: "0"}, {ID: "1"}}, entity.ListState{}, true)

	// Then: the cursor resets to the top
	if bs.SelectedID() != "0" {
		t.Errorf("SelectedID() = %q, want 0", bs.SelectedID())
	}
}

func TestBrowse_ScrollsToCursor(t *testing.T) {
	bs := loaded(sampleItems())
	bs.cursor = 2

	plain := stripANSI(bs.View(60, 2, ""))

	if strings.Contains(plain, "first post") {
		t.Errorf("first row should scroll out of a two-row pane:\n%s", plain)
	}
	if !strings.Contains(plain, CursorMarker+"third post") {
		t.Errorf("cursor row should be visible:\n%s", plain)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in    string
		width int
		want  string
	}{
		{"hello", 10, "hello"},
		{"hello", 5, "hello"},
		{"hello", 4, "hel…"},
		{"héllo", 2, "h…"},
		{"hello", 1, "…"},
		{"hello", 0, "hello"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.width); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.width, got, tt.want)
		}
	}
}

// keyMsg builds the tea.KeyMsg whose String() is s.
func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}
