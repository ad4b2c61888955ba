package dashboard

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/smileynet/fedicache/internal/entity"
)

// CursorMarker is the prefix shown on the selected row.
const CursorMarker = "▸ "

// browseState holds the rendered list, the cursor and the list's lifecycle
// state for the left pane.
type browseState struct {
	items  []Item
	cursor int
	state  entity.ListState
	exists bool
}

// apply replaces the items and list state, keeping the cursor on the same id
// when it is still present.
func (bs browseState) apply(items []Item, state entity.ListState, exists bool) browseState {
	selected := bs.SelectedID()
	bs.items = items
	bs.state = state
	bs.exists = exists
	bs.cursor = 0
	for i, it := range items {
		if it.ID == selected {
			bs.cursor = i
			break
		}
	}
	return bs
}

func (bs browseState) handleKey(msg tea.KeyMsg) browseState {
	switch msg.String() {
	case "up", "k":
		if len(bs.items) > 0 {
			bs.cursor--
			if bs.cursor < 0 {
				bs.cursor = len(bs.items) - 1
			}
		}
	case "down", "j":
		if len(bs.items) > 0 {
			bs.cursor++
			if bs.cursor >= len(bs.items) {
				bs.cursor = 0
			}
		}
	}
	return bs
}

// SelectedID returns the id at the cursor, or "" if the list is empty.
func (bs browseState) SelectedID() string {
	if item, ok := bs.Selected(); ok {
		return item.ID
	}
	return ""
}

// Selected returns the item at the cursor.
func (bs browseState) Selected() (Item, bool) {
	if len(bs.items) == 0 || bs.cursor < 0 || bs.cursor >= len(bs.items) {
		return Item{}, false
	}
	return bs.items[bs.cursor], true
}

// loading reports whether there is nothing to show yet because a fetch is pending.
func (bs browseState) loading() bool {
	return len(bs.items) == 0 && (!bs.exists || bs.state.Fetching)
}

// View renders the list pane for the given dimensions.
// spinnerView is the current spinner frame.
func (bs browseState) View(width, height int, spinnerView string) string {
	if bs.loading() && bs.state.Error == nil {
		return fmt.Sprintf("%s Loading...", spinnerView)
	}

	var footer []string
	if bs.state.Error != nil {
		footer = append(footer, errorText.Render("Error: "+bs.state.Error.Error()), "Press r to retry")
	}
	if bs.state.Invalid {
		footer = append(footer, staleBadge.Render("stale, press r to refresh"))
	}

	if len(bs.items) == 0 {
		if len(footer) > 0 {
			return strings.Join(footer, "\n")
		}
		return "Nothing here, press r to refresh"
	}

	rows := height - len(footer)
	if rows < 1 {
		rows = 1
	}
	start := 0
	if bs.cursor >= rows {
		start = bs.cursor - rows + 1
	}
	end := min(start+rows, len(bs.items))

	var b strings.Builder
	for i := start; i < end; i++ {
		if i > start {
			b.WriteByte('\n')
		}
		if i == bs.cursor {
			b.WriteString(CursorMarker)
		} else {
			b.WriteString("  ")
		}
		b.WriteString(truncate(bs.items[i].Title, width-2))
	}
	for _, line := range footer {
		b.WriteByte('\n')
		b.WriteString(line)
	}
	return b.String()
}

// truncate shortens s to at most width runes, marking the cut with an ellipsis.
func truncate(s string, width int) string {
	if width <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	if width == 1 {
		return "…"
	}
	return string(r[:width-1]) + "…"
}
