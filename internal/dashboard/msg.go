// Package dashboard implements a two-pane TUI for browsing one entity list:
// the list on the left, the selected entity on the right. State arrives
// from the entity store as StateChangedMsg; key presses run list operations
// through an Actions implementation.
package dashboard

import "github.com/smileynet/fedicache/internal/entity"

// Focus represents which pane has keyboard focus.
type Focus int

const (
	PaneLeft  Focus = iota // Left pane (entity list) has focus.
	PaneRight              // Right pane (detail viewport) has focus.
)

// Item is the display form of one entity.
type Item struct {
	ID     string
	Title  string // One-line summary for the list pane.
	Detail string // Multi-line body for the detail pane.
}

// Renderer turns entities into Items.
type Renderer func(e entity.Entity) Item

// --- Consumer-side interfaces ---

// Actions runs list operations for the browsed list. Implementations block
// until the operation finishes; the model calls them from tea.Cmds.
type Actions interface {
	Refresh() error
	NextPage() error
	Dismiss(id string) error
	Favourite(id string) error
	Invalidate()
}

// --- tea.Msg types ---

// StateChangedMsg carries the store state after a change.
type StateChangedMsg struct {
	State *entity.State
}

// Op names an operation started from the dashboard.
type Op string

const (
	OpRefresh    Op = "refresh"
	OpNextPage   Op = "next page"
	OpDismiss    Op = "dismiss"
	OpFavourite  Op = "favourite"
	OpInvalidate Op = "invalidate"
)

// OpDoneMsg reports the outcome of an operation.
type OpDoneMsg struct {
	Op  Op
	ID  string // Entity id for per-entity operations.
	Err error
}
