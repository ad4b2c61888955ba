package dashboard

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/smileynet/fedicache/internal/store"
)

// Sender delivers messages to a running program; *tea.Program satisfies it.
type Sender interface {
	Send(msg tea.Msg)
}

// Bridge forwards every store change to p as a StateChangedMsg and returns
// the unsubscribe function. Subscribe after the program is created and
// before any action can be dispatched.
func Bridge(s *store.Store, p Sender) func() {
	return s.Subscribe(func(c store.Change) {
		p.Send(StateChangedMsg{State: c.Next})
	})
}
