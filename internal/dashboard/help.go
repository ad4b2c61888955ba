package dashboard

import "github.com/charmbracelet/bubbles/help"

// HelpBindings returns the help.KeyMap for the list's current state.
// The next-page binding is hidden when the list has no further pages.
func HelpBindings(hasNext bool) help.KeyMap {
	km := KeyMap()
	km.NextPage.SetEnabled(hasNext)
	return km
}
