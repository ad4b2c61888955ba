package dashboard

import (
	"testing"

	"github.com/charmbracelet/bubbles/key"
)

func TestKeyMap_ContainsExpected(t *testing.T) {
	// Given: the dashboard key map
	km := KeyMap()
	var all []key.Binding
	for _, group := range km.FullHelp() {
		all = append(all, group...)
	}
	allKeys := collectKeys(all)

	// Then: every navigation and list operation key is present
	expected := []string{"up", "down", "tab", "r", "n", "d", "f", "i", "q", "ctrl+c"}
	for _, want := range expected {
		if !containsKey(allKeys, want) {
			t.Errorf("KeyMap missing key %q, got %v", want, allKeys)
		}
	}
}

func TestHelpBindings_HidesNextPageWithoutCursor(t *testing.T) {
	tests := []struct {
		hasNext bool
		want    bool
	}{
		{true, true},
		{false, false},
	}
	for _, tt := range tests {
		// Given: help bindings for a list with or without a next page
		km := HelpBindings(tt.hasNext).(keyMap)

		// Then: the next-page binding is enabled only when there is one
		if got := km.NextPage.Enabled(); got != tt.want {
			t.Errorf("HelpBindings(%v).NextPage.Enabled() = %v, want %v", tt.hasNext, got, tt.want)
		}
		if !km.Quit.Enabled() {
			t.Errorf("HelpBindings(%v).Quit disabled", tt.hasNext)
		}
	}
}

func collectKeys(bindings []key.Binding) []string {
	var keys []string
	for _, b := range bindings {
		keys = append(keys, b.Keys()...)
	}
	return keys
}

func containsKey(keys []string, want string) bool {
	for _, k := range keys {
		if k == want {
			return true
		}
	}
	return false
}
