package cli

import "testing"

func TestRootCommandWiring(t *testing.T) {
	root := NewRootCmd()

	want := []string{"version", "init", "config", "chat", "tui", "assistants", "history", "upload"}
	for _, name := range want {
		found := false
		for _, sub := range root.Commands() {
			if sub.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("missing subcommand %q", name)
		}
	}
}

func TestMask(t *testing.T) {
	cases := map[string]string{
		"ab":         "**",
		"abcd":       "****",
		"abcdefgh":   "ab****gh",
		"tok-secret": "to******et",
	}
	for in, want := range cases {
		if got := mask(in); got != want {
			t.Errorf("mask(%q) = %q, want %q", in, got, want)
		}
	}
}
