package tui

import "testing"

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in        string
		name      string
		arg0      string
		rest1     string
		argsCount int
	}{
		{"", "", "", "", 0},
		{"   ", "", "", "", 0},
		{"quit", "quit", "", "", 0},
		{":Q", "q", "", "", 0},
		{"open bob", "open", "bob", "", 1},
		{"add bob  Bob   Smith ", "add", "bob", "Bob Smith", 3},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			cmd := ParseCommand(tt.in)
			if cmd.Name != tt.name {
				t.Errorf("Name = %q, want %q", cmd.Name, tt.name)
			}
			if cmd.Arg(0) != tt.arg0 {
				t.Errorf("Arg(0) = %q, want %q", cmd.Arg(0), tt.arg0)
			}
			if cmd.Rest(1) != tt.rest1 {
				t.Errorf("Rest(1) = %q, want %q", cmd.Rest(1), tt.rest1)
			}
			if len(cmd.Args) != tt.argsCount {
				t.Errorf("len(Args) = %d, want %d", len(cmd.Args), tt.argsCount)
			}
		})
	}
}
