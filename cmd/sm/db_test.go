package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func TestConfirmReset(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"yes\n", true},
		{"  yes  \n", true},
		{"no\n", false},
		{"YES\n", false},
		{"", false},
	}
	for _, tt := range tests {
		cmd := &cobra.Command{}
		out := new(bytes.Buffer)
		cmd.SetOut(out)
		cmd.SetIn(strings.NewReader(tt.input))

		if got := confirmReset(cmd, "scanmark"); got != tt.want {
			t.Errorf("confirmReset with input %q = %t, want %t", tt.input, got, tt.want)
		}
		if !strings.Contains(out.String(), "scanmark") {
			t.Errorf("warning does not name the database: %q", out.String())
		}
	}
}
