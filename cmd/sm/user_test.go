package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func TestValidRole(t *testing.T) {
	tests := []struct {
		role string
		want bool
	}{
		{"marker", true},
		{"scanner", true},
		{"manager", true},
		{"", false},
		{"admin", false},
		{"Marker", false},
	}
	for _, tt := range tests {
		if got := validRole(tt.role); got != tt.want {
			t.Errorf("validRole(%q) = %t, want %t", tt.role, got, tt.want)
		}
	}
}

func TestPromptPassword_PipedInput(t *testing.T) {
	cmd := &cobra.Command{}
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetIn(strings.NewReader("sekrit\n"))

	got, err := promptPassword(cmd)
	if err != nil {
		t.Fatalf("promptPassword: %v", err)
	}
	if got != "sekrit" {
		t.Errorf("password = %q, want sekrit", got)
	}
	if !strings.Contains(out.String(), "Password:") {
		t.Errorf("prompt missing from output: %q", out.String())
	}
}

func TestPromptPassword_NoInput(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetIn(strings.NewReader(""))

	if _, err := promptPassword(cmd); err == nil {
		t.Error("expected an error on empty input")
	}
}
