package main

import (
	"bytes"
	"testing"
)

func TestPrintArgs(t *testing.T) {
	var buf bytes.Buffer
	if err := printArgs(&buf, []string{"viewer", "/lib/A B/1.png"}); err != nil {
		t.Fatal(err)
	}
	want := "viewer '/lib/A B/1.png'\n"
	if buf.String() != want {
		t.Errorf("printArgs = %q, want %q", buf.String(), want)
	}
}

func TestCommandTree(t *testing.T) {
	cmd := newCommand()
	names := map[string]bool{}
	for _, c := range cmd.Commands {
		names[c.Name] = true
	}
	for _, n := range []string{"serve", "scan", "tokenize", "mcp"} {
		if !names[n] {
			t.Errorf("missing subcommand %s", n)
		}
	}
}
