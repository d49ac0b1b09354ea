package batchfile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeBatchFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "batch.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseFanOutShape(t *testing.T) {
	f, err := Parse(writeBatchFile(t, `
command: make test
paths:
  - /work/a
  - /work/b
workers: 4
shell: true
timeout: 2.5
env:
  CI: "1"
`))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}

	commands, paths := f.CommandsAndPaths()
	if len(commands) != 1 || commands[0] != "make test" {
		t.Errorf("commands = %v, want [make test]", commands)
	}
	if len(paths) != 2 || paths[0] != "/work/a" || paths[1] != "/work/b" {
		t.Errorf("paths = %v", paths)
	}
	if f.Workers != 4 {
		t.Errorf("Workers = %d, want 4", f.Workers)
	}
	if !f.Shell {
		t.Error("Shell = false, want true")
	}
	if f.TimeoutDuration() != 2500*time.Millisecond {
		t.Errorf("TimeoutDuration = %s, want 2.5s", f.TimeoutDuration())
	}
	if f.Env["CI"] != "1" {
		t.Errorf("Env = %v, want CI=1", f.Env)
	}
}

func TestParseTasksShape(t *testing.T) {
	f, err := Parse(writeBatchFile(t, `
tasks:
  - dir: /work/a
    command: make build
  - dir: /work/b
    command: make test
`))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}

	commands, paths := f.CommandsAndPaths()
	if len(commands) != 2 || len(paths) != 2 {
		t.Fatalf("Got %d commands, %d paths, want 2 each", len(commands), len(paths))
	}
	if commands[1] != "make test" || paths[1] != "/work/b" {
		t.Errorf("Second pair = %q in %q", commands[1], paths[1])
	}
}

func TestParseRejectsBothShapes(t *testing.T) {
	_, err := Parse(writeBatchFile(t, `
command: make test
paths: [/work/a]
tasks:
  - dir: /work/b
    command: make build
`))
	if err == nil || !strings.Contains(err.Error(), "not both") {
		t.Errorf("Expected a not-both error, got %v", err)
	}
}

func TestParseRejectsMissingPieces(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"empty file", ""},
		{"command without paths", "command: make test\n"},
		{"paths without command", "paths: [/work/a]\n"},
		{"task missing dir", "tasks:\n  - command: make test\n"},
		{"task missing command", "tasks:\n  - dir: /work/a\n"},
		{"negative timeout", "command: x\npaths: [/a]\ntimeout: -1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(writeBatchFile(t, tt.content)); err == nil {
				t.Error("Expected a validation error")
			}
		})
	}
}

func TestParseRejectsInvalidYAML(t *testing.T) {
	if _, err := Parse(writeBatchFile(t, "command: [unclosed\n")); err == nil {
		t.Error("Expected a parse error")
	}
}

func TestParseMissingFile(t *testing.T) {
	if _, err := Parse(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Expected an error for a missing file")
	}
}
