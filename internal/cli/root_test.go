package cli

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
)

// executeCommand runs a command with the given args and captures output.
func executeCommand(args ...string) (string, error) {
	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

// testDBPath returns a database path in a fresh temp dir.
func testDBPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "test.db")
}

func TestRootHelp(t *testing.T) {
	out, err := executeCommand("--help")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, name := range []string{"serve", "worker", "reconcile", "zones", "schools", "voters", "apikey", "issues", "comments"} {
		if !strings.Contains(out, name) {
			t.Errorf("help missing %q command", name)
		}
	}
}

func TestGlobalFlags(t *testing.T) {
	root := NewRootCmd()

	formatFlag := root.PersistentFlags().Lookup("format")
	if formatFlag == nil {
		t.Fatal("expected --format flag to exist")
	}
	if formatFlag.DefValue != "text" {
		t.Errorf("expected --format default 'text', got %q", formatFlag.DefValue)
	}

	dbFlag := root.PersistentFlags().Lookup("db")
	if dbFlag == nil {
		t.Fatal("expected --db flag to exist")
	}
}

func TestDBPathPrecedence(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("ADV_DB", "/tmp/from-env.db")

	NewRootCmd() // resets flag vars to their defaults
	got, err := dbPath()
	if err != nil {
		t.Fatalf("dbPath: %v", err)
	}
	if got != "/tmp/from-env.db" {
		t.Errorf("dbPath = %q, want env value", got)
	}

	flagDB = "/tmp/from-flag.db"
	t.Cleanup(func() { flagDB = "" })
	got, _ = dbPath()
	if got != "/tmp/from-flag.db" {
		t.Errorf("dbPath = %q, want flag value", got)
	}
}

func TestVersion(t *testing.T) {
	out, err := executeCommand("version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if strings.TrimSpace(out) != Version {
		t.Errorf("version output = %q, want %q", out, Version)
	}
}
