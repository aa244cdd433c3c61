package handlers

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRequestFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.json", "a.JSON", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "sub.json"), 0755); err != nil {
		t.Fatal(err)
	}

	files, err := requestFiles(dir)
	if err != nil {
		t.Fatalf("requestFiles failed: %v", err)
	}
	if len(files) != 2 || filepath.Base(files[0]) != "a.JSON" || filepath.Base(files[1]) != "b.json" {
		t.Errorf("Unexpected files %v", files)
	}
}

func TestReadRequest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "req.json")
	body := `{"organization_id": "org-42", "events": [{"entity": "Acme", "description": "x"}]}`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	req, err := readRequest(path)
	if err != nil {
		t.Fatalf("readRequest failed: %v", err)
	}
	if req.OrganizationID != "org-42" || len(req.Events) != 1 || req.Events[0].Entity != "Acme" {
		t.Errorf("Unexpected request %+v", req)
	}

	if _, err := readRequest(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestCountPending(t *testing.T) {
	if got := countPending([]uint{1, 2, 3}, 1); got != 2 {
		t.Errorf("countPending = %d, want 2", got)
	}
	if got := countPending([]uint{1, 2, 3}, 3); got != 0 {
		t.Errorf("countPending = %d, want 0", got)
	}
}

func TestRootCmd_HasSubcommands(t *testing.T) {
	root := NewRootCmd()
	for _, name := range []string{"synthesize", "batch", "serve", "migrate", "targets"} {
		if cmd, _, err := root.Find([]string{name}); err != nil || cmd.Name() != name {
			t.Errorf("Missing subcommand %q", name)
		}
	}
}
