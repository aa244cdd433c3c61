package sources

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleYAML = `
default:
  blocked: [Content Farm]
  high: [Utility Dive]
organizations:
  org-42:
    critical: [Reuters]
    high: [Bloomberg]
    blocked: [Tabloid Daily]
`

func TestParseAndFor(t *testing.T) {
	f, err := Parse([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	p := f.For("org-42")

	tests := []struct {
		source   string
		expected Level
	}{
		{"Reuters", LevelCritical},
		{"reuters", LevelCritical},
		{"Bloomberg", LevelHigh},
		{"Utility Dive", LevelHigh},
		{"TABLOID DAILY", LevelBlocked},
		{"content farm", LevelBlocked},
		{"Associated Press", LevelNormal},
		{"", LevelNormal},
	}

	for _, tt := range tests {
		if got := p.Level(tt.source); got != tt.expected {
			t.Errorf("Level(%q) = %s, want %s", tt.source, got, tt.expected)
		}
	}

	if len(p.Critical()) != 1 || len(p.High()) != 2 || len(p.Blocked()) != 2 {
		t.Errorf("Unexpected merged lists: critical=%v high=%v blocked=%v", p.Critical(), p.High(), p.Blocked())
	}
}

func TestFor_UnknownOrgUsesDefaults(t *testing.T) {
	f, err := Parse([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	p := f.For("org-unknown")
	if !p.IsBlocked("Content Farm") {
		t.Error("Default blocked list should apply")
	}
	if p.IsBlocked("Tabloid Daily") {
		t.Error("Another organization's blocked list should not apply")
	}
}

func TestFor_DoesNotMutateDefaults(t *testing.T) {
	f, _ := Parse([]byte(sampleYAML))
	_ = f.For("org-42")
	if len(f.Default.Blocked) != 1 {
		t.Errorf("Default blocked list mutated: %v", f.Default.Blocked)
	}
}

func TestBlockedWinsOverCritical(t *testing.T) {
	p := NewPriorities(Priority{Critical: []string{"Wire"}, Blocked: []string{"wire"}})
	if !p.IsBlocked("Wire") {
		t.Error("Blocked should take precedence")
	}
}

func TestLoadFile(t *testing.T) {
	f, err := LoadFile("")
	if err != nil || f == nil {
		t.Fatalf("Blank path should yield empty config, got %v, %v", f, err)
	}

	f, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil || f == nil {
		t.Fatalf("Missing file should yield empty config, got %v, %v", f, err)
	}

	path := filepath.Join(t.TempDir(), "sources.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	f, err = LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if f.For("org-42").Level("Reuters") != LevelCritical {
		t.Error("Expected Reuters to be critical after loading from disk")
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	_ = os.WriteFile(bad, []byte("default: [unclosed"), 0644)
	if _, err := LoadFile(bad); err == nil {
		t.Error("Expected parse error for malformed YAML")
	}
}

func TestNilPriorities(t *testing.T) {
	var p *Priorities
	if p.Level("x") != LevelNormal || p.IsBlocked("x") || p.Critical() != nil {
		t.Error("Nil priorities should behave as empty")
	}
	var f *File
	if f.For("x").Level("x") != LevelNormal {
		t.Error("Nil file should behave as empty")
	}
}
