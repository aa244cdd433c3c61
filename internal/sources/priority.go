// Package sources provides per-organization source priority configuration
package sources

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/cases"
	"gopkg.in/yaml.v3"
)

// Level is the priority assigned to a source name
type Level string

const (
	LevelCritical Level = "critical"
	LevelHigh     Level = "high"
	LevelNormal   Level = "normal"
	LevelBlocked  Level = "blocked"
)

// Priority lists source names by priority. Names match case-insensitively.
type Priority struct {
	Critical []string `yaml:"critical"`
	High     []string `yaml:"high"`
	Blocked  []string `yaml:"blocked"`
}

// File is the on-disk layout of the source priority file:
//
//	default:
//	  blocked: [content-farm.example]
//	organizations:
//	  org-42:
//	    critical: [Reuters]
//	    high: [Utility Dive]
type File struct {
	Default       Priority            `yaml:"default"`
	Organizations map[string]Priority `yaml:"organizations"`
}

// LoadFile reads the priority file. A blank path or a missing file is a
// configuration gap and yields an empty File.
func LoadFile(path string) (*File, error) {
	if strings.TrimSpace(path) == "" {
		return &File{}, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &File{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read source priority file: %w", err)
	}

	return Parse(data)
}

// Parse decodes priority YAML
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse source priority YAML: %w", err)
	}
	return &f, nil
}

// For returns the effective priorities for an organization: the defaults
// plus the organization's own lists.
func (f *File) For(orgID string) *Priorities {
	if f == nil {
		return NewPriorities(Priority{})
	}
	merged := f.Default
	if org, ok := f.Organizations[orgID]; ok {
		merged.Critical = append(append([]string(nil), merged.Critical...), org.Critical...)
		merged.High = append(append([]string(nil), merged.High...), org.High...)
		merged.Blocked = append(append([]string(nil), merged.Blocked...), org.Blocked...)
	}
	return NewPriorities(merged)
}

// Priorities answers priority lookups for one organization
type Priorities struct {
	raw    Priority
	levels map[string]Level
	fold   cases.Caser
}

// NewPriorities indexes a Priority. Blocked wins over critical, critical over high.
func NewPriorities(p Priority) *Priorities {
	ps := &Priorities{raw: p, levels: make(map[string]Level), fold: cases.Fold()}
	for _, name := range p.High {
		ps.set(name, LevelHigh)
	}
	for _, name := range p.Critical {
		ps.set(name, LevelCritical)
	}
	for _, name := range p.Blocked {
		ps.set(name, LevelBlocked)
	}
	return ps
}

func (p *Priorities) set(name string, level Level) {
	if k := p.key(name); k != "" {
		p.levels[k] = level
	}
}

func (p *Priorities) key(name string) string {
	return p.fold.String(strings.TrimSpace(name))
}

// Level returns the priority of source, LevelNormal when unlisted
func (p *Priorities) Level(source string) Level {
	if p == nil {
		return LevelNormal
	}
	if l, ok := p.levels[p.key(source)]; ok {
		return l
	}
	return LevelNormal
}

// IsBlocked reports whether source must be excluded
func (p *Priorities) IsBlocked(source string) bool {
	return p.Level(source) == LevelBlocked
}

// Critical returns the configured critical source names
func (p *Priorities) Critical() []string {
	if p == nil {
		return nil
	}
	return p.raw.Critical
}

// High returns the configured high-priority source names
func (p *Priorities) High() []string {
	if p == nil {
		return nil
	}
	return p.raw.High
}

// Blocked returns the configured blocked source names
func (p *Priorities) Blocked() []string {
	if p == nil {
		return nil
	}
	return p.raw.Blocked
}
