// Package targets resolves the discovery targets an organization monitors.
package targets

import (
	"context"
	"errors"
	"log/slog"
	"signalbrief/internal/core"
	"signalbrief/internal/logger"
	"strings"

	"golang.org/x/text/cases"
)

// ErrNoStore is returned by Loader when no store is configured at all.
var ErrNoStore = errors.New("no target store configured")

// ProfileStore reads targets from the canonical organization profile.
type ProfileStore interface {
	ProfileTargets(ctx context.Context, orgID string) (core.TargetSet, error)
}

// LegacyStore reads targets recorded by the older discovery flow.
type LegacyStore interface {
	LegacyTargets(ctx context.Context, orgID string) (core.TargetSet, error)
}

// Loader merges canonical and legacy targets for an organization
type Loader struct {
	profile ProfileStore
	legacy  LegacyStore
	log     *slog.Logger
}

// NewLoader creates a loader. Either store may be nil.
func NewLoader(profile ProfileStore, legacy LegacyStore) *Loader {
	return &Loader{
		profile: profile,
		legacy:  legacy,
		log:     logger.Get(),
	}
}

// Load returns the merged target set. Canonical names come first, duplicates
// are dropped case-insensitively and the first-seen casing is kept. Store
// failures are logged and treated as an empty contribution, so Load never
// fails a run; an empty set is a valid result.
func (l *Loader) Load(ctx context.Context, orgID string) core.TargetSet {
	var canonical, legacy core.TargetSet

	if l.profile != nil {
		set, err := l.profile.ProfileTargets(ctx, orgID)
		if err != nil {
			l.log.Warn("Profile target lookup failed, continuing without it", "org", orgID, "error", err)
		} else {
			canonical = set
		}
	}

	if l.legacy != nil {
		set, err := l.legacy.LegacyTargets(ctx, orgID)
		if err != nil {
			l.log.Warn("Legacy target lookup failed, continuing without it", "org", orgID, "error", err)
		} else {
			legacy = set
		}
	}

	merged := Merge(canonical, legacy)
	l.log.Info("Loaded discovery targets",
		"org", orgID,
		"competitors", len(merged.Competitors),
		"stakeholders", len(merged.Stakeholders),
		"topics", len(merged.Topics),
		"canonical", canonical.Total(),
		"legacy", legacy.Total())
	return merged
}

// Configured reports whether at least one store is attached.
func (l *Loader) Configured() error {
	if l.profile == nil && l.legacy == nil {
		return ErrNoStore
	}
	return nil
}

// Merge unions sets kind by kind, earlier sets first.
func Merge(sets ...core.TargetSet) core.TargetSet {
	var out core.TargetSet
	for _, kind := range core.TargetKinds {
		var names []string
		for _, set := range sets {
			names = append(names, set.ByKind(kind)...)
		}
		deduped := Dedupe(names)
		switch kind {
		case core.TargetCompetitor:
			out.Competitors = deduped
		case core.TargetStakeholder:
			out.Stakeholders = deduped
		case core.TargetTopic:
			out.Topics = deduped
		}
	}
	return out
}

// Dedupe drops blank and case-insensitively repeated names, keeping the
// first occurrence as written.
func Dedupe(names []string) []string {
	fold := cases.Fold()
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		key := fold.String(name)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, name)
	}
	return out
}
