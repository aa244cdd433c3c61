// Package selection picks a balanced, capped subset of events for one brief.
package selection

import (
	"signalbrief/internal/core"
	"strings"

	"golang.org/x/text/cases"
)

// CategoryOrder is the concatenation order applied before the total cap.
// When per-category quotas together exceed TotalCap, categories later in
// this order are the ones cut: competitor and other breadth come first, the
// subject organization and stakeholders absorb the overflow.
var CategoryOrder = []core.Category{
	core.CategoryCompetitor,
	core.CategoryOther,
	core.CategoryOrganization,
	core.CategoryStakeholder,
}

// Selection is the outcome of Select
type Selection struct {
	Events    []core.Event
	Indices   []int                 // Position of each selected event in the input
	Available map[core.Category]int // Events per category before caps
	Selected  map[core.Category]int // Events per category after caps and truncation
	Dropped   int
}

// Matcher assigns events to categories by entity name.
type Matcher struct {
	org          string
	competitors  []string
	stakeholders []string
	fold         cases.Caser
}

// NewMatcher prepares case-folded names for matching
func NewMatcher(orgName string, targets core.TargetSet) *Matcher {
	m := &Matcher{fold: cases.Fold()}
	m.org = m.key(orgName)
	for _, c := range targets.Competitors {
		if k := m.key(c); k != "" {
			m.competitors = append(m.competitors, k)
		}
	}
	for _, s := range targets.Stakeholders {
		if k := m.key(s); k != "" {
			m.stakeholders = append(m.stakeholders, k)
		}
	}
	return m
}

func (m *Matcher) key(s string) string {
	return m.fold.String(strings.TrimSpace(s))
}

// Categorize checks the organization first, then competitors, then stakeholders.
// A match is containment in either direction.
func (m *Matcher) Categorize(entity string) core.Category {
	e := m.key(entity)
	if e == "" {
		return core.CategoryOther
	}
	if m.org != "" && related(e, m.org) {
		return core.CategoryOrganization
	}
	for _, c := range m.competitors {
		if related(e, c) {
			return core.CategoryCompetitor
		}
	}
	for _, s := range m.stakeholders {
		if related(e, s) {
			return core.CategoryStakeholder
		}
	}
	return core.CategoryOther
}

func related(a, b string) bool {
	return strings.Contains(a, b) || strings.Contains(b, a)
}

// Select partitions events, keeps min(available, cap) per category in
// incoming order, concatenates in CategoryOrder and truncates to TotalCap.
func Select(events []core.Event, orgName string, targets core.TargetSet, budget core.SelectionBudget) Selection {
	m := NewMatcher(orgName, targets)

	buckets := make(map[core.Category][]int, len(CategoryOrder))
	categories := make([]core.Category, len(events))
	for i, ev := range events {
		c := m.Categorize(ev.Entity)
		categories[i] = c
		buckets[c] = append(buckets[c], i)
	}

	sel := Selection{
		Available: make(map[core.Category]int, len(CategoryOrder)),
		Selected:  make(map[core.Category]int, len(CategoryOrder)),
	}

	var order []int
	for _, c := range CategoryOrder {
		idx := buckets[c]
		sel.Available[c] = len(idx)
		quota := budget.Cap(c)
		if quota < 0 {
			quota = 0
		}
		if quota > len(idx) {
			quota = len(idx)
		}
		order = append(order, idx[:quota]...)
	}

	total := budget.TotalCap
	if total < 0 {
		total = 0
	}
	if len(order) > total {
		order = order[:total]
	}

	sel.Indices = order
	sel.Events = make([]core.Event, len(order))
	for n, i := range order {
		sel.Events[n] = events[i]
		sel.Selected[categories[i]]++
	}
	sel.Dropped = len(events) - len(order)

	return sel
}
