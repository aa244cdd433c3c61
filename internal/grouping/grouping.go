// Package grouping groups articles by the discovery targets they match.
package grouping

import (
	"signalbrief/internal/core"
	"signalbrief/internal/sources"
	"sort"
	"strings"

	"golang.org/x/text/cases"
)

// DefaultTopTargets is the number of target groups kept when none is configured
const DefaultTopTargets = 15

// Group is one target and the articles that matched it
type Group struct {
	Target    string
	Articles  []core.Article
	Strongest core.SignalStrength
}

// Connection is an article that matched more than one target
type Connection struct {
	Article core.Article
	Targets []string
}

// Result holds the target grouping for one run
type Result struct {
	Groups          []Group
	Connections     []Connection
	TargetsMatched  int // Distinct targets before the top-N cut
	BlockedFiltered int // Articles dropped because their source is blocked
}

// Grouper builds target groups
type Grouper struct {
	TopN       int
	Priorities *sources.Priorities
}

// NewGrouper creates a grouper keeping topN targets (DefaultTopTargets when <= 0)
func NewGrouper(topN int, priorities *sources.Priorities) *Grouper {
	if topN <= 0 {
		topN = DefaultTopTargets
	}
	return &Grouper{TopN: topN, Priorities: priorities}
}

// Group maps targets to matching articles, drops blocked sources, ranks the
// targets and collects cross-target connections. The input is not modified.
func (g *Grouper) Group(articles []core.Article) Result {
	fold := cases.Fold()
	var res Result

	index := make(map[string]int)
	var groups []Group

	for _, a := range articles {
		if len(a.MatchedTargets) == 0 {
			continue
		}
		if g.Priorities.IsBlocked(a.Source) {
			res.BlockedFiltered++
			continue
		}

		seen := make(map[string]bool, len(a.MatchedTargets))
		var names []string
		for _, raw := range a.MatchedTargets {
			name := strings.TrimSpace(raw)
			key := fold.String(name)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			names = append(names, name)

			i, ok := index[key]
			if !ok {
				i = len(groups)
				index[key] = i
				groups = append(groups, Group{Target: name})
			}
			groups[i].Articles = append(groups[i].Articles, a)
			if a.SignalStrength.Rank() > groups[i].Strongest.Rank() || groups[i].Strongest == "" {
				groups[i].Strongest = normalizedStrength(a.SignalStrength)
			}
		}

		if len(names) > 1 {
			res.Connections = append(res.Connections, Connection{Article: a, Targets: names})
		}
	}

	res.TargetsMatched = len(groups)

	sort.SliceStable(groups, func(i, j int) bool {
		if len(groups[i].Articles) != len(groups[j].Articles) {
			return len(groups[i].Articles) > len(groups[j].Articles)
		}
		if groups[i].Strongest.Rank() != groups[j].Strongest.Rank() {
			return groups[i].Strongest.Rank() > groups[j].Strongest.Rank()
		}
		return fold.String(groups[i].Target) < fold.String(groups[j].Target)
	})

	if len(groups) > g.TopN {
		groups = groups[:g.TopN]
	}
	for i := range groups {
		SortArticles(groups[i].Articles)
	}
	res.Groups = groups

	sort.SliceStable(res.Connections, func(i, j int) bool {
		return len(res.Connections[i].Targets) > len(res.Connections[j].Targets)
	})

	return res
}

// SortArticles orders strong > moderate > weak, then by relevance descending.
func SortArticles(articles []core.Article) {
	sort.SliceStable(articles, func(i, j int) bool {
		ri, rj := articles[i].SignalStrength.Rank(), articles[j].SignalStrength.Rank()
		if ri != rj {
			return ri > rj
		}
		return articles[i].RelevanceScore > articles[j].RelevanceScore
	})
}

func normalizedStrength(s core.SignalStrength) core.SignalStrength {
	switch s {
	case core.SignalStrong, core.SignalModerate:
		return s
	}
	return core.SignalWeak
}
