package grouping

import (
	"fmt"
	"signalbrief/internal/core"
	"signalbrief/internal/sources"
	"testing"
)

func article(title, source string, strength core.SignalStrength, relevance float64, targets ...string) core.Article {
	return core.Article{
		Title:          title,
		Source:         source,
		URL:            "https://example.com/" + title,
		SignalStrength: strength,
		RelevanceScore: relevance,
		MatchedTargets: targets,
	}
}

func TestGroup_RanksTargetsByArticleCount(t *testing.T) {
	articles := []core.Article{
		article("a1", "Reuters", core.SignalWeak, 0.2, "Globex"),
		article("a2", "Reuters", core.SignalStrong, 0.9, "Acme"),
		article("a3", "Bloomberg", core.SignalModerate, 0.5, "Acme"),
		article("a4", "Bloomberg", core.SignalWeak, 0.7, "acme"),
		article("a5", "FT", core.SignalStrong, 0.1, "Initech"),
	}

	res := NewGrouper(0, nil).Group(articles)

	if len(res.Groups) != 3 {
		t.Fatalf("Expected 3 groups, got %d", len(res.Groups))
	}
	if res.Groups[0].Target != "Acme" || len(res.Groups[0].Articles) != 3 {
		t.Errorf("Expected Acme with 3 articles first, got %s with %d", res.Groups[0].Target, len(res.Groups[0].Articles))
	}
	// Globex and Initech tie on count; Initech has the stronger signal
	if res.Groups[1].Target != "Initech" {
		t.Errorf("Expected Initech second on signal tie-break, got %s", res.Groups[1].Target)
	}

	acme := res.Groups[0].Articles
	if acme[0].Title != "a2" || acme[1].Title != "a3" || acme[2].Title != "a4" {
		t.Errorf("Unexpected in-group order: %s, %s, %s", acme[0].Title, acme[1].Title, acme[2].Title)
	}
	if res.Groups[0].Strongest != core.SignalStrong {
		t.Errorf("Expected strongest signal strong, got %s", res.Groups[0].Strongest)
	}
}

func TestGroup_TopN(t *testing.T) {
	var articles []core.Article
	for i := 0; i < 20; i++ {
		for j := 0; j <= i; j++ {
			articles = append(articles, article(fmt.Sprintf("t%d-%d", i, j), "Wire", core.SignalWeak, 0, fmt.Sprintf("Target %02d", i)))
		}
	}

	res := NewGrouper(15, nil).Group(articles)

	if len(res.Groups) != 15 {
		t.Fatalf("Expected 15 groups, got %d", len(res.Groups))
	}
	if res.TargetsMatched != 20 {
		t.Errorf("Expected 20 matched targets before cut, got %d", res.TargetsMatched)
	}
	if res.Groups[0].Target != "Target 19" {
		t.Errorf("Expected the busiest target first, got %s", res.Groups[0].Target)
	}
}

func TestGroup_BlockedSources(t *testing.T) {
	priorities := sources.NewPriorities(sources.Priority{Blocked: []string{"Content Farm"}})
	articles := []core.Article{
		article("a1", "content farm", core.SignalStrong, 1, "Acme", "Globex"),
		article("a2", "Reuters", core.SignalWeak, 0.3, "Acme"),
	}

	res := NewGrouper(15, priorities).Group(articles)

	if res.BlockedFiltered != 1 {
		t.Errorf("Expected 1 blocked article, got %d", res.BlockedFiltered)
	}
	if len(res.Groups) != 1 || len(res.Groups[0].Articles) != 1 {
		t.Errorf("Blocked article should not appear in groups: %+v", res.Groups)
	}
	if len(res.Connections) != 0 {
		t.Error("Blocked article should not count as a connection")
	}
}

func TestGroup_CrossTargetConnections(t *testing.T) {
	articles := []core.Article{
		article("single", "Reuters", core.SignalWeak, 0, "Acme"),
		article("pair", "Reuters", core.SignalWeak, 0, "Acme", "Globex"),
		article("triple", "Reuters", core.SignalWeak, 0, "Acme", "Globex", "Grid Storage"),
		article("dup", "Reuters", core.SignalWeak, 0, "Acme", "ACME"),
	}

	res := NewGrouper(15, nil).Group(articles)

	if len(res.Connections) != 2 {
		t.Fatalf("Expected 2 connections, got %d", len(res.Connections))
	}
	if res.Connections[0].Article.Title != "triple" {
		t.Errorf("Expected widest connection first, got %s", res.Connections[0].Article.Title)
	}
}

func TestGroup_DoesNotMutateInput(t *testing.T) {
	articles := []core.Article{
		article("weak", "Reuters", core.SignalWeak, 0.1, "Acme"),
		article("strong", "Reuters", core.SignalStrong, 0.9, "Acme"),
	}

	_ = NewGrouper(15, nil).Group(articles)

	if articles[0].Title != "weak" {
		t.Error("Input slice was reordered")
	}
}

func TestSortArticles(t *testing.T) {
	list := []core.Article{
		{Title: "w-high", SignalStrength: core.SignalWeak, RelevanceScore: 0.9},
		{Title: "m", SignalStrength: core.SignalModerate, RelevanceScore: 0.1},
		{Title: "s-low", SignalStrength: core.SignalStrong, RelevanceScore: 0.2},
		{Title: "s-high", SignalStrength: core.SignalStrong, RelevanceScore: 0.8},
	}
	SortArticles(list)

	want := []string{"s-high", "s-low", "m", "w-high"}
	for i, w := range want {
		if list[i].Title != w {
			t.Errorf("position %d = %s, want %s", i, list[i].Title, w)
		}
	}
}
