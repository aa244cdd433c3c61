package prompt

import (
	"fmt"
	"signalbrief/internal/core"
	"signalbrief/internal/grouping"
	"signalbrief/internal/sources"
	"strings"
	"testing"
)

func sampleInput() Input {
	articles := []core.Article{
		{Title: "Acme opens gigafactory", Source: "Reuters", URL: "https://reuters.com/a", SignalStrength: core.SignalStrong, MatchedTargets: []string{"Acme", "Grid Storage"}},
		{Title: "Globex quarterly results", Source: "Trade Weekly", URL: "https://trade.example/b", SignalStrength: core.SignalWeak, ContentQuality: core.ContentSummary, MatchedTargets: []string{"Globex"}},
	}

	return Input{
		OrganizationID:   "org-42",
		OrganizationName: "Northwind Energy",
		Depth:            "standard",
		Targets: core.TargetSet{
			Competitors: []string{"Acme", "Globex"},
			Topics:      []string{"Grid Storage"},
		},
		Priorities: sources.NewPriorities(sources.Priority{Critical: []string{"Reuters"}, High: []string{"Trade Weekly"}}),
		Groups:     grouping.NewGrouper(15, nil).Group(articles),
		Events: []EventItem{
			{Event: core.Event{Type: "partnership", Entity: "Globex", Description: "<p>Globex &amp; Hooli sign <b>storage</b> deal</p>", Source: "Reuters"}, Recency: core.RecencyOlder},
			{Event: core.Event{Type: "launch", Entity: "Acme", Description: "Acme ships new cells"}, Recency: core.RecencyToday},
		},
		Articles: []ArticleItem{
			{Article: articles[0], Recency: core.RecencyYesterday},
			{Article: articles[1], Recency: core.RecencyUnknown},
		},
	}
}

func TestCompose_SectionOrder(t *testing.T) {
	p := NewComposer(0).Compose(sampleInput())

	sections := []string{
		"## Monitoring Context",
		"## Target Intelligence Summary",
		"## Intelligence Items",
		"## Output Format",
	}
	last := -1
	for _, s := range sections {
		idx := strings.Index(p.Text, s)
		if idx < 0 {
			t.Fatalf("Missing section %q", s)
		}
		if idx <= last {
			t.Errorf("Section %q out of order", s)
		}
		last = idx
	}

	if p.Truncated || strings.Contains(p.Text, "[TRUNCATED") {
		t.Error("Small prompt should not be truncated")
	}
	if !strings.Contains(p.Text, "**Critical sources:** Reuters") {
		t.Error("Expected critical sources in monitoring context")
	}
	if !strings.Contains(p.Text, "Cross-Target Connections") {
		t.Error("Expected cross-target connections section")
	}
}

func TestCompose_RecencySortAndBadges(t *testing.T) {
	p := NewComposer(0).Compose(sampleInput())

	today := strings.Index(p.Text, "[TODAY] EVENT launch")
	yesterday := strings.Index(p.Text, "[YESTERDAY] [STRONG SIGNAL] [CRITICAL SOURCE] ARTICLE Acme opens gigafactory")
	unknown := strings.Index(p.Text, "[DATE UNKNOWN] [HIGH PRIORITY SOURCE] [SUMMARY ONLY] ARTICLE Globex")
	older := strings.Index(p.Text, "[OLDER] [CRITICAL SOURCE] EVENT partnership")

	for name, idx := range map[string]int{"today": today, "yesterday": yesterday, "unknown": unknown, "older": older} {
		if idx < 0 {
			t.Fatalf("Missing %s line in:\n%s", name, p.Text)
		}
	}
	if !(today < yesterday && yesterday < unknown && unknown < older) {
		t.Errorf("Listing not recency sorted: today=%d yesterday=%d unknown=%d older=%d", today, yesterday, unknown, older)
	}
}

func TestCompose_StripsHTML(t *testing.T) {
	p := NewComposer(0).Compose(sampleInput())
	if strings.Contains(p.Text, "<p>") || strings.Contains(p.Text, "&amp;") {
		t.Error("HTML should be stripped from descriptions")
	}
	if !strings.Contains(p.Text, "Globex & Hooli sign storage deal") {
		t.Error("Expected cleaned description text")
	}
}

func TestCompose_TruncatesTailWithMarker(t *testing.T) {
	in := sampleInput()
	in.Events = nil
	for i := 0; i < 400; i++ {
		in.Events = append(in.Events, EventItem{
			Event:   core.Event{Type: "update", Entity: "Acme", Description: fmt.Sprintf("item %03d %s", i, strings.Repeat("x", 150))},
			Recency: core.RecencyToday,
		})
	}

	limit := 20000
	p := NewComposer(limit).Compose(in)

	if len(p.Text) > limit {
		t.Fatalf("Prompt is %d bytes, limit %d", len(p.Text), limit)
	}
	if !p.Truncated || p.Omitted == 0 {
		t.Fatalf("Expected truncation, got %+v", p)
	}
	marker := fmt.Sprintf(TruncationMarker, p.Omitted)
	if !strings.Contains(p.Text, marker) {
		t.Errorf("Expected marker %q", marker)
	}
	if !strings.Contains(p.Text, "item 000") {
		t.Error("Head of the listing should be kept")
	}
	if strings.Contains(p.Text, "item 399") {
		t.Error("Tail of the listing should be dropped first")
	}
	if !strings.Contains(p.Text, "## Output Format") {
		t.Error("Output contract must survive truncation")
	}
}

func TestCompose_MarkerSurvivesTinyLimit(t *testing.T) {
	limit := 300
	p := NewComposer(limit).Compose(sampleInput())

	if len(p.Text) > limit {
		t.Fatalf("Prompt is %d bytes, limit %d", len(p.Text), limit)
	}
	if !p.Truncated {
		t.Fatal("Expected truncation")
	}
	marker := fmt.Sprintf(TruncationMarker, p.Omitted)
	if !strings.HasSuffix(strings.TrimSpace(p.Text), marker) {
		t.Errorf("Expected prompt to end with %q, got tail %q", marker, p.Text[max(0, len(p.Text)-80):])
	}
	if strings.Count(p.Text, "[TRUNCATED") != 1 {
		t.Error("Marker should appear exactly once")
	}
}

func TestCompose_EmptyTargets(t *testing.T) {
	p := NewComposer(0).Compose(Input{OrganizationID: "org-1"})
	if !strings.Contains(p.Text, "**Organization:** org-1") {
		t.Error("Organization ID should stand in for a missing name")
	}
	if !strings.Contains(p.Text, "none configured") {
		t.Error("Expected empty target note")
	}
}

func TestStripHTML(t *testing.T) {
	tests := map[string]string{
		"plain   text\n here":                      "plain text here",
		"<p>One</p><p>Two</p>":                     "One Two",
		"AT&amp;T <script>alert(1)</script>rises": "AT&T rises",
		"":                                         "",
	}
	for in, want := range tests {
		if got := StripHTML(in); got != want {
			t.Errorf("StripHTML(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCutBytesRuneSafe(t *testing.T) {
	s := "ab€cd"
	got := cutBytes(s, 4)
	if got != "ab" {
		t.Errorf("cutBytes = %q, want %q", got, "ab")
	}
}
