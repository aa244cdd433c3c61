// Package prompt renders the single generation prompt for a synthesis run.
package prompt

import (
	"fmt"
	"signalbrief/internal/core"
	"signalbrief/internal/grouping"
	"signalbrief/internal/sources"
	"sort"
	"strings"
)

// DefaultMaxBytes bounds the composed prompt when no limit is configured
const DefaultMaxBytes = 60000

// TruncationMarker is appended whenever content is dropped to fit the limit
const TruncationMarker = "[TRUNCATED: %d items omitted to fit size limit]"

const (
	maxDescriptionRunes = 320
	maxGroupArticles    = 3
	maxConnections      = 10
)

// EventItem is a selected event with its recency bucket
type EventItem struct {
	Event   core.Event
	Recency core.RecencyBucket
}

// ArticleItem is an article with its recency bucket
type ArticleItem struct {
	Article core.Article
	Recency core.RecencyBucket
}

// Input is everything the composer renders
type Input struct {
	OrganizationID   string
	OrganizationName string
	Depth            string
	Focus            []string
	Targets          core.TargetSet
	Priorities       *sources.Priorities
	Groups           grouping.Result
	Events           []EventItem
	Articles         []ArticleItem
}

// Prompt is the composed text plus accounting
type Prompt struct {
	Text      string
	Items     int // Listing and group lines offered
	Omitted   int // Lines dropped to fit MaxBytes
	Truncated bool
}

// Composer renders prompts with a hard size limit
type Composer struct {
	MaxBytes int
}

// NewComposer creates a composer; maxBytes <= 0 selects DefaultMaxBytes
func NewComposer(maxBytes int) *Composer {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Composer{MaxBytes: maxBytes}
}

// Compose renders, in order: monitoring context, target-grouped summary,
// the recency-sorted listing and the output contract. When the result would
// exceed MaxBytes, listing lines are dropped from the tail first, then group
// lines, and a truncation marker records how many were omitted.
func (c *Composer) Compose(in Input) Prompt {
	head := renderContext(in)
	groupLines := renderGroups(in)
	listing := renderListing(in)
	contract := renderContract(in.Depth)

	listingHeader := "## Intelligence Items (most recent first)\n\n"
	groupHeader := "## Target Intelligence Summary\n\n"

	items := len(groupLines) + len(listing)
	p := Prompt{Items: items}

	assemble := func(groups, lines []string, omitted int) string {
		var b strings.Builder
		b.WriteString(head)
		if len(groups) > 0 {
			b.WriteString(groupHeader)
			for _, l := range groups {
				b.WriteString(l)
			}
			b.WriteString("\n")
		}
		b.WriteString(listingHeader)
		for _, l := range lines {
			b.WriteString(l)
		}
		if omitted > 0 {
			b.WriteString("\n")
			b.WriteString(fmt.Sprintf(TruncationMarker, omitted))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(contract)
		return b.String()
	}

	full := assemble(groupLines, listing, 0)
	if len(full) <= c.MaxBytes {
		p.Text = full
		return p
	}

	// Reserve room for the marker at its widest
	marker := len(fmt.Sprintf(TruncationMarker, items)) + 2
	budget := c.MaxBytes - marker - len(head) - len(contract) - len(listingHeader) - len(groupHeader) - 2

	keptGroups := fitPrefix(groupLines, budget)
	budget -= sumLen(groupLines[:keptGroups])
	keptListing := fitPrefix(listing, budget)

	omitted := (len(groupLines) - keptGroups) + (len(listing) - keptListing)
	text := assemble(groupLines[:keptGroups], listing[:keptListing], omitted)

	// Context and contract alone can exceed tiny limits. Cut on a rune
	// boundary and keep the marker as the last line.
	if len(text) > c.MaxBytes {
		markerLine := "\n" + fmt.Sprintf(TruncationMarker, omitted) + "\n"
		keep := c.MaxBytes - len(markerLine)
		if keep < 0 {
			keep = 0
		}
		text = cutBytes(assemble(groupLines[:keptGroups], listing[:keptListing], 0), keep) + markerLine
	}

	p.Text = text
	p.Omitted = omitted
	p.Truncated = true
	return p
}

func fitPrefix(lines []string, budget int) int {
	n := 0
	for _, l := range lines {
		if budget-len(l) < 0 {
			break
		}
		budget -= len(l)
		n++
	}
	return n
}

func sumLen(lines []string) int {
	total := 0
	for _, l := range lines {
		total += len(l)
	}
	return total
}

func cutBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

func renderContext(in Input) string {
	var b strings.Builder

	name := in.OrganizationName
	if name == "" {
		name = in.OrganizationID
	}

	b.WriteString("You are a strategic intelligence analyst writing an executive brief.\n\n")
	b.WriteString("## Monitoring Context\n\n")
	b.WriteString(fmt.Sprintf("**Organization:** %s\n", name))
	if in.Depth != "" {
		b.WriteString(fmt.Sprintf("**Depth:** %s\n", in.Depth))
	}
	if len(in.Focus) > 0 {
		b.WriteString(fmt.Sprintf("**Focus:** %s\n", strings.Join(in.Focus, ", ")))
	}

	writeList := func(label string, names []string) {
		if len(names) == 0 {
			return
		}
		b.WriteString(fmt.Sprintf("**%s:** %s\n", label, strings.Join(names, ", ")))
	}
	writeList("Competitors", in.Targets.Competitors)
	writeList("Stakeholders", in.Targets.Stakeholders)
	writeList("Topics", in.Targets.Topics)
	if in.Targets.IsEmpty() {
		b.WriteString("**Tracked targets:** none configured\n")
	}

	writeList("Critical sources", in.Priorities.Critical())
	writeList("High-priority sources", in.Priorities.High())
	b.WriteString("\n")

	return b.String()
}

func renderGroups(in Input) []string {
	var lines []string
	for _, g := range in.Groups.Groups {
		lines = append(lines, fmt.Sprintf("### %s (%d articles, strongest signal: %s)\n", g.Target, len(g.Articles), g.Strongest))
		for i, a := range g.Articles {
			if i >= maxGroupArticles {
				break
			}
			lines = append(lines, fmt.Sprintf("- %s%s (%s)\n", signalBadge(a.SignalStrength), clip(StripHTML(a.Title), 160), a.Source))
		}
	}

	if n := len(in.Groups.Connections); n > 0 {
		lines = append(lines, "### Cross-Target Connections\n")
		for i, conn := range in.Groups.Connections {
			if i >= maxConnections {
				break
			}
			lines = append(lines, fmt.Sprintf("- %s links %s (%s)\n",
				clip(StripHTML(conn.Article.Title), 160), strings.Join(conn.Targets, " + "), conn.Article.Source))
		}
	}
	return lines
}

type listingLine struct {
	recency core.RecencyBucket
	text    string
}

// renderListing emits events then articles, stable-sorted by recency rank
func renderListing(in Input) []string {
	var entries []listingLine

	for _, item := range in.Events {
		ev := item.Event
		var b strings.Builder
		b.WriteString("- ")
		b.WriteString(recencyBadge(item.Recency))
		b.WriteString(priorityBadge(in.Priorities, ev.Source))
		b.WriteString(fmt.Sprintf("EVENT %s | %s: %s", ev.Type, ev.Entity, clip(StripHTML(ev.Description), maxDescriptionRunes)))
		if ev.Source != "" {
			b.WriteString(fmt.Sprintf(" | outlet: %s", ev.Source))
		}
		if ev.ArticleTitle != "" {
			b.WriteString(fmt.Sprintf(" | title: %s", clip(StripHTML(ev.ArticleTitle), 160)))
		}
		if ev.URL != "" {
			b.WriteString(fmt.Sprintf(" | url: %s", ev.URL))
		}
		b.WriteString("\n")
		entries = append(entries, listingLine{recency: item.Recency, text: b.String()})
	}

	for _, item := range in.Articles {
		a := item.Article
		var b strings.Builder
		b.WriteString("- ")
		b.WriteString(recencyBadge(item.Recency))
		b.WriteString(signalBadge(a.SignalStrength))
		b.WriteString(priorityBadge(in.Priorities, a.Source))
		if a.ContentQuality == core.ContentSummary {
			b.WriteString("[SUMMARY ONLY] ")
		}
		b.WriteString(fmt.Sprintf("ARTICLE %s | outlet: %s", clip(StripHTML(a.Title), 160), a.Source))
		if len(a.MatchedTargets) > 0 {
			b.WriteString(fmt.Sprintf(" | targets: %s", strings.Join(a.MatchedTargets, ", ")))
		}
		if desc := StripHTML(a.Description); desc != "" {
			b.WriteString(fmt.Sprintf(" | %s", clip(desc, maxDescriptionRunes)))
		}
		if a.URL != "" {
			b.WriteString(fmt.Sprintf(" | url: %s", a.URL))
		}
		b.WriteString("\n")
		entries = append(entries, listingLine{recency: item.Recency, text: b.String()})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].recency.Rank() < entries[j].recency.Rank()
	})

	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = e.text
	}
	return lines
}

func recencyBadge(b core.RecencyBucket) string {
	switch b {
	case core.RecencyToday:
		return "[TODAY] "
	case core.RecencyYesterday:
		return "[YESTERDAY] "
	case core.RecencyThisWeek:
		return "[THIS WEEK] "
	case core.RecencyLast2Weeks:
		return "[LAST 2 WEEKS] "
	case core.RecencyOlder:
		return "[OLDER] "
	}
	return "[DATE UNKNOWN] "
}

func signalBadge(s core.SignalStrength) string {
	switch s {
	case core.SignalStrong:
		return "[STRONG SIGNAL] "
	case core.SignalModerate:
		return "[MODERATE SIGNAL] "
	}
	return ""
}

func priorityBadge(p *sources.Priorities, source string) string {
	switch p.Level(source) {
	case sources.LevelCritical:
		return "[CRITICAL SOURCE] "
	case sources.LevelHigh:
		return "[HIGH PRIORITY SOURCE] "
	}
	return ""
}

func developmentCount(depth string) string {
	switch depth {
	case "quick":
		return "3-5"
	case "deep":
		return "12-15"
	}
	return "6-10"
}

func renderContract(depth string) string {
	var b strings.Builder
	b.WriteString("## Output Format\n\n")
	b.WriteString("Respond with a single JSON object and nothing else. Use exactly these keys:\n")
	b.WriteString("{\n")
	b.WriteString("  \"executive_summary\": \"3-5 sentences on what changed and why it matters\",\n")
	b.WriteString(fmt.Sprintf("  \"key_developments\": [ // %s entries, most important first\n", developmentCount(depth)))
	b.WriteString("    {\n")
	b.WriteString("      \"category\": \"competitor | stakeholder | organization | market\",\n")
	b.WriteString("      \"event\": \"what happened, with concrete names and numbers\",\n")
	b.WriteString("      \"implication\": \"what it means for the organization\",\n")
	b.WriteString("      \"source_title\": \"title of the article it came from\",\n")
	b.WriteString("      \"outlet\": \"publication name\",\n")
	b.WriteString("      \"url\": \"article URL copied exactly from the items above\",\n")
	b.WriteString("      \"recency\": \"today | yesterday | this_week | last_2_weeks | older | unknown\",\n")
	b.WriteString("      \"entity\": \"the company, body or topic concerned\"\n")
	b.WriteString("    }\n")
	b.WriteString("  ],\n")
	b.WriteString("  \"strategic_implications\": \"2-4 sentences connecting the developments\",\n")
	b.WriteString("  \"watching_closely\": [\"short phrases naming what to monitor next\"]\n")
	b.WriteString("}\n\n")
	b.WriteString("Rules:\n")
	b.WriteString("- Lead with targets that have several corroborating articles.\n")
	b.WriteString("- Prefer [TODAY] and [YESTERDAY] items; treat [DATE UNKNOWN] as recent.\n")
	b.WriteString("- Never invent URLs. Leave \"url\" empty when unsure.\n")
	return b.String()
}
