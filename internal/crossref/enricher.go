package crossref

import (
	"log/slog"
	"signalbrief/internal/core"
	"signalbrief/internal/logger"
)

// Stats counts what an enrichment or repair pass did.
type Stats struct {
	Considered int            // Items that lacked a usable URL
	Enriched   int            // Items that gained one
	Missed     int            // Items left without a URL
	ByStrategy map[string]int // Enriched count per strategy
}

func newStats() Stats {
	return Stats{ByStrategy: make(map[string]int)}
}

// Enricher fills missing event and key-development URLs from the article corpus.
type Enricher struct {
	index *Index
	log   *slog.Logger
}

// NewEnricher indexes the corpus once for the run
func NewEnricher(articles []core.Article) *Enricher {
	return &Enricher{
		index: NewIndex(articles),
		log:   logger.Get(),
	}
}

// Enrich returns copies of events, with URLs filled where a match exists.
// Events without a match keep an empty URL and are never dropped.
func (e *Enricher) Enrich(events []core.Event) ([]core.Event, Stats) {
	stats := newStats()
	out := make([]core.Event, len(events))

	for i, ev := range events {
		out[i] = ev
		if IsUsableURL(ev.URL) {
			continue
		}
		stats.Considered++

		u, strategy, ok := e.resolveEvent(ev)
		if !ok {
			out[i].URL = ""
			stats.Missed++
			continue
		}
		out[i].URL = u
		stats.Enriched++
		stats.ByStrategy[strategy]++
	}

	e.log.Info("Cross-reference enrichment complete",
		"events", len(events),
		"considered", stats.Considered,
		"enriched", stats.Enriched,
		"missed", stats.Missed)

	return out, stats
}

func (e *Enricher) resolveEvent(ev core.Event) (string, string, bool) {
	if ev.Article != nil && IsUsableURL(ev.Article.URL) {
		return ev.Article.URL, StrategyEmbedded, true
	}

	title := ev.ArticleTitle
	source := ev.Source
	if ev.Article != nil {
		if title == "" {
			title = ev.Article.Title
		}
		if source == "" {
			source = ev.Article.Source
		}
	}

	return e.index.Lookup(ev.ArticleID, source, title)
}

// Repair re-runs the matching for key developments whose URL is missing or
// invalid, keyed by outlet and source title. It returns a new slice.
func (e *Enricher) Repair(devs []core.KeyDevelopment) ([]core.KeyDevelopment, Stats) {
	stats := newStats()
	if devs == nil {
		return nil, stats
	}
	out := make([]core.KeyDevelopment, len(devs))

	for i, d := range devs {
		out[i] = d
		if IsUsableURL(d.URL) {
			continue
		}
		stats.Considered++

		u, strategy, ok := e.index.Lookup("", d.Outlet, d.SourceTitle)
		if !ok {
			out[i].URL = ""
			stats.Missed++
			continue
		}
		out[i].URL = u
		stats.Enriched++
		stats.ByStrategy[strategy]++
	}

	if stats.Considered > 0 {
		e.log.Info("Repaired key development URLs",
			"developments", len(devs),
			"considered", stats.Considered,
			"repaired", stats.Enriched)
	}

	return out, stats
}
