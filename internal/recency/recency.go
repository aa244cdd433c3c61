// Package recency buckets content by age relative to a fixed "now".
package recency

import (
	"regexp"
	"signalbrief/internal/core"
	"strconv"
	"strings"
	"time"
)

var (
	// YYYY-MM-DD with -, _, space or / separators
	separatedDateRegex = regexp.MustCompile(`(?:^|\D)((?:19|20)\d{2})[-_ /](\d{1,2})[-_ /](\d{1,2})(?:\D|$)`)

	// YYYYMMDD
	compactDateRegex = regexp.MustCompile(`(?:^|\D)((?:19|20)\d{2})(\d{2})(\d{2})(?:\D|$)`)

	// "3 days ago", "an hour ago", "2 weeks ago"
	relativeRegex = regexp.MustCompile(`^(\d+|a|an|one)\s+(second|minute|hour|day|week|month|year)s?\s+ago$`)
)

// timestampLayouts are tried in order for explicit timestamps
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02",
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"2 Jan 2006",
}

// Classifier assigns recency buckets. It is a pure function of Now and its input.
type Classifier struct {
	Now func() time.Time
}

// NewClassifier freezes now for a whole run so every item shares one reference point
func NewClassifier(now time.Time) *Classifier {
	return &Classifier{Now: func() time.Time { return now }}
}

func (c *Classifier) now() time.Time {
	if c == nil || c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

// Classify buckets an item from its explicit timestamp, falling back to a date
// embedded in the URL and then the title.
func (c *Classifier) Classify(timestamp, rawURL, title string) core.RecencyBucket {
	now := c.now()

	if t, ok := ParseTimestamp(timestamp, now); ok {
		return Bucket(now, t)
	}
	if t, ok := ExtractDate(rawURL, now.Location()); ok {
		return Bucket(now, t)
	}
	if t, ok := ExtractDate(title, now.Location()); ok {
		return Bucket(now, t)
	}
	return core.RecencyUnknown
}

// Event buckets an event
func (c *Classifier) Event(ev core.Event) core.RecencyBucket {
	title := ev.ArticleTitle
	rawURL := ev.URL
	if ev.Article != nil {
		if title == "" {
			title = ev.Article.Title
		}
		if rawURL == "" {
			rawURL = ev.Article.URL
		}
	}
	return c.Classify(ev.Date, rawURL, title)
}

// Article buckets an article
func (c *Classifier) Article(a core.Article) core.RecencyBucket {
	return c.Classify(a.PublishedAt, a.URL, a.Title)
}

// Events buckets each event, index-aligned with the input.
func (c *Classifier) Events(events []core.Event) []core.RecencyBucket {
	out := make([]core.RecencyBucket, len(events))
	for i, ev := range events {
		out[i] = c.Event(ev)
	}
	return out
}

// Articles buckets each article, index-aligned with the input.
func (c *Classifier) Articles(articles []core.Article) []core.RecencyBucket {
	out := make([]core.RecencyBucket, len(articles))
	for i, a := range articles {
		out[i] = c.Article(a)
	}
	return out
}

// Bucket maps the whole-day difference between now and t onto a bucket.
// Days are counted between calendar dates in now's location.
func Bucket(now, t time.Time) core.RecencyBucket {
	d := DaysBetween(t, now)
	switch {
	case d <= 0:
		return core.RecencyToday
	case d == 1:
		return core.RecencyYesterday
	case d <= 7:
		return core.RecencyThisWeek
	case d <= 14:
		return core.RecencyLast2Weeks
	}
	return core.RecencyOlder
}

// DaysBetween counts calendar days from earlier to later
func DaysBetween(earlier, later time.Time) int {
	loc := later.Location()
	e := earlier.In(loc)
	a := time.Date(e.Year(), e.Month(), e.Day(), 0, 0, 0, 0, time.UTC)
	b := time.Date(later.Year(), later.Month(), later.Day(), 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}

// ParseTimestamp parses absolute layouts and relative phrases against now.
// Values without a zone are read as wall-clock time in now's location.
func ParseTimestamp(raw string, now time.Time) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}

	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, now.Location()); err == nil {
			return t, true
		}
	}

	return parseRelative(strings.ToLower(s), now)
}

func parseRelative(s string, now time.Time) (time.Time, bool) {
	switch s {
	case "now", "just now", "today":
		return now, true
	case "yesterday":
		return now.AddDate(0, 0, -1), true
	}

	m := relativeRegex.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false
	}

	n := 1
	if v, err := strconv.Atoi(m[1]); err == nil {
		n = v
	}

	switch m[2] {
	case "second":
		return now.Add(-time.Duration(n) * time.Second), true
	case "minute":
		return now.Add(-time.Duration(n) * time.Minute), true
	case "hour":
		return now.Add(-time.Duration(n) * time.Hour), true
	case "day":
		return now.AddDate(0, 0, -n), true
	case "week":
		return now.AddDate(0, 0, -7*n), true
	case "month":
		return now.AddDate(0, -n, 0), true
	case "year":
		return now.AddDate(-n, 0, 0), true
	}
	return time.Time{}, false
}

// ExtractDate finds the first valid calendar date token in s and returns
// midnight of that date in loc.
func ExtractDate(s string, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.UTC
	}
	if s == "" {
		return time.Time{}, false
	}
	for _, re := range []*regexp.Regexp{separatedDateRegex, compactDateRegex} {
		for _, m := range re.FindAllStringSubmatch(s, -1) {
			if t, ok := calendarDate(m[1], m[2], m[3], loc); ok {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// calendarDate rejects tokens like 2024-02-30 that time.Date would normalize
func calendarDate(ys, ms, ds string, loc *time.Location) (time.Time, bool) {
	y, err1 := strconv.Atoi(ys)
	m, err2 := strconv.Atoi(ms)
	d, err3 := strconv.Atoi(ds)
	if err1 != nil || err2 != nil || err3 != nil {
		return time.Time{}, false
	}
	if m < 1 || m > 12 || d < 1 || d > 31 {
		return time.Time{}, false
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, loc)
	if t.Year() != y || int(t.Month()) != m || t.Day() != d {
		return time.Time{}, false
	}
	return t, true
}
