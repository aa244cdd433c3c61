// Package coverage measures how well a synthesized brief reflects the
// organization's monitoring targets.
package coverage

import (
	"signalbrief/internal/core"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
)

// Match modes
const (
	MatchWord      = "word"
	MatchSubstring = "substring"
)

// MaxMissingPerKind caps the diagnostic list of missing names per target kind
const MaxMissingPerKind = 5

// Scorer reports which targets appear in a result.
type Scorer struct {
	Mode string
}

// NewScorer creates a scorer. Unknown modes fall back to word matching.
func NewScorer(mode string) *Scorer {
	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode != MatchSubstring {
		mode = MatchWord
	}
	return &Scorer{Mode: mode}
}

// Score checks every target name against the text of result. Names are
// matched case-insensitively; in word mode a match must not be glued to
// adjacent letters or digits, so "AI" does not match "maintain".
func (s *Scorer) Score(result core.SynthesisResult, targets core.TargetSet) core.CoverageReport {
	fold := cases.Fold()
	haystack := fold.String(Text(result))

	report := core.CoverageReport{
		Found:   make(map[core.TargetKind][]string, len(core.TargetKinds)),
		Missing: make(map[core.TargetKind][]string, len(core.TargetKinds)),
	}

	for _, kind := range core.TargetKinds {
		found := []string{}
		missing := []string{}
		for _, name := range targets.ByKind(kind) {
			needle := fold.String(strings.TrimSpace(name))
			if needle == "" {
				continue
			}
			report.Total++
			if s.contains(haystack, needle) {
				found = append(found, name)
				report.FoundCount++
			} else if len(missing) < MaxMissingPerKind {
				missing = append(missing, name)
			}
		}
		report.Found[kind] = found
		report.Missing[kind] = missing
	}

	if report.Total > 0 {
		report.Percentage = float64(report.FoundCount) / float64(report.Total) * 100
	}
	return report
}

func (s *Scorer) contains(haystack, needle string) bool {
	if s.Mode == MatchSubstring {
		return strings.Contains(haystack, needle)
	}
	return containsWord(haystack, needle)
}

// containsWord finds needle at a position not flanked by letters or digits.
// Boundaries are only enforced on sides where the needle itself starts or
// ends with a word character.
func containsWord(haystack, needle string) bool {
	first, _ := utf8.DecodeRuneInString(needle)
	last, _ := utf8.DecodeLastRuneInString(needle)
	checkStart := isWordRune(first)
	checkEnd := isWordRune(last)

	offset := 0
	for offset <= len(haystack) {
		idx := strings.Index(haystack[offset:], needle)
		if idx < 0 {
			return false
		}
		start := offset + idx
		end := start + len(needle)

		ok := true
		if checkStart && start > 0 {
			prev, _ := utf8.DecodeLastRuneInString(haystack[:start])
			ok = !isWordRune(prev)
		}
		if ok && checkEnd && end < len(haystack) {
			next, _ := utf8.DecodeRuneInString(haystack[end:])
			ok = !isWordRune(next)
		}
		if ok {
			return true
		}

		_, size := utf8.DecodeRuneInString(haystack[start:])
		offset = start + size
	}
	return false
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// Text flattens the textual content of a result, one field per line.
// Field names are left out so a target called "url" or "event" is not
// found just because the result has such a field.
func Text(result core.SynthesisResult) string {
	var sb strings.Builder
	write := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			sb.WriteString(s)
			sb.WriteByte('\n')
		}
	}

	write(result.ExecutiveSummary)
	for _, d := range result.KeyDevelopments {
		write(d.Category)
		write(d.Event)
		write(d.Implication)
		write(d.SourceTitle)
		write(d.Outlet)
		write(d.URL)
		write(d.Recency)
		write(d.Entity)
	}
	write(result.StrategicImplications)
	for _, w := range result.WatchingClosely {
		write(w)
	}
	return sb.String()
}
