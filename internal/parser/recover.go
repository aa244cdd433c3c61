// Package parser recovers a structured brief from a generator's free-text reply.
package parser

import (
	"encoding/json"
	"errors"
	"regexp"
	"signalbrief/internal/core"
	"strings"
)

// Strategy names reported in Outcome.Strategy
const (
	StrategyDirect      = "direct"
	StrategyStripFences = "strip_fences"
	StrategyBraces      = "brace_extraction"
	StrategyQuotes      = "quote_normalization"
	StrategySplitString = "split_string_repair"
	StrategyDegraded    = "degraded"
)

var (
	fencedBlockRegex = regexp.MustCompile("(?s)```[A-Za-z0-9_-]*[ \t]*\r?\n?(.*?)```")

	// Two string literals that should have been one: "abc" "def" or "abc" + "def"
	splitStringRegex = regexp.MustCompile(`"(?:\s*\+\s*|\s+)"`)

	quoteReplacer = strings.NewReplacer(
		"“", `"`, "”", `"`, "„", `"`, "‟", `"`, "″", `"`,
		"‘", "'", "’", "'", "‚", "'", "‛", "'",
	)
)

// Outcome is the tagged result of Recover: either a structured result
// produced by Strategy, or a degraded fallback.
type Outcome struct {
	Result   core.SynthesisResult
	Fields   map[string]any // The decoded top-level object, nil when degraded
	Strategy string
	Degraded bool
}

// Strategy turns a raw reply into a structured result, reporting success.
type Strategy struct {
	Name  string
	Apply func(raw string) (core.SynthesisResult, map[string]any, bool)
}

// Strategies are attempted in order; the first success wins.
var Strategies = []Strategy{
	{Name: StrategyDirect, Apply: ParseDirect},
	{Name: StrategyStripFences, Apply: ParseStripFences},
	{Name: StrategyBraces, Apply: ParseBraces},
	{Name: StrategyQuotes, Apply: ParseNormalizedQuotes},
	{Name: StrategySplitString, Apply: ParseSplitStrings},
}

// Recover applies every strategy in order and falls back to a degraded
// result carrying the raw text. It never returns an error.
func Recover(raw string) Outcome {
	for _, s := range Strategies {
		if result, fields, ok := s.Apply(raw); ok {
			return Outcome{Result: result, Fields: fields, Strategy: s.Name}
		}
	}
	return Degraded(raw)
}

// Degraded builds the fallback result for an unparsable reply
func Degraded(raw string) Outcome {
	return Outcome{
		Result: core.SynthesisResult{
			ExecutiveSummary: raw,
			KeyDevelopments:  []core.KeyDevelopment{},
			WatchingClosely:  []string{},
			Degraded:         true,
		},
		Strategy: StrategyDegraded,
		Degraded: true,
	}
}

// ParseDirect decodes the reply as-is
func ParseDirect(raw string) (core.SynthesisResult, map[string]any, bool) {
	return decode(raw)
}

// ParseStripFences decodes the content of the first fenced code block
func ParseStripFences(raw string) (core.SynthesisResult, map[string]any, bool) {
	return decode(stripFences(raw))
}

// ParseBraces decodes the span from the first '{' to the last '}'
func ParseBraces(raw string) (core.SynthesisResult, map[string]any, bool) {
	return decode(extractBraces(stripFences(raw)))
}

// ParseNormalizedQuotes replaces typographic quotes before decoding
func ParseNormalizedQuotes(raw string) (core.SynthesisResult, map[string]any, bool) {
	return decode(normalizeQuotes(extractBraces(stripFences(raw))))
}

// ParseSplitStrings joins adjacent string literals before decoding
func ParseSplitStrings(raw string) (core.SynthesisResult, map[string]any, bool) {
	return decode(joinSplitStrings(normalizeQuotes(extractBraces(stripFences(raw)))))
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if m := fencedBlockRegex.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	// Unclosed fence: drop the opening line
	if strings.HasPrefix(s, "```") {
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			return strings.TrimSpace(s[nl+1:])
		}
		return strings.TrimSpace(strings.TrimLeft(s, "`"))
	}
	return s
}

func extractBraces(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return s
	}
	return s[start : end+1]
}

func normalizeQuotes(s string) string {
	return quoteReplacer.Replace(s)
}

func joinSplitStrings(s string) string {
	return splitStringRegex.ReplaceAllString(s, "")
}

// wireResult accepts both snake_case and camelCase keys from the generator
type wireResult struct {
	ExecutiveSummary      string            `json:"executive_summary"`
	ExecutiveSummaryCamel string            `json:"executiveSummary"`
	KeyDevelopments       []wireDevelopment `json:"key_developments"`
	KeyDevelopmentsCamel  []wireDevelopment `json:"keyDevelopments"`
	StrategicImplications string            `json:"strategic_implications"`
	StrategicCamel        string            `json:"strategicImplications"`
	WatchingClosely       []string          `json:"watching_closely"`
	WatchingCamel         []string          `json:"watchingClosely"`
}

type wireDevelopment struct {
	Category         string `json:"category"`
	Event            string `json:"event"`
	Implication      string `json:"implication"`
	SourceTitle      string `json:"source_title"`
	SourceTitleCamel string `json:"sourceTitle"`
	Outlet           string `json:"outlet"`
	URL              string `json:"url"`
	Recency          string `json:"recency"`
	Entity           string `json:"entity"`
}

// decode accepts any JSON object. Fields of the wrong type are skipped
// rather than failing the whole reply.
func decode(candidate string) (core.SynthesisResult, map[string]any, bool) {
	candidate = strings.TrimSpace(candidate)
	if !strings.HasPrefix(candidate, "{") {
		return core.SynthesisResult{}, nil, false
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(candidate), &fields); err != nil {
		return core.SynthesisResult{}, nil, false
	}

	var w wireResult
	if err := json.Unmarshal([]byte(candidate), &w); err != nil {
		var typeErr *json.UnmarshalTypeError
		if !errors.As(err, &typeErr) {
			return core.SynthesisResult{}, nil, false
		}
	}

	return w.toResult(), fields, true
}

func (w wireResult) toResult() core.SynthesisResult {
	res := core.SynthesisResult{
		ExecutiveSummary:      firstNonEmpty(w.ExecutiveSummary, w.ExecutiveSummaryCamel),
		StrategicImplications: firstNonEmpty(w.StrategicImplications, w.StrategicCamel),
		KeyDevelopments:       []core.KeyDevelopment{},
		WatchingClosely:       []string{},
	}

	devs := w.KeyDevelopments
	if len(devs) == 0 {
		devs = w.KeyDevelopmentsCamel
	}
	for _, d := range devs {
		res.KeyDevelopments = append(res.KeyDevelopments, core.KeyDevelopment{
			Category:    strings.TrimSpace(d.Category),
			Event:       strings.TrimSpace(d.Event),
			Implication: strings.TrimSpace(d.Implication),
			SourceTitle: strings.TrimSpace(firstNonEmpty(d.SourceTitle, d.SourceTitleCamel)),
			Outlet:      strings.TrimSpace(d.Outlet),
			URL:         strings.TrimSpace(d.URL),
			Recency:     strings.TrimSpace(d.Recency),
			Entity:      strings.TrimSpace(d.Entity),
		})
	}

	watching := w.WatchingClosely
	if len(watching) == 0 {
		watching = w.WatchingCamel
	}
	for _, item := range watching {
		if item = strings.TrimSpace(item); item != "" {
			res.WatchingClosely = append(res.WatchingClosely, item)
		}
	}

	return res
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
