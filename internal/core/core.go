package core

import (
	"strings"
	"time"
)

// TargetKind classifies a discovery target.
type TargetKind string

const (
	TargetCompetitor  TargetKind = "competitor"
	TargetStakeholder TargetKind = "stakeholder"
	TargetTopic       TargetKind = "topic"
)

// TargetKinds lists every kind in reporting order.
var TargetKinds = []TargetKind{TargetCompetitor, TargetStakeholder, TargetTopic}

// DiscoveryTarget is a named entity an organization wants monitored.
type DiscoveryTarget struct {
	Name string     `json:"name"` // Display name, first-seen casing
	Kind TargetKind `json:"kind"` // competitor, stakeholder or topic
}

// TargetSet is the resolved set of monitoring targets for one organization.
type TargetSet struct {
	Competitors  []string `json:"competitors"`
	Stakeholders []string `json:"stakeholders"`
	Topics       []string `json:"topics"`
}

// ByKind returns the names registered under kind.
func (t TargetSet) ByKind(kind TargetKind) []string {
	switch kind {
	case TargetCompetitor:
		return t.Competitors
	case TargetStakeholder:
		return t.Stakeholders
	case TargetTopic:
		return t.Topics
	}
	return nil
}

// Total returns the number of targets across all kinds.
func (t TargetSet) Total() int {
	return len(t.Competitors) + len(t.Stakeholders) + len(t.Topics)
}

// IsEmpty reports whether no target of any kind is set.
func (t TargetSet) IsEmpty() bool {
	return t.Total() == 0
}

// All flattens the set into DiscoveryTargets in kind order.
func (t TargetSet) All() []DiscoveryTarget {
	all := make([]DiscoveryTarget, 0, t.Total())
	for _, kind := range TargetKinds {
		for _, name := range t.ByKind(kind) {
			all = append(all, DiscoveryTarget{Name: name, Kind: kind})
		}
	}
	return all
}

// ArticleRef is a lightweight reference to a source article embedded in an event.
type ArticleRef struct {
	Title  string `json:"title"`
	URL    string `json:"url"`
	Source string `json:"source"`
}

// Event is a pre-extracted fact derived from a source article.
type Event struct {
	Type         string      `json:"type"`                    // e.g. "product_launch", "partnership"
	Entity       string      `json:"entity"`                  // Entity the event concerns
	Description  string      `json:"description"`             // One or two sentence description
	Date         string      `json:"date,omitempty"`          // Timestamp or relative string ("2 days ago")
	Source       string      `json:"source,omitempty"`        // Outlet name
	URL          string      `json:"url,omitempty"`           // Source article URL, may be missing
	ArticleTitle string      `json:"article_title,omitempty"` // Title of the article the event came from
	ArticleID    string      `json:"article_id,omitempty"`    // ID of the article the event came from
	Article      *ArticleRef `json:"article,omitempty"`       // Embedded article reference, when upstream kept it
}

// SignalStrength ranks how strongly an article matches a discovery target.
type SignalStrength string

const (
	SignalWeak     SignalStrength = "weak"
	SignalModerate SignalStrength = "moderate"
	SignalStrong   SignalStrength = "strong"
)

// Rank orders strengths; higher is stronger. Unknown values rank as weak.
func (s SignalStrength) Rank() int {
	switch s {
	case SignalStrong:
		return 2
	case SignalModerate:
		return 1
	}
	return 0
}

// ContentQuality tells whether the full article body or only a summary was collected.
type ContentQuality string

const (
	ContentFull    ContentQuality = "full"
	ContentSummary ContentQuality = "summary"
)

// Article is a raw source article from the collection stage.
type Article struct {
	ID             string         `json:"id,omitempty"`
	Title          string         `json:"title"`
	URL            string         `json:"url"`
	Source         string         `json:"source"`
	Description    string         `json:"description,omitempty"`
	PublishedAt    string         `json:"published_at,omitempty"` // Raw timestamp as delivered upstream
	RelevanceScore float64        `json:"relevance_score"`
	MatchedTargets []string       `json:"matched_targets,omitempty"`
	SignalStrength SignalStrength `json:"signal_strength,omitempty"`
	ContentQuality ContentQuality `json:"content_quality,omitempty"`
}

// RecencyBucket is a coarse classification of content age relative to "now".
type RecencyBucket string

const (
	RecencyToday      RecencyBucket = "today"
	RecencyYesterday  RecencyBucket = "yesterday"
	RecencyThisWeek   RecencyBucket = "this_week"
	RecencyLast2Weeks RecencyBucket = "last_2_weeks"
	RecencyOlder      RecencyBucket = "older"
	RecencyUnknown    RecencyBucket = "unknown"
)

// Rank orders buckets from freshest (0) to stalest. Unknown sits right after
// yesterday: a missing publish date usually means the outlet omits dates, not
// that the content is old.
func (b RecencyBucket) Rank() int {
	switch b {
	case RecencyToday:
		return 0
	case RecencyYesterday:
		return 1
	case RecencyUnknown:
		return 2
	case RecencyThisWeek:
		return 3
	case RecencyLast2Weeks:
		return 4
	}
	return 5
}

// Category is the selection bucket an event falls into.
type Category string

const (
	CategoryOrganization Category = "organization"
	CategoryCompetitor   Category = "competitor"
	CategoryStakeholder  Category = "stakeholder"
	CategoryOther        Category = "other"
)

// SelectionBudget bounds how many events the selector may keep.
// TotalCap may be smaller than the sum of per-category caps.
type SelectionBudget struct {
	PerCategoryCap map[Category]int `json:"per_category_cap" mapstructure:"per_category_cap"`
	TotalCap       int              `json:"total_cap" mapstructure:"total_cap"`
}

// DefaultSelectionBudget favors competitor and "other" breadth over the subject organization.
func DefaultSelectionBudget() SelectionBudget {
	return SelectionBudget{
		PerCategoryCap: map[Category]int{
			CategoryOrganization: 15,
			CategoryCompetitor:   40,
			CategoryStakeholder:  15,
			CategoryOther:        30,
		},
		TotalCap: 80,
	}
}

// Cap returns the cap for category, or 0 when unset.
func (b SelectionBudget) Cap(category Category) int {
	if b.PerCategoryCap == nil {
		return 0
	}
	return b.PerCategoryCap[category]
}

// KeyDevelopment is one entry of the synthesized brief.
type KeyDevelopment struct {
	Category    string `json:"category"`
	Event       string `json:"event"`
	Implication string `json:"implication"`
	SourceTitle string `json:"source_title"`
	Outlet      string `json:"outlet"`
	URL         string `json:"url"`
	Recency     string `json:"recency"`
	Entity      string `json:"entity"`
}

// SynthesisResult is the decision-ready brief produced by one pipeline run.
type SynthesisResult struct {
	ExecutiveSummary      string           `json:"executive_summary"`
	KeyDevelopments       []KeyDevelopment `json:"key_developments"`
	StrategicImplications string           `json:"strategic_implications"`
	WatchingClosely       []string         `json:"watching_closely"`
	Degraded              bool             `json:"degraded"` // Set when produced by the parser fallback
}

// CoverageReport measures how well a result represents the monitoring targets.
type CoverageReport struct {
	Found      map[TargetKind][]string `json:"found"`
	Missing    map[TargetKind][]string `json:"missing"` // At most five names per kind
	FoundCount int                     `json:"found_count"`
	Total      int                     `json:"total"`
	Percentage float64                 `json:"percentage"` // 0-100
}

// SynthesisRequest is the pipeline entry payload.
type SynthesisRequest struct {
	OrganizationID   string    `json:"organization_id"`
	OrganizationName string    `json:"organization_name"`
	Events           []Event   `json:"events"`
	Articles         []Article `json:"articles"`
	Depth            string    `json:"depth,omitempty"` // "quick", "standard" or "deep"
	Focus            []string  `json:"focus,omitempty"` // Optional focus hints for the brief
}

// Normalize fills derived defaults on the request.
func (r *SynthesisRequest) Normalize() {
	r.OrganizationID = strings.TrimSpace(r.OrganizationID)
	r.OrganizationName = strings.TrimSpace(r.OrganizationName)
	if r.OrganizationName == "" {
		r.OrganizationName = r.OrganizationID
	}
	if r.Depth == "" {
		r.Depth = "standard"
	}
}

// Confidence levels reported in response metadata.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// ResponseMetadata describes the run that produced a synthesis.
type ResponseMetadata struct {
	RunID            string    `json:"run_id"`
	Timestamp        time.Time `json:"timestamp"`
	EventCount       int       `json:"event_count"`
	ArticleCount     int       `json:"article_count"`
	SelectedCount    int       `json:"selected_count"`
	EnrichedCount    int       `json:"enriched_count"`
	RepairedCount    int       `json:"repaired_count"`
	Confidence       string    `json:"confidence"`
	RecoveryStrategy string    `json:"recovery_strategy"`
	Attempts         int       `json:"attempts"`
	PromptTruncated  bool      `json:"prompt_truncated"`
	ModelUsed        string    `json:"model_used,omitempty"`
}

// SynthesisResponse is the pipeline output payload.
type SynthesisResponse struct {
	Synthesis          SynthesisResult  `json:"synthesis"`
	Metadata           ResponseMetadata `json:"metadata"`
	DiscoveryAlignment CoverageReport   `json:"discovery_alignment"`
}
