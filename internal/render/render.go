package render

import (
	"fmt"
	"os"
	"path/filepath"
	"signalbrief/internal/core"
	"strings"
	"time"
)

// BriefData combines what is needed to render one brief.
type BriefData struct {
	OrganizationName string
	GeneratedAt      time.Time
	Result           core.SynthesisResult
	Coverage         *core.CoverageReport // Optional
}

// Title returns the title used for the brief's search record.
func Title(orgName string, at time.Time) string {
	return fmt.Sprintf("Executive brief - %s - %s", orgName, at.UTC().Format("2006-01-02"))
}

// Filename returns the default file name for a rendered brief.
func Filename(orgID string, at time.Time) string {
	slug := strings.ToLower(strings.TrimSpace(orgID))
	slug = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			return r
		}
		return '-'
	}, slug)
	if slug == "" {
		slug = "brief"
	}
	return fmt.Sprintf("brief_%s_%s.md", slug, at.UTC().Format("2006-01-02"))
}

// MarkdownBrief renders a synthesis result as markdown.
// A degraded result is rendered as its raw text under a warning note.
func MarkdownBrief(data BriefData) string {
	var md strings.Builder
	res := data.Result

	md.WriteString(fmt.Sprintf("# %s\n\n", Title(data.OrganizationName, data.GeneratedAt)))

	if res.Degraded {
		md.WriteString("> Structured output could not be recovered; the raw reply follows.\n\n")
	}

	md.WriteString("## Executive Summary\n\n")
	if strings.TrimSpace(res.ExecutiveSummary) == "" {
		md.WriteString("_No summary produced._\n\n")
	} else {
		md.WriteString(strings.TrimSpace(res.ExecutiveSummary) + "\n\n")
	}

	if len(res.KeyDevelopments) > 0 {
		md.WriteString("## Key Developments\n\n")
		for i, d := range res.KeyDevelopments {
			heading := d.Event
			if d.Entity != "" {
				heading = fmt.Sprintf("%s: %s", d.Entity, d.Event)
			}
			md.WriteString(fmt.Sprintf("### %d. %s\n\n", i+1, heading))

			var tags []string
			if d.Category != "" {
				tags = append(tags, d.Category)
			}
			if d.Recency != "" {
				tags = append(tags, d.Recency)
			}
			if len(tags) > 0 {
				md.WriteString(fmt.Sprintf("*%s*\n\n", strings.Join(tags, " · ")))
			}

			if d.Implication != "" {
				md.WriteString(fmt.Sprintf("**Implication:** %s\n\n", d.Implication))
			}
			if source := sourceLine(d); source != "" {
				md.WriteString(fmt.Sprintf("Source: %s\n\n", source))
			}
		}
	}

	if strings.TrimSpace(res.StrategicImplications) != "" {
		md.WriteString("## Strategic Implications\n\n")
		md.WriteString(strings.TrimSpace(res.StrategicImplications) + "\n\n")
	}

	if len(res.WatchingClosely) > 0 {
		md.WriteString("## Watching Closely\n\n")
		for _, item := range res.WatchingClosely {
			md.WriteString(fmt.Sprintf("- %s\n", item))
		}
		md.WriteString("\n")
	}

	if data.Coverage != nil && data.Coverage.Total > 0 {
		md.WriteString("## Target Coverage\n\n")
		md.WriteString(fmt.Sprintf("%d of %d targets reflected (%.0f%%)\n\n", data.Coverage.FoundCount, data.Coverage.Total, data.Coverage.Percentage))
		for _, kind := range core.TargetKinds {
			if missing := data.Coverage.Missing[kind]; len(missing) > 0 {
				md.WriteString(fmt.Sprintf("- Missing %s: %s\n", kind, strings.Join(missing, ", ")))
			}
		}
		md.WriteString("\n")
	}

	return md.String()
}

func sourceLine(d core.KeyDevelopment) string {
	label := d.SourceTitle
	if label == "" {
		label = d.Outlet
	}
	switch {
	case label != "" && d.URL != "":
		line := fmt.Sprintf("[%s](%s)", label, d.URL)
		if d.Outlet != "" && d.Outlet != label {
			line += " (" + d.Outlet + ")"
		}
		return line
	case d.URL != "":
		return d.URL
	case label != "":
		if d.Outlet != "" && d.Outlet != label {
			return fmt.Sprintf("%s (%s)", label, d.Outlet)
		}
		return label
	}
	return ""
}

// WriteBriefToFile writes the provided content to a file in the specified directory
func WriteBriefToFile(content, outputDir, filename string) (string, error) {
	if outputDir == "" {
		outputDir = "briefs" // Default output directory
	}

	err := os.MkdirAll(outputDir, 0755)
	if err != nil {
		return "", fmt.Errorf("failed to create output directory %s: %w", outputDir, err)
	}

	filePath := filepath.Join(outputDir, filename)

	err = os.WriteFile(filePath, []byte(content), 0644)
	if err != nil {
		return "", fmt.Errorf("failed to write brief file %s: %w", filePath, err)
	}

	return filePath, nil
}
