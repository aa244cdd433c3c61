// Package crossref links events and key developments back to source article URLs.
package crossref

import (
	"fmt"
	"net/url"
	"signalbrief/internal/core"
	"strings"
)

// TitleKeyRunes bounds how much of a title participates in composite keys.
const TitleKeyRunes = 50

// Match strategies, in the order they are attempted
const (
	StrategyEmbedded    = "embedded"
	StrategyArticleID   = "article_id"
	StrategySourceTitle = "source_title"
	StrategyTitle       = "title"
	StrategySource      = "source"
)

// Index maps article identifiers to URLs. Only articles with a usable URL are
// indexed and the first article seen for a key wins. Full normalized titles
// are tried before the truncated title keys.
type Index struct {
	byID          map[string]string
	bySourceFull  map[string]string
	bySourceTitle map[string]string
	byFullTitle   map[string]string
	byTitle       map[string]string
	bySource      map[string]string
}

// NewIndex builds lookups over the article corpus without modifying it.
func NewIndex(articles []core.Article) *Index {
	idx := &Index{
		byID:          make(map[string]string, len(articles)),
		bySourceFull:  make(map[string]string, len(articles)),
		bySourceTitle: make(map[string]string, len(articles)),
		byFullTitle:   make(map[string]string, len(articles)),
		byTitle:       make(map[string]string, len(articles)),
		bySource:      make(map[string]string),
	}

	for _, a := range articles {
		if !IsUsableURL(a.URL) {
			continue
		}
		if id := strings.TrimSpace(a.ID); id != "" {
			putFirst(idx.byID, id, a.URL)
		}

		full := fullTitleKey(a.Title)
		title := titleKey(a.Title)
		source := sourceKey(a.Source)
		if source != "" && title != "" {
			putFirst(idx.bySourceFull, source+"|"+full, a.URL)
			putFirst(idx.bySourceTitle, source+"|"+title, a.URL)
		}
		if title != "" {
			putFirst(idx.byFullTitle, full, a.URL)
			putFirst(idx.byTitle, title, a.URL)
		}
		if source != "" {
			putFirst(idx.bySource, source, a.URL)
		}
		if publisher := extractPublisher(a.URL); publisher != "" {
			putFirst(idx.bySource, publisher, a.URL)
		}
	}

	return idx
}

// Size returns the number of articles addressable by title.
func (idx *Index) Size() int {
	return len(idx.byTitle)
}

// Lookup resolves a URL from optional id, source and title in strategy order
// (b) through (e). The matched strategy is returned alongside the URL.
func (idx *Index) Lookup(articleID, source, title string) (string, string, bool) {
	if id := strings.TrimSpace(articleID); id != "" {
		if u, ok := idx.byID[id]; ok {
			return u, StrategyArticleID, true
		}
	}

	s := sourceKey(source)
	full := fullTitleKey(title)
	tk := titleKey(title)
	if s != "" && tk != "" {
		if u, ok := idx.bySourceFull[s+"|"+full]; ok {
			return u, StrategySourceTitle, true
		}
		if u, ok := idx.bySourceTitle[s+"|"+tk]; ok {
			return u, StrategySourceTitle, true
		}
	}
	if tk != "" {
		if u, ok := idx.byFullTitle[full]; ok {
			return u, StrategyTitle, true
		}
		if u, ok := idx.byTitle[tk]; ok {
			return u, StrategyTitle, true
		}
	}
	if s != "" {
		if u, ok := idx.bySource[s]; ok {
			return u, StrategySource, true
		}
	}

	return "", "", false
}

// ValidateURL checks that a URL is absolute http(s) with a host
func ValidateURL(rawURL string) error {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return fmt.Errorf("empty URL")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("unsupported URL scheme: %s (must be http or https)", parsed.Scheme)
	}

	if parsed.Host == "" {
		return fmt.Errorf("URL missing host")
	}

	return nil
}

// IsUsableURL performs ValidateURL without returning the reason
func IsUsableURL(rawURL string) bool {
	return ValidateURL(rawURL) == nil
}

// extractPublisher extracts the base domain from a URL ("blog.example.com" -> "example.com")
func extractPublisher(rawURL string) string {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}

	host := strings.ToLower(parsedURL.Hostname())
	host = strings.TrimPrefix(host, "www.")

	parts := strings.Split(host, ".")
	if len(parts) >= 2 {
		return strings.Join(parts[len(parts)-2:], ".")
	}

	return host
}

func fullTitleKey(title string) string {
	return strings.ToLower(strings.Join(strings.Fields(title), " "))
}

func titleKey(title string) string {
	runes := []rune(fullTitleKey(title))
	if len(runes) > TitleKeyRunes {
		runes = runes[:TitleKeyRunes]
	}
	return strings.TrimSpace(string(runes))
}

func sourceKey(source string) string {
	s := strings.ToLower(strings.TrimSpace(source))
	return strings.TrimPrefix(s, "www.")
}

func putFirst(m map[string]string, key, value string) {
	if _, exists := m[key]; !exists {
		m[key] = value
	}
}
