package server

import (
	"fmt"
	"net/http"
	"signalbrief/internal/core"
	"signalbrief/internal/render"
	"strings"
	"time"
)

// Route binds a method and pattern to a handler
type Route struct {
	Method    string
	Pattern   string
	Handler   http.Handler
	Protected bool // Requires the API key when one is configured
}

// routeTable is built once at startup and never modified afterwards
type routeTable struct {
	entries []Route
}

var allowedMethods = map[string]bool{
	http.MethodGet:    true,
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodDelete: true,
}

// newRouteTable validates routes: known method, absolute pattern, a
// handler, and no method+pattern pair registered twice.
func newRouteTable(routes []Route) (routeTable, error) {
	seen := make(map[string]bool, len(routes))
	entries := make([]Route, 0, len(routes))

	for _, rt := range routes {
		if !allowedMethods[rt.Method] {
			return routeTable{}, fmt.Errorf("route %s %s: unsupported method", rt.Method, rt.Pattern)
		}
		if !strings.HasPrefix(rt.Pattern, "/") {
			return routeTable{}, fmt.Errorf("route %s %s: pattern must start with /", rt.Method, rt.Pattern)
		}
		if rt.Handler == nil {
			return routeTable{}, fmt.Errorf("route %s %s: nil handler", rt.Method, rt.Pattern)
		}
		key := rt.Method + " " + rt.Pattern
		if seen[key] {
			return routeTable{}, fmt.Errorf("route %s registered twice", key)
		}
		seen[key] = true
		entries = append(entries, rt)
	}

	return routeTable{entries: entries}, nil
}

// Content types the synthesis endpoint can answer with
const (
	contentTypeJSON     = "application/json"
	contentTypeMarkdown = "text/markdown"
)

// responder writes a successful synthesis in one content type
type responder func(s *Server, w http.ResponseWriter, req *core.SynthesisRequest, resp *core.SynthesisResponse)

// responders maps content type to responder, fixed at construction
type responders map[string]responder

func newResponders() (responders, error) {
	table := responders{
		contentTypeJSON: func(s *Server, w http.ResponseWriter, _ *core.SynthesisRequest, resp *core.SynthesisResponse) {
			s.respondJSON(w, http.StatusOK, resp)
		},
		contentTypeMarkdown: func(s *Server, w http.ResponseWriter, req *core.SynthesisRequest, resp *core.SynthesisResponse) {
			cov := resp.DiscoveryAlignment
			body := render.MarkdownBrief(render.BriefData{
				OrganizationName: req.OrganizationName,
				GeneratedAt:      resp.Metadata.Timestamp,
				Result:           resp.Synthesis,
				Coverage:         &cov,
			})
			w.Header().Set("Content-Type", contentTypeMarkdown+"; charset=utf-8")
			w.Header().Set("X-Run-ID", resp.Metadata.RunID)
			w.WriteHeader(http.StatusOK)
			if _, err := w.Write([]byte(body)); err != nil {
				s.log.Error("Failed to write markdown response", "error", err)
			}
		},
	}

	for ct, fn := range table {
		if fn == nil {
			return nil, fmt.Errorf("responder for %s is nil", ct)
		}
	}
	if _, ok := table[contentTypeJSON]; !ok {
		return nil, fmt.Errorf("json responder is required")
	}
	return table, nil
}

// negotiate picks the responder for an Accept header or ?format= value,
// defaulting to JSON.
func (r responders) negotiate(accept, format string) (string, responder) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "markdown", "md":
		return contentTypeMarkdown, r[contentTypeMarkdown]
	case "json":
		return contentTypeJSON, r[contentTypeJSON]
	}

	for _, part := range strings.Split(accept, ",") {
		ct := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
		if fn, ok := r[ct]; ok {
			return ct, fn
		}
	}
	return contentTypeJSON, r[contentTypeJSON]
}

// retryAfter is the wait suggested to clients after a transient failure
const retryAfter = 30 * time.Second
