package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"signalbrief/internal/core"
	"signalbrief/internal/llm"
	"signalbrief/internal/pipeline"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// maxRequestBytes bounds a synthesis request body
const maxRequestBytes = 16 << 20

// HealthResponse is the /health payload
type HealthResponse struct {
	Status string            `json:"status"`
	Uptime string            `json:"uptime"`
	Checks map[string]string `json:"checks"`
}

// ErrorResponse is the body of every non-2xx API response
type ErrorResponse struct {
	Error      string `json:"error"`
	RequestID  string `json:"request_id,omitempty"`
	RetryAfter int    `json:"retry_after,omitempty"` // Seconds, set for transient failures
}

var serverStartTime = time.Now()

// handleHealth handles the /health endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(s.opts.Checks))
	status := http.StatusOK

	for name, p := range s.opts.Checks {
		if p == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		err := p.Ping(ctx)
		cancel()
		if err != nil {
			s.log.Warn("Health check failed", "check", name, "error", err)
			checks[name] = "error"
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	body := HealthResponse{Status: "ok", Uptime: time.Since(serverStartTime).Round(time.Second).String(), Checks: checks}
	if status != http.StatusOK {
		body.Status = "unhealthy"
	}
	s.respondJSON(w, status, body)
}

// handleSynthesis handles POST /api/v1/synthesis
func (s *Server) handleSynthesis(w http.ResponseWriter, r *http.Request) {
	var req core.SynthesisRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := dec.Decode(&req); err != nil {
		s.respondError(w, r, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	opts := pipeline.RunOptions{}
	if v := r.URL.Query().Get("persist"); v != "" {
		persist, err := strconv.ParseBool(v)
		if err != nil {
			s.respondError(w, r, http.StatusBadRequest, "persist must be true or false")
			return
		}
		opts.SkipPersist = !persist
	}

	contentType, respond := s.responders.negotiate(r.Header.Get("Accept"), r.URL.Query().Get("format"))

	resp, err := s.synth.Run(r.Context(), req, opts)
	if err != nil {
		s.respondSynthesisError(w, r, err)
		return
	}

	s.log.Info("Served synthesis",
		"org", req.OrganizationID,
		"run_id", resp.Metadata.RunID,
		"content_type", contentType,
		"confidence", resp.Metadata.Confidence)
	req.Normalize()
	respond(s, w, &req, resp)
}

// respondSynthesisError maps pipeline errors onto HTTP statuses
func (s *Server) respondSynthesisError(w http.ResponseWriter, r *http.Request, err error) {
	var transient *llm.TransientServiceFailure
	var genErr *llm.GeneratorError

	switch {
	case errors.Is(err, pipeline.ErrInvalidRequest):
		s.respondError(w, r, http.StatusBadRequest, err.Error())
	case errors.As(err, &transient):
		secs := int(retryAfter / time.Second)
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		s.respondJSON(w, http.StatusServiceUnavailable, ErrorResponse{
			Error:      "generation service temporarily unavailable, retry later",
			RequestID:  middleware.GetReqID(r.Context()),
			RetryAfter: secs,
		})
	case errors.As(err, &genErr):
		s.log.Error("Synthesis generator failure", "error", err)
		s.respondError(w, r, http.StatusBadGateway, "generation service rejected the request")
	case errors.Is(err, context.DeadlineExceeded):
		s.respondError(w, r, http.StatusGatewayTimeout, "synthesis timed out")
	case errors.Is(err, context.Canceled):
		// Client went away; nothing useful to write
		s.log.Warn("Synthesis cancelled by client", "error", err)
	default:
		s.log.Error("Synthesis failed", "error", err)
		s.respondError(w, r, http.StatusInternalServerError, "internal error")
	}
}

// respondJSON writes a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error("Failed to encode JSON response", "error", err)
	}
}

// respondError writes an ErrorResponse
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	s.respondJSON(w, status, ErrorResponse{Error: msg, RequestID: middleware.GetReqID(r.Context())})
}
