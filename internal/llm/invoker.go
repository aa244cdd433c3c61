package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"signalbrief/internal/logger"
	"time"

	"google.golang.org/genai"
)

// StatusOverloaded is the non-standard status the generation service uses when saturated.
const StatusOverloaded = 529

// transientStatuses are the only statuses worth another attempt
var transientStatuses = map[int]bool{
	http.StatusInternalServerError: true,
	http.StatusServiceUnavailable:  true,
	StatusOverloaded:               true,
}

// IsTransient reports whether status belongs to the retryable set
func IsTransient(status int) bool {
	return transientStatuses[status]
}

// StatusError is a generation failure that carries an HTTP status
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("generation service returned %d: %s", e.Code, e.Message)
}

// StatusOf extracts the HTTP status from a generation error, 0 when unknown.
func StatusOf(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code
	}
	return 0
}

// TransientServiceFailure is returned once every attempt hit a transient status.
// It is the one failure callers are expected to handle by re-running later.
type TransientServiceFailure struct {
	Attempts   int
	LastStatus int
	Err        error
}

func (e *TransientServiceFailure) Error() string {
	return fmt.Sprintf("generation service unavailable after %d attempts (last status %d): %v", e.Attempts, e.LastStatus, e.Err)
}

func (e *TransientServiceFailure) Unwrap() error { return e.Err }

// GeneratorError is a non-retryable generation failure (4xx, auth, empty reply).
type GeneratorError struct {
	Attempts int
	Status   int
	Err      error
}

func (e *GeneratorError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("generation failed with status %d: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("generation failed: %v", e.Err)
}

func (e *GeneratorError) Unwrap() error { return e.Err }

// AttemptObserver is told about every attempt; status is 0 on success or unknown status.
type AttemptObserver func(attempt int, status int, err error)

// Invoker makes one logical generation call with bounded retries.
type Invoker struct {
	Generator  Generator
	Options    TextGenerationOptions
	MaxRetries int
	BaseDelay  time.Duration
	MaxJitter  time.Duration

	// Sleep waits d or returns early with ctx's error. Tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
	// Jitter returns a random duration in [0, max).
	Jitter func(max time.Duration) time.Duration

	Observe AttemptObserver
	log     *slog.Logger
}

// Invocation is a successful call
type Invocation struct {
	Text     string
	Attempts int
}

// NewInvoker creates an invoker with real sleeping and random jitter
func NewInvoker(gen Generator, maxRetries int, baseDelay, maxJitter time.Duration) *Invoker {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Invoker{
		Generator:  gen,
		MaxRetries: maxRetries,
		BaseDelay:  baseDelay,
		MaxJitter:  maxJitter,
		Sleep:      SleepContext,
		Jitter:     randomJitter,
		log:        logger.Get(),
	}
}

// Backoff returns the wait before retry number attempt (0-based): base * 2^attempt + jitter.
func (inv *Invoker) Backoff(attempt int) time.Duration {
	d := inv.BaseDelay << uint(attempt)
	if inv.MaxJitter > 0 && inv.Jitter != nil {
		d += inv.Jitter(inv.MaxJitter)
	}
	return d
}

// Invoke sends prompt, retrying only transient statuses. Total attempts never
// exceed MaxRetries+1. A cancelled context aborts a pending wait immediately.
func (inv *Invoker) Invoke(ctx context.Context, prompt string) (Invocation, error) {
	sleep := inv.Sleep
	if sleep == nil {
		sleep = SleepContext
	}
	log := inv.log
	if log == nil {
		log = logger.Get()
	}

	var lastErr error
	lastStatus := 0

	for attempt := 0; attempt <= inv.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := inv.Backoff(attempt - 1)
			log.Warn("Retrying generation after transient failure",
				"attempt", attempt+1,
				"max_attempts", inv.MaxRetries+1,
				"last_status", lastStatus,
				"wait", wait)
			if err := sleep(ctx, wait); err != nil {
				return Invocation{}, fmt.Errorf("generation cancelled after %d attempts: %w", attempt, err)
			}
		}

		if err := ctx.Err(); err != nil {
			return Invocation{}, fmt.Errorf("generation cancelled after %d attempts: %w", attempt, err)
		}

		text, err := inv.Generator.GenerateText(ctx, prompt, inv.Options)
		status := StatusOf(err)
		if inv.Observe != nil {
			inv.Observe(attempt+1, status, err)
		}

		if err == nil {
			if attempt > 0 {
				log.Info("Generation succeeded after retry", "attempts", attempt+1)
			}
			return Invocation{Text: text, Attempts: attempt + 1}, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return Invocation{}, fmt.Errorf("generation cancelled after %d attempts: %w", attempt+1, ctxErr)
		}

		if !IsTransient(status) {
			log.Error("Generation failed with non-retryable error", "error", err, "status", status, "attempts", attempt+1)
			return Invocation{}, &GeneratorError{Attempts: attempt + 1, Status: status, Err: err}
		}

		lastErr = err
		lastStatus = status
	}

	failure := &TransientServiceFailure{Attempts: inv.MaxRetries + 1, LastStatus: lastStatus, Err: lastErr}
	log.Error("Generation service persistently unavailable", "error", failure, "attempts", failure.Attempts)
	return Invocation{}, failure
}

// SleepContext waits for d unless ctx is done first
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func randomJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(max)))
}
