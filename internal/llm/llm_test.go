package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"signalbrief/internal/config"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"google.golang.org/genai"
)

// MockGenerator replays a scripted sequence of results
type MockGenerator struct {
	statuses  []int // 0 means success
	reply     string
	callCount int
	prompts   []string
}

func (m *MockGenerator) GenerateText(ctx context.Context, prompt string, options TextGenerationOptions) (string, error) {
	i := m.callCount
	m.callCount++
	m.prompts = append(m.prompts, prompt)

	status := 0
	if i < len(m.statuses) {
		status = m.statuses[i]
	} else if len(m.statuses) > 0 {
		status = m.statuses[len(m.statuses)-1]
	}
	if status != 0 {
		return "", fmt.Errorf("failed to generate text: %w", &StatusError{Code: status, Message: "scripted"})
	}
	return m.reply, nil
}

// recordingSleep captures waits without sleeping
type recordingSleep struct {
	waits []time.Duration
}

func (r *recordingSleep) sleep(ctx context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return ctx.Err()
}

func newTestInvoker(gen Generator, maxRetries int, rec *recordingSleep) *Invoker {
	inv := NewInvoker(gen, maxRetries, time.Second, 0)
	inv.Sleep = rec.sleep
	inv.Jitter = func(time.Duration) time.Duration { return 0 }
	return inv
}

func TestInvoke_RetriesOverloadedThenSucceeds(t *testing.T) {
	gen := &MockGenerator{statuses: []int{529, 529, 0}, reply: `{"executive_summary":"ok"}`}
	rec := &recordingSleep{}

	res, err := newTestInvoker(gen, 2, rec).Invoke(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}
	if res.Attempts != 3 || gen.callCount != 3 {
		t.Errorf("Expected 3 attempts, got %d (calls %d)", res.Attempts, gen.callCount)
	}
	if res.Text != gen.reply {
		t.Errorf("Unexpected text %q", res.Text)
	}
	if len(rec.waits) != 2 || rec.waits[0] != time.Second || rec.waits[1] != 2*time.Second {
		t.Errorf("Expected exponential waits [1s 2s], got %v", rec.waits)
	}
}

func TestInvoke_ExhaustsTransientRetries(t *testing.T) {
	for _, status := range []int{500, 503, 529} {
		t.Run(fmt.Sprintf("status %d", status), func(t *testing.T) {
			gen := &MockGenerator{statuses: []int{status}}
			_, err := newTestInvoker(gen, 2, &recordingSleep{}).Invoke(context.Background(), "prompt")

			var failure *TransientServiceFailure
			if !errors.As(err, &failure) {
				t.Fatalf("Expected TransientServiceFailure, got %v", err)
			}
			if gen.callCount != 3 || failure.Attempts != 3 {
				t.Errorf("Expected maxRetries+1 = 3 attempts, got calls=%d attempts=%d", gen.callCount, failure.Attempts)
			}
			if failure.LastStatus != status {
				t.Errorf("Expected last status %d, got %d", status, failure.LastStatus)
			}
		})
	}
}

func TestInvoke_NonTransientFailsOnce(t *testing.T) {
	for _, status := range []int{400, 401, 404, 429, 502} {
		t.Run(fmt.Sprintf("status %d", status), func(t *testing.T) {
			gen := &MockGenerator{statuses: []int{status}}
			rec := &recordingSleep{}
			_, err := newTestInvoker(gen, 2, rec).Invoke(context.Background(), "prompt")

			var genErr *GeneratorError
			if !errors.As(err, &genErr) {
				t.Fatalf("Expected GeneratorError, got %v", err)
			}
			var failure *TransientServiceFailure
			if errors.As(err, &failure) {
				t.Error("Non-transient failure must not be a TransientServiceFailure")
			}
			if gen.callCount != 1 || genErr.Attempts != 1 {
				t.Errorf("Expected exactly 1 attempt, got %d", gen.callCount)
			}
			if len(rec.waits) != 0 {
				t.Error("No backoff expected for non-transient failure")
			}
		})
	}
}

func TestInvoke_CancelDuringBackoff(t *testing.T) {
	gen := &MockGenerator{statuses: []int{503}}
	ctx, cancel := context.WithCancel(context.Background())

	inv := NewInvoker(gen, 2, time.Hour, 0)
	inv.Sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return SleepContext(ctx, d)
	}

	start := time.Now()
	_, err := inv.Invoke(ctx, "prompt")

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("Cancellation should abort the wait immediately")
	}
	if gen.callCount != 1 {
		t.Errorf("Expected no attempts after cancellation, got %d calls", gen.callCount)
	}
}

func TestBackoffWithJitter(t *testing.T) {
	inv := NewInvoker(&MockGenerator{}, 2, 2*time.Second, time.Second)
	inv.Jitter = func(max time.Duration) time.Duration { return max / 2 }

	if got := inv.Backoff(0); got != 2500*time.Millisecond {
		t.Errorf("Backoff(0) = %s", got)
	}
	if got := inv.Backoff(2); got != 8500*time.Millisecond {
		t.Errorf("Backoff(2) = %s", got)
	}

	for i := 0; i < 100; i++ {
		if j := randomJitter(time.Second); j < 0 || j >= time.Second {
			t.Fatalf("randomJitter out of range: %s", j)
		}
	}
}

func TestInvoke_ObserverSeesEveryAttempt(t *testing.T) {
	gen := &MockGenerator{statuses: []int{500, 0}, reply: "{}"}
	var seen []int
	inv := newTestInvoker(gen, 2, &recordingSleep{})
	inv.Observe = func(attempt, status int, err error) { seen = append(seen, status) }

	if _, err := inv.Invoke(context.Background(), "prompt"); err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if len(seen) != 2 || seen[0] != 500 || seen[1] != 0 {
		t.Errorf("Observer saw %v", seen)
	}
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, 0},
		{"plain", errors.New("boom"), 0},
		{"status error", &StatusError{Code: 503}, 503},
		{"wrapped genai value", fmt.Errorf("failed to generate text: %w", genai.APIError{Code: 529, Status: "overloaded"}), 529},
		{"genai pointer", &genai.APIError{Code: 500}, 500},
	}
	for _, tt := range tests {
		if got := StatusOf(tt.err); got != tt.want {
			t.Errorf("%s: StatusOf = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestInvoke_EmptyReplyIsSuccess(t *testing.T) {
	gen := &MockGenerator{reply: ""}
	res, err := newTestInvoker(gen, 2, &recordingSleep{}).Invoke(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("Empty reply should not fail the call, got %v", err)
	}
	if res.Text != "" || res.Attempts != 1 {
		t.Errorf("Unexpected invocation %+v", res)
	}
}

func TestTruncateUTF8(t *testing.T) {
	s := strings.Repeat("a", maxEmbeddingInput-1) + "é"
	got := truncateUTF8(s, maxEmbeddingInput)
	if !utf8.ValidString(got) {
		t.Fatal("Truncation split a multi-byte rune")
	}
	if len(got) != maxEmbeddingInput-1 {
		t.Errorf("Expected %d bytes, got %d", maxEmbeddingInput-1, len(got))
	}
	if truncateUTF8("short", maxEmbeddingInput) != "short" {
		t.Error("Short input should be unchanged")
	}
}

func TestNewClient_NoAPIKey(t *testing.T) {
	_, err := NewClient(context.Background(), config.GeminiConfig{})
	if err == nil {
		t.Fatal("Expected error when no API key is configured")
	}
	if !strings.Contains(err.Error(), "gemini API key is required") {
		t.Errorf("Expected API key error, got: %v", err)
	}
}

func TestSynthesisSchema(t *testing.T) {
	schema := SynthesisSchema()
	if schema.Type != genai.TypeObject {
		t.Errorf("Expected object schema, got %s", schema.Type)
	}
	devs, ok := schema.Properties["key_developments"]
	if !ok || devs.Type != genai.TypeArray {
		t.Fatal("key_developments should be an array")
	}
	for _, field := range []string{"category", "event", "implication", "source_title", "outlet", "url", "recency", "entity"} {
		if _, ok := devs.Items.Properties[field]; !ok {
			t.Errorf("Missing key development field %q", field)
		}
	}
}

func TestLiveAPIIntegration(t *testing.T) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		t.Skip("GEMINI_API_KEY not set, skipping integration test")
	}

	client, err := NewClient(context.Background(), config.GeminiConfig{APIKey: apiKey, Timeout: 60 * time.Second})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	text, err := client.GenerateText(context.Background(), "Reply with the single word: ready", TextGenerationOptions{MaxTokens: 16})
	if err != nil {
		t.Fatalf("GenerateText failed: %v", err)
	}
	if text == "" {
		t.Error("Expected non-empty reply")
	}
}
