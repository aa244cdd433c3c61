package pipeline

import (
	"context"
	"fmt"
	"signalbrief/internal/config"
	"signalbrief/internal/llm"
	"signalbrief/internal/observability"
	"time"
)

// Builder helps construct a fully configured Pipeline
type Builder struct {
	generator  llm.Generator
	options    llm.TextGenerationOptions
	targets    TargetLoader
	priorities PriorityLookup
	persister  Persister
	metrics    *observability.Metrics
	config     *Config
	maxRetries int
	baseDelay  time.Duration
	maxJitter  time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewBuilder creates a new pipeline builder with default settings
func NewBuilder() *Builder {
	return &Builder{
		config:     DefaultConfig(),
		options:    llm.TextGenerationOptions{ResponseSchema: llm.SynthesisSchema()},
		maxRetries: 2,
		baseDelay:  2 * time.Second,
		maxJitter:  time.Second,
	}
}

// WithGenerator sets the generation backend
func (b *Builder) WithGenerator(gen llm.Generator) *Builder {
	b.generator = gen
	return b
}

// WithGeminiSettings applies model, token and temperature settings
func (b *Builder) WithGeminiSettings(cfg config.GeminiConfig) *Builder {
	b.options.Model = cfg.Model
	b.options.MaxTokens = cfg.MaxTokens
	b.options.Temperature = cfg.Temperature
	b.config.MaxTokens = cfg.MaxTokens
	if cfg.Model != "" {
		b.config.ModelName = cfg.Model
	}
	return b
}

// WithSynthesisSettings applies caps, retry policy and coverage mode
func (b *Builder) WithSynthesisSettings(s config.Synthesis) *Builder {
	b.config.Budget = s.Budget()
	if s.TopTargets > 0 {
		b.config.TopTargets = s.TopTargets
	}
	if s.MaxPromptBytes > 0 {
		b.config.MaxPromptBytes = s.MaxPromptBytes
	}
	if s.CoverageMatch != "" {
		b.config.CoverageMatch = s.CoverageMatch
	}
	b.config.Persist = s.Persist
	b.maxRetries = s.MaxRetries
	b.baseDelay = s.RetryBaseDelay
	b.maxJitter = s.RetryJitter
	return b
}

// WithTargets sets the target loader
func (b *Builder) WithTargets(loader TargetLoader) *Builder {
	b.targets = loader
	return b
}

// WithPriorities sets the source priority lookup
func (b *Builder) WithPriorities(lookup PriorityLookup) *Builder {
	b.priorities = lookup
	return b
}

// WithPersister sets where completed runs are stored
func (b *Builder) WithPersister(p Persister) *Builder {
	b.persister = p
	return b
}

// WithMetrics sets the metrics recorder
func (b *Builder) WithMetrics(m *observability.Metrics) *Builder {
	b.metrics = m
	return b
}

// WithConfig sets the pipeline configuration
func (b *Builder) WithConfig(config *Config) *Builder {
	b.config = config
	return b
}

// WithRetryPolicy overrides the generator retry policy
func (b *Builder) WithRetryPolicy(maxRetries int, baseDelay, maxJitter time.Duration) *Builder {
	b.maxRetries = maxRetries
	b.baseDelay = baseDelay
	b.maxJitter = maxJitter
	return b
}

// WithSleep replaces the backoff wait, used by tests
func (b *Builder) WithSleep(sleep func(ctx context.Context, d time.Duration) error) *Builder {
	b.sleep = sleep
	return b
}

// Build constructs a fully configured Pipeline
func (b *Builder) Build() (*Pipeline, error) {
	if b.generator == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if b.config == nil {
		b.config = DefaultConfig()
	}

	invoker := llm.NewInvoker(b.generator, b.maxRetries, b.baseDelay, b.maxJitter)
	invoker.Options = b.options
	if b.sleep != nil {
		invoker.Sleep = b.sleep
	}
	metrics := b.metrics
	invoker.Observe = func(attempt, status int, err error) {
		metrics.GeneratorAttempt(status)
	}

	return NewPipeline(b.targets, b.priorities, invoker, b.persister, b.metrics, b.config), nil
}
