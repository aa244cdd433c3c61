package llm

import (
	"context"
	"fmt"
	"signalbrief/internal/config"
	"signalbrief/internal/logger"
	"time"
	"unicode/utf8"

	"google.golang.org/genai"
)

const (
	// DefaultModel is the default Gemini model used for synthesis.
	DefaultModel = "gemini-2.5-flash"
	// DefaultEmbeddingModel is the default model for generating embeddings
	DefaultEmbeddingModel = "gemini-embedding-001"
	// DefaultEmbeddingDimensions is the output dimension for embeddings (Matryoshka)
	DefaultEmbeddingDimensions = int32(768)
	// maxEmbeddingInput is a conservative character limit for gemini-embedding-001
	maxEmbeddingInput = 8000
)

// Client represents a client for interacting with Gemini.
type Client struct {
	modelName      string
	embeddingModel string
	dimensions     int32
	timeout        time.Duration
	gClient        *genai.Client
}

// TextGenerationOptions contains options for text generation
type TextGenerationOptions struct {
	MaxTokens      int32         // Maximum number of tokens to generate
	Temperature    float32       // Temperature for randomness (0.0 to 1.0)
	Model          string        // Model to use (optional, defaults to client's model)
	ResponseSchema *genai.Schema // Optional schema for structured JSON output
}

// Generator is the narrative generation boundary: one prompt in, one textual reply out.
type Generator interface {
	GenerateText(ctx context.Context, prompt string, options TextGenerationOptions) (string, error)
}

// Embedder turns text into a vector
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float64, error)
}

// NewClient creates a Gemini client from configuration.
func NewClient(ctx context.Context, cfg config.GeminiConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required. Set GEMINI_API_KEY environment variable or ai.gemini.api_key in config file.\nGet your API key from: https://aistudio.google.com/app/apikey")
	}

	modelName := cfg.Model
	if modelName == "" {
		modelName = DefaultModel
	}
	embeddingModel := cfg.EmbeddingModel
	if embeddingModel == "" {
		embeddingModel = DefaultEmbeddingModel
	}
	dims := cfg.EmbeddingDimensions
	if dims <= 0 {
		dims = DefaultEmbeddingDimensions
	}

	gClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Client{
		modelName:      modelName,
		embeddingModel: embeddingModel,
		dimensions:     dims,
		timeout:        cfg.Timeout,
		gClient:        gClient,
	}, nil
}

// ModelName returns the default generation model
func (c *Client) ModelName() string {
	return c.modelName
}

// GenerateText generates text using the LLM with specified options.
// Service errors are returned unwrapped enough for StatusOf to read the HTTP status.
// An empty or blocked reply is not an error; the caller's recovery step degrades it.
func (c *Client) GenerateText(ctx context.Context, prompt string, options TextGenerationOptions) (string, error) {
	if prompt == "" {
		return "", fmt.Errorf("prompt cannot be empty")
	}

	modelName := c.modelName
	if options.Model != "" {
		modelName = options.Model
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	contents := []*genai.Content{{
		Parts: []*genai.Part{{Text: prompt}},
		Role:  "user",
	}}

	var cfg *genai.GenerateContentConfig
	if options.MaxTokens > 0 || options.Temperature > 0 || options.ResponseSchema != nil {
		cfg = &genai.GenerateContentConfig{}
		if options.MaxTokens > 0 {
			cfg.MaxOutputTokens = options.MaxTokens
		}
		if options.Temperature > 0 {
			temp := options.Temperature
			cfg.Temperature = &temp
		}
		if options.ResponseSchema != nil {
			cfg.ResponseMIMEType = "application/json"
			cfg.ResponseSchema = options.ResponseSchema
		}
	}

	resp, err := c.gClient.Models.GenerateContent(ctx, modelName, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("failed to generate text: %w", err)
	}

	text := resp.Text()
	if text == "" {
		logger.Get().Warn("Empty response from LLM", "model", modelName)
	}

	return text, nil
}

// GenerateEmbedding generates a vector embedding for the given text
func (c *Client) GenerateEmbedding(ctx context.Context, text string) ([]float64, error) {
	if text == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}
	text = truncateUTF8(text, maxEmbeddingInput)

	contents := []*genai.Content{{
		Parts: []*genai.Part{{Text: text}},
		Role:  "user",
	}}

	dims := c.dimensions
	cfg := &genai.EmbedContentConfig{
		OutputDimensionality: &dims,
	}

	resp, err := c.gClient.Models.EmbedContent(ctx, c.embeddingModel, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embedding: %w", err)
	}

	if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
		return nil, fmt.Errorf("no embedding values returned from API")
	}

	values := resp.Embeddings[0].Values
	embedding := make([]float64, len(values))
	for i, val := range values {
		embedding[i] = float64(val)
	}

	return embedding, nil
}

// SynthesisSchema describes the brief for Gemini's structured output mode.
// Field names match core.SynthesisResult's JSON tags.
func SynthesisSchema() *genai.Schema {
	str := func(desc string) *genai.Schema {
		return &genai.Schema{Type: genai.TypeString, Description: desc}
	}

	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"executive_summary": str("3-5 sentence overview of what changed and why it matters"),
			"key_developments": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"category":     str("competitor, stakeholder, organization or market"),
						"event":        str("what happened"),
						"implication":  str("what it means for the organization"),
						"source_title": str("title of the source article"),
						"outlet":       str("publication name"),
						"url":          str("source article URL, empty when unknown"),
						"recency":      str("recency bucket of the source"),
						"entity":       str("entity the development concerns"),
					},
					Required: []string{"category", "event", "implication"},
				},
			},
			"strategic_implications": str("how the developments connect"),
			"watching_closely": {
				Type:  genai.TypeArray,
				Items: str("item to monitor next"),
			},
		},
		Required: []string{"executive_summary", "key_developments"},
	}
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
