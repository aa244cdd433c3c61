// Package cost estimates token usage and spend for a synthesis prompt.
package cost

import (
	"math"
	"strings"
	"unicode/utf8"
)

// GeminiPricing represents the current pricing for Gemini models
type GeminiPricing struct {
	Model                 string
	InputCostPer1MTokens  float64 // Cost per 1M input tokens in USD
	OutputCostPer1MTokens float64 // Cost per 1M output tokens in USD
	EstimatedOutputTokens int     // Typical brief length when no token cap is set
}

// DefaultModel is priced when a model is missing from PricingTable
const DefaultModel = "gemini-2.5-flash"

// PricingTable contains Gemini pricing as of 2025
var PricingTable = map[string]GeminiPricing{
	"gemini-2.5-flash": {
		Model:                 "gemini-2.5-flash",
		InputCostPer1MTokens:  0.30,
		OutputCostPer1MTokens: 2.50,
		EstimatedOutputTokens: 2000,
	},
	"gemini-2.5-flash-lite": {
		Model:                 "gemini-2.5-flash-lite",
		InputCostPer1MTokens:  0.10,
		OutputCostPer1MTokens: 0.40,
		EstimatedOutputTokens: 2000,
	},
	"gemini-2.5-pro": {
		Model:                 "gemini-2.5-pro",
		InputCostPer1MTokens:  1.25,
		OutputCostPer1MTokens: 10.00,
		EstimatedOutputTokens: 2500, // Slightly longer for pro model
	},
}

// EstimateTokenCount provides a rough estimation of token count for text
// This is a simplified approximation: typically 1 token ≈ 4 characters
func EstimateTokenCount(text string) int {
	text = strings.TrimSpace(text)
	text = strings.ReplaceAll(text, "\n", " ")

	charCount := utf8.RuneCountInString(text)

	// 3.5 rather than 4 leaves room for special tokens and formatting
	return int(math.Ceil(float64(charCount) / 3.5))
}

// Estimate is the projected usage of one generation call
type Estimate struct {
	Model        string
	InputTokens  int
	OutputTokens int
	InputCost    float64
	OutputCost   float64
	TotalCost    float64
}

// PricingFor returns the pricing for model, falling back to DefaultModel
func PricingFor(model string) GeminiPricing {
	if p, ok := PricingTable[model]; ok {
		return p
	}
	return PricingTable[DefaultModel]
}

// EstimateCall projects the cost of sending prompt to model. maxOutputTokens
// caps the output estimate when positive.
func EstimateCall(model, prompt string, maxOutputTokens int32) Estimate {
	pricing := PricingFor(model)

	out := pricing.EstimatedOutputTokens
	if maxOutputTokens > 0 && int(maxOutputTokens) < out {
		out = int(maxOutputTokens)
	}

	e := Estimate{
		Model:        pricing.Model,
		InputTokens:  EstimateTokenCount(prompt),
		OutputTokens: out,
	}
	e.InputCost = float64(e.InputTokens) * pricing.InputCostPer1MTokens / 1_000_000
	e.OutputCost = float64(e.OutputTokens) * pricing.OutputCostPer1MTokens / 1_000_000
	e.TotalCost = e.InputCost + e.OutputCost
	return e
}
