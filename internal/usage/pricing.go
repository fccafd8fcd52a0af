// Package usage estimates token counts and upstream cost for completed
// requests. Estimates feed the Prometheus usage counters.
package usage

import "strings"

// ModelPricing defines the cost per million tokens for a model.
type ModelPricing struct {
	InputPerMillion  float64 // Cost per 1M input tokens
	OutputPerMillion float64 // Cost per 1M output tokens
}

// PricingTable maps model name patterns to their pricing, in USD per million
// tokens. Image models are priced per call in ImagePricing.
var PricingTable = map[string]ModelPricing{
	// OpenAI
	"gpt-4o":        {2.50, 10.00},
	"gpt-4o-mini":   {0.15, 0.60},
	"gpt-4-turbo":   {10.00, 30.00},
	"gpt-4-vision":  {10.00, 30.00},
	"gpt-4":         {30.00, 60.00},
	"gpt-3.5-turbo": {0.50, 1.50},

	// Google Gemini
	"gemini-1.5-pro":   {1.25, 5.00},
	"gemini-1.5-flash": {0.075, 0.30},
	"gemini-pro":       {0.50, 1.50},

	// Groq
	"llama3-8b":    {0.05, 0.08},
	"llama3-70b":   {0.59, 0.79},
	"mixtral-8x7b": {0.24, 0.24},
	"gemma-7b":     {0.07, 0.07},

	// Mistral
	"mistral-tiny":   {0.25, 0.25},
	"mistral-small":  {1.00, 3.00},
	"mistral-medium": {2.70, 8.10},
	"mistral-large":  {4.00, 12.00},

	// Perplexity
	"pplx-7b":      {0.20, 0.20},
	"pplx-70b":     {1.00, 1.00},
	"sonar-small":  {0.20, 0.20},
	"sonar-medium": {0.60, 0.60},
}

// ImagePricing is the cost of one generated image.
var ImagePricing = map[string]float64{
	"dall-e-3":         0.080,
	"stable-diffusion": 0.002,
}

// GetModelPricing returns the pricing for model: an exact match first, then
// the longest table pattern the model name starts with.
func GetModelPricing(model string) (ModelPricing, bool) {
	m := strings.ToLower(strings.TrimSpace(model))
	if m == "" {
		return ModelPricing{}, false
	}
	if pricing, ok := PricingTable[m]; ok {
		return pricing, true
	}
	best := ""
	for pattern := range PricingTable {
		if strings.HasPrefix(m, pattern) && len(pattern) > len(best) {
			best = pattern
		}
	}
	if best == "" {
		return ModelPricing{}, false
	}
	return PricingTable[best], true
}

// CalculateCost calculates the cost for given token usage.
func CalculateCost(pricing ModelPricing, inputTokens, outputTokens int64) float64 {
	inputCost := float64(inputTokens) * pricing.InputPerMillion / 1_000_000
	outputCost := float64(outputTokens) * pricing.OutputPerMillion / 1_000_000
	return inputCost + outputCost
}

// EstimateModelCost estimates the cost for a model and token usage.
func EstimateModelCost(model string, inputTokens, outputTokens int64) (float64, bool) {
	pricing, ok := GetModelPricing(model)
	if !ok {
		return 0, false
	}
	return CalculateCost(pricing, inputTokens, outputTokens), true
}

// EstimateImageCost returns the per-image cost, falling back to the Stable
// Diffusion rate for unknown image models the same way routing does.
func EstimateImageCost(model string) float64 {
	if cost, ok := ImagePricing[strings.ToLower(model)]; ok {
		return cost
	}
	return ImagePricing["stable-diffusion"]
}
