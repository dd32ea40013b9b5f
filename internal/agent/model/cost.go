package model

import (
	"strings"

	"github.com/cloudwego/eino/schema"
)

// Pricing defines USD cost per 1M tokens for input/output.
type Pricing struct {
	InputPerM  float64
	OutputPerM float64
}

// defaultPricing provides USD pricing per 1M text tokens.
var defaultPricing = map[string]Pricing{
	"gemini-2.5-pro":        {InputPerM: 1.25, OutputPerM: 10.00},
	"gemini-2.5-flash":      {InputPerM: 0.30, OutputPerM: 2.50},
	"gemini-2.5-flash-lite": {InputPerM: 0.10, OutputPerM: 0.40},
	"gemini-2.0-flash":      {InputPerM: 0.10, OutputPerM: 0.40},
}

// ResolvePricing returns pricing for a model. Version suffixes such as
// "-001" or "-preview-06-17" fall back to the base model; unknown models cost zero.
func ResolvePricing(model string) Pricing {
	name := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(model)), "models/")
	for name != "" {
		if p, ok := defaultPricing[name]; ok {
			return p
		}
		i := strings.LastIndex(name, "-")
		if i < 0 {
			break
		}
		name = name[:i]
	}
	return Pricing{}
}

// UsageCost is the cost breakdown of one model call.
type UsageCost struct {
	PromptTokens     int
	CompletionTokens int
	InputUSD         float64
	OutputUSD        float64
}

func (c UsageCost) TotalUSD() float64 {
	return c.InputUSD + c.OutputUSD
}

// ComputeCost converts token usage to USD cost using per-1M Pricing.
func ComputeCost(usage *schema.TokenUsage, p Pricing) UsageCost {
	if usage == nil {
		return UsageCost{}
	}
	return UsageCost{
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		InputUSD:         p.InputPerM * float64(usage.PromptTokens) / 1_000_000.0,
		OutputUSD:        p.OutputPerM * float64(usage.CompletionTokens) / 1_000_000.0,
	}
}
