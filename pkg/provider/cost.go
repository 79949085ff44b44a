package provider

import "strings"

// Per-million-token USD rates used to estimate run cost from usage.
// Unknown models estimate to zero; accounting stays best-effort.
type modelRate struct {
	input  float64
	output float64
}

var modelRates = map[string]modelRate{
	"claude-opus":   {input: 15.0, output: 75.0},
	"claude-sonnet": {input: 3.0, output: 15.0},
	"claude-haiku":  {input: 0.8, output: 4.0},
	"gpt-4o":        {input: 2.5, output: 10.0},
	"gpt-4o-mini":   {input: 0.15, output: 0.6},
}

// EstimateCost returns the estimated USD cost for a run given its model
// and token usage.
func EstimateCost(model string, inputTokens, outputTokens int64) float64 {
	var best modelRate
	bestLen := 0
	for prefix, rate := range modelRates {
		if strings.HasPrefix(model, prefix) && len(prefix) > bestLen {
			best = rate
			bestLen = len(prefix)
		}
	}
	if bestLen == 0 {
		return 0
	}
	return (float64(inputTokens)*best.input + float64(outputTokens)*best.output) / 1e6
}
