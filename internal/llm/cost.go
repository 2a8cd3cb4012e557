package llm

import "strings"

// pricing is USD per million tokens, input then output. Providers report
// dated model names (gpt-4o-mini-2024-07-18), so lookups match the longest
// known prefix.
var pricing = map[string][2]float64{
	"gpt-4o-mini":      {0.15, 0.60},
	"gpt-4o":           {2.50, 10.00},
	"gpt-4.1-mini":     {0.40, 1.60},
	"claude-3-5-haiku": {0.80, 4.00},
	"claude-3-haiku":   {0.25, 1.25},
	"claude-sonnet-4":  {3.00, 15.00},
}

// EstimateCost prices usage for model. Unknown and local models cost 0.
func EstimateCost(model string, u Usage) float64 {
	var best string
	for prefix := range pricing {
		if strings.HasPrefix(model, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best == "" {
		return 0
	}
	p := pricing[best]
	return (float64(u.InputTokens)*p[0] + float64(u.OutputTokens)*p[1]) / 1e6
}
