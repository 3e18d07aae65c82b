package llm

import "strings"

// Price is the cost in dollars of one thousand tokens.
type Price struct {
	InputPer1K  float64
	OutputPer1K float64
}

var pricing = map[string]Price{
	"gpt-4o":                                    {InputPer1K: 0.0025, OutputPer1K: 0.01},
	"gpt-4o-mini":                               {InputPer1K: 0.00015, OutputPer1K: 0.0006},
	"gpt-4.1":                                   {InputPer1K: 0.002, OutputPer1K: 0.008},
	"gpt-4.1-mini":                              {InputPer1K: 0.0004, OutputPer1K: 0.0016},
	"anthropic.claude-3-7-sonnet-20250219-v1:0": {InputPer1K: 0.003, OutputPer1K: 0.015},
	"anthropic.claude-sonnet-4-20250514-v1:0":   {InputPer1K: 0.003, OutputPer1K: 0.015},
	"anthropic.claude-sonnet-4-5-20250929-v1:0": {InputPer1K: 0.003, OutputPer1K: 0.015},
	"anthropic.claude-opus-4-20250514-v1:0":     {InputPer1K: 0.015, OutputPer1K: 0.075},
	"amazon.nova-premier-v1:0":                  {InputPer1K: 0.0025, OutputPer1K: 0.0125},
	"amazon.nova-pro-v1:0":                      {InputPer1K: 0.0008, OutputPer1K: 0.0032},
}

var regionPrefixes = []string{"us.", "eu.", "apac.", "global."}

// PriceOf looks a model up, ignoring a cross region inference prefix.
func PriceOf(model string) (Price, bool) {
	if p, ok := pricing[model]; ok {
		return p, true
	}
	for _, prefix := range regionPrefixes {
		if base, found := strings.CutPrefix(model, prefix); found {
			p, ok := pricing[base]
			return p, ok
		}
	}
	return Price{}, false
}

// Cost returns the dollar cost of a call. Unknown models cost nothing.
func Cost(model string, inputTokens, outputTokens int64) float64 {
	p, ok := PriceOf(model)
	if !ok {
		return 0
	}
	return float64(inputTokens)/1000*p.InputPer1K + float64(outputTokens)/1000*p.OutputPer1K
}
