package ai

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-4o-mini"

// UpgradeModel re-runs low-confidence eligibility assessments.
const UpgradeModel = "gpt-4o"

type price struct{ input, output float64 }

// USD per 1M tokens.
var pricing = map[string]price{
	"gpt-4o-mini":   {input: 0.15, output: 0.60},
	"gpt-4o":        {input: 2.50, output: 10.00},
	"gpt-4-turbo":   {input: 10.00, output: 30.00},
	"gpt-3.5-turbo": {input: 0.50, output: 1.50},
}

// Cost estimates the USD cost of a call.  Unknown models are priced as the
// default model.
func Cost(model string, promptTokens, completionTokens int) float64 {
	p, ok := pricing[model]
	if !ok {
		p = pricing[DefaultModel]
	}
	return float64(promptTokens)/1_000_000*p.input + float64(completionTokens)/1_000_000*p.output
}
