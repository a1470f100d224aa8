package types

import "time"

// Recipe is a declarative input→output transformation with timing and a
// base efficiency. Recipes are immutable once registered; re-registering
// the same ID overwrites the earlier definition.
type Recipe struct {
	ID             string           `json:"id"`
	Inputs         []ResourceAmount `json:"inputs"`
	Outputs        []ResourceAmount `json:"outputs"`
	ProcessingTime time.Duration    `json:"processing_time"`
	BaseEfficiency float64          `json:"base_efficiency"`
	RequiredLevel  int              `json:"required_level"`
	EnergyCost     float64          `json:"energy_cost"`
}

// Clone returns an independent copy of the recipe.
func (r Recipe) Clone() Recipe {
	out := r
	out.Inputs = CloneAmounts(r.Inputs)
	out.Outputs = CloneAmounts(r.Outputs)
	return out
}

// Chain is an ordered sequence of recipe IDs executed step by step,
// possibly across different converters. The definition is independent of
// any running execution.
type Chain struct {
	ID    string   `json:"id"`
	Steps []string `json:"steps"`
}

// Clone returns an independent copy of the chain definition.
func (c Chain) Clone() Chain {
	out := c
	if c.Steps != nil {
		out.Steps = make([]string, len(c.Steps))
		copy(out.Steps, c.Steps)
	}
	return out
}
