package conversion

import "github.com/deadcoast/sprawl-engine/types"

// Efficiency bounds. The applied efficiency multiplier is clamped to
// [MinEfficiency, MaxEfficiency] (0%–200%) wherever it scales outputs.
const (
	MinEfficiency = 0.0
	MaxEfficiency = 2.0
)

// Network stress bounds: a converter degrades up to 20% under full load
// and never below 50% efficiency from this term alone.
const (
	stressPenaltyPerLoad = 0.2
	minStressFactor      = 0.5
	maxStressFactor      = 1.0
)

// CalculateConverterEfficiency combines the recipe's base efficiency, the
// converter's node-level multiplier, its per-recipe modifier, the input
// quality factor and the load-dependent network stress factor into one
// multiplier. The result is NOT clamped; callers clamp via ClampEfficiency
// before applying it.
func CalculateConverterEfficiency(node types.ConverterNode, recipe types.Recipe) float64 {
	efficiency := recipe.BaseEfficiency
	efficiency *= node.Efficiency
	if modifier, ok := node.Configuration.EfficiencyModifiers[recipe.ID]; ok {
		efficiency *= modifier
	}
	efficiency *= resourceQualityFactor(recipe.Inputs)
	efficiency *= networkStressFactor(node)
	return efficiency
}

// ClampEfficiency bounds an efficiency multiplier into [0, 2].
func ClampEfficiency(efficiency float64) float64 {
	if efficiency < MinEfficiency {
		return MinEfficiency
	}
	if efficiency > MaxEfficiency {
		return MaxEfficiency
	}
	return efficiency
}

// resourceQualityFactor derives a multiplier from input quality.
// TODO: replace the constant once resource quality tiers land in the
// economy data model.
func resourceQualityFactor(_ []types.ResourceAmount) float64 {
	return 1.0
}

// networkStressFactor penalizes a converter by its utilization ratio:
// factor = 1 - loadRatio*0.2, clamped to [0.5, 1.0].
func networkStressFactor(node types.ConverterNode) float64 {
	factor := 1.0 - node.LoadRatio()*stressPenaltyPerLoad
	if factor < minStressFactor {
		return minStressFactor
	}
	if factor > maxStressFactor {
		return maxStressFactor
	}
	return factor
}
