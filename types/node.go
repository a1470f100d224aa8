package types

import "slices"

// ConverterConfiguration holds the tunable parameters of a converter node.
type ConverterConfiguration struct {
	// MaxConcurrentProcesses bounds how many processes the node may run at
	// once. Zero means the node cannot run any process.
	MaxConcurrentProcesses int `json:"max_concurrent_processes"`
	// EfficiencyModifiers are per-recipe multipliers keyed by recipe ID.
	EfficiencyModifiers map[string]float64 `json:"efficiency_modifiers,omitempty"`
}

// ConverterNode is a capacity-bounded actor capable of running the recipes
// it supports, holding its own resource pool. The engine never holds a
// second copy of truth for a node; it re-fetches from the directory before
// mutating.
type ConverterNode struct {
	ID                 string                   `json:"id"`
	SupportedRecipeIDs []string                 `json:"supported_recipe_ids"`
	Configuration      ConverterConfiguration   `json:"configuration"`
	ActiveProcessIDs   []string                 `json:"active_process_ids"`
	Efficiency         float64                  `json:"efficiency"`
	Resources          map[ResourceType]float64 `json:"resources"`
}

// Supports reports whether the node can run the given recipe.
func (n ConverterNode) Supports(recipeID string) bool {
	return slices.Contains(n.SupportedRecipeIDs, recipeID)
}

// HasSpareCapacity reports whether the node can accept another process.
func (n ConverterNode) HasSpareCapacity() bool {
	return len(n.ActiveProcessIDs) < n.Configuration.MaxConcurrentProcesses
}

// LoadRatio returns activeProcesses / maxConcurrentProcesses, or 0 when the
// node has no capacity configured.
func (n ConverterNode) LoadRatio() float64 {
	if n.Configuration.MaxConcurrentProcesses <= 0 {
		return 0
	}
	return float64(len(n.ActiveProcessIDs)) / float64(n.Configuration.MaxConcurrentProcesses)
}

// Clone returns an independent deep copy of the node.
func (n ConverterNode) Clone() ConverterNode {
	out := n
	if n.SupportedRecipeIDs != nil {
		out.SupportedRecipeIDs = slices.Clone(n.SupportedRecipeIDs)
	}
	if n.ActiveProcessIDs != nil {
		out.ActiveProcessIDs = slices.Clone(n.ActiveProcessIDs)
	}
	if n.Configuration.EfficiencyModifiers != nil {
		mods := make(map[string]float64, len(n.Configuration.EfficiencyModifiers))
		for k, v := range n.Configuration.EfficiencyModifiers {
			mods[k] = v
		}
		out.Configuration.EfficiencyModifiers = mods
	}
	if n.Resources != nil {
		res := make(map[ResourceType]float64, len(n.Resources))
		for k, v := range n.Resources {
			res[k] = v
		}
		out.Resources = res
	}
	return out
}

// NodeUpdate is a partial update applied to a converter node. Nil fields
// are left untouched.
type NodeUpdate struct {
	ActiveProcessIDs *[]string
	Efficiency       *float64
}
