// Package types defines the shared domain entities of the sprawl economy:
// resources, recipes, chains, conversion processes, and converter nodes.
package types

// ResourceType identifies a kind of resource in the economy (minerals,
// energy, plasma, ...). Values are game data, not a closed set.
type ResourceType string

// ResourceAmount pairs a resource type with a quantity. Quantities are
// floating point because efficiency multipliers produce fractional values;
// process outputs are floored before being credited to a node.
type ResourceAmount struct {
	Type   ResourceType `json:"type"`
	Amount float64      `json:"amount"`
}

// CloneAmounts returns an independent copy of a resource amount slice.
func CloneAmounts(amounts []ResourceAmount) []ResourceAmount {
	if amounts == nil {
		return nil
	}
	out := make([]ResourceAmount, len(amounts))
	copy(out, amounts)
	return out
}
