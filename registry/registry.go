// Package registry holds the immutable conversion definitions of the
// economy: recipes and chains. Definitions are insert-or-overwrite; there
// is no versioning and no cross-validation against running executions; a
// chain referencing an unregistered recipe fails lazily when that step is
// reached.
package registry

import (
	"sync"

	"github.com/deadcoast/sprawl-engine/types"
)

// Registry provides thread-safe registration and lookup of recipes and
// chains. All accessors return copies, never internal references.
type Registry struct {
	mu      sync.RWMutex
	recipes map[string]types.Recipe
	chains  map[string]types.Chain
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		recipes: make(map[string]types.Recipe),
		chains:  make(map[string]types.Chain),
	}
}

// RegisterRecipe inserts or overwrites a recipe definition. It returns
// false when the recipe has an empty ID. Processes already running against
// an overwritten definition are unaffected; they captured their applied
// efficiency and processing window at start time.
func (r *Registry) RegisterRecipe(recipe types.Recipe) bool {
	if recipe.ID == "" {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.recipes[recipe.ID] = recipe.Clone()
	return true
}

// RegisterChain inserts or overwrites a chain definition. It returns false
// when the chain has an empty ID.
func (r *Registry) RegisterChain(chain types.Chain) bool {
	if chain.ID == "" {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.chains[chain.ID] = chain.Clone()
	return true
}

// Recipe looks up a recipe by ID.
func (r *Registry) Recipe(id string) (types.Recipe, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	recipe, ok := r.recipes[id]
	if !ok {
		return types.Recipe{}, false
	}
	return recipe.Clone(), true
}

// Chain looks up a chain by ID.
func (r *Registry) Chain(id string) (types.Chain, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	chain, ok := r.chains[id]
	if !ok {
		return types.Chain{}, false
	}
	return chain.Clone(), true
}

// Recipes returns a snapshot of all registered recipes.
func (r *Registry) Recipes() []types.Recipe {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]types.Recipe, 0, len(r.recipes))
	for _, recipe := range r.recipes {
		out = append(out, recipe.Clone())
	}
	return out
}

// Chains returns a snapshot of all registered chains.
func (r *Registry) Chains() []types.Chain {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]types.Chain, 0, len(r.chains))
	for _, chain := range r.chains {
		out = append(out, chain.Clone())
	}
	return out
}
