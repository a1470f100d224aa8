package conversion

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/deadcoast/sprawl-engine/errors"
	"github.com/deadcoast/sprawl-engine/event"
	"github.com/deadcoast/sprawl-engine/types"
)

// StartProcess starts an ad-hoc conversion of a single recipe on the given
// converter, outside any chain. It returns a snapshot of the created
// process.
func (e *Engine) StartProcess(ctx context.Context, converterID, recipeID string) (types.ConversionProcess, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, err := e.startProcess(ctx, converterID, recipeID)
	if err != nil {
		e.metrics.recordError(err)
		return types.ConversionProcess{}, err
	}
	return *p, nil
}

// startProcess consumes the recipe inputs on the converter and enqueues a
// new conversion process. Callers must hold e.mu.
//
// Input consumption is best-effort at this level: when the directory
// reports a consume failure after a successful availability check, no
// rollback of partially consumed resources is attempted; the directory
// implementation owns atomicity of a single consume call.
func (e *Engine) startProcess(ctx context.Context, converterID, recipeID string) (*types.ConversionProcess, error) {
	recipe, ok := e.registry.Recipe(recipeID)
	if !ok {
		e.metrics.recordProcessStarted(recipeID, false, 0)
		return nil, errors.WrapInvalid(errors.ErrRecipeNotFound,
			"Engine", "startProcess", fmt.Sprintf("lookup of recipe %s", recipeID))
	}

	node, err := e.directory.Node(ctx, converterID)
	if err != nil {
		e.metrics.recordProcessStarted(recipeID, false, 0)
		return nil, errors.WrapInvalid(errors.ErrConverterNotFound,
			"Engine", "startProcess", fmt.Sprintf("lookup of converter %s", converterID))
	}
	if !node.Supports(recipeID) {
		e.metrics.recordProcessStarted(recipeID, false, 0)
		return nil, errors.WrapInvalid(errors.ErrConverterNotFound,
			"Engine", "startProcess",
			fmt.Sprintf("converter %s does not support recipe %s", converterID, recipeID))
	}
	if !node.HasSpareCapacity() {
		e.metrics.recordProcessStarted(recipeID, false, 0)
		return nil, errors.WrapTransient(errors.ErrConverterAtCapacity,
			"Engine", "startProcess",
			fmt.Sprintf("converter %s is at capacity (%d/%d)",
				converterID, len(node.ActiveProcessIDs), node.Configuration.MaxConcurrentProcesses))
	}

	available, err := e.directory.CheckResourcesAvailable(ctx, converterID, recipe.Inputs)
	if err != nil {
		e.metrics.recordProcessStarted(recipeID, false, 0)
		return nil, errors.WrapTransient(err, "Engine", "startProcess", "resource availability check")
	}
	if !available {
		e.metrics.recordProcessStarted(recipeID, false, 0)
		return nil, errors.WrapInvalid(errors.ErrInsufficientResources,
			"Engine", "startProcess",
			fmt.Sprintf("converter %s lacks inputs for recipe %s", converterID, recipeID))
	}

	consumed, err := e.directory.ConsumeResources(ctx, converterID, recipe.Inputs)
	if err != nil || !consumed {
		e.metrics.recordProcessStarted(recipeID, false, 0)
		if err == nil {
			err = errors.ErrConsumeFailed
		}
		return nil, errors.WrapTransient(err, "Engine", "startProcess",
			fmt.Sprintf("input consumption on converter %s", converterID))
	}

	// Capture the applied efficiency at start time; later recipe or node
	// changes do not affect a running process.
	efficiency := ClampEfficiency(CalculateConverterEfficiency(node, recipe))

	now := e.clock.Now()
	p := &types.ConversionProcess{
		ID:                uuid.NewString(),
		RecipeID:          recipeID,
		SourceID:          converterID,
		Active:            true,
		StartTime:         now,
		EndTime:           now.Add(recipe.ProcessingTime),
		Progress:          0,
		AppliedEfficiency: efficiency,
	}
	e.processes[p.ID] = p
	e.queue = append(e.queue, p.ID)

	// Best-effort bookkeeping: an update failure is logged but does not
	// cancel the already-started process.
	ids := append(slices.Clone(node.ActiveProcessIDs), p.ID)
	if err := e.directory.UpdateNode(ctx, converterID, types.NodeUpdate{ActiveProcessIDs: &ids}); err != nil {
		e.logger.Warn("Failed to record process on converter",
			"converter_id", converterID,
			"process_id", p.ID,
			"error", err)
	}

	e.sink.Publish(event.ResourceUpdated{
		Reason:      event.ReasonProcessStarted,
		RecipeID:    recipeID,
		ConverterID: converterID,
		ProcessID:   p.ID,
		Inputs:      types.CloneAmounts(recipe.Inputs),
		Efficiency:  efficiency,
	})
	e.metrics.recordProcessStarted(recipeID, true, efficiency)

	e.logger.Debug("Conversion process started",
		"process_id", p.ID,
		"recipe_id", recipeID,
		"converter_id", converterID,
		"efficiency", efficiency)

	return p, nil
}
