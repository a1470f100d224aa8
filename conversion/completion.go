package conversion

import (
	"context"
	"math"
	"slices"
	"time"

	"github.com/deadcoast/sprawl-engine/event"
	"github.com/deadcoast/sprawl-engine/types"
)

// completeProcess finalizes a process that reached 100% progress: it
// computes efficiency-adjusted outputs, hands them off toward the next
// chain step (falling back to the source node's own pool), clears node
// bookkeeping best-effort, emits events, and advances the owning chain.
// Callers must hold e.mu.
func (e *Engine) completeProcess(ctx context.Context, p *types.ConversionProcess, now time.Time) {
	e.removeFromQueue(p.ID)
	delete(e.processes, p.ID)
	execID := e.processExec[p.ID]
	delete(e.processExec, p.ID)

	p.Active = false
	p.Progress = 1
	p.EndTime = now

	recipe, ok := e.registry.Recipe(p.RecipeID)
	if !ok {
		// Known design gap: without the recipe the outputs cannot be
		// reconstructed, so they are lost.
		e.logger.Error("Recipe missing at completion, outputs lost",
			"process_id", p.ID,
			"recipe_id", p.RecipeID,
			"converter_id", p.SourceID)
		e.metrics.recordProcessCompleted(p.RecipeID, "lost")
		e.processHistory.Write(*p)
		return
	}

	// Reuse the efficiency captured at start; recompute from the
	// converter's current state only when it was never applied.
	efficiency := p.AppliedEfficiency
	if efficiency <= 0 {
		if node, err := e.directory.Node(ctx, p.SourceID); err == nil {
			efficiency = CalculateConverterEfficiency(node, recipe)
		}
	}
	efficiency = ClampEfficiency(efficiency)
	p.AppliedEfficiency = efficiency

	outputs := make([]types.ResourceAmount, 0, len(recipe.Outputs))
	for _, out := range recipe.Outputs {
		outputs = append(outputs, types.ResourceAmount{
			Type:   out.Type,
			Amount: math.Floor(out.Amount * efficiency),
		})
	}

	// Bookkeeping is cleared before the hand-off so the capacity view the
	// router sees matches the one the step selector will see.
	e.clearNodeBookkeeping(ctx, p.SourceID, p.ID)
	e.distributeOutputs(ctx, p, execID, outputs)

	e.sink.Publish(event.ResourceUpdated{
		Reason:      event.ReasonConversionCompleted,
		RecipeID:    p.RecipeID,
		ConverterID: p.SourceID,
		ProcessID:   p.ID,
		Inputs:      types.CloneAmounts(recipe.Inputs),
		Outputs:     types.CloneAmounts(outputs),
		Efficiency:  efficiency,
	})
	e.metrics.recordProcessCompleted(p.RecipeID, "delivered")
	e.processHistory.Write(*p)

	e.logger.Debug("Conversion process completed",
		"process_id", p.ID,
		"recipe_id", p.RecipeID,
		"converter_id", p.SourceID,
		"efficiency", efficiency)

	if execID != "" {
		if exec, ok := e.executions[execID]; ok {
			e.completeChainStep(ctx, exec, p, outputs, efficiency, now)
		}
	}
}

// distributeOutputs materializes the outputs at the source node and then
// attempts a direct hand-off to the next chain step's converter. When no
// target resolves or the transfer fails, the outputs simply remain on the
// source converter's own pool; they are never silently dropped.
// Callers must hold e.mu.
func (e *Engine) distributeOutputs(
	ctx context.Context,
	p *types.ConversionProcess,
	execID string,
	outputs []types.ResourceAmount,
) {
	if err := e.directory.AddResources(ctx, p.SourceID, outputs); err != nil {
		// Outputs could not be credited anywhere; flagged, not recovered.
		e.logger.Error("Failed to credit outputs to source converter, outputs lost",
			"process_id", p.ID,
			"converter_id", p.SourceID,
			"error", err)
		e.metrics.recordError(err)
		return
	}

	targetID := e.nextStepConverter(ctx, execID)
	if targetID == "" {
		return
	}

	transferred, err := e.directory.TransferResources(ctx, p.SourceID, targetID, outputs)
	if err != nil {
		e.logger.Warn("Output transfer to next converter failed, outputs kept at source",
			"process_id", p.ID,
			"from", p.SourceID,
			"to", targetID,
			"error", err)
		e.metrics.recordError(err)
	}
	e.metrics.recordTransfer(transferred && err == nil)
}

// nextStepConverter resolves the converter that should receive the
// completed outputs: the next step's recorded converter when that step
// already started, otherwise the converter the step selector will pick,
// the first supporting node with spare capacity in directory order.
// Returns "" when the process has no next chain step or nothing resolves;
// the outputs then stay at the source until the step can start.
// Callers must hold e.mu.
func (e *Engine) nextStepConverter(ctx context.Context, execID string) string {
	if execID == "" {
		return ""
	}
	exec, ok := e.executions[execID]
	if !ok || !exec.Active || exec.Failed {
		return ""
	}

	next := exec.CurrentStep + 1
	if next >= len(exec.Steps) {
		return ""
	}
	if id := exec.Steps[next].ConverterID; id != "" {
		return id
	}

	nodes, err := e.directory.Nodes(ctx)
	if err != nil {
		return ""
	}
	for _, node := range nodes {
		if node.Supports(exec.Steps[next].RecipeID) && node.HasSpareCapacity() {
			return node.ID
		}
	}
	return ""
}

// clearNodeBookkeeping removes a process ID from a converter's active
// list. Failures are logged and swallowed; the process stays completed.
// Callers must hold e.mu.
func (e *Engine) clearNodeBookkeeping(ctx context.Context, nodeID, processID string) {
	node, err := e.directory.Node(ctx, nodeID)
	if err != nil {
		e.logger.Warn("Failed to fetch converter for bookkeeping",
			"converter_id", nodeID,
			"process_id", processID,
			"error", err)
		return
	}

	ids := slices.DeleteFunc(slices.Clone(node.ActiveProcessIDs), func(id string) bool {
		return id == processID
	})
	if err := e.directory.UpdateNode(ctx, nodeID, types.NodeUpdate{ActiveProcessIDs: &ids}); err != nil {
		e.logger.Warn("Failed to clear process from converter bookkeeping",
			"converter_id", nodeID,
			"process_id", processID,
			"error", err)
	}
}

// completeChainStep marks the execution's current step COMPLETED, advances
// the step cursor and either finishes the chain or starts the next step.
// Callers must hold e.mu.
func (e *Engine) completeChainStep(
	ctx context.Context,
	exec *types.ChainExecution,
	p *types.ConversionProcess,
	outputs []types.ResourceAmount,
	efficiency float64,
	now time.Time,
) {
	if exec.CurrentStep >= len(exec.Steps) {
		return
	}
	step := &exec.Steps[exec.CurrentStep]
	if step.Status != types.StepInProgress || step.ProcessID != p.ID {
		return
	}

	step.Status = types.StepCompleted
	step.EndTime = now
	e.metrics.recordStepDuration(step.RecipeID, now.Sub(step.StartTime))

	e.sink.Publish(event.ChainStepCompleted{
		ChainID:     exec.ChainID,
		ExecutionID: exec.ExecutionID,
		StepIndex:   exec.CurrentStep,
		RecipeID:    step.RecipeID,
		ProcessID:   p.ID,
		ConverterID: step.ConverterID,
		Outputs:     types.CloneAmounts(outputs),
		Efficiency:  efficiency,
	})

	exec.CurrentStep++

	if exec.CurrentStep == len(exec.RecipeIDs) {
		e.sink.Publish(event.ChainCompleted{
			ChainID:      exec.ChainID,
			ExecutionID:  exec.ExecutionID,
			FinalOutputs: types.CloneAmounts(outputs),
		})
		e.completeExecution(exec)
		return
	}

	e.sink.Publish(event.ChainStatusUpdated{Execution: exec.Clone()})
	e.advanceChain(ctx, exec)
}
