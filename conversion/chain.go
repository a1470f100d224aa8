package conversion

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/deadcoast/sprawl-engine/errors"
	"github.com/deadcoast/sprawl-engine/event"
	"github.com/deadcoast/sprawl-engine/types"
)

// StartChain begins a new execution of a registered chain and returns its
// generated execution ID. The first step is advanced immediately; a chain
// whose first recipe has no supporting converter is created and then
// marked failed, which is still a successful start from the caller's view.
func (e *Engine) StartChain(ctx context.Context, chainID string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	chain, ok := e.registry.Chain(chainID)
	if !ok {
		err := errors.WrapInvalid(errors.ErrChainNotFound,
			"Engine", "StartChain", fmt.Sprintf("lookup of chain %s", chainID))
		e.metrics.recordError(err)
		return "", err
	}
	if len(chain.Steps) == 0 {
		err := errors.WrapInvalid(
			fmt.Errorf("chain %s has no steps", chainID),
			"Engine", "StartChain", "chain validation")
		e.metrics.recordError(err)
		return "", err
	}

	now := e.clock.Now()
	exec := &types.ChainExecution{
		ChainID:     chainID,
		ExecutionID: uuid.NewString(),
		Active:      true,
		StartTime:   now,
		RecipeIDs:   chain.Steps,
		Steps:       make([]types.ChainStep, len(chain.Steps)),
	}
	for i, recipeID := range chain.Steps {
		exec.Steps[i] = types.ChainStep{RecipeID: recipeID, Status: types.StepPending}
	}
	e.executions[exec.ExecutionID] = exec

	e.metrics.recordChainStarted(chainID)
	e.sink.Publish(event.ChainStatusUpdated{Execution: exec.Clone()})
	e.logger.Info("Chain execution started",
		"chain_id", chainID,
		"execution_id", exec.ExecutionID,
		"steps", len(chain.Steps))

	e.advanceChain(ctx, exec)
	return exec.ExecutionID, nil
}

// advanceChain tries to start the current PENDING step of an execution.
// Callers must hold e.mu.
//
// A step whose eligible converters are all at capacity is left PENDING and
// retried on the next trigger (a process completion or an external poke);
// the engine does not self-poll for step starts.
func (e *Engine) advanceChain(ctx context.Context, exec *types.ChainExecution) {
	if !exec.Active || exec.Completed || exec.Failed || exec.Paused {
		return
	}
	if exec.CurrentStep >= len(exec.RecipeIDs) {
		e.completeExecution(exec)
		return
	}

	step := &exec.Steps[exec.CurrentStep]
	if step.Status != types.StepPending {
		return
	}

	nodes, err := e.directory.Nodes(ctx)
	if err != nil {
		// Directory trouble is transient; leave the step PENDING.
		e.logger.Warn("Converter directory unavailable, step start deferred",
			"execution_id", exec.ExecutionID,
			"recipe_id", step.RecipeID,
			"error", err)
		return
	}

	var eligible []types.ConverterNode
	for _, node := range nodes {
		if node.Supports(step.RecipeID) {
			eligible = append(eligible, node)
		}
	}
	if len(eligible) == 0 {
		e.failExecution(exec, fmt.Sprintf("No converters available for recipe %s", step.RecipeID))
		return
	}

	var chosen *types.ConverterNode
	for i := range eligible {
		if eligible[i].HasSpareCapacity() {
			chosen = &eligible[i]
			break
		}
	}
	if chosen == nil {
		// Every eligible converter is busy; retried on the next trigger.
		return
	}

	p, err := e.startProcess(ctx, chosen.ID, step.RecipeID)
	if err != nil {
		if errors.IsTransient(err) {
			// Capacity or consume races resolve on a later trigger.
			e.logger.Debug("Chain step start deferred",
				"execution_id", exec.ExecutionID,
				"recipe_id", step.RecipeID,
				"error", err)
			return
		}
		e.metrics.recordError(err)
		e.failExecution(exec, err.Error())
		return
	}

	step.Status = types.StepInProgress
	step.StartTime = p.StartTime
	step.ProcessID = p.ID
	step.ConverterID = chosen.ID
	e.processExec[p.ID] = exec.ExecutionID

	e.sink.Publish(event.ChainStepStarted{
		ChainID:     exec.ChainID,
		ExecutionID: exec.ExecutionID,
		StepIndex:   exec.CurrentStep,
		RecipeID:    step.RecipeID,
		ProcessID:   p.ID,
		ConverterID: chosen.ID,
	})
	e.sink.Publish(event.ChainStatusUpdated{Execution: exec.Clone()})

	e.logger.Debug("Chain step started",
		"execution_id", exec.ExecutionID,
		"step", exec.CurrentStep,
		"recipe_id", step.RecipeID,
		"converter_id", chosen.ID)
}

// completeExecution marks an execution completed and retires it. Callers
// must hold e.mu.
func (e *Engine) completeExecution(exec *types.ChainExecution) {
	exec.Completed = true
	exec.Active = false

	e.metrics.recordChainFinished(exec.ChainID, "completed")
	e.sink.Publish(event.ChainStatusUpdated{Execution: exec.Clone()})
	e.retireExecution(exec)

	e.logger.Info("Chain execution completed",
		"chain_id", exec.ChainID,
		"execution_id", exec.ExecutionID)
}

// failExecution marks an execution failed with a terminal error message.
// The step that could not proceed is marked FAILED. There is no
// auto-retry. Callers must hold e.mu.
func (e *Engine) failExecution(exec *types.ChainExecution, message string) {
	exec.Failed = true
	exec.Active = false
	exec.ErrorMessage = message

	if exec.CurrentStep < len(exec.Steps) {
		step := &exec.Steps[exec.CurrentStep]
		if step.Status == types.StepPending || step.Status == types.StepInProgress {
			step.Status = types.StepFailed
			step.EndTime = e.clock.Now()
		}
	}

	e.metrics.recordChainFinished(exec.ChainID, "failed")
	e.sink.Publish(event.ChainStatusUpdated{Execution: exec.Clone()})
	e.retireExecution(exec)

	e.logger.Warn("Chain execution failed",
		"chain_id", exec.ChainID,
		"execution_id", exec.ExecutionID,
		"error", message)
}

// retireExecution moves a terminal execution into the bounded history.
// Callers must hold e.mu.
func (e *Engine) retireExecution(exec *types.ChainExecution) {
	e.chainHistory.Write(exec.Clone())
	delete(e.executions, exec.ExecutionID)
}

// PauseChain suspends step advancement of an execution and pauses its
// in-flight process, if any.
func (e *Engine) PauseChain(executionID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	exec, ok := e.executions[executionID]
	if !ok {
		return errors.WrapInvalid(errors.ErrExecutionNotFound,
			"Engine", "PauseChain", "execution lookup")
	}
	if exec.Paused {
		return nil
	}
	exec.Paused = true

	if pid := e.currentStepProcessID(exec); pid != "" {
		if p, ok := e.processes[pid]; ok && !p.Paused {
			p.Paused = true
			p.PausedAt = e.clock.Now()
		}
	}

	e.sink.Publish(event.ChainStatusUpdated{Execution: exec.Clone()})
	return nil
}

// ResumeChain resumes a paused execution and its in-flight process, then
// re-attempts the current step in case it was left PENDING.
func (e *Engine) ResumeChain(ctx context.Context, executionID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	exec, ok := e.executions[executionID]
	if !ok {
		return errors.WrapInvalid(errors.ErrExecutionNotFound,
			"Engine", "ResumeChain", "execution lookup")
	}
	if !exec.Paused {
		return nil
	}
	exec.Paused = false

	if pid := e.currentStepProcessID(exec); pid != "" {
		if p, ok := e.processes[pid]; ok && p.Paused {
			pausedFor := e.clock.Now().Sub(p.PausedAt)
			p.StartTime = p.StartTime.Add(pausedFor)
			p.EndTime = p.EndTime.Add(pausedFor)
			p.Paused = false
			p.PausedAt = time.Time{}
		}
	}

	e.sink.Publish(event.ChainStatusUpdated{Execution: exec.Clone()})
	e.advanceChain(ctx, exec)
	return nil
}

// CancelChain aborts a live execution: the execution is marked failed and
// its in-flight process is discarded. Terminal executions cannot be
// cancelled.
func (e *Engine) CancelChain(ctx context.Context, executionID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	exec, ok := e.executions[executionID]
	if !ok {
		return errors.WrapInvalid(errors.ErrExecutionNotFound,
			"Engine", "CancelChain", "execution lookup")
	}
	if exec.Terminal() {
		return errors.WrapInvalid(errors.ErrExecutionTerminal,
			"Engine", "CancelChain", "execution state check")
	}

	if pid := e.currentStepProcessID(exec); pid != "" {
		if p, ok := e.processes[pid]; ok {
			e.discardProcess(ctx, p)
		}
	}

	e.failExecution(exec, "cancelled by caller")
	return nil
}

// currentStepProcessID returns the process ID of the execution's current
// IN_PROGRESS step, or "".
func (e *Engine) currentStepProcessID(exec *types.ChainExecution) string {
	if exec.CurrentStep >= len(exec.Steps) {
		return ""
	}
	step := exec.Steps[exec.CurrentStep]
	if step.Status != types.StepInProgress {
		return ""
	}
	return step.ProcessID
}

// discardProcess removes a process without completing it: already consumed
// inputs are not refunded. Node bookkeeping is cleared best-effort.
// Callers must hold e.mu.
func (e *Engine) discardProcess(ctx context.Context, p *types.ConversionProcess) {
	p.Active = false
	p.EndTime = e.clock.Now()
	e.removeFromQueue(p.ID)
	delete(e.processes, p.ID)
	delete(e.processExec, p.ID)
	e.processHistory.Write(*p)

	e.clearNodeBookkeeping(ctx, p.SourceID, p.ID)
}
