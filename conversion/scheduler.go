package conversion

import (
	"context"
	"time"
)

// run is the scheduler loop: a fixed-interval ticker sweeping the
// processing queue. It is the only place that mutates process progress or
// triggers completion, so starting a process never completes it
// synchronously even when its processing time is zero.
func (e *Engine) run(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(e.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

// tick advances every active, unpaused process in queue order and invokes
// the completion routine for any that reached 100% progress. Chain-step
// advancement triggered by a completion runs synchronously inside the
// sweep, so a chain may advance multiple steps within a single tick when
// successive converters have spare capacity.
func (e *Engine) tick(ctx context.Context) {
	sweepStart := time.Now()

	e.mu.Lock()
	now := e.clock.Now()

	// Snapshot the queue: completions mutate it mid-sweep.
	ids := make([]string, len(e.queue))
	copy(ids, e.queue)

	for _, id := range ids {
		p, ok := e.processes[id]
		if !ok || !p.Active || p.Paused {
			continue
		}

		total := p.EndTime.Sub(p.StartTime)
		progress := 1.0
		if total > 0 {
			progress = float64(now.Sub(p.StartTime)) / float64(total)
			if progress > 1 {
				progress = 1
			}
		}
		if progress > p.Progress {
			p.Progress = progress
		}

		if p.Progress >= 1 {
			e.completeProcess(ctx, p, now)
		}
	}

	e.metrics.setActiveCounts(len(e.processes), len(e.executions))
	e.mu.Unlock()

	e.metrics.recordTick(time.Since(sweepStart))
}

// removeFromQueue drops a process ID from the scheduler queue. Callers
// must hold e.mu.
func (e *Engine) removeFromQueue(id string) {
	for i, queued := range e.queue {
		if queued == id {
			e.queue = append(e.queue[:i], e.queue[i+1:]...)
			return
		}
	}
}
