package conversion

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/deadcoast/sprawl-engine/errors"
	"github.com/deadcoast/sprawl-engine/event"
	"github.com/deadcoast/sprawl-engine/metric"
	"github.com/deadcoast/sprawl-engine/pkg/buffer"
	"github.com/deadcoast/sprawl-engine/registry"
	"github.com/deadcoast/sprawl-engine/types"
)

// Defaults for engine construction.
const (
	// DefaultTickInterval is the scheduler's sweep period.
	DefaultTickInterval = time.Second
	// DefaultProcessHistory bounds the completed-process buffer.
	DefaultProcessHistory = 100
	// DefaultChainHistory bounds the finished-execution buffer.
	DefaultChainHistory = 100
)

// engine lifecycle states
type engineState int

const (
	stateCreated engineState = iota
	stateInitialized
	stateStarted
	stateStopped
)

// Engine orchestrates conversion chains across converter nodes. Construct
// it with NewEngine and drive it through Initialize/Start/Stop.
type Engine struct {
	registry  *registry.Registry
	directory Directory
	sink      event.Sink
	logger    *slog.Logger
	metrics   *engineMetrics

	clock          Clock
	tickInterval   time.Duration
	processHistCap int
	chainHistCap   int

	mu          sync.Mutex
	state       engineState
	processes   map[string]*types.ConversionProcess
	queue       []string // process IDs in start order
	executions  map[string]*types.ChainExecution
	processExec map[string]string // process ID -> execution ID

	processHistory *buffer.Ring[types.ConversionProcess]
	chainHistory   *buffer.Ring[types.ChainExecution]

	stopCh chan struct{}
	doneCh chan struct{}
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithTickInterval overrides the scheduler sweep period.
func WithTickInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.tickInterval = d
		}
	}
}

// WithProcessHistory overrides the completed-process buffer capacity.
func WithProcessHistory(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.processHistCap = n
		}
	}
}

// WithChainHistory overrides the finished-execution buffer capacity.
func WithChainHistory(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.chainHistCap = n
		}
	}
}

// NewEngine creates a conversion engine. The registry and directory are
// required; sink and logger fall back to no-op/default implementations,
// and a nil metrics registry disables metrics.
func NewEngine(
	reg *registry.Registry,
	directory Directory,
	sink event.Sink,
	logger *slog.Logger,
	metricsRegistry *metric.MetricsRegistry,
	opts ...Option,
) *Engine {
	if sink == nil {
		sink = event.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "conversion-engine")

	metrics, err := newEngineMetrics(metricsRegistry)
	if err != nil {
		logger.Error("Failed to initialize conversion engine metrics", "error", err)
		metrics = nil // Continue without metrics
	}

	e := &Engine{
		registry:       reg,
		directory:      directory,
		sink:           sink,
		logger:         logger,
		metrics:        metrics,
		clock:          SystemClock{},
		tickInterval:   DefaultTickInterval,
		processHistCap: DefaultProcessHistory,
		chainHistCap:   DefaultChainHistory,
		processes:      make(map[string]*types.ConversionProcess),
		executions:     make(map[string]*types.ChainExecution),
		processExec:    make(map[string]string),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.processHistory = buffer.NewRing[types.ConversionProcess](e.processHistCap)
	e.chainHistory = buffer.NewRing[types.ChainExecution](e.chainHistCap)

	return e
}

// Initialize validates dependencies and prepares the engine for Start.
func (e *Engine) Initialize() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != stateCreated && e.state != stateStopped {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Engine", "Initialize", "state check")
	}
	if e.registry == nil {
		return errors.WrapFatal(errors.ErrMissingConfig, "Engine", "Initialize", "recipe registry wiring")
	}
	if e.directory == nil {
		return errors.WrapFatal(errors.ErrMissingConfig, "Engine", "Initialize", "converter directory wiring")
	}

	e.state = stateInitialized
	return nil
}

// Start launches the scheduler tick loop. The loop stops when ctx is
// cancelled or Stop is called.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.state == stateStarted {
		e.mu.Unlock()
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Engine", "Start", "state check")
	}
	if e.state != stateInitialized {
		e.mu.Unlock()
		return errors.WrapInvalid(errors.ErrNotStarted, "Engine", "Start", "engine must be initialized")
	}
	e.state = stateStarted
	e.stopCh = make(chan struct{})
	e.doneCh = make(chan struct{})
	stopCh, doneCh := e.stopCh, e.doneCh
	e.mu.Unlock()

	go e.run(ctx, stopCh, doneCh)

	e.logger.Info("Conversion engine started", "tick_interval", e.tickInterval)
	return nil
}

// Stop halts the scheduler and disposes the engine: the tick loop is
// stopped and all live state is cleared unconditionally (hard stop, no
// graceful drain). In-flight processes and executions are discarded.
func (e *Engine) Stop(timeout time.Duration) error {
	e.mu.Lock()
	if e.state != stateStarted {
		e.mu.Unlock()
		return errors.WrapInvalid(errors.ErrNotStarted, "Engine", "Stop", "state check")
	}
	stopCh, doneCh := e.stopCh, e.doneCh
	e.mu.Unlock()

	close(stopCh)
	select {
	case <-doneCh:
	case <-time.After(timeout):
		e.logger.Warn("Scheduler loop did not exit before timeout", "timeout", timeout)
	}

	e.mu.Lock()
	e.state = stateStopped
	e.processes = make(map[string]*types.ConversionProcess)
	e.executions = make(map[string]*types.ChainExecution)
	e.processExec = make(map[string]string)
	e.queue = nil
	e.processHistory.Clear()
	e.chainHistory.Clear()
	e.mu.Unlock()

	e.logger.Info("Conversion engine stopped")
	return nil
}

// Process returns a snapshot of a live or recently completed process.
func (e *Engine) Process(id string) (types.ConversionProcess, bool) {
	e.mu.Lock()
	if p, ok := e.processes[id]; ok {
		snapshot := *p
		e.mu.Unlock()
		return snapshot, true
	}
	e.mu.Unlock()

	for _, p := range e.processHistory.Items() {
		if p.ID == id {
			return p, true
		}
	}
	return types.ConversionProcess{}, false
}

// ActiveProcesses returns snapshots of every queued process in start order.
func (e *Engine) ActiveProcesses() []types.ConversionProcess {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]types.ConversionProcess, 0, len(e.queue))
	for _, id := range e.queue {
		if p, ok := e.processes[id]; ok {
			out = append(out, *p)
		}
	}
	return out
}

// CompletedProcesses returns the bounded history of completed processes,
// oldest first.
func (e *Engine) CompletedProcesses() []types.ConversionProcess {
	return e.processHistory.Items()
}

// ChainExecution returns a snapshot of a live or retired execution.
func (e *Engine) ChainExecution(id string) (types.ChainExecution, bool) {
	e.mu.Lock()
	if exec, ok := e.executions[id]; ok {
		snapshot := exec.Clone()
		e.mu.Unlock()
		return snapshot, true
	}
	e.mu.Unlock()

	for _, exec := range e.chainHistory.Items() {
		if exec.ExecutionID == id {
			return exec, true
		}
	}
	return types.ChainExecution{}, false
}

// ActiveChainExecutions returns snapshots of every live execution.
func (e *Engine) ActiveChainExecutions() []types.ChainExecution {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]types.ChainExecution, 0, len(e.executions))
	for _, exec := range e.executions {
		out = append(out, exec.Clone())
	}
	return out
}

// FinishedChainExecutions returns the bounded history of completed and
// failed executions, oldest first.
func (e *Engine) FinishedChainExecutions() []types.ChainExecution {
	return e.chainHistory.Items()
}

// PauseProcess freezes a live process. Progress stops advancing until the
// process is resumed.
func (e *Engine) PauseProcess(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.processes[id]
	if !ok {
		return errors.WrapInvalid(errors.ErrProcessNotFound, "Engine", "PauseProcess", "process lookup")
	}
	if p.Paused {
		return nil
	}
	p.Paused = true
	p.PausedAt = e.clock.Now()

	e.sink.Publish(event.ResourceUpdated{
		Reason:      event.ReasonProcessUpdated,
		RecipeID:    p.RecipeID,
		ConverterID: p.SourceID,
		ProcessID:   p.ID,
		Efficiency:  p.AppliedEfficiency,
	})
	return nil
}

// ResumeProcess unfreezes a paused process, shifting its processing window
// forward by the paused duration so progress stays monotonic.
func (e *Engine) ResumeProcess(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.processes[id]
	if !ok {
		return errors.WrapInvalid(errors.ErrProcessNotFound, "Engine", "ResumeProcess", "process lookup")
	}
	if !p.Paused {
		return nil
	}
	pausedFor := e.clock.Now().Sub(p.PausedAt)
	p.StartTime = p.StartTime.Add(pausedFor)
	p.EndTime = p.EndTime.Add(pausedFor)
	p.Paused = false
	p.PausedAt = time.Time{}

	e.sink.Publish(event.ResourceUpdated{
		Reason:      event.ReasonProcessUpdated,
		RecipeID:    p.RecipeID,
		ConverterID: p.SourceID,
		ProcessID:   p.ID,
		Efficiency:  p.AppliedEfficiency,
	})
	return nil
}
