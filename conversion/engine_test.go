package conversion

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deadcoast/sprawl-engine/errors"
	"github.com/deadcoast/sprawl-engine/event"
	"github.com/deadcoast/sprawl-engine/flownet"
	"github.com/deadcoast/sprawl-engine/metric"
	"github.com/deadcoast/sprawl-engine/registry"
	"github.com/deadcoast/sprawl-engine/types"
)

// fakeClock is a manually advanced clock for driving ticks deterministically.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recorderSink captures published events for assertions.
type recorderSink struct {
	mu     sync.Mutex
	events []event.Event
}

func (r *recorderSink) Publish(ev event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorderSink) ofKind(kind event.Kind) []event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []event.Event
	for _, ev := range r.events {
		if ev.Kind() == kind {
			out = append(out, ev)
		}
	}
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// smeltRecipe is the baseline fixture: 10 ore in, 5 ingots out, 10 seconds.
func smeltRecipe() types.Recipe {
	return types.Recipe{
		ID:             "smelt-ore",
		Inputs:         []types.ResourceAmount{{Type: "ore", Amount: 10}},
		Outputs:        []types.ResourceAmount{{Type: "ingot", Amount: 5}},
		ProcessingTime: 10 * time.Second,
		BaseEfficiency: 1.0,
	}
}

func smelterNode() types.ConverterNode {
	return types.ConverterNode{
		ID:                 "smelter-1",
		SupportedRecipeIDs: []string{"smelt-ore"},
		Efficiency:         1.0,
		Configuration:      types.ConverterConfiguration{MaxConcurrentProcesses: 1},
		Resources:          map[types.ResourceType]float64{"ore": 10},
	}
}

type fixture struct {
	engine   *Engine
	registry *registry.Registry
	flow     *flownet.Manager
	sink     *recorderSink
	clock    *fakeClock
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	f := &fixture{
		registry: registry.New(),
		flow:     flownet.NewManager(testLogger()),
		sink:     &recorderSink{},
		clock:    newFakeClock(),
	}
	opts = append([]Option{WithClock(f.clock)}, opts...)
	f.engine = NewEngine(f.registry, f.flow, f.sink, testLogger(), nil, opts...)
	require.NoError(t, f.engine.Initialize())
	return f
}

func (f *fixture) node(t *testing.T, id string) types.ConverterNode {
	t.Helper()
	node, err := f.flow.Node(context.Background(), id)
	require.NoError(t, err)
	return node
}

func TestStartProcessConsumesInputsAndQueues(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.registry.RegisterRecipe(smeltRecipe()))
	require.NoError(t, f.flow.RegisterNode(smelterNode()))

	p, err := f.engine.StartProcess(context.Background(), "smelter-1", "smelt-ore")
	require.NoError(t, err)

	assert.True(t, p.Active)
	assert.Equal(t, 0.0, p.Progress)
	assert.Equal(t, "smelt-ore", p.RecipeID)
	assert.Equal(t, "smelter-1", p.SourceID)
	assert.Equal(t, 1.0, p.AppliedEfficiency)

	node := f.node(t, "smelter-1")
	assert.Equal(t, 0.0, node.Resources["ore"], "inputs consumed up front")
	assert.Contains(t, node.ActiveProcessIDs, p.ID)

	active := f.engine.ActiveProcesses()
	require.Len(t, active, 1)
	assert.Equal(t, p.ID, active[0].ID)

	started := f.sink.ofKind(event.KindResourceUpdated)
	require.Len(t, started, 1)
	assert.Equal(t, event.ReasonProcessStarted, started[0].(event.ResourceUpdated).Reason)
}

func TestStartProcessValidation(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.registry.RegisterRecipe(smeltRecipe()))
	require.NoError(t, f.flow.RegisterNode(smelterNode()))

	ctx := context.Background()

	_, err := f.engine.StartProcess(ctx, "smelter-1", "no-such-recipe")
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	_, err = f.engine.StartProcess(ctx, "no-such-node", "smelt-ore")
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	// A second node that exists but does not list the recipe.
	require.NoError(t, f.flow.RegisterNode(types.ConverterNode{
		ID:            "refinery-1",
		Efficiency:    1.0,
		Configuration: types.ConverterConfiguration{MaxConcurrentProcesses: 1},
	}))
	_, err = f.engine.StartProcess(ctx, "refinery-1", "smelt-ore")
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestStartProcessInsufficientResources(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.registry.RegisterRecipe(smeltRecipe()))
	node := smelterNode()
	node.Resources = map[types.ResourceType]float64{"ore": 3}
	require.NoError(t, f.flow.RegisterNode(node))

	_, err := f.engine.StartProcess(context.Background(), "smelter-1", "smelt-ore")
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
	assert.Empty(t, f.engine.ActiveProcesses())

	got := f.node(t, "smelter-1")
	assert.Equal(t, 3.0, got.Resources["ore"], "nothing consumed on refusal")
}

func TestStartProcessCapacityLimit(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.registry.RegisterRecipe(smeltRecipe()))
	node := smelterNode()
	node.Resources = map[types.ResourceType]float64{"ore": 20}
	require.NoError(t, f.flow.RegisterNode(node))

	ctx := context.Background()
	_, err := f.engine.StartProcess(ctx, "smelter-1", "smelt-ore")
	require.NoError(t, err)

	_, err = f.engine.StartProcess(ctx, "smelter-1", "smelt-ore")
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err), "capacity refusal is retryable")
	assert.Len(t, f.engine.ActiveProcesses(), 1)
}

func TestTickProgressIsMonotonic(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.registry.RegisterRecipe(smeltRecipe()))
	require.NoError(t, f.flow.RegisterNode(smelterNode()))

	ctx := context.Background()
	p, err := f.engine.StartProcess(ctx, "smelter-1", "smelt-ore")
	require.NoError(t, err)

	f.clock.Advance(4 * time.Second)
	f.engine.tick(ctx)
	got, ok := f.engine.Process(p.ID)
	require.True(t, ok)
	assert.InDelta(t, 0.4, got.Progress, 1e-9)

	f.clock.Advance(4 * time.Second)
	f.engine.tick(ctx)
	got, ok = f.engine.Process(p.ID)
	require.True(t, ok)
	assert.InDelta(t, 0.8, got.Progress, 1e-9)
	assert.True(t, got.Active)

	f.clock.Advance(4 * time.Second)
	f.engine.tick(ctx)
	got, ok = f.engine.Process(p.ID)
	require.True(t, ok, "completed process stays visible through history")
	assert.False(t, got.Active)
	assert.Equal(t, 1.0, got.Progress)
}

func TestZeroDurationRecipeCompletesOnNextTickOnly(t *testing.T) {
	f := newFixture(t)
	recipe := smeltRecipe()
	recipe.ProcessingTime = 0
	require.True(t, f.registry.RegisterRecipe(recipe))
	require.NoError(t, f.flow.RegisterNode(smelterNode()))

	ctx := context.Background()
	p, err := f.engine.StartProcess(ctx, "smelter-1", "smelt-ore")
	require.NoError(t, err)
	assert.True(t, p.Active, "start never completes synchronously")
	assert.Len(t, f.engine.ActiveProcesses(), 1)

	f.engine.tick(ctx)
	assert.Empty(t, f.engine.ActiveProcesses())

	got, ok := f.engine.Process(p.ID)
	require.True(t, ok)
	assert.False(t, got.Active)

	node := f.node(t, "smelter-1")
	assert.Equal(t, 5.0, node.Resources["ingot"])
}

func TestCompletionOutputsFloorAndClamp(t *testing.T) {
	// Raw efficiency 3.0 clamps to 2.0, so 5 ingots become floor(5*2.0)=10.
	f := newFixture(t)
	require.True(t, f.registry.RegisterRecipe(smeltRecipe()))
	node := smelterNode()
	node.Efficiency = 3.0
	node.Configuration.MaxConcurrentProcesses = 4
	require.NoError(t, f.flow.RegisterNode(node))

	ctx := context.Background()
	p, err := f.engine.StartProcess(ctx, "smelter-1", "smelt-ore")
	require.NoError(t, err)
	assert.Equal(t, 2.0, p.AppliedEfficiency)

	f.clock.Advance(10 * time.Second)
	f.engine.tick(ctx)

	got := f.node(t, "smelter-1")
	assert.Equal(t, 10.0, got.Resources["ingot"])
	assert.NotContains(t, got.ActiveProcessIDs, p.ID, "bookkeeping cleared")

	updates := f.sink.ofKind(event.KindResourceUpdated)
	require.Len(t, updates, 2)
	completed := updates[1].(event.ResourceUpdated)
	assert.Equal(t, event.ReasonConversionCompleted, completed.Reason)
	require.Len(t, completed.Outputs, 1)
	assert.Equal(t, 10.0, completed.Outputs[0].Amount)
}

func TestCompletionIgnoresRecipeOverwriteForTiming(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.registry.RegisterRecipe(smeltRecipe()))
	require.NoError(t, f.flow.RegisterNode(smelterNode()))

	ctx := context.Background()
	p, err := f.engine.StartProcess(ctx, "smelter-1", "smelt-ore")
	require.NoError(t, err)

	// Overwriting the recipe with a slower variant must not stretch the
	// processing window captured at start.
	slower := smeltRecipe()
	slower.ProcessingTime = time.Hour
	require.True(t, f.registry.RegisterRecipe(slower))

	f.clock.Advance(10 * time.Second)
	f.engine.tick(ctx)

	got, ok := f.engine.Process(p.ID)
	require.True(t, ok)
	assert.False(t, got.Active)
}

func TestPauseResumeShiftsWindow(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.registry.RegisterRecipe(smeltRecipe()))
	require.NoError(t, f.flow.RegisterNode(smelterNode()))

	ctx := context.Background()
	p, err := f.engine.StartProcess(ctx, "smelter-1", "smelt-ore")
	require.NoError(t, err)

	f.clock.Advance(4 * time.Second)
	f.engine.tick(ctx)
	require.NoError(t, f.engine.PauseProcess(p.ID))

	// Time passing while paused does not advance progress.
	f.clock.Advance(time.Hour)
	f.engine.tick(ctx)
	got, ok := f.engine.Process(p.ID)
	require.True(t, ok)
	assert.InDelta(t, 0.4, got.Progress, 1e-9)
	assert.True(t, got.Active)

	require.NoError(t, f.engine.ResumeProcess(p.ID))
	f.clock.Advance(5 * time.Second)
	f.engine.tick(ctx)
	got, _ = f.engine.Process(p.ID)
	assert.InDelta(t, 0.9, got.Progress, 1e-9)
	assert.True(t, got.Active)

	f.clock.Advance(time.Second)
	f.engine.tick(ctx)
	got, _ = f.engine.Process(p.ID)
	assert.False(t, got.Active)

	assert.Error(t, f.engine.PauseProcess("no-such-process"))
	assert.Error(t, f.engine.ResumeProcess("no-such-process"))
}

func TestCompletedProcessHistoryIsBounded(t *testing.T) {
	f := newFixture(t, WithProcessHistory(2))
	recipe := smeltRecipe()
	recipe.ProcessingTime = time.Second
	require.True(t, f.registry.RegisterRecipe(recipe))
	node := smelterNode()
	node.Resources = map[types.ResourceType]float64{"ore": 100}
	require.NoError(t, f.flow.RegisterNode(node))

	ctx := context.Background()
	var ids []string
	for i := 0; i < 3; i++ {
		p, err := f.engine.StartProcess(ctx, "smelter-1", "smelt-ore")
		require.NoError(t, err)
		ids = append(ids, p.ID)
		f.clock.Advance(time.Second)
		f.engine.tick(ctx)
	}

	history := f.engine.CompletedProcesses()
	require.Len(t, history, 2)
	assert.Equal(t, ids[1], history[0].ID, "oldest entry evicted")
	assert.Equal(t, ids[2], history[1].ID)

	_, ok := f.engine.Process(ids[0])
	assert.False(t, ok)
}

func TestStartChainHappyPath(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.registry.RegisterRecipe(smeltRecipe()))
	require.True(t, f.registry.RegisterChain(types.Chain{ID: "ore-line", Steps: []string{"smelt-ore"}}))
	require.NoError(t, f.flow.RegisterNode(smelterNode()))

	ctx := context.Background()
	execID, err := f.engine.StartChain(ctx, "ore-line")
	require.NoError(t, err)
	require.NotEmpty(t, execID)

	exec, ok := f.engine.ChainExecution(execID)
	require.True(t, ok)
	assert.True(t, exec.Active)
	assert.Equal(t, 0, exec.CurrentStep)
	require.Len(t, exec.Steps, 1)
	assert.Equal(t, types.StepInProgress, exec.Steps[0].Status)
	assert.Equal(t, "smelter-1", exec.Steps[0].ConverterID)
	require.NotEmpty(t, exec.Steps[0].ProcessID)

	node := f.node(t, "smelter-1")
	assert.Contains(t, node.ActiveProcessIDs, exec.Steps[0].ProcessID)

	f.clock.Advance(10 * time.Second)
	f.engine.tick(ctx)

	exec, ok = f.engine.ChainExecution(execID)
	require.True(t, ok)
	assert.True(t, exec.Completed)
	assert.False(t, exec.Active)
	assert.Equal(t, types.StepCompleted, exec.Steps[0].Status)

	assert.Empty(t, f.engine.ActiveChainExecutions())
	require.Len(t, f.engine.FinishedChainExecutions(), 1)

	assert.Len(t, f.sink.ofKind(event.KindChainStepStarted), 1)
	assert.Len(t, f.sink.ofKind(event.KindChainStepCompleted), 1)
	assert.Len(t, f.sink.ofKind(event.KindChainCompleted), 1)
}

func TestStartChainFailsWithoutSupportingConverter(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.registry.RegisterRecipe(smeltRecipe()))
	require.True(t, f.registry.RegisterChain(types.Chain{ID: "ore-line", Steps: []string{"smelt-ore"}}))

	execID, err := f.engine.StartChain(context.Background(), "ore-line")
	require.NoError(t, err, "start succeeds even when the chain then fails")

	exec, ok := f.engine.ChainExecution(execID)
	require.True(t, ok)
	assert.True(t, exec.Failed)
	assert.False(t, exec.Active)
	assert.Contains(t, exec.ErrorMessage, "No converters available for recipe smelt-ore")
	require.Len(t, exec.Steps, 1)
	assert.Equal(t, types.StepFailed, exec.Steps[0].Status)
	assert.False(t, exec.Steps[0].EndTime.IsZero())
	require.Len(t, f.engine.FinishedChainExecutions(), 1)
}

func TestStartChainValidation(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.registry.RegisterChain(types.Chain{ID: "empty-line"}))

	_, err := f.engine.StartChain(context.Background(), "no-such-chain")
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	_, err = f.engine.StartChain(context.Background(), "empty-line")
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestChainStepAtCapacityIsDeferredNotFailed(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.registry.RegisterRecipe(smeltRecipe()))
	require.True(t, f.registry.RegisterChain(types.Chain{ID: "ore-line", Steps: []string{"smelt-ore"}}))

	// The only supporting converter has no capacity at all.
	node := smelterNode()
	node.Configuration.MaxConcurrentProcesses = 0
	require.NoError(t, f.flow.RegisterNode(node))

	execID, err := f.engine.StartChain(context.Background(), "ore-line")
	require.NoError(t, err)

	exec, ok := f.engine.ChainExecution(execID)
	require.True(t, ok)
	assert.True(t, exec.Active, "busy converters defer the step, they do not fail the chain")
	assert.Equal(t, types.StepPending, exec.Steps[0].Status)
}

// refineRecipe consumes the smelting output: 5 ingots in, 2 plates out.
func refineRecipe() types.Recipe {
	return types.Recipe{
		ID:             "refine-ingot",
		Inputs:         []types.ResourceAmount{{Type: "ingot", Amount: 5}},
		Outputs:        []types.ResourceAmount{{Type: "plate", Amount: 2}},
		ProcessingTime: 10 * time.Second,
		BaseEfficiency: 1.0,
	}
}

func refineryNode() types.ConverterNode {
	return types.ConverterNode{
		ID:                 "refinery-1",
		SupportedRecipeIDs: []string{"refine-ingot"},
		Efficiency:         1.0,
		Configuration:      types.ConverterConfiguration{MaxConcurrentProcesses: 1},
		Resources:          map[types.ResourceType]float64{},
	}
}

func registerTwoStepLine(t *testing.T, f *fixture) {
	t.Helper()
	require.True(t, f.registry.RegisterRecipe(smeltRecipe()))
	require.True(t, f.registry.RegisterRecipe(refineRecipe()))
	require.True(t, f.registry.RegisterChain(types.Chain{
		ID:    "plate-line",
		Steps: []string{"smelt-ore", "refine-ingot"},
	}))
}

func TestMultiStepChainCascadesWithinTick(t *testing.T) {
	f := newFixture(t)
	registerTwoStepLine(t, f)
	require.NoError(t, f.flow.RegisterNode(smelterNode()))
	require.NoError(t, f.flow.RegisterNode(refineryNode()))

	ctx := context.Background()
	execID, err := f.engine.StartChain(ctx, "plate-line")
	require.NoError(t, err)

	// Step 1 completes; its outputs hand off to the refinery and step 2
	// starts inside the same sweep.
	f.clock.Advance(10 * time.Second)
	f.engine.tick(ctx)

	exec, ok := f.engine.ChainExecution(execID)
	require.True(t, ok)
	assert.True(t, exec.Active)
	assert.Equal(t, 1, exec.CurrentStep)
	assert.Equal(t, types.StepCompleted, exec.Steps[0].Status)
	assert.Equal(t, types.StepInProgress, exec.Steps[1].Status)
	assert.Equal(t, "refinery-1", exec.Steps[1].ConverterID)

	smelter := f.node(t, "smelter-1")
	assert.Equal(t, 0.0, smelter.Resources["ingot"], "outputs moved to the next converter")
	refinery := f.node(t, "refinery-1")
	assert.Equal(t, 0.0, refinery.Resources["ingot"], "hand-off consumed by the next step")

	f.clock.Advance(10 * time.Second)
	f.engine.tick(ctx)

	exec, ok = f.engine.ChainExecution(execID)
	require.True(t, ok)
	assert.True(t, exec.Completed)
	refinery = f.node(t, "refinery-1")
	assert.Equal(t, 2.0, refinery.Resources["plate"])

	assert.Len(t, f.sink.ofKind(event.KindChainStepStarted), 2)
	assert.Len(t, f.sink.ofKind(event.KindChainStepCompleted), 2)
	assert.Len(t, f.sink.ofKind(event.KindChainCompleted), 1)
}

func TestOutputsHeldAtSourceWhenNextConverterBusy(t *testing.T) {
	f := newFixture(t)
	registerTwoStepLine(t, f)
	require.NoError(t, f.flow.RegisterNode(smelterNode()))

	// The only refinery has no capacity: the hand-off resolves no target,
	// the ingots stay at the smelter and step 2 stays pending.
	refinery := refineryNode()
	refinery.Configuration.MaxConcurrentProcesses = 0
	require.NoError(t, f.flow.RegisterNode(refinery))

	ctx := context.Background()
	execID, err := f.engine.StartChain(ctx, "plate-line")
	require.NoError(t, err)

	f.clock.Advance(10 * time.Second)
	f.engine.tick(ctx)

	smelter := f.node(t, "smelter-1")
	assert.Equal(t, 5.0, smelter.Resources["ingot"], "outputs wait at the source")
	got := f.node(t, "refinery-1")
	assert.Equal(t, 0.0, got.Resources["ingot"])

	exec, ok := f.engine.ChainExecution(execID)
	require.True(t, ok)
	assert.True(t, exec.Active)
	assert.Equal(t, types.StepPending, exec.Steps[1].Status)
}

func TestHandOffSkipsConverterAtCapacity(t *testing.T) {
	// Two refineries support the second recipe. The one sorting first has
	// no capacity; outputs must land on the converter the step will
	// actually start on, never the busy one.
	for i := 0; i < 5; i++ {
		f := newFixture(t)
		registerTwoStepLine(t, f)
		require.NoError(t, f.flow.RegisterNode(smelterNode()))

		busy := refineryNode()
		busy.ID = "refinery-0"
		busy.Configuration.MaxConcurrentProcesses = 0
		require.NoError(t, f.flow.RegisterNode(busy))
		require.NoError(t, f.flow.RegisterNode(refineryNode()))

		ctx := context.Background()
		execID, err := f.engine.StartChain(ctx, "plate-line")
		require.NoError(t, err)

		f.clock.Advance(10 * time.Second)
		f.engine.tick(ctx)

		exec, ok := f.engine.ChainExecution(execID)
		require.True(t, ok)
		assert.True(t, exec.Active, "chain must not fail while a free converter exists")
		require.Equal(t, types.StepInProgress, exec.Steps[1].Status)
		assert.Equal(t, "refinery-1", exec.Steps[1].ConverterID)

		smelter := f.node(t, "smelter-1")
		assert.Equal(t, 0.0, smelter.Resources["ingot"])
		assert.Equal(t, 0.0, f.node(t, "refinery-0").Resources["ingot"])

		f.clock.Advance(10 * time.Second)
		f.engine.tick(ctx)

		exec, ok = f.engine.ChainExecution(execID)
		require.True(t, ok)
		assert.True(t, exec.Completed)
		assert.Equal(t, 2.0, f.node(t, "refinery-1").Resources["plate"])
	}
}

// failingTransferDirectory wraps the flow manager and refuses every
// transfer, forcing the keep-at-source fallback.
type failingTransferDirectory struct {
	*flownet.Manager
}

func (failingTransferDirectory) TransferResources(context.Context, string, string, []types.ResourceAmount) (bool, error) {
	return false, nil
}

func TestOutputHandOffFallsBackToSource(t *testing.T) {
	flow := flownet.NewManager(testLogger())
	reg := registry.New()
	sink := &recorderSink{}
	clock := newFakeClock()
	engine := NewEngine(reg, failingTransferDirectory{flow}, sink, testLogger(), nil, WithClock(clock))
	require.NoError(t, engine.Initialize())

	f := &fixture{engine: engine, registry: reg, flow: flow, sink: sink, clock: clock}
	registerTwoStepLine(t, f)
	require.NoError(t, flow.RegisterNode(smelterNode()))

	// Stock the refinery so step 2 can still start from its own pool.
	refinery := refineryNode()
	refinery.Resources = map[types.ResourceType]float64{"ingot": 5}
	require.NoError(t, flow.RegisterNode(refinery))

	ctx := context.Background()
	_, err := engine.StartChain(ctx, "plate-line")
	require.NoError(t, err)

	clock.Advance(10 * time.Second)
	engine.tick(ctx)

	smelter := f.node(t, "smelter-1")
	assert.Equal(t, 5.0, smelter.Resources["ingot"], "refused transfer keeps outputs at the source")
}

func TestPauseResumeChain(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.registry.RegisterRecipe(smeltRecipe()))
	require.True(t, f.registry.RegisterChain(types.Chain{ID: "ore-line", Steps: []string{"smelt-ore"}}))
	require.NoError(t, f.flow.RegisterNode(smelterNode()))

	ctx := context.Background()
	execID, err := f.engine.StartChain(ctx, "ore-line")
	require.NoError(t, err)

	require.NoError(t, f.engine.PauseChain(execID))
	f.clock.Advance(time.Hour)
	f.engine.tick(ctx)

	exec, ok := f.engine.ChainExecution(execID)
	require.True(t, ok)
	assert.True(t, exec.Paused)
	assert.Equal(t, types.StepInProgress, exec.Steps[0].Status)
	assert.True(t, exec.Active, "paused chains make no progress")

	require.NoError(t, f.engine.ResumeChain(ctx, execID))
	f.clock.Advance(10 * time.Second)
	f.engine.tick(ctx)

	exec, ok = f.engine.ChainExecution(execID)
	require.True(t, ok)
	assert.True(t, exec.Completed)

	assert.Error(t, f.engine.PauseChain("no-such-execution"))
	assert.Error(t, f.engine.ResumeChain(ctx, "no-such-execution"))
}

func TestCancelChainDiscardsInFlightProcess(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.registry.RegisterRecipe(smeltRecipe()))
	require.True(t, f.registry.RegisterChain(types.Chain{ID: "ore-line", Steps: []string{"smelt-ore"}}))
	require.NoError(t, f.flow.RegisterNode(smelterNode()))

	ctx := context.Background()
	execID, err := f.engine.StartChain(ctx, "ore-line")
	require.NoError(t, err)

	require.NoError(t, f.engine.CancelChain(ctx, execID))

	exec, ok := f.engine.ChainExecution(execID)
	require.True(t, ok)
	assert.True(t, exec.Failed)
	assert.Contains(t, exec.ErrorMessage, "cancelled")
	assert.Equal(t, types.StepFailed, exec.Steps[0].Status, "the interrupted step is marked terminal")

	assert.Empty(t, f.engine.ActiveProcesses())
	node := f.node(t, "smelter-1")
	assert.Empty(t, node.ActiveProcessIDs)
	assert.Equal(t, 0.0, node.Resources["ore"], "consumed inputs are not refunded")

	// Retired executions are no longer addressable for cancellation.
	err = f.engine.CancelChain(ctx, execID)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestRejectedOperationsCountClassifiedErrors(t *testing.T) {
	metricsRegistry := metric.NewMetricsRegistry()
	engine := NewEngine(registry.New(), flownet.NewManager(testLogger()),
		event.Discard, testLogger(), metricsRegistry, WithClock(newFakeClock()))
	require.NoError(t, engine.Initialize())

	ctx := context.Background()
	_, err := engine.StartProcess(ctx, "smelter-1", "no-such-recipe")
	require.Error(t, err)
	_, err = engine.StartChain(ctx, "no-such-chain")
	require.Error(t, err)

	invalid := metricsRegistry.CoreMetrics().ErrorsTotal.WithLabelValues("conversion", "invalid")
	assert.Equal(t, 2.0, testutil.ToFloat64(invalid))
}

func TestEngineLifecycle(t *testing.T) {
	reg := registry.New()
	require.True(t, reg.RegisterRecipe(types.Recipe{
		ID:             "instant",
		Outputs:        []types.ResourceAmount{{Type: "widget", Amount: 1}},
		BaseEfficiency: 1.0,
	}))

	flow := flownet.NewManager(testLogger())
	require.NoError(t, flow.RegisterNode(types.ConverterNode{
		ID:                 "maker-1",
		SupportedRecipeIDs: []string{"instant"},
		Efficiency:         1.0,
		Configuration:      types.ConverterConfiguration{MaxConcurrentProcesses: 4},
	}))

	engine := NewEngine(reg, flow, nil, testLogger(), nil, WithTickInterval(5*time.Millisecond))

	// Lifecycle order is enforced.
	require.Error(t, engine.Start(context.Background()))
	require.NoError(t, engine.Initialize())
	require.Error(t, engine.Stop(time.Second))

	ctx := context.Background()
	require.NoError(t, engine.Start(ctx))
	require.Error(t, engine.Start(ctx), "double start refused")

	p, err := engine.StartProcess(ctx, "maker-1", "instant")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		got, ok := engine.Process(p.ID)
		return ok && !got.Active
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, engine.Stop(time.Second))
	assert.Empty(t, engine.ActiveProcesses())
	assert.Empty(t, engine.CompletedProcesses(), "stop disposes all state")
	require.Error(t, engine.Stop(time.Second))
}
