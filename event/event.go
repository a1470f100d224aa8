// Package event defines the typed notifications the conversion engine
// emits and the sinks that deliver them to collaborators (UI gateway,
// automation managers, NATS subscribers).
//
// Events form a closed tagged union: one variant per notification kind,
// each carrying its own strongly-typed payload. Delivery is fire-and-forget;
// a slow or failing consumer never blocks the engine.
package event

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/deadcoast/sprawl-engine/types"
)

// Kind discriminates event variants on the wire.
type Kind string

const (
	// KindChainStepStarted is emitted when a chain step enters IN_PROGRESS
	KindChainStepStarted Kind = "CHAIN_STEP_STARTED"
	// KindChainStepCompleted is emitted when a chain step's process finishes
	KindChainStepCompleted Kind = "CHAIN_STEP_COMPLETED"
	// KindChainCompleted is emitted when the last step of a chain finishes
	KindChainCompleted Kind = "CHAIN_COMPLETED"
	// KindChainStatusUpdated is emitted whenever an execution record mutates
	KindChainStatusUpdated Kind = "CHAIN_STATUS_UPDATED"
	// KindResourceUpdated is emitted for process starts, updates and completions
	KindResourceUpdated Kind = "RESOURCE_UPDATED"
)

// Event is the closed union of engine notifications.
type Event interface {
	Kind() Kind
	isEvent()
}

// ResourceUpdateReason narrows the RESOURCE_UPDATED payload.
type ResourceUpdateReason string

const (
	// ReasonConversionCompleted marks outputs distributed after completion
	ReasonConversionCompleted ResourceUpdateReason = "RESOURCE_CONVERSION_COMPLETED"
	// ReasonProcessStarted marks inputs consumed by a newly started process
	ReasonProcessStarted ResourceUpdateReason = "PROCESS_STARTED"
	// ReasonProcessUpdated marks a mid-flight process state change
	ReasonProcessUpdated ResourceUpdateReason = "PROCESS_UPDATED"
)

// ChainStepStarted notifies that a chain step entered IN_PROGRESS.
type ChainStepStarted struct {
	ChainID     string `json:"chain_id"`
	ExecutionID string `json:"execution_id"`
	StepIndex   int    `json:"step_index"`
	RecipeID    string `json:"recipe_id"`
	ProcessID   string `json:"process_id"`
	ConverterID string `json:"converter_id"`
}

// Kind implements Event.
func (ChainStepStarted) Kind() Kind { return KindChainStepStarted }
func (ChainStepStarted) isEvent()   {}

// ChainStepCompleted notifies that a chain step's process completed.
type ChainStepCompleted struct {
	ChainID     string                 `json:"chain_id"`
	ExecutionID string                 `json:"execution_id"`
	StepIndex   int                    `json:"step_index"`
	RecipeID    string                 `json:"recipe_id"`
	ProcessID   string                 `json:"process_id"`
	ConverterID string                 `json:"converter_id"`
	Outputs     []types.ResourceAmount `json:"outputs"`
	Efficiency  float64                `json:"efficiency"`
}

// Kind implements Event.
func (ChainStepCompleted) Kind() Kind { return KindChainStepCompleted }
func (ChainStepCompleted) isEvent()   {}

// ChainCompleted notifies that a chain execution finished its last step.
type ChainCompleted struct {
	ChainID      string                 `json:"chain_id"`
	ExecutionID  string                 `json:"execution_id"`
	FinalOutputs []types.ResourceAmount `json:"final_outputs"`
}

// Kind implements Event.
func (ChainCompleted) Kind() Kind { return KindChainCompleted }
func (ChainCompleted) isEvent()   {}

// ChainStatusUpdated carries a snapshot of a mutated execution record.
type ChainStatusUpdated struct {
	Execution types.ChainExecution `json:"execution"`
}

// Kind implements Event.
func (ChainStatusUpdated) Kind() Kind { return KindChainStatusUpdated }
func (ChainStatusUpdated) isEvent()   {}

// ResourceUpdated notifies about resource movement on a converter node.
type ResourceUpdated struct {
	Reason      ResourceUpdateReason   `json:"reason"`
	RecipeID    string                 `json:"recipe_id"`
	ConverterID string                 `json:"converter_id"`
	ProcessID   string                 `json:"process_id"`
	Inputs      []types.ResourceAmount `json:"inputs,omitempty"`
	Outputs     []types.ResourceAmount `json:"outputs,omitempty"`
	Efficiency  float64                `json:"efficiency"`
}

// Kind implements Event.
func (ResourceUpdated) Kind() Kind { return KindResourceUpdated }
func (ResourceUpdated) isEvent()   {}

// Sink consumes engine events. Implementations must not block.
type Sink interface {
	Publish(ev Event)
}

// Multi fans an event out to several sinks in order.
func Multi(sinks ...Sink) Sink {
	return multiSink(sinks)
}

type multiSink []Sink

// Publish implements Sink.
func (m multiSink) Publish(ev Event) {
	for _, s := range m {
		if s != nil {
			s.Publish(ev)
		}
	}
}

// Counted wraps a sink and increments the per-kind counter on every
// publish. A nil counter returns the sink unchanged.
func Counted(sink Sink, published *prometheus.CounterVec) Sink {
	if published == nil {
		return sink
	}
	return countedSink{sink: sink, published: published}
}

type countedSink struct {
	sink      Sink
	published *prometheus.CounterVec
}

// Publish implements Sink.
func (c countedSink) Publish(ev Event) {
	c.published.WithLabelValues(string(ev.Kind())).Inc()
	c.sink.Publish(ev)
}

// Discard is a Sink that drops every event. Useful in tests and as a
// default when no collaborator is wired.
var Discard Sink = discardSink{}

type discardSink struct{}

func (discardSink) Publish(Event) {}
