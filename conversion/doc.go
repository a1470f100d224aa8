// Package conversion implements the resource conversion and flow engine:
// multi-step production chains executed across a network of converter
// nodes, each with finite concurrent-process capacity, recipe-specific
// efficiency modifiers, and load-dependent degradation.
//
// # Architecture
//
// The engine is an explicit service instance built by a composition root
// (no singletons, no hidden globals). It owns three id-keyed arenas:
//
//   - live conversion processes (the scheduler's processing queue)
//   - live chain executions
//   - bounded drop-oldest histories for completed processes and executions
//
// External state (converter nodes and their resource pools) is owned by a
// Directory implementation; the engine re-fetches node state before every
// mutation instead of caching it.
//
// # Control flow
//
// StartChain creates a ChainExecution and advances its first PENDING step:
// eligible converters are queried from the Directory, the first one with
// spare capacity is selected, inputs are consumed, and a ConversionProcess
// enters the scheduler queue. A fixed-interval tick loop advances process
// progress; at 100% the completion routine distributes efficiency-adjusted
// outputs (direct transfer to the next step's converter, falling back to
// the source node's own pool), updates converter bookkeeping best-effort,
// emits events, and advances the chain. Advancement runs synchronously
// inside the completion, so a chain may progress several steps within one
// tick when successive converters have spare capacity.
//
// # Failure policy
//
// Failures while advancing a chain mark the execution failed permanently
// with a human-readable message; there is no auto-retry. Failures starting
// a process are returned to the caller. Node-bookkeeping update failures
// are logged and swallowed, prioritizing forward progress over strict
// node-state consistency.
package conversion
