// Package flownet implements the resource flow topology service: an
// in-memory directory of converter nodes with their resource pools. It
// satisfies the conversion engine's Directory interface and is the single
// source of truth for node state; the engine re-fetches nodes before
// mutating rather than caching them.
package flownet

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/deadcoast/sprawl-engine/errors"
	"github.com/deadcoast/sprawl-engine/types"
)

// Manager is a thread-safe in-memory converter node directory. All
// accessors return deep copies; external callers can never mutate a node
// except through the directory's own primitives.
type Manager struct {
	mu     sync.Mutex
	nodes  map[string]*types.ConverterNode
	logger *slog.Logger
}

// NewManager creates an empty directory. A nil logger falls back to
// slog.Default().
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		nodes:  make(map[string]*types.ConverterNode),
		logger: logger.With("component", "flownet"),
	}
}

// RegisterNode adds or replaces a converter node.
func (m *Manager) RegisterNode(node types.ConverterNode) error {
	if node.ID == "" {
		return errors.WrapInvalid(
			fmt.Errorf("node ID is empty"),
			"Manager", "RegisterNode", "node validation")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	clone := node.Clone()
	if clone.Resources == nil {
		clone.Resources = make(map[types.ResourceType]float64)
	}
	m.nodes[node.ID] = &clone
	return nil
}

// RemoveNode deletes a node from the directory. Removing an unknown node
// is a no-op.
func (m *Manager) RemoveNode(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.nodes, id)
}

// Nodes returns a snapshot of every registered node, ordered by ID.
// Callers that scan for an eligible converter rely on the ordering being
// stable across calls.
func (m *Manager) Nodes(_ context.Context) ([]types.ConverterNode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]types.ConverterNode, 0, len(m.nodes))
	for _, node := range m.nodes {
		out = append(out, node.Clone())
	}
	slices.SortFunc(out, func(a, b types.ConverterNode) int {
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

// Node returns a snapshot of a single node.
func (m *Manager) Node(_ context.Context, id string) (types.ConverterNode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	node, ok := m.nodes[id]
	if !ok {
		return types.ConverterNode{}, errors.WrapInvalid(
			errors.ErrConverterNotFound,
			"Manager", "Node", fmt.Sprintf("lookup of node %s", id))
	}
	return node.Clone(), nil
}

// CheckResourcesAvailable reports whether the node holds at least the
// requested amounts of every input.
func (m *Manager) CheckResourcesAvailable(
	_ context.Context, nodeID string, inputs []types.ResourceAmount) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	node, ok := m.nodes[nodeID]
	if !ok {
		return false, errors.WrapInvalid(
			errors.ErrConverterNotFound,
			"Manager", "CheckResourcesAvailable", fmt.Sprintf("lookup of node %s", nodeID))
	}
	return hasResources(node, inputs), nil
}

// ConsumeResources atomically removes the inputs from the node's pool.
// Either every amount is consumed or none is; a false return leaves the
// pool untouched.
func (m *Manager) ConsumeResources(
	_ context.Context, nodeID string, inputs []types.ResourceAmount) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	node, ok := m.nodes[nodeID]
	if !ok {
		return false, errors.WrapInvalid(
			errors.ErrConverterNotFound,
			"Manager", "ConsumeResources", fmt.Sprintf("lookup of node %s", nodeID))
	}
	if !hasResources(node, inputs) {
		return false, nil
	}
	for _, in := range inputs {
		node.Resources[in.Type] -= in.Amount
	}
	return true, nil
}

// AddResources credits the outputs onto the node's pool.
func (m *Manager) AddResources(
	_ context.Context, nodeID string, outputs []types.ResourceAmount) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	node, ok := m.nodes[nodeID]
	if !ok {
		return errors.WrapInvalid(
			errors.ErrConverterNotFound,
			"Manager", "AddResources", fmt.Sprintf("lookup of node %s", nodeID))
	}
	for _, out := range outputs {
		node.Resources[out.Type] += out.Amount
	}
	return nil
}

// TransferResources atomically moves amounts from one node to another. It
// returns false without mutating either pool when the source lacks any of
// the amounts or the target does not exist.
func (m *Manager) TransferResources(
	_ context.Context, fromID, toID string, amounts []types.ResourceAmount) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	from, ok := m.nodes[fromID]
	if !ok {
		return false, errors.WrapInvalid(
			errors.ErrConverterNotFound,
			"Manager", "TransferResources", fmt.Sprintf("lookup of source node %s", fromID))
	}
	to, ok := m.nodes[toID]
	if !ok {
		// Missing target is a routine topology change, not an error: the
		// caller falls back to returning resources to the source.
		return false, nil
	}
	if !hasResources(from, amounts) {
		return false, nil
	}
	for _, amt := range amounts {
		from.Resources[amt.Type] -= amt.Amount
		to.Resources[amt.Type] += amt.Amount
	}
	return true, nil
}

// UpdateNode applies a partial update to a node. Nil fields of the update
// are ignored.
func (m *Manager) UpdateNode(_ context.Context, nodeID string, update types.NodeUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	node, ok := m.nodes[nodeID]
	if !ok {
		return errors.WrapTransient(
			errors.ErrNodeUpdateFailed,
			"Manager", "UpdateNode", fmt.Sprintf("lookup of node %s", nodeID))
	}
	if update.ActiveProcessIDs != nil {
		ids := make([]string, len(*update.ActiveProcessIDs))
		copy(ids, *update.ActiveProcessIDs)
		node.ActiveProcessIDs = ids
	}
	if update.Efficiency != nil {
		node.Efficiency = *update.Efficiency
	}
	return nil
}

// hasResources checks every amount against the node's pool. Callers must
// hold m.mu.
func hasResources(node *types.ConverterNode, amounts []types.ResourceAmount) bool {
	for _, amt := range amounts {
		if node.Resources[amt.Type] < amt.Amount {
			return false
		}
	}
	return true
}
