package conversion

import (
	"context"
	"time"

	"github.com/deadcoast/sprawl-engine/types"
)

// Directory is the converter node directory the engine consumes. It is
// owned by the flow topology service (see the flownet package for the
// in-memory implementation); the engine never holds a second copy of node
// truth and re-fetches before mutating.
//
// Calls may suspend (the directory can be backed by remote state), so node
// snapshots read before a call may be stale by the time it returns.
type Directory interface {
	// Nodes returns a snapshot of all converter nodes.
	Nodes(ctx context.Context) ([]types.ConverterNode, error)
	// Node returns a snapshot of one converter node.
	Node(ctx context.Context, id string) (types.ConverterNode, error)
	// CheckResourcesAvailable reports whether the node holds the inputs.
	CheckResourcesAvailable(ctx context.Context, nodeID string, inputs []types.ResourceAmount) (bool, error)
	// ConsumeResources removes the inputs from the node's pool. A false
	// return means the pool changed between check and consume.
	ConsumeResources(ctx context.Context, nodeID string, inputs []types.ResourceAmount) (bool, error)
	// AddResources credits the outputs onto the node's pool.
	AddResources(ctx context.Context, nodeID string, outputs []types.ResourceAmount) error
	// TransferResources moves amounts between nodes. A false return means
	// the hand-off could not happen (missing target, insufficient source).
	TransferResources(ctx context.Context, fromID, toID string, amounts []types.ResourceAmount) (bool, error)
	// UpdateNode applies a partial update to a node.
	UpdateNode(ctx context.Context, nodeID string, update types.NodeUpdate) error
}

// Clock abstracts time so the scheduler can be driven deterministically in
// tests.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now() }
