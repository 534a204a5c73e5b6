package domain

import "context"

// BridgeStateRepository persists the canonical bridge state together with the
// height of the last processed L1 block.
type BridgeStateRepository interface {
	Save(ctx context.Context, height uint64, state *BridgeState) error
	// Restore decodes the persisted state into state, returning the saved
	// height. found is false when nothing was persisted yet.
	Restore(ctx context.Context, state *BridgeState) (height uint64, found bool, err error)
	Close()
}
