package ports

import (
	"context"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// BlockEvent is one confirmed L1 block: its commitment plus the full
// transaction list. Events are delivered strictly in height order.
type BlockEvent struct {
	Height uint64
	Hash   chainhash.Hash
	Txs    []*wire.MsgTx
}

// ChainSource streams confirmed blocks to the chain worker.
type ChainSource interface {
	Start() error
	Stop()
	GetNotificationChannel(ctx context.Context) <-chan BlockEvent
}
