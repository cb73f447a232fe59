// Package notify publishes wallet ledger changes after they are committed.
package notify

import (
	"context"
	"time"

	"github.com/chainledger/wallet-indexer/common"
)

// Change is one wallet transaction appended by a committed block.
type Change struct {
	WalletID    string        `json:"wallet_id"`
	Index       uint64        `json:"index"`
	EvmAddress  string        `json:"evm_address"`
	IsEvmLinked bool          `json:"is_evm_linked"`
	Amount      common.BigInt `json:"amount"`
	Timestamp   time.Time     `json:"timestamp"`
	TxHash      string        `json:"txhash"`
	BlockHeight uint64        `json:"block_height"`
}

// Publisher delivers changes to downstream consumers. Delivery is
// best-effort: the ledger is the source of truth, and a failed publish does
// not roll back the block.
type Publisher interface {
	Publish(ctx context.Context, changes []Change) error
	Close() error
}

// NopPublisher discards all changes.
type NopPublisher struct{}

var _ Publisher = NopPublisher{}

func (NopPublisher) Publish(ctx context.Context, changes []Change) error { return nil }

func (NopPublisher) Close() error { return nil }
