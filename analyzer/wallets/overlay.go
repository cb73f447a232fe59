package wallets

import (
	"context"
	"errors"
	"fmt"

	"github.com/chainledger/wallet-indexer/notify"
	"github.com/chainledger/wallet-indexer/storage"
)

// blockOverlay buffers the wallet writes of one block on top of a base
// store. Nothing reaches the base until the block has been processed in
// full, so a failed block leaves no trace and can simply be retried.
type blockOverlay struct {
	base   storage.LedgerStore
	height uint64

	dirty map[string]*storage.Wallet
	// Number of history entries each touched wallet had in the base.
	persisted map[string]int
	// IDs of dirty wallets, in order of first save.
	order []string
}

var _ storage.LedgerStore = (*blockOverlay)(nil)

func newBlockOverlay(base storage.LedgerStore, height uint64) *blockOverlay {
	return &blockOverlay{
		base:      base,
		height:    height,
		dirty:     map[string]*storage.Wallet{},
		persisted: map[string]int{},
	}
}

// GetWallet implements storage.LedgerStore.
func (o *blockOverlay) GetWallet(ctx context.Context, id string) (*storage.Wallet, error) {
	if w, ok := o.dirty[id]; ok {
		return w.Clone(), nil
	}
	w, err := o.base.GetWallet(ctx, id)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		o.persisted[id] = 0
		return nil, err
	case err != nil:
		return nil, err
	}
	o.persisted[id] = len(w.Transactions)
	return w, nil
}

// SaveWallet implements storage.LedgerStore. History may only grow.
func (o *blockOverlay) SaveWallet(ctx context.Context, w *storage.Wallet) error {
	n, ok := o.persisted[w.ID]
	if !ok {
		// Saved without being read first; find out what the base holds.
		if _, err := o.GetWallet(ctx, w.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		n = o.persisted[w.ID]
	}
	if len(w.Transactions) < n {
		return fmt.Errorf("wallet %s: history shrank from %d to %d entries", w.ID, n, len(w.Transactions))
	}
	if prev, ok := o.dirty[w.ID]; ok && len(w.Transactions) < len(prev.Transactions) {
		return fmt.Errorf("wallet %s: history shrank from %d to %d entries", w.ID, len(prev.Transactions), len(w.Transactions))
	}
	if _, ok := o.dirty[w.ID]; !ok {
		o.order = append(o.order, w.ID)
	}
	o.dirty[w.ID] = w.Clone()
	return nil
}

// Wallets returns the dirty wallets in order of first save.
func (o *blockOverlay) Wallets() []*storage.Wallet {
	out := make([]*storage.Wallet, 0, len(o.order))
	for _, id := range o.order {
		out = append(out, o.dirty[id])
	}
	return out
}

// Changes returns the history entries appended during this block.
func (o *blockOverlay) Changes() []notify.Change {
	var changes []notify.Change
	for _, w := range o.Wallets() {
		for i := o.persisted[w.ID]; i < len(w.Transactions); i++ {
			tx := w.Transactions[i]
			changes = append(changes, notify.Change{
				WalletID:    w.ID,
				Index:       uint64(i),
				EvmAddress:  w.EvmAddress,
				IsEvmLinked: w.IsEvmLinked,
				Amount:      tx.Amount,
				Timestamp:   tx.Timestamp,
				TxHash:      tx.TxHash,
				BlockHeight: o.height,
			})
		}
	}
	return changes
}

// Flush saves all dirty wallets into the base store.
func (o *blockOverlay) Flush(ctx context.Context) error {
	for _, w := range o.Wallets() {
		if err := o.base.SaveWallet(ctx, w); err != nil {
			return fmt.Errorf("save wallet %s: %w", w.ID, err)
		}
	}
	return nil
}
