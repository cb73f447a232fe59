package wallets

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/chainledger/wallet-indexer/common"
	"github.com/chainledger/wallet-indexer/storage"
)

// Ledger appends running-total entries to wallet histories.
type Ledger struct {
	store storage.LedgerStore

	mapMu sync.Mutex
	locks map[string]*sync.Mutex
}

func NewLedger(store storage.LedgerStore) *Ledger {
	return &Ledger{
		store: store,
		locks: map[string]*sync.Mutex{},
	}
}

func (l *Ledger) accountLock(key string) *sync.Mutex {
	l.mapMu.Lock()
	defer l.mapMu.Unlock()
	mu, ok := l.locks[key]
	if !ok {
		mu = &sync.Mutex{}
		l.locks[key] = mu
	}
	return mu
}

func (l *Ledger) getOrCreate(ctx context.Context, key string) (*storage.Wallet, error) {
	w, err := l.store.GetWallet(ctx, key)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return storage.NewWallet(key), nil
	case err != nil:
		return nil, fmt.Errorf("get wallet %s: %w", key, err)
	}
	return w, nil
}

// Update returns the wallet `key` (created empty if absent) with one entry
// appended whose amount is the previous total plus `delta`. The wallet is
// not saved; callers that need atomicity against other writers use Apply.
func (l *Ledger) Update(ctx context.Context, key string, delta *big.Int, timestamp time.Time, txHash string) (*storage.Wallet, error) {
	return l.update(ctx, key, func(*big.Int) *big.Int { return delta }, timestamp, txHash)
}

func (l *Ledger) update(ctx context.Context, key string, deltaFn func(total *big.Int) *big.Int, timestamp time.Time, txHash string) (*storage.Wallet, error) {
	w, err := l.getOrCreate(ctx, key)
	if err != nil {
		return nil, err
	}
	total := w.Balance()
	total.Add(total, deltaFn(w.Balance()))
	w.Transactions = append(w.Transactions, storage.WalletTransaction{
		Amount:    common.BigIntFromInt(total),
		Timestamp: timestamp,
		TxHash:    txHash,
	})
	return w, nil
}

// Apply is Update followed by `decorate` (if non-nil) and a save, with the
// account locked throughout so that concurrent appends to the same account
// cannot read the same previous total.
func (l *Ledger) Apply(ctx context.Context, key string, delta *big.Int, timestamp time.Time, txHash string, decorate func(*storage.Wallet)) (*storage.Wallet, error) {
	return l.ApplyFunc(ctx, key, func(*big.Int) *big.Int { return delta }, timestamp, txHash, decorate)
}

// ApplyFunc is like Apply, but the delta is computed by `deltaFn` from the
// account's current total while the account is locked.
func (l *Ledger) ApplyFunc(ctx context.Context, key string, deltaFn func(total *big.Int) *big.Int, timestamp time.Time, txHash string, decorate func(*storage.Wallet)) (*storage.Wallet, error) {
	mu := l.accountLock(key)
	mu.Lock()
	defer mu.Unlock()

	w, err := l.update(ctx, key, deltaFn, timestamp, txHash)
	if err != nil {
		return nil, err
	}
	if decorate != nil {
		decorate(w)
	}
	if err := l.store.SaveWallet(ctx, w); err != nil {
		return nil, fmt.Errorf("save wallet %s: %w", key, err)
	}
	return w, nil
}
