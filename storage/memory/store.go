// Package memory implements an in-memory wallet store.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/chainledger/wallet-indexer/storage"
)

// Store is a LedgerStore backed by a map. It hands out and keeps copies, so
// callers cannot mutate stored history behind its back.
type Store struct {
	mu      sync.RWMutex
	wallets map[string]*storage.Wallet
}

var _ storage.LedgerStore = (*Store)(nil)

func NewStore() *Store {
	return &Store{wallets: map[string]*storage.Wallet{}}
}

// GetWallet implements storage.LedgerStore.
func (s *Store) GetWallet(ctx context.Context, id string) (*storage.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.wallets[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return w.Clone(), nil
}

// SaveWallet implements storage.LedgerStore.
func (s *Store) SaveWallet(ctx context.Context, wallet *storage.Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wallets[wallet.ID] = wallet.Clone()
	return nil
}

// Wallets returns copies of all wallets, ordered by ID.
func (s *Store) Wallets() []*storage.Wallet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*storage.Wallet, 0, len(s.wallets))
	for _, w := range s.wallets {
		out = append(out, w.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
