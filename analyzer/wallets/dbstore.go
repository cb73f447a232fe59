package wallets

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/chainledger/wallet-indexer/analyzer/queries"
	"github.com/chainledger/wallet-indexer/storage"
)

// dbStore reads and writes wallets in the chain.wallets and
// chain.wallet_transactions tables.
type dbStore struct {
	target storage.TargetStorage
	// height is recorded on inserted transactions.
	height uint64
}

var _ storage.LedgerStore = (*dbStore)(nil)

var errDirectSave = errors.New("database wallets are saved with their block's batch")

// GetWallet implements storage.LedgerStore.
func (s *dbStore) GetWallet(ctx context.Context, id string) (*storage.Wallet, error) {
	w := storage.NewWallet(id)
	err := s.target.QueryRow(ctx, queries.WalletByID, id).Scan(&w.EvmAddress, &w.IsEvmLinked)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, storage.ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("query wallet: %w", err)
	}

	rows, err := s.target.Query(ctx, queries.WalletTransactions, id)
	if err != nil {
		return nil, fmt.Errorf("query wallet transactions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var tx storage.WalletTransaction
		if err := rows.Scan(&tx.Amount, &tx.Timestamp, &tx.TxHash); err != nil {
			return nil, fmt.Errorf("scan wallet transaction: %w", err)
		}
		w.Transactions = append(w.Transactions, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return w, nil
}

// queueSave queues the upsert of `w` and the inserts of its history entries
// from index `from` on.
func (s *dbStore) queueSave(batch *storage.QueryBatch, w *storage.Wallet, from int) {
	batch.Queue(queries.WalletUpsert, w.ID, w.EvmAddress, w.IsEvmLinked)
	for i := from; i < len(w.Transactions); i++ {
		tx := w.Transactions[i]
		batch.Queue(queries.WalletTransactionInsert,
			w.ID,
			uint64(i),
			tx.Amount,
			tx.Timestamp,
			tx.TxHash,
			s.height,
		)
	}
}

// SaveWallet implements storage.LedgerStore. Wallets are only written as
// part of a block's batch (see queueSave), so a direct save is refused.
func (s *dbStore) SaveWallet(ctx context.Context, w *storage.Wallet) error {
	return fmt.Errorf("wallet %s: %w", w.ID, errDirectSave)
}
