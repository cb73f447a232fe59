package queries

var (
	// LatestProcessedBlock returns the highest height committed by the
	// analyzer, or NULL if none.
	LatestProcessedBlock = `
    SELECT max(height) FROM analysis.processed_blocks
    WHERE analyzer = $1 AND processed_time IS NOT NULL`

	// IndexingProgress marks a height as processed. It is queued in the same
	// batch as the height's ledger writes, and fails if the height was
	// already committed so that a replayed batch aborts as a whole.
	IndexingProgress = `
    INSERT INTO analysis.processed_blocks (analyzer, height, processed_time)
      VALUES ($1, $2, CURRENT_TIMESTAMP)`

	WalletByID = `
    SELECT evm_address, is_evm_linked
    FROM chain.wallets
    WHERE id = $1`

	WalletTransactions = `
    SELECT amount, timestamp, tx_hash
    FROM chain.wallet_transactions
    WHERE wallet_id = $1
    ORDER BY idx`

	WalletUpsert = `
    INSERT INTO chain.wallets (id, evm_address, is_evm_linked)
      VALUES ($1, $2, $3)
    ON CONFLICT (id) DO UPDATE SET
      evm_address = excluded.evm_address,
      is_evm_linked = excluded.is_evm_linked`

	WalletTransactionInsert = `
    INSERT INTO chain.wallet_transactions (wallet_id, idx, amount, timestamp, tx_hash, block_height)
      VALUES ($1, $2, $3, $4, $5, $6)`
)
