package storage

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chainledger/wallet-indexer/common"
)

func TestQueryBatch(t *testing.T) {
	var b QueryBatch
	b.Queue("SELECT 1")
	b.Queue("SELECT $1", 2)

	b.Queue("SELECT $1, $2", 3, 4)

	require.Equal(t, 3, b.Len())
	require.Equal(t, "SELECT $1, $2", b.Queries()[2].Cmd)
	require.Equal(t, []interface{}{3, 4}, b.Queries()[2].Args)

	pgxBatch := b.AsPgxBatch()
	require.Equal(t, 3, pgxBatch.Len())
}

func TestWalletBalanceAndClone(t *testing.T) {
	w := NewWallet("alice")
	require.Equal(t, NoEvmAddress, w.EvmAddress)
	require.False(t, w.IsEvmLinked)
	require.Equal(t, int64(0), w.Balance().Int64())

	w.Transactions = append(w.Transactions, WalletTransaction{Amount: common.NewBigInt(-105), TxHash: "0x01"})
	require.Equal(t, int64(-105), w.Balance().Int64())

	c := w.Clone()
	c.Transactions[0].Amount.SetInt64(1)
	c.Transactions = append(c.Transactions, WalletTransaction{Amount: common.NewBigInt(2)})
	require.Len(t, w.Transactions, 1)
	require.Equal(t, "-105", w.Transactions[0].Amount.String())
}
