package wallets

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chainledger/wallet-indexer/common"
	"github.com/chainledger/wallet-indexer/log"
	"github.com/chainledger/wallet-indexer/storage"
)

const testTreasury = "treasury"

var testTime = time.Date(2022, 1, 2, 3, 4, 5, 0, time.UTC)

func raw(t *testing.T, vs ...interface{}) []json.RawMessage {
	t.Helper()
	out := make([]json.RawMessage, 0, len(vs))
	for _, v := range vs {
		b, err := json.Marshal(v)
		require.NoError(t, err)
		out = append(out, b)
	}
	return out
}

func deposit(t *testing.T, who string, amount interface{}) *storage.Event {
	return &storage.Event{Section: "balances", Method: "Deposit", Data: raw(t, who, amount)}
}

func feeEvents(t *testing.T, fee int64) []*storage.Event {
	return []*storage.Event{deposit(t, testTreasury, fee)}
}

// fakeDecoder returns canned calls keyed by unit hash.
type fakeDecoder map[string]*storage.EvmCall

var errUndecodable = errors.New("undecodable")

func (d fakeDecoder) Decode(unit *storage.Extrinsic) (*storage.EvmCall, error) {
	call, ok := d[unit.Hash]
	if !ok {
		return nil, errUndecodable
	}
	return call, nil
}

// prefixMapper maps an EVM address to "native:<addr>".
type prefixMapper struct{}

func (prefixMapper) ToNative(evmAddr string) (string, error) {
	if evmAddr == "" {
		return "", errors.New("empty address")
	}
	return "native:" + evmAddr, nil
}

func newTestProcessor(store storage.LedgerStore, decoder EvmCallDecoder) *Processor {
	return NewProcessor(store, decoder, prefixMapper{}, testTreasury, log.NewDefaultLogger("wallets-test"), nil)
}

// seed gives `id` a single history entry with total `amount`.
func seed(t *testing.T, store storage.LedgerStore, id string, amount int64) {
	w := storage.NewWallet(id)
	w.Transactions = append(w.Transactions, storage.WalletTransaction{
		Amount:    common.NewBigInt(amount),
		Timestamp: testTime.Add(-time.Hour),
		TxHash:    "0xseed",
	})
	require.NoError(t, store.SaveWallet(context.Background(), w))
}

func total(t *testing.T, store storage.LedgerStore, id string) *big.Int {
	w, err := store.GetWallet(context.Background(), id)
	require.NoError(t, err)
	return w.Balance()
}

func requireNoWallet(t *testing.T, store storage.LedgerStore, id string) {
	_, err := store.GetWallet(context.Background(), id)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

// requireRunningTotals checks that each entry equals the previous plus the
// given deltas.
func requireRunningTotals(t *testing.T, w *storage.Wallet, deltas ...int64) {
	require.Len(t, w.Transactions, len(deltas))
	sum := int64(0)
	for i, d := range deltas {
		sum += d
		require.Equal(t, big.NewInt(sum).String(), w.Transactions[i].Amount.String(), "entry %d", i)
	}
}
