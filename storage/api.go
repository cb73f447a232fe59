// Package storage defines storage interfaces.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/chainledger/wallet-indexer/common"
)

// ErrNotFound is returned by lookups whose subject does not exist (yet).
var ErrNotFound = errors.New("not found")

type BatchItem struct {
	Cmd  string
	Args []interface{}
}

// QueryBatch represents a batch of queries to be executed atomically.
// We use a custom type that mirrors `pgx.Batch`, but is thread-safe to use and
// allows introspection for debugging.
type QueryBatch struct {
	items []*BatchItem
}

// QueryResults represents the results from a read query.
type QueryResults = pgx.Rows

// QueryResult represents the result from a read query.
type QueryResult = pgx.Row

// TxOptions encodes the way DB transactions are executed.
type TxOptions = pgx.TxOptions

// Queue adds query to a batch.
func (b *QueryBatch) Queue(cmd string, args ...interface{}) {
	b.items = append(b.items, &BatchItem{
		Cmd:  cmd,
		Args: args,
	})
}

// Len returns the number of queries in the batch.
func (b *QueryBatch) Len() int {
	return len(b.items)
}

// AsPgxBatch converts a QueryBatch to a pgx.Batch.
func (b *QueryBatch) AsPgxBatch() pgx.Batch {
	pgxBatch := pgx.Batch{}
	for _, item := range b.items {
		pgxBatch.Queue(item.Cmd, item.Args...)
	}
	return pgxBatch
}

// Queries returns the queries in the batch. Each item of the returned slice
// is composed of the SQL command and its arguments.
func (b *QueryBatch) Queries() []*BatchItem {
	return b.items
}

// TargetStorage defines an interface for reading and writing
// processed block data.
type TargetStorage interface {
	// SendBatch sends a batch of queries to be applied to target storage.
	SendBatch(ctx context.Context, batch *QueryBatch) error

	// SendBatchWithOptions is like SendBatch, with custom DB options (e.g. level of tx isolation).
	SendBatchWithOptions(ctx context.Context, batch *QueryBatch, opts TxOptions) error

	// Query submits a query to fetch data from target storage.
	Query(ctx context.Context, sql string, args ...interface{}) (QueryResults, error)

	// QueryRow submits a query to fetch a single row of data from target storage.
	QueryRow(ctx context.Context, sql string, args ...interface{}) QueryResult

	// Close shuts down the target storage client.
	Close()

	// Name returns the name of the target storage.
	Name() string

	// Wipe removes all contents of the database.
	Wipe(ctx context.Context) error
}

// BlockSource supplies ordered blocks of chain activity.
type BlockSource interface {
	// Block returns the block at `height`. Returns ErrNotFound if the
	// source does not have the block (yet).
	Block(ctx context.Context, height uint64) (*Block, error)

	// LatestHeight returns the height of the newest block available.
	LatestHeight(ctx context.Context) (uint64, error)

	Close() error
}

// LedgerStore is a key-value repository of wallets, keyed by native address.
type LedgerStore interface {
	// GetWallet returns the wallet with the given native address, or
	// ErrNotFound if no activity has touched it yet.
	GetWallet(ctx context.Context, id string) (*Wallet, error)

	// SaveWallet persists the wallet, replacing any previous version.
	SaveWallet(ctx context.Context, wallet *Wallet) error
}

// Block is one block of chain activity, as delivered by a BlockSource.
type Block struct {
	Height     uint64       `json:"height"`
	Hash       string       `json:"hash"`
	Timestamp  time.Time    `json:"timestamp"`
	Extrinsics []*Extrinsic `json:"extrinsics"`
}

// Extrinsic is one activity unit: a call included in a block, together
// with the events it emitted.
type Extrinsic struct {
	Index   int    `json:"index"`
	Hash    string `json:"hash"`
	Section string `json:"section"`
	Method  string `json:"method"`
	Signer  string `json:"signer"`
	// Args are the call arguments, in the JSON representation produced by
	// the chain's type registry. They are decoded per call kind.
	Args    []json.RawMessage `json:"args"`
	Success bool              `json:"success"`
	Events  []*Event          `json:"events"`
}

// Event is an event emitted by an extrinsic.
type Event struct {
	Section string            `json:"section"`
	Method  string            `json:"method"`
	Data    []json.RawMessage `json:"data"`
}

// EvmCall is the decoded form of an Ethereum transaction executed on chain.
type EvmCall struct {
	From    string
	To      string // empty for contract creation
	Value   *big.Int
	Success bool
	Hash    string
}

// NoEvmAddress is the EvmAddress of wallets that were never touched via the EVM.
const NoEvmAddress = "0x"

// Wallet is the balance history of one native account.
type Wallet struct {
	ID           string              `json:"id"`
	EvmAddress   string              `json:"evm_address"`
	IsEvmLinked  bool                `json:"is_evm_linked"`
	Transactions []WalletTransaction `json:"transactions"`
}

// WalletTransaction is one immutable entry in a wallet's history. Amount
// is the cumulative balance after the entry, not the delta.
type WalletTransaction struct {
	Amount    common.BigInt `json:"amount"`
	Timestamp time.Time     `json:"timestamp"`
	TxHash    string        `json:"txhash"`
}

// NewWallet returns an empty wallet for the native address `id`.
func NewWallet(id string) *Wallet {
	return &Wallet{
		ID:           id,
		EvmAddress:   NoEvmAddress,
		IsEvmLinked:  false,
		Transactions: []WalletTransaction{},
	}
}

// Balance returns the cumulative amount of the latest entry, or zero.
func (w *Wallet) Balance() *big.Int {
	if len(w.Transactions) == 0 {
		return new(big.Int)
	}
	return w.Transactions[len(w.Transactions)-1].Amount.ToBigInt()
}

// Clone returns a deep copy of the wallet.
func (w *Wallet) Clone() *Wallet {
	c := *w
	c.Transactions = make([]WalletTransaction, len(w.Transactions))
	for i, tx := range w.Transactions {
		c.Transactions[i] = WalletTransaction{
			Amount:    common.BigIntFromInt(&tx.Amount.Int),
			Timestamp: tx.Timestamp,
			TxHash:    tx.TxHash,
		}
	}
	return &c
}
