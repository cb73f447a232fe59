// Package wallets reconstructs per-account balance histories from chain
// activity. Native transfers and EVM calls are turned into signed deltas and
// appended, as running totals, to the ledgers of the accounts involved.
package wallets

import (
	"errors"

	"github.com/chainledger/wallet-indexer/storage"
)

var (
	// ErrUnsupportedCall is returned by VisitCall for calls that do not move
	// balances in a way the analyzer tracks.
	ErrUnsupportedCall = errors.New("unsupported call")

	// ErrMalformedCall is returned by VisitCall when a call's arguments do
	// not match the layout of its kind.
	ErrMalformedCall = errors.New("malformed call")
)

// EvmCallDecoder extracts the Ethereum transaction of an ethereum.transact unit.
type EvmCallDecoder interface {
	Decode(unit *storage.Extrinsic) (*storage.EvmCall, error)
}

// AddressMapper maps EVM addresses onto native account addresses.
type AddressMapper interface {
	ToNative(evmAddr string) (string, error)
}
