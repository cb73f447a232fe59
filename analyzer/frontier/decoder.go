// Package frontier decodes Ethereum transactions executed through the
// Frontier EVM pallet (`ethereum.transact` extrinsics).
package frontier

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethTypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/chainledger/wallet-indexer/common"
	"github.com/chainledger/wallet-indexer/storage"
)

const (
	Section         = "ethereum"
	MethodTransact  = "transact"
	EventExecuted   = "Executed"
	exitReasonOK    = "succeed"
	executedMinArgs = 4 // [from, to, transaction_hash, exit_reason, ...]
)

// ErrNotTransact is returned when decoding a unit that is not an ethereum.transact call.
var ErrNotTransact = errors.New("not an ethereum.transact call")

// Decoder decodes ethereum.transact activity units.
//
// The sender, recipient and hash come from the ethereum.Executed event, so
// the transaction signature need not be recovered. For contract creations the
// event's recipient is the created contract. The value comes from the
// transaction itself, which the extractor renders either as hex of its
// EIP-2718 encoding or as the JSON form of the pallet's transaction enum.
type Decoder struct{}

// Decode implements wallets.EvmCallDecoder.
func (Decoder) Decode(unit *storage.Extrinsic) (*storage.EvmCall, error) {
	if unit.Section != Section || unit.Method != MethodTransact {
		return nil, fmt.Errorf("%s.%s: %w", unit.Section, unit.Method, ErrNotTransact)
	}
	if len(unit.Args) < 1 {
		return nil, fmt.Errorf("ethereum.transact without transaction argument")
	}
	tx, err := decodeTransaction(unit.Args[0])
	if err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}

	call := &storage.EvmCall{
		To:    tx.to,
		Value: tx.value,
		Hash:  unit.Hash,
	}

	executed := findExecuted(unit.Events)
	if !unit.Success || executed == nil {
		// Nothing was executed; the call has no effect on balances.
		return call, nil
	}
	if err := applyExecuted(call, executed); err != nil {
		return nil, fmt.Errorf("decode %s.%s event: %w", Section, EventExecuted, err)
	}
	return call, nil
}

type transaction struct {
	to    string
	value *big.Int
}

func decodeTransaction(raw json.RawMessage) (*transaction, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var encoded string
		if err := json.Unmarshal(raw, &encoded); err != nil {
			return nil, err
		}
		return decodeRawTransaction(encoded)
	}
	return decodeJSONTransaction(raw)
}

func decodeRawTransaction(encoded string) (*transaction, error) {
	body, err := hexutil.Decode(encoded)
	if err != nil {
		return nil, fmt.Errorf("hex decode: %w", err)
	}
	var ethTx ethTypes.Transaction
	if err := ethTx.UnmarshalBinary(body); err != nil {
		return nil, fmt.Errorf("rlp decode bytes: %w", err)
	}
	tx := &transaction{value: ethTx.Value()}
	if to := ethTx.To(); to != nil {
		tx.to = normalizeAddress(*to)
	}
	return tx, nil
}

// jsonTransaction is the JSON rendering of one transaction variant. All
// variants (legacy, eip2930, eip1559, ...) carry `value` and `action`.
type jsonTransaction struct {
	Value  json.RawMessage            `json:"value"`
	Action map[string]json.RawMessage `json:"action"`
}

func decodeJSONTransaction(raw json.RawMessage) (*transaction, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	// Enum form: {"eip1559": {...}}.
	if _, ok := fields["value"]; !ok && len(fields) == 1 {
		for _, inner := range fields {
			raw = inner
		}
	}

	var jt jsonTransaction
	if err := json.Unmarshal(raw, &jt); err != nil {
		return nil, err
	}
	value, err := common.ParseAmount(jt.Value)
	if err != nil {
		return nil, err
	}
	if value.Sign() < 0 {
		return nil, fmt.Errorf("negative value %v", value)
	}

	tx := &transaction{value: value}
	for kind, target := range jt.Action {
		if !strings.EqualFold(kind, "call") {
			continue
		}
		var to string
		if err := json.Unmarshal(target, &to); err != nil || !ethCommon.IsHexAddress(to) {
			return nil, fmt.Errorf("malformed call target %s", target)
		}
		tx.to = normalizeAddress(ethCommon.HexToAddress(to))
	}
	return tx, nil
}

func findExecuted(events []*storage.Event) *storage.Event {
	for _, ev := range events {
		if ev != nil && ev.Section == Section && ev.Method == EventExecuted {
			return ev
		}
	}
	return nil
}

func applyExecuted(call *storage.EvmCall, ev *storage.Event) error {
	if len(ev.Data) < executedMinArgs {
		return fmt.Errorf("expected at least %d fields, got %d", executedMinArgs, len(ev.Data))
	}
	from, err := decodeAddress(ev.Data[0])
	if err != nil {
		return fmt.Errorf("from: %w", err)
	}
	to, err := decodeAddress(ev.Data[1])
	if err != nil {
		return fmt.Errorf("to: %w", err)
	}
	var hash string
	if err = json.Unmarshal(ev.Data[2], &hash); err != nil {
		return fmt.Errorf("transaction hash: %w", err)
	}
	succeeded, err := isSucceed(ev.Data[3])
	if err != nil {
		return fmt.Errorf("exit reason: %w", err)
	}

	call.From = from
	call.To = to
	call.Success = succeeded
	if hash != "" {
		call.Hash = hash
	}
	return nil
}

func decodeAddress(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", err
	}
	if !strings.HasPrefix(strings.ToLower(s), "0x") || !ethCommon.IsHexAddress(s) {
		return "", fmt.Errorf("malformed address %q", s)
	}
	return normalizeAddress(ethCommon.HexToAddress(s)), nil
}

// isSucceed interprets a Frontier ExitReason, rendered either as a bare
// variant name or as a single-key object such as {"succeed": "Returned"}.
func isSucceed(raw json.RawMessage) (bool, error) {
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		return strings.EqualFold(name, exitReasonOK), nil
	}
	var variant map[string]json.RawMessage
	if err := json.Unmarshal(raw, &variant); err != nil {
		return false, err
	}
	if len(variant) != 1 {
		return false, fmt.Errorf("expected a single variant, got %d", len(variant))
	}
	for k := range variant {
		return strings.EqualFold(k, exitReasonOK), nil
	}
	return false, nil
}

func normalizeAddress(a ethCommon.Address) string {
	return strings.ToLower(a.Hex())
}
