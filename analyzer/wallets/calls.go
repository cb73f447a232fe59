package wallets

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/chainledger/wallet-indexer/common"
	"github.com/chainledger/wallet-indexer/storage"
)

// Transfer is the body of balances.transfer and of every other balances
// call except transferAll, all of which take [dest, value].
type Transfer struct {
	Dest  string
	Value *big.Int
}

// TransferAll is the body of balances.transferAll.
type TransferAll struct {
	Dest      string
	KeepAlive bool
}

// EvmWithdraw is the body of evm.withdraw.
type EvmWithdraw struct {
	Address string
	Value   *big.Int
}

type CallHandler struct {
	BalancesTransfer    func(body *Transfer) error
	BalancesTransferAll func(body *TransferAll) error
	EvmWithdraw         func(body *EvmWithdraw) error
}

// VisitCall decodes the arguments of `unit` according to its kind and
// passes them to the matching handler. Decoding failures wrap
// ErrMalformedCall; kinds without a handler case wrap ErrUnsupportedCall.
// Any balances call other than transferAll is read as a Transfer, so
// balances calls with a different argument layout fail as malformed.
// Errors returned by handlers are wrapped and passed through.
func VisitCall(unit *storage.Extrinsic, handler *CallHandler) error {
	kind := unit.Section + "." + unit.Method
	switch {
	case kind == "balances.transferAll":
		if handler.BalancesTransferAll != nil {
			body, err := decodeTransferAll(unit.Args)
			if err != nil {
				return fmt.Errorf("%w: balances.transferAll: %v", ErrMalformedCall, err)
			}
			if err := handler.BalancesTransferAll(body); err != nil {
				return fmt.Errorf("balances transfer all: %w", err)
			}
		}
	case unit.Section == "balances":
		if handler.BalancesTransfer != nil {
			body, err := decodeTransfer(unit.Args)
			if err != nil {
				return fmt.Errorf("%w: balances.%s: %v", ErrMalformedCall, unit.Method, err)
			}
			if err := handler.BalancesTransfer(body); err != nil {
				return fmt.Errorf("balances %s: %w", unit.Method, err)
			}
		}
	case kind == "evm.withdraw":
		if handler.EvmWithdraw != nil {
			body, err := decodeEvmWithdraw(unit.Args)
			if err != nil {
				return fmt.Errorf("%w: evm.withdraw: %v", ErrMalformedCall, err)
			}
			if err := handler.EvmWithdraw(body); err != nil {
				return fmt.Errorf("evm withdraw: %w", err)
			}
		}
	default:
		return fmt.Errorf("%w: %s.%s", ErrUnsupportedCall, unit.Section, unit.Method)
	}
	return nil
}

func expectArgs(args []json.RawMessage, n int) error {
	if len(args) != n {
		return fmt.Errorf("expected %d arguments, got %d", n, len(args))
	}
	return nil
}

func decodeTransfer(args []json.RawMessage) (*Transfer, error) {
	if err := expectArgs(args, 2); err != nil {
		return nil, err
	}
	dest, err := decodeAccount(args[0])
	if err != nil {
		return nil, fmt.Errorf("dest: %w", err)
	}
	value, err := decodeValue(args[1])
	if err != nil {
		return nil, err
	}
	return &Transfer{Dest: dest, Value: value}, nil
}

func decodeTransferAll(args []json.RawMessage) (*TransferAll, error) {
	if err := expectArgs(args, 2); err != nil {
		return nil, err
	}
	dest, err := decodeAccount(args[0])
	if err != nil {
		return nil, fmt.Errorf("dest: %w", err)
	}
	var keepAlive bool
	if err := json.Unmarshal(args[1], &keepAlive); err != nil {
		return nil, fmt.Errorf("keep_alive: %w", err)
	}
	return &TransferAll{Dest: dest, KeepAlive: keepAlive}, nil
}

func decodeEvmWithdraw(args []json.RawMessage) (*EvmWithdraw, error) {
	if err := expectArgs(args, 2); err != nil {
		return nil, err
	}
	var address string
	if err := json.Unmarshal(args[0], &address); err != nil {
		return nil, fmt.Errorf("address: %w", err)
	}
	value, err := decodeValue(args[1])
	if err != nil {
		return nil, err
	}
	return &EvmWithdraw{Address: address, Value: value}, nil
}

func decodeValue(raw json.RawMessage) (*big.Int, error) {
	value, err := common.ParseAmount(raw)
	if err != nil {
		return nil, fmt.Errorf("value: %w", err)
	}
	if value.Sign() < 0 {
		return nil, fmt.Errorf("value: negative amount %v", value)
	}
	return value, nil
}

// decodeAccount accepts a bare address string or a MultiAddress in its
// account-id form, {"id": "<address>"}.
func decodeAccount(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '{' {
		var multi map[string]json.RawMessage
		if err := json.Unmarshal(raw, &multi); err != nil {
			return "", err
		}
		id, ok := multi["id"]
		if !ok || len(multi) != 1 {
			return "", fmt.Errorf("unsupported multi-address %s", raw)
		}
		raw = id
	}
	var addr string
	if err := json.Unmarshal(raw, &addr); err != nil {
		return "", err
	}
	if addr == "" {
		return "", fmt.Errorf("empty address")
	}
	return addr, nil
}
