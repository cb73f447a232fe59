package wallets

import (
	"github.com/chainledger/wallet-indexer/analyzer/frontier"
	"github.com/chainledger/wallet-indexer/storage"
)

func isEvmTransact(unit *storage.Extrinsic) bool {
	return unit.Section == frontier.Section && unit.Method == frontier.MethodTransact
}

func isEvmWithdraw(unit *storage.Extrinsic) bool {
	return unit.Section == "evm" && unit.Method == "withdraw"
}

// Classify splits a block's units into those processed on the native path
// and those processed on the EVM path, preserving order. The two predicates
// are evaluated independently; every unit lands in exactly one of the lists.
func Classify(units []*storage.Extrinsic) (native []*storage.Extrinsic, evm []*storage.Extrinsic) {
	for _, unit := range units {
		if unit == nil {
			continue
		}
		if isEvmWithdraw(unit) || !isEvmTransact(unit) {
			native = append(native, unit)
		}
	}
	for _, unit := range units {
		if unit != nil && isEvmTransact(unit) {
			evm = append(evm, unit)
		}
	}
	return native, evm
}
