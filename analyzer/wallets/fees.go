package wallets

import (
	"encoding/json"
	"math/big"

	"github.com/chainledger/wallet-indexer/common"
	"github.com/chainledger/wallet-indexer/storage"
)

// ExtractFee returns the fee paid by a unit: the sum of balances.Deposit
// amounts credited to `treasury`. Events that do not have the
// [who, amount] layout, or whose amount is not a non-negative integer, are
// ignored. The result is never negative.
func ExtractFee(events []*storage.Event, treasury string) *big.Int {
	fee := new(big.Int)
	for _, ev := range events {
		if ev == nil || ev.Section != "balances" || ev.Method != "Deposit" || len(ev.Data) != 2 {
			continue
		}
		var who string
		if err := json.Unmarshal(ev.Data[0], &who); err != nil || who != treasury {
			continue
		}
		amount, err := common.ParseAmount(ev.Data[1])
		if err != nil || amount.Sign() < 0 {
			continue
		}
		fee.Add(fee, amount)
	}
	return fee
}
