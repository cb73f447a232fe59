package wallets

import (
	"encoding/json"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chainledger/wallet-indexer/storage"
)

func TestExtractFee(t *testing.T) {
	events := []*storage.Event{
		deposit(t, testTreasury, 3),
		deposit(t, testTreasury, "2"),
		deposit(t, testTreasury, "0x0a"),
		deposit(t, "someone-else", 100),
		{Section: "balances", Method: "Withdraw", Data: raw(t, testTreasury, 50)},
		{Section: "treasury", Method: "Deposit", Data: raw(t, testTreasury, 50)},
		nil,
	}
	require.Equal(t, int64(15), ExtractFee(events, testTreasury).Int64())
	require.Equal(t, int64(100), ExtractFee(events, "someone-else").Int64())
	require.Zero(t, ExtractFee(nil, testTreasury).Sign())
}

func TestExtractFeeIgnoresMalformed(t *testing.T) {
	events := []*storage.Event{
		deposit(t, testTreasury, -5),
		deposit(t, testTreasury, "lots"),
		deposit(t, testTreasury, 1.5),
		{Section: "balances", Method: "Deposit", Data: raw(t, testTreasury)},
		{Section: "balances", Method: "Deposit", Data: raw(t, testTreasury, 1, 2)},
		{Section: "balances", Method: "Deposit", Data: raw(t, 42, 7)},
		{Section: "balances", Method: "Deposit", Data: []json.RawMessage{json.RawMessage(`"treasury"`), json.RawMessage(`{`)}},
		deposit(t, testTreasury, 4),
	}
	require.Equal(t, int64(4), ExtractFee(events, testTreasury).Int64())
}

func TestExtractFeeNeverNegative(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	payloads := []interface{}{-1, 0, 5, "-9", "0x", "0xff", "x", nil, true, map[string]int{"a": 1}, -1e6}
	for i := 0; i < 200; i++ {
		var events []*storage.Event
		for j := 0; j < rng.Intn(6); j++ {
			who := interface{}(testTreasury)
			if rng.Intn(4) == 0 {
				who = rng.Intn(10)
			}
			events = append(events, &storage.Event{
				Section: "balances",
				Method:  "Deposit",
				Data:    raw(t, who, payloads[rng.Intn(len(payloads))]),
			})
		}
		require.GreaterOrEqual(t, ExtractFee(events, testTreasury).Sign(), 0)
	}
}
