package kafka

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chainledger/wallet-indexer/common"
	"github.com/chainledger/wallet-indexer/notify"
)

func TestToMessages(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	msgs, err := toMessages([]notify.Change{
		{WalletID: "alice", Index: 0, EvmAddress: "0x", Amount: common.NewBigInt(-105), Timestamp: at, TxHash: "0x01", BlockHeight: 7},
		{WalletID: "bob", Index: 3, EvmAddress: "0x", Amount: common.NewBigInt(100), Timestamp: at, TxHash: "0x01", BlockHeight: 7},
	})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, "alice", string(msgs[0].Key))

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(msgs[0].Value, &decoded))
	require.Equal(t, "-105", decoded["amount"])
	require.Equal(t, "alice", decoded["wallet_id"])
	require.Equal(t, float64(7), decoded["block_height"])
	require.Equal(t, "2024-03-01T12:00:00Z", decoded["timestamp"])
}
