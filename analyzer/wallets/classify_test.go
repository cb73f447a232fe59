package wallets

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chainledger/wallet-indexer/storage"
)

func unit(section, method string) *storage.Extrinsic {
	return &storage.Extrinsic{Section: section, Method: method}
}

func TestClassify(t *testing.T) {
	transfer := unit("balances", "transfer")
	withdraw := unit("evm", "withdraw")
	transact := unit("ethereum", "transact")
	timestamp := unit("timestamp", "set")
	otherEth := unit("ethereum", "other")
	transact2 := unit("ethereum", "transact")

	native, evm := Classify([]*storage.Extrinsic{transfer, transact, withdraw, nil, timestamp, otherEth, transact2})
	require.Equal(t, []*storage.Extrinsic{transfer, withdraw, timestamp, otherEth}, native)
	require.Equal(t, []*storage.Extrinsic{transact, transact2}, evm)
}

func TestClassifyPartition(t *testing.T) {
	var units []*storage.Extrinsic
	for _, section := range []string{"balances", "evm", "ethereum", "system", ""} {
		for _, method := range []string{"transfer", "withdraw", "transact", "remark", ""} {
			units = append(units, unit(section, method))
		}
	}
	native, evm := Classify(units)
	require.Equal(t, len(units), len(native)+len(evm))

	seen := map[*storage.Extrinsic]int{}
	for _, u := range native {
		seen[u]++
		require.False(t, u.Section == "ethereum" && u.Method == "transact")
	}
	for _, u := range evm {
		seen[u]++
		require.Equal(t, "ethereum", u.Section)
		require.Equal(t, "transact", u.Method)
	}
	for _, u := range units {
		require.Equal(t, 1, seen[u], "%s.%s", u.Section, u.Method)
	}
}
