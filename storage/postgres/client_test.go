package postgres_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chainledger/wallet-indexer/common"
	"github.com/chainledger/wallet-indexer/log"
	"github.com/chainledger/wallet-indexer/storage"
	"github.com/chainledger/wallet-indexer/storage/postgres"
	"github.com/chainledger/wallet-indexer/storage/postgres/testutil"
)

func TestInvalidConnect(t *testing.T) {
	_, err := postgres.NewClient("an invalid connstring", log.NewDefaultLogger("postgres-test"))
	require.Error(t, err)
}

func TestQuery(t *testing.T) {
	client := testutil.NewTestClient(t)

	rows, err := client.Query(context.Background(), `SELECT * FROM ( VALUES (0),(1),(2) ) AS q;`)
	require.NoError(t, err)
	defer rows.Close()

	i := 0
	for rows.Next() {
		var result int
		require.NoError(t, rows.Scan(&result))
		require.Equal(t, i, result)
		i++
	}
	require.Equal(t, 3, i)

	_, err = client.Query(context.Background(), `an invalid query`)
	require.Error(t, err)
}

func TestQueryRowNumeric(t *testing.T) {
	client := testutil.NewTestClient(t)

	var v common.BigInt
	err := client.QueryRow(context.Background(), `SELECT $1::NUMERIC(1000,0) - 1`, common.NewBigInt(-104)).Scan(&v)
	require.NoError(t, err)
	require.Equal(t, "-105", v.String())
}

func TestSendBatchIsAtomic(t *testing.T) {
	client := testutil.NewTestClient(t)
	ctx := context.Background()

	create := &storage.QueryBatch{}
	create.Queue(`CREATE TABLE batch_test (id INTEGER PRIMARY KEY, name TEXT);`)
	require.NoError(t, client.SendBatch(ctx, create))
	t.Cleanup(func() {
		drop := &storage.QueryBatch{}
		drop.Queue(`DROP TABLE batch_test;`)
		require.NoError(t, client.SendBatch(ctx, drop))
	})

	ok := &storage.QueryBatch{}
	ok.Queue(`INSERT INTO batch_test (id, name) VALUES ($1, $2)`, 1, "alice")
	ok.Queue(`INSERT INTO batch_test (id, name) VALUES ($1, $2)`, 2, "bob")
	require.NoError(t, client.SendBatch(ctx, ok))

	// The duplicate key fails the whole batch, including the first insert.
	bad := &storage.QueryBatch{}
	bad.Queue(`INSERT INTO batch_test (id, name) VALUES ($1, $2)`, 3, "carol")
	bad.Queue(`INSERT INTO batch_test (id, name) VALUES ($1, $2)`, 1, "mallory")
	err := client.SendBatch(ctx, bad)
	require.ErrorContains(t, err, "query 1")

	var count int
	require.NoError(t, client.QueryRow(ctx, `SELECT COUNT(*) FROM batch_test`).Scan(&count))
	require.Equal(t, 2, count)
}
