// Package testutil provides helpers for tests that need a live database.
package testutil

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chainledger/wallet-indexer/log"
	"github.com/chainledger/wallet-indexer/storage/postgres"
)

// SkipIfNoDatabase skips the test unless CI_TEST_CONN_STRING points at a
// PostgreSQL instance.
func SkipIfNoDatabase(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping test in short mode")
	}
	if os.Getenv("CI_TEST_CONN_STRING") == "" {
		t.Skip("CI_TEST_CONN_STRING not set")
	}
}

// NewTestClient returns a postgres client used in CI tests.
func NewTestClient(t *testing.T) *postgres.Client {
	SkipIfNoDatabase(t)
	logger, err := log.NewLogger("postgres-test", os.Stdout, log.FmtJSON, log.LevelError)
	require.NoError(t, err, "log.NewLogger")

	client, err := postgres.NewClient(os.Getenv("CI_TEST_CONN_STRING"), logger)
	require.NoError(t, err, "postgres.NewClient")
	t.Cleanup(client.Close)
	return client
}
