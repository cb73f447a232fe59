package analyzer

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chainledger/wallet-indexer/config"
	"github.com/chainledger/wallet-indexer/storage/postgres/testutil"
)

// Relative path to the migrations directory when running tests in this file.
// When running go tests, the working directory is always set to the package directory of the test being run.
const migrationsPath = "file://../../storage/migrations"

func TestMigrations(t *testing.T) {
	client := testutil.NewTestClient(t)
	ctx := context.Background()

	// Ensure database is empty before running migrations.
	require.NoError(t, client.Wipe(ctx), "failed to wipe database")

	// Run migrations; a second run is a no-op.
	require.NoError(t, RunMigrations(migrationsPath, os.Getenv("CI_TEST_CONN_STRING")), "failed to run migrations")
	require.NoError(t, RunMigrations(migrationsPath, os.Getenv("CI_TEST_CONN_STRING")), "failed to rerun migrations")
}

func TestRunMigrationsBadSource(t *testing.T) {
	require.Error(t, RunMigrations("file:///nonexistent/migrations", "postgres://localhost:1/none?sslmode=disable"))
}

func writeBlock(t *testing.T, dir string, height int, body string) {
	name := filepath.Join(dir, strconv.Itoa(height)+".json")
	require.NoError(t, os.WriteFile(name, []byte(body), 0o600))
}

func freeAddr(t *testing.T) string {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func TestServiceRunsRangeInMemory(t *testing.T) {
	dir := t.TempDir()
	writeBlock(t, dir, 1, `{"height": 1, "hash": "0x01", "timestamp": "2022-01-02T03:04:05Z", "extrinsics": [
		{"index": 0, "hash": "0xa1", "section": "balances", "method": "transfer", "signer": "S", "success": true,
		 "args": ["D", "100"], "events": [{"section": "balances", "method": "Deposit", "data": ["T", "1"]}]}
	]}`)
	writeBlock(t, dir, 2, `{"height": 2, "hash": "0x02", "timestamp": "2022-01-02T03:04:11Z", "extrinsics": []}`)

	cfg := &config.Config{
		Analysis: &config.AnalysisConfig{
			Source:    config.SourceConfig{Dir: dir},
			Analyzers: config.AnalyzersList{Wallets: &config.BlockBasedAnalyzerConfig{From: 1, To: 2}},
			Ledger:    config.LedgerConfig{TreasuryAddress: "T"},
			Storage:   &config.StorageConfig{Backend: "inmemory"},
		},
		Metrics: &config.MetricsConfig{PullEndpoint: freeAddr(t)},
	}
	require.NoError(t, cfg.Validate())

	service, err := Init(cfg)
	require.NoError(t, err)
	require.Len(t, service.Analyzers, 1)
	defer service.cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	// Returns once the range is done, stopping the metrics server with it.
	require.NoError(t, service.run(ctx))
	require.NoError(t, ctx.Err())
}

func TestServiceStopsOnCancel(t *testing.T) {
	cfg := &config.Config{
		Analysis: &config.AnalysisConfig{
			Source:    config.SourceConfig{Dir: t.TempDir()},
			Analyzers: config.AnalyzersList{Wallets: &config.BlockBasedAnalyzerConfig{From: 1}},
			Ledger:    config.LedgerConfig{TreasuryAddress: "T"},
			Storage:   &config.StorageConfig{Backend: "inmemory"},
		},
	}
	service, err := NewService(cfg)
	require.NoError(t, err)
	defer service.cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- service.run(ctx) }()
	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("service did not stop")
	}
}
