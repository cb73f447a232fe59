package block_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chainledger/wallet-indexer/analyzer"
	"github.com/chainledger/wallet-indexer/analyzer/block"
	"github.com/chainledger/wallet-indexer/analyzer/queries"
	analyzerCmd "github.com/chainledger/wallet-indexer/cmd/analyzer"
	"github.com/chainledger/wallet-indexer/common"
	"github.com/chainledger/wallet-indexer/config"
	"github.com/chainledger/wallet-indexer/log"
	"github.com/chainledger/wallet-indexer/storage"
	pgTestUtil "github.com/chainledger/wallet-indexer/storage/postgres/testutil"
)

// Relative path to the migrations directory when running tests in this file.
// When running go tests, the working directory is always set to the package directory of the test being run.
const migrationsPath = "file://../../storage/migrations"

const testsTimeout = 10 * time.Second

type mockProcessor struct {
	name    string
	storage storage.TargetStorage // optional

	mu     sync.Mutex
	latest uint64
	// If specified, can simulate a failure at a given block height.
	fail func(uint64) error

	processedOrder []uint64
}

// PreWork implements block.BlockProcessor.
func (*mockProcessor) PreWork(ctx context.Context) error {
	return nil
}

// ProcessBlock implements block.BlockProcessor.
func (m *mockProcessor) ProcessBlock(ctx context.Context, height uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		if err := m.fail(height); err != nil {
			return fmt.Errorf("mock processor failure: %w", err)
		}
	}
	if m.storage != nil {
		batch := &storage.QueryBatch{}
		batch.Queue(queries.IndexingProgress, m.name, height)
		if err := m.storage.SendBatch(ctx, batch); err != nil {
			return err
		}
	}
	m.processedOrder = append(m.processedOrder, height)
	return nil
}

// SourceLatestBlockHeight implements block.BlockProcessor.
func (m *mockProcessor) SourceLatestBlockHeight(ctx context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latest, nil
}

func (m *mockProcessor) processed() []uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]uint64{}, m.processedOrder...)
}

var _ block.BlockProcessor = (*mockProcessor)(nil)

func runAnalyzer(t *testing.T, a analyzer.Analyzer) {
	ctx, cancel := context.WithTimeout(context.Background(), testsTimeout)
	defer cancel()
	done := make(chan struct{})
	go func() {
		a.Start(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		t.Fatal("analyzer did not finish in time")
	}
}

func TestProcessesRangeInOrder(t *testing.T) {
	p := &mockProcessor{name: "test_analyzer", latest: 100}
	a, err := block.NewAnalyzer(&config.BlockBasedAnalyzerConfig{From: 3, To: 12}, p.name, p, nil, log.NewDefaultLogger("analyzer"))
	require.NoError(t, err)

	runAnalyzer(t, a)
	require.Equal(t, []uint64{3, 4, 5, 6, 7, 8, 9, 10, 11, 12}, p.processed())
}

func TestRetriesFailedBlockBeforeMovingOn(t *testing.T) {
	failures := 2
	p := &mockProcessor{name: "test_analyzer", latest: 100}
	p.fail = func(height uint64) error {
		if height == 5 && failures > 0 {
			failures--
			return fmt.Errorf("transient")
		}
		return nil
	}
	a, err := block.NewAnalyzer(&config.BlockBasedAnalyzerConfig{From: 1, To: 7}, p.name, p, nil, log.NewDefaultLogger("analyzer"))
	require.NoError(t, err)

	runAnalyzer(t, a)
	require.Equal(t, []uint64{1, 2, 3, 4, 5, 6, 7}, p.processed())
}

func TestWaitsForSource(t *testing.T) {
	p := &mockProcessor{name: "test_analyzer", latest: 2}
	a, err := block.NewAnalyzer(&config.BlockBasedAnalyzerConfig{From: 1, To: 4}, p.name, p, nil, log.NewDefaultLogger("analyzer"))
	require.NoError(t, err)

	go func() {
		time.Sleep(200 * time.Millisecond)
		p.mu.Lock()
		p.latest = 10
		p.mu.Unlock()
	}()
	runAnalyzer(t, a)
	require.Equal(t, []uint64{1, 2, 3, 4}, p.processed())
}

func TestStopsOnCancel(t *testing.T) {
	p := &mockProcessor{name: "test_analyzer", latest: 0}
	a, err := block.NewAnalyzer(&config.BlockBasedAnalyzerConfig{From: 1}, p.name, p, nil, log.NewDefaultLogger("analyzer"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	a.Start(ctx)
	require.Empty(t, p.processed())
}

func TestInvalidRange(t *testing.T) {
	p := &mockProcessor{name: "test_analyzer"}
	_, err := block.NewAnalyzer(&config.BlockBasedAnalyzerConfig{From: 10, To: 1}, p.name, p, nil, log.NewDefaultLogger("analyzer"))
	require.Error(t, err)
}

// progressTarget records committed progress rows in memory. Like the
// analysis.processed_blocks primary key, it rejects a height committed
// twice. Heights in `failAfterCommit` report an error once, after the
// commit went through.
type progressTarget struct {
	mu              sync.Mutex
	committed       []uint64
	failAfterCommit map[uint64]bool
}

var _ storage.TargetStorage = (*progressTarget)(nil)

func (s *progressTarget) SendBatch(ctx context.Context, batch *storage.QueryBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range batch.Queries() {
		if item.Cmd != queries.IndexingProgress {
			continue
		}
		height := item.Args[1].(uint64)
		for _, h := range s.committed {
			if h == height {
				return fmt.Errorf("height %d already processed", height)
			}
		}
		s.committed = append(s.committed, height)
		if s.failAfterCommit[height] {
			delete(s.failAfterCommit, height)
			return errors.New("connection reset after commit")
		}
	}
	return nil
}

func (s *progressTarget) SendBatchWithOptions(ctx context.Context, batch *storage.QueryBatch, opts storage.TxOptions) error {
	return s.SendBatch(ctx, batch)
}

func (s *progressTarget) Query(ctx context.Context, sql string, args ...interface{}) (storage.QueryResults, error) {
	return nil, errors.New("not supported")
}

func (s *progressTarget) QueryRow(ctx context.Context, sql string, args ...interface{}) storage.QueryResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *uint64
	for _, h := range s.committed {
		if latest == nil || h > *latest {
			latest = common.Ptr(h)
		}
	}
	return latestRow{latest}
}

func (s *progressTarget) Close()                         {}
func (s *progressTarget) Name() string                   { return "progress" }
func (s *progressTarget) Wipe(ctx context.Context) error { return nil }

func (s *progressTarget) heights() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint64{}, s.committed...)
}

type latestRow struct{ latest *uint64 }

func (r latestRow) Scan(dest ...interface{}) error {
	*dest[0].(**uint64) = r.latest
	return nil
}

func TestFailedBlockThatCommittedIsNotReplayed(t *testing.T) {
	target := &progressTarget{failAfterCommit: map[uint64]bool{3: true}}
	p := &mockProcessor{name: "test_analyzer", storage: target, latest: 100}
	a, err := block.NewAnalyzer(&config.BlockBasedAnalyzerConfig{From: 1, To: 5}, p.name, p, target, log.NewDefaultLogger("analyzer"))
	require.NoError(t, err)

	runAnalyzer(t, a)
	require.Equal(t, []uint64{1, 2, 3, 4, 5}, target.heights())
	// Height 3 reported a failure, so the processor never saw it succeed.
	require.Equal(t, []uint64{1, 2, 4, 5}, p.processed())
}

func TestResumesFromStoredProgress(t *testing.T) {
	db := pgTestUtil.NewTestClient(t)
	ctx := context.Background()
	require.NoError(t, db.Wipe(ctx), "testDb.Wipe")
	require.NoError(t, analyzerCmd.RunMigrations(migrationsPath, os.Getenv("CI_TEST_CONN_STRING")), "failed to run migrations")

	cfg := &config.BlockBasedAnalyzerConfig{From: 1, To: 5}
	p := &mockProcessor{name: "test_analyzer", storage: db, latest: 100}
	a, err := block.NewAnalyzer(cfg, p.name, p, db, log.NewDefaultLogger("analyzer"))
	require.NoError(t, err)
	runAnalyzer(t, a)
	require.Equal(t, []uint64{1, 2, 3, 4, 5}, p.processed())

	// A second run over an extended range continues after the last committed height.
	cfg2 := &config.BlockBasedAnalyzerConfig{From: 1, To: 8}
	p2 := &mockProcessor{name: "test_analyzer", storage: db, latest: 100}
	a2, err := block.NewAnalyzer(cfg2, p2.name, p2, db, log.NewDefaultLogger("analyzer"))
	require.NoError(t, err)
	runAnalyzer(t, a2)
	require.Equal(t, []uint64{6, 7, 8}, p2.processed())

	// Committing an already processed height fails the whole batch.
	replay := &storage.QueryBatch{}
	replay.Queue(queries.IndexingProgress, "test_analyzer", uint64(3))
	require.Error(t, db.SendBatch(ctx, replay))
}
