// Package block implements the generic block based analyzer.
//
// The block based analyzer feeds heights to a BlockProcessor strictly in
// order, one at a time. A height is retried until it succeeds; later heights
// are never processed before earlier ones, because ledger entries are
// running totals.
package block

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/chainledger/wallet-indexer/analyzer"
	"github.com/chainledger/wallet-indexer/analyzer/queries"
	"github.com/chainledger/wallet-indexer/analyzer/util"
	"github.com/chainledger/wallet-indexer/config"
	"github.com/chainledger/wallet-indexer/log"
	"github.com/chainledger/wallet-indexer/storage"
)

const (
	// Timeout to process a block.
	processBlockTimeout = 61 * time.Second

	// Bounds of the retry/poll backoff. The cap is about the chain's block time.
	minBackoff = 100 * time.Millisecond
	maxBackoff = 6 * time.Second
)

// BlockProcessor is the interface that block-based processors should implement to use them with the
// block based analyzer.
type BlockProcessor interface {
	// PreWork performs tasks that need to be done before the main processing loop starts.
	PreWork(ctx context.Context) error
	// ProcessBlock processes the provided block, retrieving all required information
	// from the source and committing an atomically-executed batch of queries
	// to target storage.
	//
	// The implementation must mark the height as processed (see
	// queries.IndexingProgress) in the same batch.
	ProcessBlock(ctx context.Context, height uint64) error
	// SourceLatestBlockHeight returns the latest block height available in the source.
	SourceLatestBlockHeight(ctx context.Context) (uint64, error)
}

var _ analyzer.Analyzer = (*blockBasedAnalyzer)(nil)

type blockBasedAnalyzer struct {
	config       *config.BlockBasedAnalyzerConfig
	analyzerName string

	processor BlockProcessor

	// target holds the progress of the analyzer. If nil, progress is not
	// persisted and the analyzer always starts at config.From.
	target storage.TargetStorage
	logger *log.Logger
}

// latestProcessedBlock returns the highest height committed by this analyzer.
// Returns analyzer.ErrLatestBlockNotFound if nothing was processed yet.
func (b *blockBasedAnalyzer) latestProcessedBlock(ctx context.Context) (uint64, error) {
	var latest *uint64
	err := b.target.QueryRow(ctx, queries.LatestProcessedBlock, b.analyzerName).Scan(&latest)
	switch {
	case errors.Is(err, pgx.ErrNoRows), err == nil && latest == nil:
		return 0, analyzer.ErrLatestBlockNotFound
	case err != nil:
		return 0, err
	}
	return *latest, nil
}

// nextHeight returns the first height this analyzer has yet to process.
func (b *blockBasedAnalyzer) nextHeight(ctx context.Context) (uint64, error) {
	if b.target == nil {
		return b.config.From, nil
	}
	latest, err := b.latestProcessedBlock(ctx)
	switch {
	case errors.Is(err, analyzer.ErrLatestBlockNotFound):
		return b.config.From, nil
	case err != nil:
		return 0, fmt.Errorf("querying latest processed block: %w", err)
	}
	if latest+1 < b.config.From {
		return b.config.From, nil
	}
	return latest + 1, nil
}

// Start starts the block analyzer.
func (b *blockBasedAnalyzer) Start(ctx context.Context) {
	if err := b.processor.PreWork(ctx); err != nil {
		b.logger.Error("prework failed", "err", err)
		return
	}

	backoff, err := util.NewBackoff(minBackoff, maxBackoff)
	if err != nil {
		b.logger.Error("error configuring analyzer backoff policy",
			"err", err.Error(),
		)
		return
	}

	var height uint64
	for {
		if err := backoff.Wait(ctx); err != nil {
			b.logger.Warn("shutting down block analyzer", "reason", err)
			return
		}
		if height, err = b.nextHeight(ctx); err != nil {
			b.logger.Error("failed to determine next height", "err", err)
			backoff.Failure()
			continue
		}
		break
	}
	b.logger.Info("starting", "height", height, "to", b.config.To)

	// Heights [height, available] are known to exist on the source.
	var available uint64
	for b.config.To == 0 || height <= b.config.To {
		if err := backoff.Wait(ctx); err != nil {
			b.logger.Warn("shutting down block analyzer", "reason", err)
			return
		}

		if height > available || available == 0 {
			latest, err := b.processor.SourceLatestBlockHeight(ctx)
			if err != nil {
				b.logger.Error("failed to query latest block height on source",
					"err", err,
				)
				backoff.Failure()
				continue
			}
			available = latest
			if height > available {
				b.logger.Debug("waiting for new blocks", "height", height, "latest", available)
				backoff.Failure()
				continue
			}
		}

		b.logger.Debug("processing block", "height", height)
		bCtx, cancel := context.WithTimeout(ctx, processBlockTimeout)
		err := b.processor.ProcessBlock(bCtx, height)
		cancel()
		if err != nil {
			// The height is retried, never skipped. The batch may still have
			// been committed (e.g. the connection dropped after COMMIT), so
			// the height to retry is re-read from the stored progress.
			b.logger.Error("error processing block", "height", height, "err", err)
			backoff.Failure()
			if b.target != nil {
				next, err2 := b.nextHeight(ctx)
				if err2 != nil {
					b.logger.Error("failed to determine next height", "err", err2)
					continue
				}
				if next != height {
					b.logger.Warn("failed block was committed; moving on", "height", height, "next", next)
					height = next
				}
			}
			continue
		}
		backoff.Success()
		b.logger.Info("processed block", "height", height)
		height++
	}

	b.logger.Info(
		"finished processing all blocks in the configured range",
		"from", b.config.From, "to", b.config.To,
	)
}

// Name returns the name of the analyzer.
func (b *blockBasedAnalyzer) Name() string {
	return b.analyzerName
}

// NewAnalyzer returns a new block based analyzer for the provided block processor.
// `target` may be nil, in which case progress is not tracked across restarts.
func NewAnalyzer(
	config *config.BlockBasedAnalyzerConfig,
	name string,
	processor BlockProcessor,
	target storage.TargetStorage,
	logger *log.Logger,
) (analyzer.Analyzer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &blockBasedAnalyzer{
		config:       config,
		analyzerName: name,
		processor:    processor,
		target:       target,
		logger:       logger.With("analyzer", name),
	}, nil
}
