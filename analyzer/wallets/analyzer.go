package wallets

import (
	"context"
	"fmt"

	"github.com/chainledger/wallet-indexer/analyzer"
	"github.com/chainledger/wallet-indexer/analyzer/block"
	"github.com/chainledger/wallet-indexer/analyzer/queries"
	"github.com/chainledger/wallet-indexer/config"
	"github.com/chainledger/wallet-indexer/log"
	"github.com/chainledger/wallet-indexer/metrics"
	"github.com/chainledger/wallet-indexer/notify"
	"github.com/chainledger/wallet-indexer/storage"
)

const analyzerName = "wallets"

// processor feeds source blocks through a Processor and commits the
// resulting wallet writes. It writes either to a TargetStorage, in one
// atomic batch per block together with the block's progress row, or to a
// plain LedgerStore.
type processor struct {
	source   storage.BlockSource
	target   storage.TargetStorage // nil if ledger is set
	ledger   storage.LedgerStore   // nil if target is set
	decoder  EvmCallDecoder
	mapper   AddressMapper
	treasury string

	publisher notify.Publisher
	logger    *log.Logger
	metrics   metrics.AnalysisMetrics
}

var _ block.BlockProcessor = (*processor)(nil)

// Deps are the collaborators of the wallets analyzer.
type Deps struct {
	Source    storage.BlockSource
	Decoder   EvmCallDecoder
	Mapper    AddressMapper
	Publisher notify.Publisher // optional
}

func newProcessor(ledgerCfg config.LedgerConfig, deps Deps, logger *log.Logger) *processor {
	publisher := deps.Publisher
	if publisher == nil {
		publisher = notify.NopPublisher{}
	}
	return &processor{
		source:    deps.Source,
		decoder:   deps.Decoder,
		mapper:    deps.Mapper,
		treasury:  ledgerCfg.TreasuryAddress,
		publisher: publisher,
		logger:    logger.WithModule(analyzerName),
		metrics:   metrics.NewDefaultAnalysisMetrics(analyzerName),
	}
}

// NewAnalyzer returns the wallets analyzer, persisting to `target`.
func NewAnalyzer(
	cfg *config.BlockBasedAnalyzerConfig,
	ledgerCfg config.LedgerConfig,
	deps Deps,
	target storage.TargetStorage,
	logger *log.Logger,
) (analyzer.Analyzer, error) {
	p := newProcessor(ledgerCfg, deps, logger)
	p.target = target
	return block.NewAnalyzer(cfg, analyzerName, p, target, p.logger)
}

// NewLedgerAnalyzer returns the wallets analyzer writing to `ledger`
// without tracking progress, e.g. to replay a range into memory.
func NewLedgerAnalyzer(
	cfg *config.BlockBasedAnalyzerConfig,
	ledgerCfg config.LedgerConfig,
	deps Deps,
	ledger storage.LedgerStore,
	logger *log.Logger,
) (analyzer.Analyzer, error) {
	p := newProcessor(ledgerCfg, deps, logger)
	p.ledger = ledger
	return block.NewAnalyzer(cfg, analyzerName, p, nil, p.logger)
}

// PreWork implements block.BlockProcessor.
func (p *processor) PreWork(ctx context.Context) error {
	p.logger.Info("tracking fees paid to treasury", "treasury", p.treasury)
	return nil
}

// SourceLatestBlockHeight implements block.BlockProcessor.
func (p *processor) SourceLatestBlockHeight(ctx context.Context) (uint64, error) {
	return p.source.LatestHeight(ctx)
}

// ProcessBlock implements block.BlockProcessor.
func (p *processor) ProcessBlock(ctx context.Context, height uint64) error {
	blk, err := p.source.Block(ctx, height)
	if err != nil {
		return fmt.Errorf("fetch block %d: %w", height, err)
	}
	if blk.Height != height {
		return fmt.Errorf("source returned block %d for height %d", blk.Height, height)
	}

	var base storage.LedgerStore = p.ledger
	if p.target != nil {
		base = &dbStore{target: p.target, height: height}
	}
	overlay := newBlockOverlay(base, height)
	if err := NewProcessor(overlay, p.decoder, p.mapper, p.treasury, p.logger.With("height", height), &p.metrics).ProcessBlock(ctx, blk); err != nil {
		return err
	}

	if err := p.commit(ctx, height, overlay); err != nil {
		return err
	}
	p.metrics.ProcessedHeight().Set(float64(height))

	changes := overlay.Changes()
	if err := p.publisher.Publish(ctx, changes); err != nil {
		// The block is committed; consumers can recover from the tables.
		p.logger.Error("failed to publish wallet changes", "height", height, "count", len(changes), "err", err)
	}
	return nil
}

func (p *processor) commit(ctx context.Context, height uint64, overlay *blockOverlay) error {
	if p.target == nil {
		return overlay.Flush(ctx)
	}

	db := &dbStore{target: p.target, height: height}
	batch := &storage.QueryBatch{}
	for _, w := range overlay.Wallets() {
		db.queueSave(batch, w, overlay.persisted[w.ID])
	}
	batch.Queue(queries.IndexingProgress, analyzerName, height)

	opName := "process_block_" + analyzerName
	timer := p.metrics.DatabaseLatencies(p.target.Name(), opName)
	defer timer.ObserveDuration()
	if err := p.target.SendBatch(ctx, batch); err != nil {
		p.metrics.DatabaseOperations(p.target.Name(), opName, "failure").Inc()
		return fmt.Errorf("commit block %d: %w", height, err)
	}
	p.metrics.DatabaseOperations(p.target.Name(), opName, "success").Inc()
	return nil
}
