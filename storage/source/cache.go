package source

import (
	"context"

	"github.com/chainledger/wallet-indexer/cache/kvstore"
	"github.com/chainledger/wallet-indexer/log"
	"github.com/chainledger/wallet-indexer/metrics"
	"github.com/chainledger/wallet-indexer/storage"
)

// CachingSource serves blocks from a local pogreb cache, fetching and
// storing them from the wrapped source on a miss. Blocks are immutable once
// produced, so cached entries never expire; the latest height is never
// cached.
type CachingSource struct {
	db     kvstore.KVStore
	source storage.BlockSource
}

var _ storage.BlockSource = (*CachingSource)(nil)

func NewCachingSource(cacheDir string, source storage.BlockSource, logger *log.Logger, m *metrics.AnalysisMetrics) (*CachingSource, error) {
	db, err := kvstore.OpenKVStore(logger.With("cache", "blocks"), cacheDir, m)
	if err != nil {
		return nil, err
	}
	return &CachingSource{db: db, source: source}, nil
}

// Block implements storage.BlockSource.
func (c *CachingSource) Block(ctx context.Context, height uint64) (*storage.Block, error) {
	return kvstore.GetFromCacheOrCall(
		c.db, false,
		kvstore.GenerateCacheKey("Block", height),
		func() (*storage.Block, error) { return c.source.Block(ctx, height) },
	)
}

// LatestHeight implements storage.BlockSource.
func (c *CachingSource) LatestHeight(ctx context.Context) (uint64, error) {
	latest, err := kvstore.GetFromCacheOrCall(
		c.db, true,
		kvstore.GenerateCacheKey("LatestHeight"),
		func() (*uint64, error) {
			h, err := c.source.LatestHeight(ctx)
			return &h, err
		},
	)
	if err != nil {
		return 0, err
	}
	return *latest, nil
}

// Close implements storage.BlockSource.
func (c *CachingSource) Close() error {
	srcErr := c.source.Close()
	if err := c.db.Close(); err != nil {
		return err
	}
	return srcErr
}
