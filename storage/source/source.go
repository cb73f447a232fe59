// Package source implements the block sources the analyzer reads from.
package source

import (
	"fmt"

	"github.com/chainledger/wallet-indexer/common"
	"github.com/chainledger/wallet-indexer/config"
	"github.com/chainledger/wallet-indexer/log"
	"github.com/chainledger/wallet-indexer/metrics"
	"github.com/chainledger/wallet-indexer/storage"
)

// New returns the block source described by `cfg`, wrapped in a cache if
// one is configured.
func New(cfg *config.SourceConfig, logger *log.Logger) (storage.BlockSource, error) {
	var src storage.BlockSource
	switch {
	case cfg.HTTP != nil:
		src = NewHTTPSource(cfg.HTTP)
	case cfg.Dir != "":
		dir, err := NewDirSource(cfg.Dir)
		if err != nil {
			return nil, fmt.Errorf("opening block directory: %w", err)
		}
		src = dir
	default:
		return nil, fmt.Errorf("no block source configured")
	}

	if cfg.Cache == nil {
		return src, nil
	}
	cached, err := NewCachingSource(cfg.Cache.CacheDir, src, logger, common.Ptr(metrics.NewDefaultAnalysisMetrics("source")))
	if err != nil {
		return nil, fmt.Errorf("opening block cache: %w", err)
	}
	return cached, nil
}
