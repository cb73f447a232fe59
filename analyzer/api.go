// Package analyzer defines the interface shared by all analyzers.
package analyzer

import (
	"context"
	"errors"
)

// ErrLatestBlockNotFound is returned if the analyzer has not committed any
// block yet, in which case it starts from the beginning of its range.
var ErrLatestBlockNotFound = errors.New("latest block not found")

// Analyzer is a worker that analyzes a range of chain blocks.
type Analyzer interface {
	// Start processes blocks until the configured range is exhausted or
	// ctx is done.
	Start(ctx context.Context)

	// Name returns the name of the analyzer.
	Name() string
}
