package common

import (
	"io"

	"github.com/chainledger/wallet-indexer/log"
)

// Ptr returns a pointer to a copy of `v`.
func Ptr[T any](v T) *T {
	return &v
}

func CloseOrLog(c io.Closer, logger *log.Logger) {
	if err := c.Close(); err != nil {
		logger.Error("failed to close", "err", err)
	}
}
