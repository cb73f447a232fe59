// Package common implements common wallet-indexer command options.
package common

import (
	"context"
	"errors"
	"fmt"
	"io"
	stdLog "log"
	"net/http"
	"os"
	"time"

	"github.com/akrylysov/pogreb"
	"golang.org/x/sync/errgroup"

	"github.com/chainledger/wallet-indexer/config"
	"github.com/chainledger/wallet-indexer/log"
	"github.com/chainledger/wallet-indexer/storage"
	"github.com/chainledger/wallet-indexer/storage/postgres"
)

// Time allowed for in-flight requests when a server shuts down.
const shutdownTimeout = 5 * time.Second

var rootLogger = log.NewDefaultLogger("wallet-indexer")

// Init initializes the common environment.
func Init(cfg *config.Config) error {
	var w io.Writer = os.Stdout
	format := log.FmtJSON
	level := log.LevelDebug

	if cfg.Log != nil {
		var err error
		if w, err = getLoggingStream(cfg.Log); err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		if err := format.Set(cfg.Log.Format); err != nil {
			return err
		}
		if err := level.Set(cfg.Log.Level); err != nil {
			return err
		}
	}
	logger, err := log.NewLogger("wallet-indexer", w, format, level)
	if err != nil {
		return err
	}
	rootLogger = logger

	// Initialize pogreb logging.
	pogrebLogger := RootLogger().WithModule("pogreb").WithCallerUnwind(7)
	pogreb.SetLogger(stdLog.New(log.WriterIntoLogger(*pogrebLogger), "", 0))

	return nil
}

// RootLogger returns the logger defined by logging flags.
func RootLogger() *log.Logger {
	return rootLogger
}

func getLoggingStream(cfg *config.LogConfig) (io.Writer, error) {
	if cfg == nil || cfg.File == "" {
		return os.Stdout, nil
	}
	w, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// NewClient creates a new client to target storage. Returns nil for the
// in-memory backend, which has no client.
func NewClient(cfg *config.StorageConfig, logger *log.Logger) (storage.TargetStorage, error) {
	var backend config.StorageBackend
	if err := backend.Set(cfg.Backend); err != nil {
		return nil, err
	}

	switch backend {
	case config.BackendPostgres:
		client, err := postgres.NewClient(cfg.Endpoint, logger)
		if err != nil {
			return nil, err
		}
		return client, nil
	case config.BackendInMemory:
		return nil, nil
	default:
		panic(fmt.Sprintf("unsupported storage backend: %v", backend))
	}
}

// RunServer serves `server` until `ctx` is canceled, then shuts it down
// gracefully. Returns the first serving or shutdown error.
func RunServer(ctx context.Context, server *http.Server, logger *log.Logger) error {
	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("serving", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving on %s: %w", server.Addr, err)
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down %s: %w", server.Addr, err)
		}
		logger.Info("server stopped", "addr", server.Addr)
		return nil
	})
	return group.Wait()
}
