// Package analyzer implements the `analyze` sub-command.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	migrate "github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres" // postgres driver for golang_migrate
	_ "github.com/golang-migrate/migrate/v4/source/file"       // support file scheme for golang_migrate
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/chainledger/wallet-indexer/analyzer"
	"github.com/chainledger/wallet-indexer/analyzer/frontier"
	"github.com/chainledger/wallet-indexer/analyzer/util/addresses"
	"github.com/chainledger/wallet-indexer/analyzer/wallets"
	cmdCommon "github.com/chainledger/wallet-indexer/cmd/common"
	"github.com/chainledger/wallet-indexer/config"
	"github.com/chainledger/wallet-indexer/log"
	"github.com/chainledger/wallet-indexer/metrics"
	"github.com/chainledger/wallet-indexer/notify"
	"github.com/chainledger/wallet-indexer/notify/kafka"
	"github.com/chainledger/wallet-indexer/storage"
	"github.com/chainledger/wallet-indexer/storage/memory"
	"github.com/chainledger/wallet-indexer/storage/source"
)

const (
	moduleName = "analysis_service"
)

var (
	// Path to the configuration file.
	configFile string

	analyzeCmd = &cobra.Command{
		Use:   "analyze",
		Short: "Analyze blocks into wallet ledgers",
		Run:   runAnalyzer,
	}
)

func runAnalyzer(cmd *cobra.Command, args []string) {
	// Initialize config.
	cfg, err := config.InitConfig(configFile)
	if err != nil {
		log.NewDefaultLogger("init").Error("config init failed",
			"error", err,
		)
		os.Exit(1)
	}

	// Initialize common environment.
	if err = cmdCommon.Init(cfg); err != nil {
		log.NewDefaultLogger("init").Error("init failed",
			"error", err,
		)
		os.Exit(1)
	}
	logger := cmdCommon.RootLogger()

	if cfg.Analysis == nil {
		logger.Error("analysis config not provided")
		os.Exit(1)
	}

	service, err := Init(cfg)
	if err != nil {
		os.Exit(1)
	}
	if err := service.Start(); err != nil {
		logger.Error("analysis service failed", "err", err)
		os.Exit(1)
	}
}

// Init initializes the analysis service.
func Init(cfg *config.Config) (*Service, error) {
	logger := cmdCommon.RootLogger().WithModule(moduleName)

	var backend config.StorageBackend
	if err := backend.Set(cfg.Analysis.Storage.Backend); err != nil {
		return nil, err
	}
	if backend == config.BackendPostgres {
		if cfg.Analysis.Storage.WipeStorage {
			logger.Warn("wiping storage")
			if err := wipeStorage(cfg.Analysis.Storage); err != nil {
				return nil, err
			}
			logger.Info("storage wiped")
		}
		if err := RunMigrations(cfg.Analysis.Storage.Migrations, cfg.Analysis.Storage.Endpoint); err != nil {
			logger.Error("migrations failed",
				"error", err,
			)
			return nil, err
		}
		logger.Info("migrations completed")
	}

	service, err := NewService(cfg)
	if err != nil {
		logger.Error("service failed to start",
			"error", err,
		)
		return nil, err
	}
	return service, nil
}

// RunMigrations brings the database at `connString` up to date with the
// migrations found at `source` (e.g. file://storage/migrations).
func RunMigrations(source string, connString string) error {
	m, err := migrate.New(source, connString)
	if err != nil {
		return fmt.Errorf("starting migrator: %w", err)
	}
	defer m.Close()

	switch err = m.Up(); {
	case errors.Is(err, migrate.ErrNoChange):
		return nil
	case err != nil:
		return err
	default:
		return nil
	}
}

func wipeStorage(cfg *config.StorageConfig) error {
	logger := cmdCommon.RootLogger().WithModule(moduleName)

	// Initialize target storage.
	storage, err := cmdCommon.NewClient(cfg, logger)
	if err != nil {
		return err
	}
	defer storage.Close()

	ctx := context.Background()
	return storage.Wipe(ctx)
}

// Service is the wallet indexer's analysis service.
type Service struct {
	Analyzers []analyzer.Analyzer

	source    storage.BlockSource
	target    storage.TargetStorage // nil for the in-memory backend
	publisher notify.Publisher
	metrics   *config.MetricsConfig
	logger    *log.Logger
}

// NewService creates new Service.
func NewService(cfg *config.Config) (*Service, error) {
	logger := cmdCommon.RootLogger().WithModule(moduleName)
	analysis := cfg.Analysis
	logger.Info("initializing analysis service", "config", analysis)

	// Initialize source storage.
	blockSource, err := source.New(&analysis.Source, logger)
	if err != nil {
		return nil, err
	}

	// Initialize target storage.
	dbClient, err := cmdCommon.NewClient(analysis.Storage, logger)
	if err != nil {
		blockSource.Close()
		return nil, err
	}

	var publisher notify.Publisher = notify.NopPublisher{}
	if analysis.Notify != nil && analysis.Notify.Kafka != nil {
		publisher = kafka.NewPublisher(analysis.Notify.Kafka, logger)
	}

	deps := wallets.Deps{
		Source:    blockSource,
		Decoder:   frontier.Decoder{},
		Mapper:    addresses.HashedMapper{Prefix: analysis.Ledger.Prefix()},
		Publisher: publisher,
	}

	// Initialize analyzers.
	analyzers := []analyzer.Analyzer{}
	if analysis.Analyzers.Wallets != nil {
		var a analyzer.Analyzer
		if dbClient != nil {
			a, err = wallets.NewAnalyzer(analysis.Analyzers.Wallets, analysis.Ledger, deps, dbClient, logger)
		} else {
			logger.Warn("using in-memory storage; wallet ledgers are lost on exit")
			a, err = wallets.NewLedgerAnalyzer(analysis.Analyzers.Wallets, analysis.Ledger, deps, memory.NewStore(), logger)
		}
		if err != nil {
			blockSource.Close()
			if dbClient != nil {
				dbClient.Close()
			}
			return nil, err
		}
		analyzers = append(analyzers, a)
	}

	logger.Info("initialized all analyzers", "count", len(analyzers))

	return &Service{
		Analyzers: analyzers,

		source:    blockSource,
		target:    dbClient,
		publisher: publisher,
		metrics:   cfg.Metrics,
		logger:    logger,
	}, nil
}

// Start runs the analyzers until they complete or the process receives
// SIGINT or SIGTERM. The metrics and pprof servers, if configured, run
// alongside and stop with the analyzers.
func (a *Service) Start() error {
	defer a.cleanup()
	a.logger.Info("starting analysis service")

	// Trap Ctrl+C and SIGTERM; the latter is issued by Kubernetes to request a shutdown.
	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return a.run(sigCtx)
}

func (a *Service) run(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	group, ctx := errgroup.WithContext(ctx)

	if a.metrics != nil {
		pull := metrics.NewPullService(a.metrics.PullEndpoint, a.logger)
		group.Go(func() error { return pull.Run(ctx) })
		if a.metrics.PprofEndpoint != "" {
			group.Go(func() error { return cmdCommon.RunPprof(ctx, a.metrics.PprofEndpoint) })
		}
	}

	var wg sync.WaitGroup
	for _, an := range a.Analyzers {
		wg.Add(1)
		go func(an analyzer.Analyzer) {
			defer wg.Done()
			an.Start(ctx)
		}(an)
	}
	group.Go(func() error {
		wg.Wait()
		if parent.Err() != nil {
			a.logger.Info("received interrupt, all analyzers have exited cleanly")
		} else {
			a.logger.Info("all analyzers have completed")
		}
		// Stop the auxiliary servers too.
		cancel()
		return nil
	})

	return group.Wait()
}

// cleanup cleans up resources used by the service.
func (a *Service) cleanup() {
	if err := a.publisher.Close(); err != nil {
		a.logger.Error("failed to close change publisher", "err", err)
	}
	if err := a.source.Close(); err != nil {
		a.logger.Error("failed to cleanly close data source",
			"firstErr", err.Error(),
		)
	}
	a.logger.Info("all source connections have closed cleanly")
	if a.target != nil {
		a.target.Close()
		a.logger.Info("indexer db connection closed cleanly")
	}
}

// Register registers the process sub-command.
func Register(parentCmd *cobra.Command) {
	analyzeCmd.Flags().StringVar(&configFile, "config", "./config/local.yml", "path to the config.yml file")
	parentCmd.AddCommand(analyzeCmd)
}
