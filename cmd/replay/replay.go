// Package replay implements the `replay` sub-command.
package replay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chainledger/wallet-indexer/analyzer/frontier"
	"github.com/chainledger/wallet-indexer/analyzer/util/addresses"
	"github.com/chainledger/wallet-indexer/analyzer/wallets"
	"github.com/chainledger/wallet-indexer/config"
	"github.com/chainledger/wallet-indexer/log"
	"github.com/chainledger/wallet-indexer/storage/memory"
	"github.com/chainledger/wallet-indexer/storage/source"
)

// Options selects the blocks to replay and how to interpret them.
type Options struct {
	// Dir holds `<height>.json` block files.
	Dir  string
	From uint64
	// To is inclusive. 0 means the highest block in Dir.
	To         uint64
	Treasury   string
	SS58Prefix uint16
}

var (
	opts     = Options{SS58Prefix: config.DefaultSS58Prefix}
	logLevel string

	replayCmd = &cobra.Command{
		Use:   "replay",
		Short: "Replay a directory of blocks in memory and print the resulting wallets as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			var level log.Level
			if err := level.Set(logLevel); err != nil {
				return err
			}
			// Wallets go to stdout, so logs go to stderr.
			logger, err := log.NewLogger("replay", os.Stderr, log.FmtLogfmt, level)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return Run(ctx, opts, cmd.OutOrStdout(), logger)
		},
	}
)

// Run processes the blocks selected by `o` into an in-memory ledger and
// writes all resulting wallets, ordered by ID, to `w` as a JSON array.
func Run(ctx context.Context, o Options, w io.Writer, logger *log.Logger) error {
	ledgerCfg := config.LedgerConfig{TreasuryAddress: o.Treasury, SS58Prefix: &o.SS58Prefix}
	if err := ledgerCfg.Validate(); err != nil {
		return err
	}

	src, err := source.NewDirSource(o.Dir)
	if err != nil {
		return err
	}
	defer src.Close()

	to := o.To
	if to == 0 {
		if to, err = src.LatestHeight(ctx); err != nil {
			return err
		}
		if to == 0 {
			return fmt.Errorf("no blocks found in %s", o.Dir)
		}
	}
	rangeCfg := &config.BlockBasedAnalyzerConfig{From: o.From, To: to}
	if err := rangeCfg.Validate(); err != nil {
		return err
	}

	store := memory.NewStore()
	deps := wallets.Deps{
		Source:  src,
		Decoder: frontier.Decoder{},
		Mapper:  addresses.HashedMapper{Prefix: o.SS58Prefix},
	}
	a, err := wallets.NewLedgerAnalyzer(rangeCfg, ledgerCfg, deps, store, logger)
	if err != nil {
		return err
	}
	a.Start(ctx)
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("replay interrupted: %w", err)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(store.Wallets())
}

// Register registers the replay sub-command.
func Register(parentCmd *cobra.Command) {
	flags := replayCmd.Flags()
	flags.StringVar(&opts.Dir, "dir", "", "directory of <height>.json block files")
	flags.Uint64Var(&opts.From, "from", 1, "first block to replay")
	flags.Uint64Var(&opts.To, "to", 0, "last block to replay (default: highest block in --dir)")
	flags.StringVar(&opts.Treasury, "treasury", "", "native address receiving transaction fees")
	flags.StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	flags.Uint16Var(&opts.SS58Prefix, "ss58-prefix", config.DefaultSS58Prefix, "SS58 prefix of derived native addresses")
	_ = replayCmd.MarkFlagRequired("dir")
	_ = replayCmd.MarkFlagRequired("treasury")
	parentCmd.AddCommand(replayCmd)
}
