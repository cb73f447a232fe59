package wallets

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/chainledger/wallet-indexer/analyzer/util/addresses"
	"github.com/chainledger/wallet-indexer/log"
	"github.com/chainledger/wallet-indexer/metrics"
	"github.com/chainledger/wallet-indexer/storage"
)

// Processor applies the balance effects of a block's activity units to
// wallet ledgers.
type Processor struct {
	ledger   *Ledger
	decoder  EvmCallDecoder
	mapper   AddressMapper
	treasury string

	logger  *log.Logger
	metrics *metrics.AnalysisMetrics // if nil, no metrics are emitted
}

// NewProcessor returns a processor writing to `store`. `treasury` is the
// native address whose balances.Deposit events measure transaction fees.
func NewProcessor(
	store storage.LedgerStore,
	decoder EvmCallDecoder,
	mapper AddressMapper,
	treasury string,
	logger *log.Logger,
	metrics *metrics.AnalysisMetrics,
) *Processor {
	return &Processor{
		ledger:   NewLedger(store),
		decoder:  decoder,
		mapper:   mapper,
		treasury: treasury,
		logger:   logger,
		metrics:  metrics,
	}
}

func (p *Processor) count(kind metrics.ActivityKind) {
	if p.metrics != nil {
		p.metrics.Activities(kind).Inc()
	}
}

// ProcessBlock processes all native-path units of the block in order, then
// all EVM-path units in order. The first failure aborts the block; units
// already applied stay applied, so callers must discard the writes of a
// failed block.
func (p *Processor) ProcessBlock(ctx context.Context, block *storage.Block) error {
	native, evm := Classify(block.Extrinsics)
	for _, unit := range native {
		if err := p.processNative(ctx, unit, block.Timestamp); err != nil {
			return fmt.Errorf("block %d extrinsic %d: %w", block.Height, unit.Index, err)
		}
	}
	for _, unit := range evm {
		if err := p.processEvm(ctx, unit, block.Timestamp); err != nil {
			return fmt.Errorf("block %d extrinsic %d: %w", block.Height, unit.Index, err)
		}
	}
	return nil
}

func (p *Processor) processNative(ctx context.Context, unit *storage.Extrinsic, ts time.Time) error {
	if !unit.Success {
		p.count(metrics.ActivitySkippedFailed)
		return nil
	}
	fee := ExtractFee(unit.Events, p.treasury)
	hash := unit.Hash

	err := VisitCall(unit, &CallHandler{
		BalancesTransfer: func(body *Transfer) error {
			p.warnIfNotSS58(unit, body.Dest)
			debit := new(big.Int).Add(body.Value, fee)
			if _, err := p.ledger.Apply(ctx, unit.Signer, debit.Neg(debit), ts, hash, nil); err != nil {
				return err
			}
			if _, err := p.ledger.Apply(ctx, body.Dest, body.Value, ts, hash, nil); err != nil {
				return err
			}
			p.count(metrics.ActivityNativeTransfer)
			return nil
		},
		BalancesTransferAll: func(body *TransferAll) error {
			p.warnIfNotSS58(unit, body.Dest)
			// The fee is not deducted here, unlike in BalancesTransfer.
			moved := new(big.Int)
			drain := func(total *big.Int) *big.Int {
				moved.Set(total)
				return new(big.Int).Neg(total)
			}
			if _, err := p.ledger.ApplyFunc(ctx, unit.Signer, drain, ts, hash, nil); err != nil {
				return err
			}
			if _, err := p.ledger.Apply(ctx, body.Dest, moved, ts, hash, nil); err != nil {
				return err
			}
			p.count(metrics.ActivityTransferAll)
			return nil
		},
		EvmWithdraw: func(body *EvmWithdraw) error {
			credit := new(big.Int).Sub(body.Value, fee)
			if _, err := p.ledger.Apply(ctx, unit.Signer, credit, ts, hash, nil); err != nil {
				return err
			}
			p.count(metrics.ActivityEvmWithdraw)
			return nil
		},
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrUnsupportedCall):
		p.logger.Debug("ignoring unit without tracked balance effect",
			"section", unit.Section,
			"method", unit.Method,
			"hash", unit.Hash,
		)
		p.count(metrics.ActivitySkippedUnmatched)
		return nil
	case errors.Is(err, ErrMalformedCall):
		p.logger.Warn("skipping malformed unit",
			"section", unit.Section,
			"method", unit.Method,
			"hash", unit.Hash,
			"err", err,
		)
		p.count(metrics.ActivitySkippedMalformed)
		return nil
	default:
		return err
	}
}

// warnIfNotSS58 flags destinations that are not SS58 addresses, such as
// raw hex public keys. They are recorded as-is, which is a different
// ledger key than the account's SS58 address.
func (p *Processor) warnIfNotSS58(unit *storage.Extrinsic, dest string) {
	if _, _, err := addresses.DecodeSS58(dest); err != nil {
		p.logger.Warn("transfer destination is not an SS58 address; recording it verbatim",
			"dest", dest,
			"hash", unit.Hash,
			"err", err,
		)
	}
}

func (p *Processor) processEvm(ctx context.Context, unit *storage.Extrinsic, ts time.Time) error {
	call, err := p.decoder.Decode(unit)
	if err != nil {
		return fmt.Errorf("decode evm call: %w", err)
	}
	if !call.Success {
		p.count(metrics.ActivitySkippedFailed)
		return nil
	}
	value := call.Value
	if value == nil {
		value = new(big.Int)
	}
	fee := ExtractFee(unit.Events, p.treasury)

	from, err := p.mapper.ToNative(call.From)
	if err != nil {
		return fmt.Errorf("map sender %s: %w", call.From, err)
	}
	debit := new(big.Int).Add(value, fee)
	if _, err := p.ledger.Apply(ctx, from, debit.Neg(debit), ts, call.Hash, linkEvm(call.From)); err != nil {
		return err
	}

	if value.Sign() != 0 {
		if call.To == "" {
			p.logger.Warn("evm call moved value without a recipient; crediting nobody",
				"from", call.From,
				"value", value,
				"hash", call.Hash,
			)
		} else {
			to, err := p.mapper.ToNative(call.To)
			if err != nil {
				return fmt.Errorf("map recipient %s: %w", call.To, err)
			}
			if _, err := p.ledger.Apply(ctx, to, value, ts, call.Hash, linkEvm(call.To)); err != nil {
				return err
			}
		}
	}
	p.count(metrics.ActivityEvmCall)
	return nil
}

func linkEvm(evmAddr string) func(*storage.Wallet) {
	return func(w *storage.Wallet) {
		w.EvmAddress = evmAddr
		w.IsEvmLinked = true
	}
}
