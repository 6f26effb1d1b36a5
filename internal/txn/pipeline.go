// Package txn runs the slippage-protected transaction pipeline shared by
// stake, unstake, transfer and move operations.
package txn

import (
	"context"
	"math/big"
	"time"

	"go.uber.org/zap"

	"taostats/internal/account"
	"taostats/internal/balance"
	"taostats/internal/chain"
	"taostats/internal/fee"
	"taostats/internal/keyring"
	"taostats/internal/metrics"
	"taostats/internal/model"
	"taostats/internal/pool"
	"taostats/internal/slippage"
)

// Chain is the part of chain.Manager the pipeline uses.
type Chain interface {
	chain.StateReader
	PaymentInfo(ctx context.Context, call chain.Call, signer chain.Signer) (*big.Int, error)
	SubmitAndConfirm(ctx context.Context, call chain.Call, signer chain.Signer, nonce *uint32) chain.Result
}

// Recorder persists outcomes. Failures are logged and never change an outcome.
type Recorder interface {
	Record(ctx context.Context, rec model.OutcomeRecord) error
}

// Options configures a Pipeline. Zero values are usable.
type Options struct {
	Calls    *chain.Calls
	Recorder Recorder
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
	// Now stamps outcomes; defaults to time.Now.
	Now func() time.Time
}

// Pipeline validates, prices, builds and submits transactions.
type Pipeline struct {
	chain    Chain
	accounts account.Config
	calls    *chain.Calls
	pools    *pool.Reader
	quotes   *slippage.Calculator
	fees     *fee.Estimator
	balances *balance.Reader
	recorder Recorder
	metrics  *metrics.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

func New(c Chain, accounts account.Config, opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	calls := opts.Calls
	if calls == nil {
		calls = chain.NewCalls(nil)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	pools := pool.NewReader(c, logger)
	return &Pipeline{
		chain:    c,
		accounts: accounts,
		calls:    calls,
		pools:    pools,
		quotes:   slippage.NewCalculator(pools),
		fees:     fee.NewEstimator(c, calls, logger),
		balances: balance.NewReader(c),
		recorder: opts.Recorder,
		metrics:  opts.Metrics,
		logger:   logger,
		now:      now,
	}
}

// Pools exposes the pool reader the pipeline quotes against.
func (p *Pipeline) Pools() *pool.Reader {
	return p.pools
}

// Balances exposes the balance reader used by the pipeline checks.
func (p *Pipeline) Balances() *balance.Reader {
	return p.balances
}

// Quotes exposes the slippage calculator.
func (p *Pipeline) Quotes() *slippage.Calculator {
	return p.quotes
}

func (p *Pipeline) signer(from string) (*keyring.Keypair, error) {
	return account.Primary(p.accounts, from)
}

// blocked builds the outcome of an operation refused for slippage.
func (p *Pipeline) blocked(ctx context.Context, out Outcome, reason string) Outcome {
	out.Success = false
	out.Error = reason + ". Set DisableSlippageProtection to proceed anyway."
	p.metrics.Blocked(out.Operation)
	p.logger.Warn("transaction blocked by slippage protection",
		zap.String("operation", out.Operation),
		zap.String("slippage_percent", out.Slippage.SlippagePercent.StringFixed(4)),
	)
	p.finish(ctx, &out)
	return out
}

// submit hands call to the chain and folds the result into out.
func (p *Pipeline) submit(ctx context.Context, out Outcome, call chain.Call, signer chain.Signer, nonce *uint32) Outcome {
	p.logger.Info("submit transaction",
		zap.String("operation", out.Operation),
		zap.Stringer("call", call),
		zap.String("from", signer.Address()),
		zap.String("amount", out.Amount.String()),
	)
	out.apply(p.chain.SubmitAndConfirm(ctx, call, signer, nonce))
	p.metrics.Submitted(out.Operation, out.Success)
	if out.Success {
		p.logger.Info("transaction finalized",
			zap.String("operation", out.Operation),
			zap.String("tx_hash", out.TxHash),
			zap.Uint64("block", out.BlockNumber),
		)
	} else {
		p.logger.Error("transaction failed",
			zap.String("operation", out.Operation),
			zap.String("tx_hash", out.TxHash),
			zap.String("error", out.Error),
		)
	}
	p.finish(ctx, &out)
	return out
}

func (p *Pipeline) finish(ctx context.Context, out *Outcome) {
	out.Timestamp = p.now()
	if p.recorder == nil {
		return
	}
	if err := p.recorder.Record(ctx, out.Record()); err != nil {
		p.logger.Warn("record outcome", zap.String("operation", out.Operation), zap.Error(err))
	}
}

func (p *Pipeline) observe(op string, q slippage.Quote) {
	percent, _ := q.SlippagePercent.Float64()
	p.metrics.ObserveSlippage(op, percent)
}
