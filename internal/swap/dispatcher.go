package swap

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"

	"launch-snipe/internal/backoff"
	"launch-snipe/internal/chain"
	"launch-snipe/internal/metrics"
)

var ErrDispatchExhausted = errors.New("swap dispatch exhausted")

const (
	DefaultMaxAttempts = 30
	DefaultRetryDelay  = 200 * time.Millisecond
	DefaultDeadline    = 2 * time.Minute
	DefaultGasLimit    = 250_000
)

// DefaultGas is the fixed fee setting used for every swap attempt.
func DefaultGas() chain.GasParams {
	return chain.GasParams{
		GasLimit:             DefaultGasLimit,
		MaxFeePerGas:         new(big.Int).Mul(big.NewInt(4), big.NewInt(params.GWei)),
		MaxPriorityFeePerGas: new(big.Int).Mul(big.NewInt(2), big.NewInt(params.GWei)),
	}
}

// Submitter signs and broadcasts a call without waiting for inclusion.
type Submitter interface {
	SubmitTransaction(ctx context.Context, call chain.Call, gas chain.GasParams) (common.Hash, error)
}

type Config struct {
	Router    common.Address
	Recipient common.Address
	Gas       chain.GasParams

	MaxAttempts int
	RetryDelay  time.Duration
	// Deadline is added to the current time for each attempt and enforced by
	// the router on chain.
	Deadline time.Duration
}

// Attempt describes one submission for observers such as the event log.
type Attempt struct {
	N        int
	TxHash   common.Hash
	Err      error
	Category Category
}

type Option func(*Dispatcher)

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// WithAttemptHook registers fn to be called after every submission.
func WithAttemptHook(fn func(Attempt)) Option {
	return func(d *Dispatcher) { d.onAttempt = fn }
}

type Dispatcher struct {
	cfg       Config
	submitter Submitter
	now       func() time.Time
	metrics   *metrics.Metrics
	onAttempt func(Attempt)
}

func NewDispatcher(cfg Config, submitter Submitter, opts ...Option) (*Dispatcher, error) {
	if submitter == nil {
		return nil, fmt.Errorf("submitter required")
	}
	if cfg.Router == (common.Address{}) {
		return nil, fmt.Errorf("router address required")
	}
	if cfg.Recipient == (common.Address{}) {
		return nil, fmt.Errorf("recipient address required")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.RetryDelay < 0 {
		return nil, fmt.Errorf("retry delay must be >= 0")
	}
	if cfg.Deadline <= 0 {
		cfg.Deadline = DefaultDeadline
	}

	d := &Dispatcher{cfg: cfg, submitter: submitter, now: time.Now}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Dispatch submits a swap of amountIn tokenIn for tokenOut and returns the
// hash of the first accepted submission. Failed submissions are retried after
// a fixed delay up to the attempt ceiling, after which the returned error
// wraps ErrDispatchExhausted and the last submission error.
func (d *Dispatcher) Dispatch(ctx context.Context, amountIn *big.Int, tokenIn, tokenOut common.Address) (common.Hash, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return common.Hash{}, fmt.Errorf("amountIn must be > 0")
	}
	if tokenIn == (common.Address{}) || tokenOut == (common.Address{}) {
		return common.Hash{}, fmt.Errorf("token addresses required")
	}

	var lastErr error
	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		deadline := d.now().Add(d.cfg.Deadline).Unix()
		data, err := packSwap(amountIn, tokenIn, tokenOut, d.cfg.Recipient, deadline)
		if err != nil {
			return common.Hash{}, err
		}

		txHash, err := d.submitter.SubmitTransaction(ctx, chain.Call{To: d.cfg.Router, Data: data}, d.cfg.Gas)
		if err == nil {
			d.metrics.IncSwapAttempt("submitted")
			d.metrics.IncSwapSubmitted()
			d.observe(Attempt{N: attempt, TxHash: txHash})
			log.Printf("[swap] submitted tx=%s attempt=%d token_out=%s", txHash.Hex(), attempt, tokenOut.Hex())
			return txHash, nil
		}

		lastErr = err
		cat := Categorize(err)
		d.metrics.IncSwapAttempt(string(cat))
		d.observe(Attempt{N: attempt, Err: err, Category: cat})
		if hint := cat.hint(); hint != "" {
			log.Printf("[swap] attempt %d/%d failed (%s: %s): %v", attempt, d.cfg.MaxAttempts, cat, hint, err)
		} else {
			log.Printf("[swap] attempt %d/%d failed: %v", attempt, d.cfg.MaxAttempts, err)
		}

		if attempt == d.cfg.MaxAttempts {
			break
		}
		if err := backoff.Sleep(ctx, d.cfg.RetryDelay); err != nil {
			return common.Hash{}, fmt.Errorf("swap aborted after %d attempts: %w", attempt, err)
		}
	}

	d.metrics.IncSwapExhausted()
	return common.Hash{}, fmt.Errorf("%w after %d attempts: %w", ErrDispatchExhausted, d.cfg.MaxAttempts, lastErr)
}

func (d *Dispatcher) observe(a Attempt) {
	if d.onAttempt != nil {
		d.onAttempt(a)
	}
}

// Approve submits approve(spender, amount) on token.
func Approve(ctx context.Context, s Submitter, token, spender common.Address, amount *big.Int, gas chain.GasParams) (common.Hash, error) {
	if amount == nil || amount.Sign() < 0 {
		return common.Hash{}, fmt.Errorf("approve amount must be >= 0")
	}
	data, err := packApprove(spender, amount)
	if err != nil {
		return common.Hash{}, err
	}
	txHash, err := s.SubmitTransaction(ctx, chain.Call{To: token, Data: data}, gas)
	if err != nil {
		return common.Hash{}, fmt.Errorf("approve %s for %s: %w", token.Hex(), spender.Hex(), err)
	}
	return txHash, nil
}
