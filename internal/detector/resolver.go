package detector

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"launch-snipe/internal/launchwatch"
)

// Consumer receives the resolved detection. It may block for as long as the
// downstream action takes; Resolver.Wait returns only after it does.
type Consumer func(ctx context.Context, d Detection) error

type Detection struct {
	Token       common.Address
	TxHash      common.Hash
	BlockNumber uint64
	Tier        launchwatch.Tier
	Addresses   []common.Address

	ReceivedAtMs int64
	DetectedAt   time.Time
}

// Resolver is a single-fulfillment slot: the first Resolve call wins, all
// later or concurrent calls are discarded.
type Resolver struct {
	resolved atomic.Bool
	done     chan struct{}

	stop     func()
	consumer Consumer

	detection   Detection
	consumerErr error
}

// NewResolver returns a pending resolver. stop is called once by the winning
// Resolve before the consumer runs; both may be nil.
func NewResolver(stop func(), consumer Consumer) *Resolver {
	return &Resolver{
		done:     make(chan struct{}),
		stop:     stop,
		consumer: consumer,
	}
}

// Resolve attempts the PENDING -> RESOLVED transition and reports whether
// this call won it. The consumer runs on its own goroutine so the caller (often
// the event delivery path) is never blocked by the downstream action.
func (r *Resolver) Resolve(ctx context.Context, d Detection) bool {
	if !r.resolved.CompareAndSwap(false, true) {
		return false
	}
	r.detection = d
	if r.stop != nil {
		r.stop()
	}
	go r.finish(ctx)
	return true
}

func (r *Resolver) finish(ctx context.Context) {
	defer close(r.done)
	if r.consumer == nil {
		return
	}
	r.consumerErr = r.consumer(ctx, r.detection)
}

func (r *Resolver) Resolved() bool {
	return r.resolved.Load()
}

// Done is closed once a detection resolved and its consumer returned.
func (r *Resolver) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until Done or ctx ends. The returned error is the consumer's.
func (r *Resolver) Wait(ctx context.Context) (Detection, error) {
	select {
	case <-r.done:
		return r.detection, r.consumerErr
	case <-ctx.Done():
		return Detection{}, ctx.Err()
	}
}
