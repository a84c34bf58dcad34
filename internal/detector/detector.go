package detector

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"launch-snipe/internal/launchwatch"
	"launch-snipe/internal/metrics"
)

var ErrAlreadyRun = errors.New("detector already ran")

// ChainClient is the part of the chain boundary the detector needs.
type ChainClient interface {
	OriginLookup
	Subscribe(ctx context.Context, contract common.Address, topic common.Hash, onLog func(types.Log)) error
	UnsubscribeAll()
}

type Config struct {
	Deployer   common.Address
	Topic      common.Hash
	Trusted    []common.Address
	Distrusted []common.Address
	TokenIndex int

	// VerifyOrigin looks up the signer of UNVERIFIED events instead of
	// trusting them outright.
	VerifyOrigin  bool
	VerifyTimeout time.Duration

	SeenCapacity     int
	OriginCapacity   int
	RejectedCapacity int
}

func (c Config) validate() error {
	if c.Deployer == (common.Address{}) {
		return fmt.Errorf("deployer address required")
	}
	if c.Topic == (common.Hash{}) {
		return fmt.Errorf("event topic required")
	}
	return nil
}

type Option func(*Detector)

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Detector) { d.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(d *Detector) { d.now = now }
}

// Detector owns all state of one detection run: dedup set, origin caches and
// the resolver. Instances share nothing and may run side by side.
type Detector struct {
	cfg        Config
	client     ChainClient
	classifier *launchwatch.Classifier
	verifier   *Verifier
	seen       *TxSet
	metrics    *metrics.Metrics
	now        func() time.Time

	started  atomic.Bool
	resolver *Resolver

	verifyCtx context.Context
	mu        sync.Mutex
	closing   bool
	pending   sync.WaitGroup
}

func New(cfg Config, client ChainClient, opts ...Option) (*Detector, error) {
	if client == nil {
		return nil, fmt.Errorf("chain client required")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	classifier, err := launchwatch.NewClassifier(cfg.Trusted, cfg.Distrusted, cfg.TokenIndex)
	if err != nil {
		return nil, err
	}

	d := &Detector{
		cfg:        cfg,
		client:     client,
		classifier: classifier,
		seen:       NewTxSet(cfg.SeenCapacity),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.verifier = NewVerifier(
		client,
		classifier.IsTrusted,
		NewOriginCache(cfg.OriginCapacity),
		NewTxSet(cfg.RejectedCapacity),
		cfg.VerifyTimeout,
		d.metrics,
	)
	return d, nil
}

// Run monitors the target event until one detection resolves and consumer
// returns, or ctx ends. The consumer's error is returned together with the
// detection. Run may be called once per Detector.
func (d *Detector) Run(ctx context.Context, consumer Consumer) (Detection, error) {
	if !d.started.CompareAndSwap(false, true) {
		return Detection{}, ErrAlreadyRun
	}

	verifyCtx, cancelVerify := context.WithCancel(ctx)
	defer d.drain(cancelVerify)

	d.verifyCtx = verifyCtx
	d.resolver = NewResolver(d.client.UnsubscribeAll, consumer)

	err := d.client.Subscribe(ctx, d.cfg.Deployer, d.cfg.Topic, func(vLog types.Log) {
		d.handleLog(ctx, vLog)
	})
	if err != nil {
		return Detection{}, fmt.Errorf("subscribe deployer=%s: %w", d.cfg.Deployer.Hex(), err)
	}

	det, err := d.resolver.Wait(ctx)
	if ctx.Err() == nil {
		return det, err
	}

	d.client.UnsubscribeAll()
	// After closeResolution no verification can win; Resolved is final here.
	d.closeResolution()
	if !d.resolver.Resolved() {
		return Detection{}, ctx.Err()
	}
	// The consumer observes the same ctx and winds down on its own.
	<-d.resolver.Done()
	return d.resolver.Wait(context.Background())
}

func (d *Detector) drain(cancel context.CancelFunc) {
	cancel()
	d.closeResolution()
	d.pending.Wait()
}

func (d *Detector) closeResolution() {
	d.mu.Lock()
	d.closing = true
	d.mu.Unlock()
}

func (d *Detector) handleLog(ctx context.Context, vLog types.Log) {
	if d.resolver.Resolved() {
		return
	}
	d.metrics.IncReceived()

	if vLog.Removed || !launchwatch.Matches(vLog, d.cfg.Deployer, d.cfg.Topic) {
		d.metrics.IncSkipped()
		return
	}
	if !d.seen.Add(vLog.TxHash) {
		d.metrics.IncDuplicate()
		return
	}

	ev := launchwatch.FromLog(vLog, d.now().UnixMilli())
	cand, ok := d.classifier.Classify(launchwatch.ExtractAddresses(ev.Data), ev.Data)
	if !ok {
		d.metrics.IncSkipped()
		return
	}
	d.metrics.IncClassified(cand.Tier.String())

	switch {
	case cand.Tier.Trusted():
		d.resolve(ctx, ev, cand)
	case cand.Tier.Distrusted():
		log.Printf("[detect] %s token=%s tx=%s; continuing", cand.Tier, cand.Token.Hex(), ev.TxHash.Hex())
	case !d.cfg.VerifyOrigin:
		d.resolve(ctx, ev, cand)
	default:
		d.verifyAsync(ctx, ev, cand)
	}
}

func (d *Detector) verifyAsync(ctx context.Context, ev launchwatch.LaunchEvent, cand launchwatch.Candidate) {
	d.mu.Lock()
	if d.closing {
		d.mu.Unlock()
		return
	}
	d.pending.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.pending.Done()
		if d.resolver.Resolved() {
			return
		}
		if !d.verifier.VerifyOrigin(d.verifyCtx, ev.TxHash) {
			log.Printf("[detect] rejected token=%s tx=%s (origin not trusted); continuing", cand.Token.Hex(), ev.TxHash.Hex())
			return
		}
		d.resolve(ctx, ev, cand)
	}()
}

func (d *Detector) resolve(ctx context.Context, ev launchwatch.LaunchEvent, cand launchwatch.Candidate) {
	now := d.now()
	det := Detection{
		Token:        cand.Token,
		TxHash:       ev.TxHash,
		BlockNumber:  ev.BlockNumber,
		Tier:         cand.Tier,
		Addresses:    cand.Addresses,
		ReceivedAtMs: ev.ReceivedAtMs,
		DetectedAt:   now,
	}
	d.mu.Lock()
	if d.closing {
		d.mu.Unlock()
		log.Printf("[detect] shutting down; dropped token=%s tx=%s", cand.Token.Hex(), ev.TxHash.Hex())
		return
	}
	won := d.resolver.Resolve(ctx, det)
	d.mu.Unlock()
	if !won {
		return
	}
	d.metrics.ObserveResolved(float64(now.UnixMilli()-ev.ReceivedAtMs) / 1000)
	log.Printf("[detect] DETECTED token=%s tier=%s tx=%s block=%d", cand.Token.Hex(), cand.Tier, ev.TxHash.Hex(), ev.BlockNumber)
}
