package detector

import (
	"context"
	"log"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"launch-snipe/internal/metrics"
)

// OriginLookup returns the account that signed a transaction.
type OriginLookup interface {
	TransactionOrigin(ctx context.Context, txHash common.Hash) (common.Address, error)
}

// Verifier confirms the origin of events the classifier could not decide.
// Any lookup failure counts as a rejection.
type Verifier struct {
	lookup    OriginLookup
	isTrusted func(common.Address) bool
	origins   *OriginCache
	rejected  *TxSet
	timeout   time.Duration
	metrics   *metrics.Metrics
}

func NewVerifier(lookup OriginLookup, isTrusted func(common.Address) bool, origins *OriginCache, rejected *TxSet, timeout time.Duration, m *metrics.Metrics) *Verifier {
	if origins == nil {
		origins = NewOriginCache(DefaultOriginCapacity)
	}
	if rejected == nil {
		rejected = NewTxSet(DefaultRejectedCapacity)
	}
	return &Verifier{
		lookup:    lookup,
		isTrusted: isTrusted,
		origins:   origins,
		rejected:  rejected,
		timeout:   timeout,
		metrics:   m,
	}
}

func (v *Verifier) VerifyOrigin(ctx context.Context, txHash common.Hash) bool {
	if v.rejected.Contains(txHash) {
		v.metrics.ObserveVerification("rejected_cached", -1)
		return false
	}
	if origin, ok := v.origins.Get(txHash); ok {
		trusted := v.isTrusted(origin)
		v.metrics.ObserveVerification(verdict(trusted)+"_cached", -1)
		return trusted
	}
	if v.lookup == nil {
		v.rejected.Add(txHash)
		return false
	}

	lookupCtx := ctx
	if v.timeout > 0 {
		var cancel context.CancelFunc
		lookupCtx, cancel = context.WithTimeout(ctx, v.timeout)
		defer cancel()
	}

	started := time.Now()
	origin, err := v.lookup.TransactionOrigin(lookupCtx, txHash)
	elapsed := time.Since(started).Seconds()
	if err != nil {
		v.rejected.Add(txHash)
		v.metrics.ObserveVerification("error", elapsed)
		if ctx.Err() == nil {
			log.Printf("[warn] origin lookup tx=%s failed: %v", txHash.Hex(), err)
		}
		return false
	}

	origin = v.origins.PutIfAbsent(txHash, origin)
	trusted := v.isTrusted(origin)
	if !trusted {
		v.rejected.Add(txHash)
	}
	v.metrics.ObserveVerification(verdict(trusted), elapsed)
	return trusted
}

func verdict(trusted bool) string {
	if trusted {
		return "accepted"
	}
	return "rejected"
}
