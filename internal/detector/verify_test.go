package detector

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

type lookupFunc func(ctx context.Context, txHash common.Hash) (common.Address, error)

func (f lookupFunc) TransactionOrigin(ctx context.Context, txHash common.Hash) (common.Address, error) {
	return f(ctx, txHash)
}

func isTestTrusted(a common.Address) bool { return a == testTrusted }

func TestVerifyOrigin_CachesLookups(t *testing.T) {
	calls := 0
	lookup := lookupFunc(func(ctx context.Context, txHash common.Hash) (common.Address, error) {
		calls++
		if txHash == hashN(1) {
			return testTrusted, nil
		}
		return testStranger, nil
	})
	v := NewVerifier(lookup, isTestTrusted, nil, nil, 0, nil)
	ctx := context.Background()

	if !v.VerifyOrigin(ctx, hashN(1)) || !v.VerifyOrigin(ctx, hashN(1)) {
		t.Fatalf("expected trusted origin accepted")
	}
	if v.VerifyOrigin(ctx, hashN(2)) || v.VerifyOrigin(ctx, hashN(2)) {
		t.Fatalf("expected stranger origin rejected")
	}
	if calls != 2 {
		t.Fatalf("lookups: got %d want 2", calls)
	}
}

func TestVerifyOrigin_FailsClosed(t *testing.T) {
	calls := 0
	lookup := lookupFunc(func(ctx context.Context, txHash common.Hash) (common.Address, error) {
		calls++
		return common.Address{}, errors.New("connection reset")
	})
	rejected := NewTxSet(DefaultRejectedCapacity)
	v := NewVerifier(lookup, isTestTrusted, nil, rejected, 0, nil)

	if v.VerifyOrigin(context.Background(), hashN(9)) {
		t.Fatalf("lookup error must reject")
	}
	if !rejected.Contains(hashN(9)) {
		t.Fatalf("failed tx must enter the rejection cache")
	}
	if v.VerifyOrigin(context.Background(), hashN(9)) {
		t.Fatalf("cached rejection must reject")
	}
	if calls != 1 {
		t.Fatalf("lookups: got %d want 1", calls)
	}
}

func TestVerifyOrigin_NilLookupRejects(t *testing.T) {
	v := NewVerifier(nil, isTestTrusted, nil, nil, 0, nil)
	if v.VerifyOrigin(context.Background(), hashN(1)) {
		t.Fatalf("expected rejection without a lookup")
	}
}
