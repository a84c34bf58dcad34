package swap

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"launch-snipe/internal/chain"
)

var (
	testRouter    = common.HexToAddress("0x4752ba5DBc23f44D87826276BF6Fd6b1C372aD24")
	testRecipient = common.HexToAddress("0x9999999999999999999999999999999999999999")
	testTokenIn   = common.HexToAddress("0x0b3e328455c4059EEb9e3f84b5543F74E24e7E1b")
	testTokenOut  = common.HexToAddress("0x5555555555555555555555555555555555555555")
)

type fakeSubmitter struct {
	failUntil int // attempts before this one fail
	err       error
	calls     []chain.Call
	gas       []chain.GasParams
}

func (f *fakeSubmitter) SubmitTransaction(ctx context.Context, call chain.Call, gas chain.GasParams) (common.Hash, error) {
	f.calls = append(f.calls, call)
	f.gas = append(f.gas, gas)
	if len(f.calls) < f.failUntil {
		return common.Hash{}, f.err
	}
	return common.BigToHash(big.NewInt(int64(len(f.calls)))), nil
}

func newTestDispatcher(t *testing.T, s Submitter, opts ...Option) *Dispatcher {
	t.Helper()
	d, err := NewDispatcher(Config{
		Router:      testRouter,
		Recipient:   testRecipient,
		Gas:         DefaultGas(),
		MaxAttempts: 5,
	}, s, opts...)
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}
	return d
}

func TestDispatch_RetriesExactlyCeiling(t *testing.T) {
	boom := errors.New("execution reverted: UniswapV2: INSUFFICIENT_LIQUIDITY")
	s := &fakeSubmitter{failUntil: 1 << 30, err: boom}
	var attempts []Attempt
	d := newTestDispatcher(t, s, WithAttemptHook(func(a Attempt) { attempts = append(attempts, a) }))

	_, err := d.Dispatch(context.Background(), big.NewInt(1e16), testTokenIn, testTokenOut)
	if !errors.Is(err, ErrDispatchExhausted) {
		t.Fatalf("expected ErrDispatchExhausted, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("expected last error wrapped, got %v", err)
	}
	if len(s.calls) != 5 {
		t.Fatalf("submissions: got %d want 5", len(s.calls))
	}
	if len(attempts) != 5 || attempts[4].Category != CategoryInsufficientLiquidity {
		t.Fatalf("attempt hook mismatch: %+v", attempts)
	}
}

func TestDispatch_SucceedsOnAttemptK(t *testing.T) {
	s := &fakeSubmitter{failUntil: 3, err: errors.New("nonce too low")}
	d := newTestDispatcher(t, s)

	txHash, err := d.Dispatch(context.Background(), big.NewInt(1e16), testTokenIn, testTokenOut)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(s.calls) != 3 {
		t.Fatalf("submissions: got %d want 3", len(s.calls))
	}
	if txHash != common.BigToHash(big.NewInt(3)) {
		t.Fatalf("tx hash: got %s", txHash.Hex())
	}
}

func TestDispatch_PacksSwapCall(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s := &fakeSubmitter{}
	d := newTestDispatcher(t, s, WithClock(func() time.Time { return now }))

	amount := big.NewInt(1e16)
	if _, err := d.Dispatch(context.Background(), amount, testTokenIn, testTokenOut); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	call := s.calls[0]
	if call.To != testRouter {
		t.Fatalf("call to: got %s want %s", call.To.Hex(), testRouter.Hex())
	}
	if s.gas[0].GasLimit != DefaultGasLimit || s.gas[0].MaxFeePerGas.Cmp(big.NewInt(4e9)) != 0 || s.gas[0].MaxPriorityFeePerGas.Cmp(big.NewInt(2e9)) != 0 {
		t.Fatalf("gas mismatch: %+v", s.gas[0])
	}

	method := routerABI.Methods["swapExactTokensForTokens"]
	if string(call.Data[:4]) != string(method.ID) {
		t.Fatalf("selector mismatch")
	}
	args, err := method.Inputs.Unpack(call.Data[4:])
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if args[0].(*big.Int).Cmp(amount) != 0 {
		t.Fatalf("amountIn: got %s want %s", args[0], amount)
	}
	if args[1].(*big.Int).Sign() != 0 {
		t.Fatalf("amountOutMin: got %s want 0", args[1])
	}
	path := args[2].([]common.Address)
	if len(path) != 2 || path[0] != testTokenIn || path[1] != testTokenOut {
		t.Fatalf("path mismatch: %v", path)
	}
	if args[3].(common.Address) != testRecipient {
		t.Fatalf("recipient mismatch: %s", args[3])
	}
	if got, want := args[4].(*big.Int).Int64(), now.Add(DefaultDeadline).Unix(); got != want {
		t.Fatalf("deadline: got %d want %d", got, want)
	}
}

func TestDispatch_ContextCancelStopsRetry(t *testing.T) {
	s := &fakeSubmitter{failUntil: 1 << 30, err: errors.New("boom")}
	d, err := NewDispatcher(Config{
		Router:      testRouter,
		Recipient:   testRecipient,
		MaxAttempts: 30,
		RetryDelay:  time.Hour,
	}, s)
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err = d.Dispatch(ctx, big.NewInt(1), testTokenIn, testTokenOut)
	if !errors.Is(err, context.Canceled) || errors.Is(err, ErrDispatchExhausted) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if len(s.calls) != 1 {
		t.Fatalf("submissions: got %d want 1", len(s.calls))
	}
}

func TestDispatch_RejectsBadInput(t *testing.T) {
	d := newTestDispatcher(t, &fakeSubmitter{})
	if _, err := d.Dispatch(context.Background(), big.NewInt(0), testTokenIn, testTokenOut); err == nil {
		t.Fatalf("expected error for zero amount")
	}
	if _, err := d.Dispatch(context.Background(), big.NewInt(1), testTokenIn, common.Address{}); err == nil {
		t.Fatalf("expected error for zero token")
	}
	if _, err := NewDispatcher(Config{Recipient: testRecipient}, &fakeSubmitter{}); err == nil {
		t.Fatalf("expected error for missing router")
	}
}

func TestCategorize(t *testing.T) {
	cases := []struct {
		msg  string
		want Category
	}{
		{"insufficient funds for gas * price + value", CategoryInsufficientFunds},
		{"execution reverted: TransferHelper: TRANSFER_FROM_FAILED", CategoryTransferFromFailed},
		{"execution reverted: UniswapV2: INSUFFICIENT_OUTPUT_AMOUNT", CategoryInsufficientOutput},
		{"execution reverted: UniswapV2: INSUFFICIENT_LIQUIDITY", CategoryInsufficientLiquidity},
		{"replacement transaction underpriced", CategoryOther},
	}
	for _, tc := range cases {
		t.Run(string(tc.want), func(t *testing.T) {
			if got := Categorize(errors.New(tc.msg)); got != tc.want {
				t.Fatalf("got %s want %s", got, tc.want)
			}
		})
	}
	if Categorize(nil) != CategoryOther {
		t.Fatalf("nil error must be other")
	}
}

func TestApprove(t *testing.T) {
	s := &fakeSubmitter{}
	amount := big.NewInt(12345)
	if _, err := Approve(context.Background(), s, testTokenIn, testRouter, amount, chain.GasParams{}); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	call := s.calls[0]
	if call.To != testTokenIn {
		t.Fatalf("approve sent to %s", call.To.Hex())
	}
	method := approveABI.Methods["approve"]
	args, err := method.Inputs.Unpack(call.Data[4:])
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if args[0].(common.Address) != testRouter || args[1].(*big.Int).Cmp(amount) != 0 {
		t.Fatalf("approve args mismatch: %v", args)
	}
}
