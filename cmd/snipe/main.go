package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"launch-snipe/internal/chain"
	"launch-snipe/internal/detector"
	"launch-snipe/internal/dotenv"
	"launch-snipe/internal/erc20"
	"launch-snipe/internal/ethutil"
	"launch-snipe/internal/jsonl"
	"launch-snipe/internal/metrics"
	"launch-snipe/internal/state"
	"launch-snipe/internal/swap"
)

var (
	_ detector.ChainClient = (*chain.EthClient)(nil)
	_ swap.Submitter       = (*chain.EthClient)(nil)
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := dotenv.Load(); err != nil {
		log.Printf("[warn] %v", err)
	}

	parsed, err := parseArgs()
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}
	if err := run(parsed); err != nil {
		log.Fatalf("[fatal] %v", err)
	}
}

func run(parsed args) error {
	runStartedAt := time.Now()

	pk, err := parsePrivateKey(parsed.privateKeyHex)
	if err != nil {
		return err
	}

	eventLog, err := jsonl.Open(parsed.outFile)
	if err != nil {
		return err
	}
	if eventLog != nil {
		log.Printf("Event log: %s (JSONL)", parsed.outFile)
		defer func() {
			if err := eventLog.Close(); err != nil {
				log.Printf("[warn] event log close: %v", err)
			}
		}()
		defer func() {
			logSnipeEvent(eventLog, snipeLogEvent{
				TsMs:     time.Now().UnixMilli(),
				Event:    "shutdown",
				Mode:     snipeMode(parsed.enableTrading),
				Ok:       true,
				UptimeMs: time.Since(runStartedAt).Milliseconds(),
			})
		}()
	}

	log.Printf("Launch sniper")
	log.Printf("[cfg] deployer=%s topic=%s", parsed.deployer.Hex(), parsed.topic.Hex())
	log.Printf("[cfg] trusted=%s distrusted=%s token_index=%d", ethutil.JoinHex(parsed.trusted), ethutil.JoinHex(parsed.distrusted), parsed.tokenIndex)
	log.Printf("[cfg] verify_origin=%v router=%s token_in=%s amount_in=%s", parsed.verifyOrigin, parsed.router.Hex(), parsed.tokenIn.Hex(), parsed.amountIn)
	log.Printf("[cfg] max_attempts=%d retry_delay=%s gas_limit=%d max_fee=%s tip=%s", parsed.maxAttempts, parsed.retryDelay, parsed.gasLimit, parsed.maxFee, parsed.maxPriority)
	log.Printf("Dry-run: %v", !parsed.enableTrading)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			log.Printf("Shutting down...")
			cancel()
		case <-ctx.Done():
		}
	}()

	m := metrics.New()
	reg := prometheus.NewRegistry()
	if err := m.Register(reg); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	client, err := chain.Dial(ctx, chain.Config{URL: parsed.rpcWs, Key: pk, Metrics: m})
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	defer client.Close()

	chainID := client.ChainID().Int64()
	if !parsed.force {
		if err := state.CheckNotResolved(parsed.outcomeFile, chainID, parsed.deployer.Hex(), parsed.topic.Hex()); err != nil {
			return fmt.Errorf("%w (use --force to run anyway)", err)
		}
	}

	preflight(ctx, client, parsed)

	dispatcher, err := swap.NewDispatcher(swap.Config{
		Router:    parsed.router,
		Recipient: client.From(),
		Gas: chain.GasParams{
			GasLimit:             parsed.gasLimit,
			MaxFeePerGas:         parsed.maxFee,
			MaxPriorityFeePerGas: parsed.maxPriority,
		},
		MaxAttempts: parsed.maxAttempts,
		RetryDelay:  parsed.retryDelay,
	}, client,
		swap.WithMetrics(m),
		swap.WithAttemptHook(func(a swap.Attempt) {
			ev := snipeLogEvent{
				TsMs:     time.Now().UnixMilli(),
				Event:    "swap_attempt",
				Mode:     snipeMode(parsed.enableTrading),
				Attempt:  a.N,
				Category: string(a.Category),
				Ok:       a.Err == nil,
			}
			if a.Err != nil {
				ev.Err = a.Err.Error()
			} else {
				ev.SwapTx = a.TxHash.Hex()
			}
			logSnipeEvent(eventLog, ev)
		}),
	)
	if err != nil {
		return err
	}

	det, err := detector.New(detector.Config{
		Deployer:      parsed.deployer,
		Topic:         parsed.topic,
		Trusted:       parsed.trusted,
		Distrusted:    parsed.distrusted,
		TokenIndex:    parsed.tokenIndex,
		VerifyOrigin:  parsed.verifyOrigin,
		VerifyTimeout: parsed.verifyTimeout,
	}, client, detector.WithMetrics(m))
	if err != nil {
		return err
	}

	var swapTx common.Hash
	consumer := func(ctx context.Context, d detector.Detection) error {
		logSnipeEvent(eventLog, snipeLogEvent{
			TsMs:        time.Now().UnixMilli(),
			Event:       "detected",
			Mode:        snipeMode(parsed.enableTrading),
			Token:       d.Token.Hex(),
			Tier:        d.Tier.String(),
			EventTx:     d.TxHash.Hex(),
			BlockNumber: d.BlockNumber,
			RxMs:        d.ReceivedAtMs,
			DetectLagMs: d.DetectedAt.UnixMilli() - d.ReceivedAtMs,
		})
		if !parsed.enableTrading {
			log.Printf("[swap] dry-run: would swap %s of %s for %s via %s", parsed.amountIn, parsed.tokenIn.Hex(), d.Token.Hex(), parsed.router.Hex())
			return nil
		}
		txHash, err := dispatcher.Dispatch(ctx, parsed.amountIn, parsed.tokenIn, d.Token)
		swapTx = txHash
		return err
	}

	logSnipeEvent(eventLog, snipeLogEvent{
		TsMs:         time.Now().UnixMilli(),
		Event:        "start",
		Mode:         snipeMode(parsed.enableTrading),
		Deployer:     parsed.deployer.Hex(),
		Topic:        parsed.topic.Hex(),
		VerifyOrigin: parsed.verifyOrigin,
		TokenIn:      parsed.tokenIn.Hex(),
		AmountIn:     parsed.amountIn.String(),
	})
	log.Printf("Listening…")

	var detection detector.Detection
	var runErr error
	g, gCtx := errgroup.WithContext(ctx)
	serverCtx, stopServer := context.WithCancel(gCtx)
	defer stopServer()

	if parsed.metricsAddr != "" {
		g.Go(func() error {
			return runMetricsServer(serverCtx, parsed.metricsAddr, reg)
		})
	}
	g.Go(func() error {
		defer stopServer()
		detection, runErr = det.Run(gCtx, consumer)
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if detection.Token == (common.Address{}) {
		if errors.Is(runErr, context.Canceled) {
			return nil
		}
		return runErr
	}

	outcome := state.Outcome{
		ChainID:     chainID,
		Deployer:    parsed.deployer.Hex(),
		Topic:       parsed.topic.Hex(),
		Token:       detection.Token.Hex(),
		Tier:        detection.Tier.String(),
		EventTx:     detection.TxHash.Hex(),
		BlockNumber: detection.BlockNumber,
		DetectedAt:  detection.DetectedAt.UnixMilli(),
		DryRun:      !parsed.enableTrading,
	}
	if swapTx != (common.Hash{}) {
		outcome.SwapTx = swapTx.Hex()
	}
	if runErr != nil {
		outcome.SwapError = runErr.Error()
	}
	if err := state.SaveOutcome(parsed.outcomeFile, outcome); err != nil {
		log.Printf("[warn] save outcome %s: %v", parsed.outcomeFile, err)
	}

	if runErr != nil {
		if errors.Is(runErr, swap.ErrDispatchExhausted) {
			return fmt.Errorf("token %s detected but swap failed: %w", detection.Token.Hex(), runErr)
		}
		if errors.Is(runErr, context.Canceled) {
			log.Printf("[warn] interrupted during swap for token %s", detection.Token.Hex())
			return nil
		}
		return runErr
	}
	if parsed.enableTrading {
		log.Printf("Done: token=%s swap_tx=%s", detection.Token.Hex(), swapTx.Hex())
	} else {
		log.Printf("Done (dry-run): token=%s", detection.Token.Hex())
	}
	return nil
}

// preflight warns when the wallet cannot fund the swap. It never blocks the
// run: balances may be topped up before the launch.
func preflight(ctx context.Context, client *chain.EthClient, parsed args) {
	owner := client.From()
	callCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	bal, err := erc20.BalanceOf(callCtx, client, parsed.tokenIn, owner)
	if err != nil {
		log.Printf("[warn] preflight: %v", err)
	} else if bal.Cmp(parsed.amountIn) < 0 {
		log.Printf("[warn] preflight: token-in balance %s < amount-in %s for %s", bal, parsed.amountIn, owner.Hex())
	}

	allowance, err := erc20.Allowance(callCtx, client, parsed.tokenIn, owner, parsed.router)
	if err != nil {
		log.Printf("[warn] preflight: %v", err)
	} else if allowance.Cmp(parsed.amountIn) < 0 {
		log.Printf("[warn] preflight: router allowance %s < amount-in %s; run approve first", allowance, parsed.amountIn)
	}
	log.Printf("[info] wallet=%s", owner.Hex())
}

func runMetricsServer(ctx context.Context, addr string, reg *prometheus.Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[warn] metrics server shutdown: %v", err)
		}
	}()

	log.Printf("[info] metrics on %s/metrics", addr)
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
