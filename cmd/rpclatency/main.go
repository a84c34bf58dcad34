package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"launch-snipe/internal/dotenv"
	"launch-snipe/internal/ethutil"
	"launch-snipe/internal/jsonl"
	"launch-snipe/internal/wsrpc"
)

type args struct {
	urls       []string
	labels     []string
	mode       string
	deployer   common.Address
	topic      common.Hash
	duration   time.Duration
	printEvery time.Duration
	sampleCap  int
	outFile    string
}

func parseArgs() (args, error) {
	var urlsFlag string
	var modeFlag string
	var deployerFlag string
	var topicFlag string
	var durationFlag time.Duration
	var printEveryFlag time.Duration
	var sampleCapFlag int
	var outFlag string

	flag.StringVar(&urlsFlag, "urls", "", "WebSocket RPC URLs to compare, comma-separated (or RPC_WS_URLS; falls back to RPC_WS_URL)")
	flag.StringVar(&modeFlag, "mode", "newHeads", "Subscription to race: newHeads or logs")
	flag.StringVar(&deployerFlag, "deployer", "", "Log emitter for --mode logs (or DEPLOYER_ADDRESS)")
	flag.StringVar(&topicFlag, "topic", "", "Log topic0 for --mode logs (or TARGET_TOPIC)")
	flag.DurationVar(&durationFlag, "duration", 2*time.Minute, "How long to run (0 = until Ctrl+C)")
	flag.DurationVar(&printEveryFlag, "print-every", 15*time.Second, "Summary interval")
	flag.IntVar(&sampleCapFlag, "sample-cap", 4096, "Lag samples kept per endpoint")
	flag.StringVar(&outFlag, "out", "", "Optional JSONL file with one row per notification")
	flag.Parse()

	raw := firstNonEmpty(urlsFlag, os.Getenv("RPC_WS_URLS"), os.Getenv("RPC_WS_URL"))
	var urls []string
	for _, u := range strings.Split(raw, ",") {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}
	if len(urls) == 0 {
		return args{}, fmt.Errorf("at least one url required via --urls or RPC_WS_URLS")
	}
	labels, err := endpointLabels(urls)
	if err != nil {
		return args{}, err
	}

	a := args{
		urls:       urls,
		labels:     labels,
		mode:       modeFlag,
		duration:   durationFlag,
		printEvery: printEveryFlag,
		sampleCap:  sampleCapFlag,
		outFile:    strings.TrimSpace(outFlag),
	}
	switch modeFlag {
	case "newHeads":
	case "logs":
		a.deployer, err = ethutil.ParseAddress(firstNonEmpty(deployerFlag, os.Getenv("DEPLOYER_ADDRESS")))
		if err != nil {
			return args{}, fmt.Errorf("deployer: %w", err)
		}
		a.topic, err = ethutil.ParseHash(firstNonEmpty(topicFlag, os.Getenv("TARGET_TOPIC")))
		if err != nil {
			return args{}, fmt.Errorf("topic: %w", err)
		}
	default:
		return args{}, fmt.Errorf("unsupported mode %q (use newHeads or logs)", modeFlag)
	}
	if a.printEvery <= 0 {
		a.printEvery = 15 * time.Second
	}
	return a, nil
}

// endpointLabels names each URL by host, suffixing duplicates with #n.
func endpointLabels(urls []string) ([]string, error) {
	out := make([]string, 0, len(urls))
	counts := make(map[string]int, len(urls))
	for _, raw := range urls {
		u, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid url %q: %w", raw, err)
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return nil, fmt.Errorf("url must be ws(s)://..., got %q", raw)
		}
		label := u.Host
		counts[label]++
		if n := counts[label]; n > 1 {
			label = fmt.Sprintf("%s#%d", label, n)
		}
		out = append(out, label)
	}
	return out, nil
}

func (a args) subscribeParams() []any {
	if a.mode == "logs" {
		return []any{"logs", map[string]any{
			"address": a.deployer.Hex(),
			"topics":  []string{a.topic.Hex()},
		}}
	}
	return []any{"newHeads"}
}

// notificationKey identifies the same chain object across endpoints.
func notificationKey(mode string, raw json.RawMessage) (string, error) {
	if mode != "logs" {
		h, err := wsrpc.DecodeHead(raw)
		if err != nil {
			return "", err
		}
		return h.Hash.Hex(), nil
	}
	var l struct {
		TxHash   *common.Hash    `json:"transactionHash"`
		LogIndex *hexutil.Uint64 `json:"logIndex"`
		Removed  bool            `json:"removed"`
	}
	if err := json.Unmarshal(raw, &l); err != nil {
		return "", fmt.Errorf("decode log: %w", err)
	}
	if l.TxHash == nil || l.LogIndex == nil {
		return "", fmt.Errorf("decode log: missing transactionHash or logIndex")
	}
	return fmt.Sprintf("%s:%d:%v", l.TxHash.Hex(), uint64(*l.LogIndex), l.Removed), nil
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.LUTC)
	log.SetOutput(os.Stdout)

	if err := dotenv.Load(); err != nil {
		log.Printf("[warn] %v", err)
	}

	parsed, err := parseArgs()
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx := baseCtx
	if parsed.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(baseCtx, parsed.duration)
		defer cancel()
	}

	samples, err := jsonl.Open(parsed.outFile)
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}
	defer func() {
		if err := samples.Close(); err != nil {
			log.Printf("[warn] sample log close: %v", err)
		}
	}()

	log.Printf("RPC latency probe starting")
	log.Printf("Mode: %s", parsed.mode)
	log.Printf("Duration: %s (Ctrl+C to stop early)", parsed.duration)
	for i, u := range parsed.urls {
		log.Printf("Endpoint %s: %s", parsed.labels[i], u)
	}

	t := newTracker(parsed.labels, parsed.sampleCap, 0)
	params := parsed.subscribeParams()

	var wg sync.WaitGroup
	for i := range parsed.urls {
		label, endpoint := parsed.labels[i], parsed.urls[i]
		wg.Add(1)
		go func() {
			defer wg.Done()
			probe(ctx, label, endpoint, parsed.mode, params, t, samples)
		}()
	}

	printTicker := time.NewTicker(parsed.printEvery)
	defer printTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			log.Printf("Final summary:")
			printSummary(t)
			return
		case <-printTicker.C:
			printSummary(t)
		}
	}
}

func probe(ctx context.Context, label, endpoint, mode string, params []any, t *tracker, samples *jsonl.Writer) {
	notes, errs := wsrpc.Start(ctx, endpoint, params, wsrpc.Options{})
	for notes != nil || errs != nil {
		select {
		case n, ok := <-notes:
			if !ok {
				notes = nil
				continue
			}
			key, err := notificationKey(mode, n.Result)
			if err != nil {
				log.Printf("[warn] %s: %v", label, err)
				continue
			}
			lag, first := t.observe(label, key, n.ReceivedAt)
			if err := samples.Event("notification", map[string]any{
				"endpoint": label,
				"key":      key,
				"rx_ms":    n.ReceivedAt.UnixMilli(),
				"lag_ms":   lag,
				"first":    first,
			}); err != nil {
				log.Printf("[warn] sample log write failed: %v", err)
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if ctx.Err() == nil {
				log.Printf("[warn] %s: %v", label, err)
			}
		}
	}
}

func printSummary(t *tracker) {
	for _, s := range t.snapshot() {
		winPct := 0.0
		if s.seen > 0 {
			winPct = float64(s.wins) * 100 / float64(s.seen)
		}
		log.Printf("%-32s seen=%-6d first=%-6d (%.1f%%) lag_ms min/med/p95/max=%d/%d/%d/%d (n=%d)",
			s.label, s.seen, s.wins, winPct, s.lag.min, s.lag.median, s.lag.p95, s.lag.max, s.n)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
