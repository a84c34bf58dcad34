package main

import (
	"crypto/ecdsa"
	"flag"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"launch-snipe/internal/erc20"
	"launch-snipe/internal/ethutil"
	"launch-snipe/internal/launchwatch"
	"launch-snipe/internal/swap"
)

const (
	defaultDeployer   = "0x71B8EFC8BCaD65a5D9386D07f2Dff57ab4EAf533"
	defaultTopic      = "0xf9d151d23a5253296eb20ab40959cf48828ea2732d337416716e302ed83ca658"
	defaultTrusted    = "0x81F7cA6AF86D1CA6335E44A2C28bC88807491415"
	defaultDistrusted = "0x03Fb99ea8d3A832729a69C3e8273533b52f30D1A"
	defaultTokenIn    = "0x0b3e328455c4059EEb9e3f84b5543F74E24e7E1b"
	defaultAmountIn   = "0.01"

	defaultOutFile     = "./out/snipe.jsonl"
	defaultOutcomeFile = "./out/snipe.outcome.json"
)

type args struct {
	rpcWs         string
	privateKeyHex string

	deployer      common.Address
	topic         common.Hash
	trusted       []common.Address
	distrusted    []common.Address
	tokenIndex    int
	verifyOrigin  bool
	verifyTimeout time.Duration

	router        common.Address
	tokenIn       common.Address
	amountIn      *big.Int
	maxAttempts   int
	retryDelay    time.Duration
	gasLimit      uint64
	maxFee        *big.Int
	maxPriority   *big.Int
	enableTrading bool

	metricsAddr string
	outcomeFile string
	outFile     string
	force       bool
}

func parseArgs() (args, error) {
	return parseArgsFrom(flag.CommandLine, os.Args[1:])
}

func parseArgsFrom(fs *flag.FlagSet, argv []string) (args, error) {
	var rpcWsFlag string
	var privateKeyFlag string
	var deployerFlag string
	var topicFlag string
	var trustedFlag string
	var distrustedFlag string
	var tokenIndexFlag int
	var verifyOriginFlag bool
	var verifyTimeoutFlag time.Duration

	var routerFlag string
	var tokenInFlag string
	var amountInFlag string
	var amountDecimalsFlag uint
	var maxAttemptsFlag int
	var retryDelayFlag time.Duration
	var gasLimitFlag uint64
	var maxFeeFlag string
	var maxPriorityFlag string
	var enableTradingFlag bool

	var metricsAddrFlag string
	var outcomeFlag string
	var outFlag string
	var forceFlag bool

	tokenIndexDefault, err := envInt("TOKEN_INDEX", launchwatch.DefaultTokenIndex)
	if err != nil {
		return args{}, err
	}
	verifyOriginDefault, err := envBool("VERIFY_ORIGIN", true)
	if err != nil {
		return args{}, err
	}
	maxAttemptsDefault, err := envInt("SWAP_MAX_ATTEMPTS", swap.DefaultMaxAttempts)
	if err != nil {
		return args{}, err
	}
	retryDelayDefault, err := envDuration("SWAP_RETRY_DELAY", swap.DefaultRetryDelay)
	if err != nil {
		return args{}, err
	}
	gasLimitDefault, err := envUint64("GAS_LIMIT", swap.DefaultGasLimit)
	if err != nil {
		return args{}, err
	}
	enableTradingDefault, err := envBool("ENABLE_TRADING", false)
	if err != nil {
		return args{}, err
	}

	fs.StringVar(&rpcWsFlag, "rpc-ws", "", "WebSocket RPC URL (wss://...) (or RPC_WS_URL/WSS_URL)")
	fs.StringVar(&privateKeyFlag, "private-key", "", "Private key hex (0x...) (or PRIVATE_KEY env)")
	fs.StringVar(&deployerFlag, "deployer", "", "Deployer contract emitting the launch event (or DEPLOYER_ADDRESS)")
	fs.StringVar(&topicFlag, "topic", "", "Launch event topic0 (or TARGET_TOPIC)")
	fs.StringVar(&trustedFlag, "trusted", "", "Trusted caller address(es), comma/space-separated (or TRUSTED_CALLERS)")
	fs.StringVar(&distrustedFlag, "distrusted", "", "Distrusted caller address(es), comma/space-separated (or DISTRUSTED_CALLERS)")
	fs.IntVar(&tokenIndexFlag, "token-index", tokenIndexDefault, "Index of the launched token among payload addresses")
	fs.BoolVar(&verifyOriginFlag, "verify-origin", verifyOriginDefault, "Look up the tx signer of unverified events instead of trusting them")
	fs.DurationVar(&verifyTimeoutFlag, "verify-timeout", 3*time.Second, "Timeout for one origin lookup")

	fs.StringVar(&routerFlag, "router", "", "Swap router address (or ROUTER_ADDRESS/UNISWAP_ROUTER_ADDRESS)")
	fs.StringVar(&tokenInFlag, "token-in", "", "Token spent by the swap (or TOKEN_IN)")
	fs.StringVar(&amountInFlag, "amount-in", "", "Amount of token-in to spend, in token units (or AMOUNT_IN; default 0.01)")
	fs.UintVar(&amountDecimalsFlag, "amount-decimals", 18, "Decimals of token-in used to scale --amount-in")
	fs.IntVar(&maxAttemptsFlag, "max-attempts", maxAttemptsDefault, "Swap submission attempts before giving up")
	fs.DurationVar(&retryDelayFlag, "retry-delay", retryDelayDefault, "Delay between swap submission attempts")
	fs.Uint64Var(&gasLimitFlag, "gas-limit", gasLimitDefault, "Gas limit for the swap transaction")
	fs.StringVar(&maxFeeFlag, "max-fee-gwei", "", "Max fee per gas in gwei (or MAX_FEE_GWEI; default 4)")
	fs.StringVar(&maxPriorityFlag, "max-priority-fee-gwei", "", "Max priority fee per gas in gwei (or MAX_PRIORITY_FEE_GWEI; default 2)")
	fs.BoolVar(&enableTradingFlag, "enable-trading", enableTradingDefault, "Actually submit the swap (default is dry-run)")

	fs.StringVar(&metricsAddrFlag, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9100 (or METRICS_ADDR)")
	fs.StringVar(&outcomeFlag, "outcome-file", "", "Outcome path (or OUTCOME_FILE; default "+defaultOutcomeFile+")")
	fs.StringVar(&outFlag, "out", "", "JSONL event log path (or SNIPE_OUT_FILE; default "+defaultOutFile+")")
	fs.BoolVar(&forceFlag, "force", false, "Run even if the outcome file already records this launch")

	if err := fs.Parse(argv); err != nil {
		return args{}, err
	}

	rpcWs := strings.TrimSpace(firstNonEmpty(rpcWsFlag, os.Getenv("RPC_WS_URL"), os.Getenv("WSS_URL")))
	if rpcWs == "" {
		return args{}, fmt.Errorf("rpc ws required via --rpc-ws or RPC_WS_URL/WSS_URL")
	}
	if !strings.HasPrefix(rpcWs, "ws") {
		return args{}, fmt.Errorf("rpc-ws must be ws(s)://... (got %q)", rpcWs)
	}

	pkHex := strings.TrimSpace(firstNonEmpty(privateKeyFlag, os.Getenv("PRIVATE_KEY")))
	if pkHex == "" {
		return args{}, fmt.Errorf("private key required (set --private-key or PRIVATE_KEY)")
	}

	deployer, err := ethutil.ParseAddress(firstNonEmpty(deployerFlag, os.Getenv("DEPLOYER_ADDRESS"), defaultDeployer))
	if err != nil {
		return args{}, fmt.Errorf("invalid deployer: %w", err)
	}
	topic, err := ethutil.ParseHash(firstNonEmpty(topicFlag, os.Getenv("TARGET_TOPIC"), defaultTopic))
	if err != nil {
		return args{}, fmt.Errorf("invalid topic: %w", err)
	}

	trustedRaw := firstNonEmpty(trustedFlag, os.Getenv("TRUSTED_CALLERS"), defaultTrusted)
	trusted, err := ethutil.ParseAddressList(trustedRaw)
	if err != nil {
		return args{}, fmt.Errorf("invalid trusted list: %w", err)
	}
	distrustedRaw := firstNonEmpty(distrustedFlag, os.Getenv("DISTRUSTED_CALLERS"), defaultDistrusted)
	distrusted, err := ethutil.ParseAddressList(distrustedRaw)
	if err != nil {
		return args{}, fmt.Errorf("invalid distrusted list: %w", err)
	}

	routerRaw := firstNonEmpty(routerFlag, os.Getenv("ROUTER_ADDRESS"), os.Getenv("UNISWAP_ROUTER_ADDRESS"))
	if strings.TrimSpace(routerRaw) == "" {
		return args{}, fmt.Errorf("router required via --router or ROUTER_ADDRESS/UNISWAP_ROUTER_ADDRESS")
	}
	router, err := ethutil.ParseAddress(routerRaw)
	if err != nil {
		return args{}, fmt.Errorf("invalid router: %w", err)
	}
	tokenIn, err := ethutil.ParseAddress(firstNonEmpty(tokenInFlag, os.Getenv("TOKEN_IN"), defaultTokenIn))
	if err != nil {
		return args{}, fmt.Errorf("invalid token-in: %w", err)
	}

	if amountDecimalsFlag > 77 {
		return args{}, fmt.Errorf("amount-decimals out of range: %d", amountDecimalsFlag)
	}
	amountIn, err := erc20.ParseUnits(firstNonEmpty(amountInFlag, os.Getenv("AMOUNT_IN"), defaultAmountIn), uint8(amountDecimalsFlag))
	if err != nil {
		return args{}, fmt.Errorf("invalid amount-in: %w", err)
	}
	if amountIn.Sign() == 0 {
		return args{}, fmt.Errorf("amount-in must be > 0")
	}

	maxFee, err := erc20.ParseUnits(firstNonEmpty(maxFeeFlag, os.Getenv("MAX_FEE_GWEI"), "4"), 9)
	if err != nil {
		return args{}, fmt.Errorf("invalid max-fee-gwei: %w", err)
	}
	maxPriority, err := erc20.ParseUnits(firstNonEmpty(maxPriorityFlag, os.Getenv("MAX_PRIORITY_FEE_GWEI"), "2"), 9)
	if err != nil {
		return args{}, fmt.Errorf("invalid max-priority-fee-gwei: %w", err)
	}
	if maxPriority.Cmp(maxFee) > 0 {
		return args{}, fmt.Errorf("max priority fee (%s wei) exceeds max fee (%s wei)", maxPriority, maxFee)
	}

	if maxAttemptsFlag <= 0 {
		return args{}, fmt.Errorf("max-attempts must be > 0, got %d", maxAttemptsFlag)
	}
	if gasLimitFlag == 0 {
		return args{}, fmt.Errorf("gas-limit must be > 0")
	}
	if retryDelayFlag < 0 {
		return args{}, fmt.Errorf("retry-delay must be >= 0, got %s", retryDelayFlag)
	}

	return args{
		rpcWs:         rpcWs,
		privateKeyHex: pkHex,
		deployer:      deployer,
		topic:         topic,
		trusted:       trusted,
		distrusted:    distrusted,
		tokenIndex:    tokenIndexFlag,
		verifyOrigin:  verifyOriginFlag,
		verifyTimeout: verifyTimeoutFlag,
		router:        router,
		tokenIn:       tokenIn,
		amountIn:      amountIn,
		maxAttempts:   maxAttemptsFlag,
		retryDelay:    retryDelayFlag,
		gasLimit:      gasLimitFlag,
		maxFee:        maxFee,
		maxPriority:   maxPriority,
		enableTrading: enableTradingFlag,
		metricsAddr:   strings.TrimSpace(firstNonEmpty(metricsAddrFlag, os.Getenv("METRICS_ADDR"))),
		outcomeFile:   strings.TrimSpace(firstNonEmpty(outcomeFlag, os.Getenv("OUTCOME_FILE"), defaultOutcomeFile)),
		outFile:       strings.TrimSpace(firstNonEmpty(outFlag, os.Getenv("SNIPE_OUT_FILE"), defaultOutFile)),
		force:         forceFlag,
	}, nil
}

func envInt(key string, def int) (int, error) {
	env := strings.TrimSpace(os.Getenv(key))
	if env == "" {
		return def, nil
	}
	v, err := strconv.Atoi(env)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, env, err)
	}
	return v, nil
}

func envUint64(key string, def uint64) (uint64, error) {
	env := strings.TrimSpace(os.Getenv(key))
	if env == "" {
		return def, nil
	}
	v, err := strconv.ParseUint(env, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, env, err)
	}
	return v, nil
}

func envBool(key string, def bool) (bool, error) {
	env := strings.TrimSpace(os.Getenv(key))
	if env == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(env)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, env, err)
	}
	return v, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	env := strings.TrimSpace(os.Getenv(key))
	if env == "" {
		return def, nil
	}
	v, err := time.ParseDuration(env)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, env, err)
	}
	return v, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func parsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	hexKey = strings.TrimSpace(hexKey)
	if hexKey == "" {
		return nil, fmt.Errorf("private key missing")
	}
	hexKey = strings.TrimPrefix(hexKey, "0x")
	pk, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return pk, nil
}
