package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"launch-snipe/internal/backoff"
	"launch-snipe/internal/metrics"
)

var (
	ErrNoClient = errors.New("chain client not connected")
	ErrNoSigner = errors.New("no signing key configured")
)

// Call is a contract call to be signed and broadcast.
type Call struct {
	To    common.Address
	Data  []byte
	Value *big.Int
}

// GasParams are EIP-1559 fee settings. Nil caps are suggested by the node and
// a zero limit is estimated.
type GasParams struct {
	GasLimit             uint64
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

type Config struct {
	URL string
	// Key signs submitted transactions. Read-only clients leave it nil.
	Key       *ecdsa.PrivateKey
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Metrics   *metrics.Metrics
}

// EthClient is the chain boundary over a go-ethereum websocket connection. Broken
// subscriptions redial with jittered exponential backoff and replay the logs
// mined while disconnected.
type EthClient struct {
	cfg     Config
	chainID *big.Int
	from    common.Address

	dialMu sync.Mutex
	mu     sync.RWMutex
	conn   *ethclient.Client
	gen    uint64
	closed bool

	subsMu  sync.Mutex
	subs    map[uint64]context.CancelFunc
	nextSub uint64
	wg      sync.WaitGroup
}

func Dial(ctx context.Context, cfg Config) (*EthClient, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("rpc url required")
	}
	cfg.BaseDelay, cfg.MaxDelay = normalizeDelays(cfg.BaseDelay, cfg.MaxDelay)

	c := &EthClient{cfg: cfg, subs: make(map[uint64]context.CancelFunc)}
	conn, head, err := c.dialWithBackoff(ctx)
	if err != nil {
		return nil, err
	}
	chainID, err := conn.ChainID(ctx)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("fetch chain id: %w", err)
	}
	c.conn = conn
	c.gen = 1
	c.chainID = chainID
	if cfg.Key != nil {
		c.from = crypto.PubkeyToAddress(cfg.Key.PublicKey)
	}
	log.Printf("[info] connected chain_id=%s head=%d", chainID, head)
	return c, nil
}

func (c *EthClient) ChainID() *big.Int { return new(big.Int).Set(c.chainID) }

// From is the signer address, zero for read-only clients.
func (c *EthClient) From() common.Address { return c.from }

func (c *EthClient) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.UnsubscribeAll()
	c.wg.Wait()

	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()
}

func (c *EthClient) current() (*ethclient.Client, uint64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed || c.conn == nil {
		return nil, 0, ErrNoClient
	}
	return c.conn, c.gen, nil
}

func (c *EthClient) dialWithBackoff(ctx context.Context) (*ethclient.Client, uint64, error) {
	delay := c.cfg.BaseDelay
	for {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}

		conn, err := ethclient.DialContext(ctx, c.cfg.URL)
		if err == nil {
			head, headErr := conn.BlockNumber(ctx)
			if headErr == nil {
				return conn, head, nil
			}
			conn.Close()
			err = fmt.Errorf("failed to fetch head: %w", headErr)
		}

		wait := backoff.Jitter(delay)
		log.Printf("[warn] failed to connect rpc ws, retrying in %s: %v", wait, err)
		if err := backoff.Sleep(ctx, wait); err != nil {
			return nil, 0, err
		}
		delay = backoff.Next(delay, c.cfg.MaxDelay)
	}
}

// redial replaces the connection of generation stale. Callers racing on the
// same broken connection share one dial.
func (c *EthClient) redial(ctx context.Context, stale uint64) (*ethclient.Client, uint64, error) {
	c.dialMu.Lock()
	defer c.dialMu.Unlock()

	c.mu.RLock()
	conn, gen, closed := c.conn, c.gen, c.closed
	c.mu.RUnlock()
	if closed {
		return nil, 0, ErrNoClient
	}
	if gen != stale && conn != nil {
		return conn, gen, nil
	}

	log.Printf("[warn] reconnecting rpc ws…")
	next, head, err := c.dialWithBackoff(ctx)
	if err != nil {
		return nil, 0, err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		next.Close()
		return nil, 0, ErrNoClient
	}
	old := c.conn
	c.conn = next
	c.gen++
	gen = c.gen
	c.mu.Unlock()

	if old != nil {
		old.Close()
	}
	c.cfg.Metrics.IncReconnect()
	log.Printf("[warn] reconnected (head=%d)", head)
	return next, gen, nil
}

// Subscribe returns once the first subscription is live. onLog is called
// sequentially from a background goroutine until ctx ends or UnsubscribeAll
// is called.
func (c *EthClient) Subscribe(ctx context.Context, contract common.Address, topic common.Hash, onLog func(types.Log)) error {
	if onLog == nil {
		return fmt.Errorf("log handler required")
	}
	conn, gen, err := c.current()
	if err != nil {
		return err
	}

	subCtx, cancel := context.WithCancel(ctx)
	s := &subscription{
		query: ethereum.FilterQuery{
			Addresses: []common.Address{contract},
			Topics:    [][]common.Hash{{topic}},
		},
		onLog: onLog,
		redial: func(ctx context.Context, stale uint64) (logConn, uint64, error) {
			next, gen, err := c.redial(ctx, stale)
			if err != nil {
				return nil, 0, err
			}
			return next, gen, nil
		},
		baseDelay: c.cfg.BaseDelay,
		maxDelay:  c.cfg.MaxDelay,
		metrics:   c.cfg.Metrics,
	}

	head, err := conn.BlockNumber(subCtx)
	if err != nil {
		cancel()
		return fmt.Errorf("fetch head: %w", err)
	}
	logsCh := make(chan types.Log, 256)
	sub, err := conn.SubscribeFilterLogs(subCtx, s.query, logsCh)
	if err != nil {
		cancel()
		return fmt.Errorf("subscribe logs: %w", err)
	}
	s.cur = liveCursor(head)

	id, ok := c.register(cancel)
	if !ok {
		sub.Unsubscribe()
		cancel()
		return ErrNoClient
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.unregister(id)
		defer cancel()
		s.run(subCtx, gen, sub, logsCh)
	}()
	return nil
}

func (c *EthClient) register(cancel context.CancelFunc) (uint64, bool) {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return 0, false
	}

	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	c.nextSub++
	c.subs[c.nextSub] = cancel
	return c.nextSub, true
}

func (c *EthClient) unregister(id uint64) {
	c.subsMu.Lock()
	delete(c.subs, id)
	c.subsMu.Unlock()
}

// UnsubscribeAll stops every subscription without waiting. Safe to call
// repeatedly and from within onLog.
func (c *EthClient) UnsubscribeAll() {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	for id, cancel := range c.subs {
		cancel()
		delete(c.subs, id)
	}
}

func (c *EthClient) TransactionOrigin(ctx context.Context, txHash common.Hash) (common.Address, error) {
	conn, _, err := c.current()
	if err != nil {
		return common.Address{}, err
	}
	tx, _, err := conn.TransactionByHash(ctx, txHash)
	if err != nil {
		return common.Address{}, fmt.Errorf("get tx %s: %w", txHash.Hex(), err)
	}
	from, err := types.Sender(types.LatestSignerForChainID(c.chainID), tx)
	if err != nil {
		return common.Address{}, fmt.Errorf("recover sender tx=%s: %w", txHash.Hex(), err)
	}
	return from, nil
}

// Transact signs and broadcasts call and returns the sent transaction.
func (c *EthClient) Transact(ctx context.Context, call Call, gas GasParams) (*types.Transaction, error) {
	if c.cfg.Key == nil {
		return nil, ErrNoSigner
	}
	conn, _, err := c.current()
	if err != nil {
		return nil, err
	}

	opts, err := bind.NewKeyedTransactorWithChainID(c.cfg.Key, c.chainID)
	if err != nil {
		return nil, fmt.Errorf("build transactor: %w", err)
	}
	opts.Context = ctx
	opts.Value = call.Value
	opts.GasLimit = gas.GasLimit
	opts.GasFeeCap = gas.MaxFeePerGas
	opts.GasTipCap = gas.MaxPriorityFeePerGas

	contract := bind.NewBoundContract(call.To, abi.ABI{}, conn, conn, conn)
	tx, err := contract.RawTransact(opts, call.Data)
	if err != nil {
		return nil, fmt.Errorf("send tx to=%s: %w", call.To.Hex(), err)
	}
	return tx, nil
}

func (c *EthClient) SubmitTransaction(ctx context.Context, call Call, gas GasParams) (common.Hash, error) {
	tx, err := c.Transact(ctx, call, gas)
	if err != nil {
		return common.Hash{}, err
	}
	return tx.Hash(), nil
}

// WaitMined blocks until the transaction is included and returns its receipt.
func (c *EthClient) WaitMined(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	conn, _, err := c.current()
	if err != nil {
		return nil, err
	}
	tx, _, err := conn.TransactionByHash(ctx, txHash)
	if err != nil {
		return nil, fmt.Errorf("get tx %s: %w", txHash.Hex(), err)
	}
	return bind.WaitMined(ctx, conn, tx)
}

// CallContract executes a read-only call against the latest block.
func (c *EthClient) CallContract(ctx context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	conn, _, err := c.current()
	if err != nil {
		return nil, err
	}
	return conn.CallContract(ctx, msg, block)
}
