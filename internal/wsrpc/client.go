package wsrpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/websocket"

	"launch-snipe/internal/backoff"
)

const DefaultPingInterval = 15 * time.Second

// Notification is one eth_subscription push, stamped when the frame was read.
type Notification struct {
	Subscription string
	Result       json.RawMessage
	ReceivedAt   time.Time
}

type Options struct {
	PingInterval time.Duration

	BackoffMin time.Duration
	BackoffMax time.Duration

	OutBuffer int
}

func (o Options) withDefaults() Options {
	if o.PingInterval <= 0 {
		o.PingInterval = DefaultPingInterval
	}
	if o.BackoffMin <= 0 {
		o.BackoffMin = 500 * time.Millisecond
	}
	if o.BackoffMax <= 0 {
		o.BackoffMax = 15 * time.Second
	}
	if o.OutBuffer <= 0 {
		o.OutBuffer = 256
	}
	return o
}

type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type frame struct {
	ID     *uint64         `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *rpcError       `json:"error,omitempty"`
	Params *struct {
		Subscription string          `json:"subscription"`
		Result       json.RawMessage `json:"result"`
	} `json:"params,omitempty"`
}

// Start keeps an eth_subscribe(params...) session open on url, reconnecting
// with backoff, and emits every notification. Both channels close when ctx
// ends. Slow readers lose notifications rather than stall the socket.
func Start(ctx context.Context, url string, params []any, opts Options) (<-chan Notification, <-chan error) {
	opts = opts.withDefaults()
	out := make(chan Notification, opts.OutBuffer)
	errs := make(chan error, 16)

	go func() {
		defer close(out)
		defer close(errs)

		delay := opts.BackoffMin
		for {
			if ctx.Err() != nil {
				return
			}

			conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
			if err != nil {
				emitErrNonBlocking(errs, fmt.Errorf("wsrpc dial %s: %w", url, err))
				_ = backoff.Sleep(ctx, backoff.Jitter(delay))
				delay = backoff.Next(delay, opts.BackoffMax)
				continue
			}

			delay = opts.BackoffMin
			if err := runSession(ctx, conn, params, opts.PingInterval, out, errs); err != nil && ctx.Err() == nil {
				emitErrNonBlocking(errs, err)
			}

			_ = conn.Close()
			if ctx.Err() != nil {
				return
			}
			_ = backoff.Sleep(ctx, backoff.Jitter(delay))
			delay = backoff.Next(delay, opts.BackoffMax)
		}
	}()

	return out, errs
}

func runSession(
	ctx context.Context,
	conn *websocket.Conn,
	params []any,
	pingInterval time.Duration,
	out chan<- Notification,
	errs chan<- error,
) error {
	req, err := json.Marshal(request{JSONRPC: "2.0", ID: 1, Method: "eth_subscribe", Params: params})
	if err != nil {
		return fmt.Errorf("wsrpc subscribe marshal: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, req); err != nil {
		return fmt.Errorf("wsrpc subscribe write: %w", err)
	}

	stop := make(chan struct{})
	defer close(stop)

	go func() {
		t := time.NewTicker(pingInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				_ = conn.Close()
				return
			case <-stop:
				return
			case <-t.C:
				werr := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(3*time.Second))
				if werr != nil {
					emitErrNonBlocking(errs, fmt.Errorf("wsrpc ping: %w", werr))
					_ = conn.Close()
					return
				}
			}
		}
	}()

	subID := ""
	for {
		_, msg, err := conn.ReadMessage()
		receivedAt := time.Now()
		if err != nil {
			if errors.Is(err, websocket.ErrCloseSent) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("wsrpc read: %w", err)
		}

		var f frame
		if err := json.Unmarshal(msg, &f); err != nil {
			emitErrNonBlocking(errs, fmt.Errorf("wsrpc json decode: %w", err))
			continue
		}

		switch {
		case f.ID != nil && *f.ID == 1:
			if f.Error != nil {
				return fmt.Errorf("eth_subscribe: %s (code %d)", f.Error.Message, f.Error.Code)
			}
			if err := json.Unmarshal(f.Result, &subID); err != nil {
				return fmt.Errorf("eth_subscribe result: %w", err)
			}
		case f.Method == "eth_subscription" && f.Params != nil:
			if subID != "" && f.Params.Subscription != subID {
				continue
			}
			select {
			case out <- Notification{Subscription: f.Params.Subscription, Result: f.Params.Result, ReceivedAt: receivedAt}:
			default:
			}
		}
	}
}

// Head is the part of a newHeads notification used for latency comparison.
type Head struct {
	Number uint64
	Hash   common.Hash
}

func DecodeHead(raw json.RawMessage) (Head, error) {
	var h struct {
		Number *hexutil.Uint64 `json:"number"`
		Hash   *common.Hash    `json:"hash"`
	}
	if err := json.Unmarshal(raw, &h); err != nil {
		return Head{}, fmt.Errorf("decode head: %w", err)
	}
	if h.Number == nil || h.Hash == nil {
		return Head{}, fmt.Errorf("decode head: missing number or hash")
	}
	return Head{Number: uint64(*h.Number), Hash: *h.Hash}, nil
}

func emitErrNonBlocking(ch chan<- error, err error) {
	if err == nil {
		return
	}
	select {
	case ch <- err:
	default:
	}
}
