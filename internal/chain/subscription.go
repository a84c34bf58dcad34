package chain

import (
	"context"
	"log"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"

	"launch-snipe/internal/backoff"
	"launch-snipe/internal/metrics"
)

type logFilterer interface {
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// logConn is the part of a connection a subscription uses.
type logConn interface {
	logFilterer
	SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

type subscription struct {
	query ethereum.FilterQuery
	onLog func(types.Log)
	cur   cursor

	// redial returns a connection newer than generation stale.
	redial    func(ctx context.Context, stale uint64) (logConn, uint64, error)
	baseDelay time.Duration
	maxDelay  time.Duration
	metrics   *metrics.Metrics
}

func (s *subscription) run(ctx context.Context, gen uint64, sub ethereum.Subscription, logsCh chan types.Log) {
	for {
		needsReconnect := false
		for !needsReconnect {
			select {
			case <-ctx.Done():
				sub.Unsubscribe()
				return

			case err := <-sub.Err():
				if err != nil {
					log.Printf("[warn] log subscription error: %v", err)
				} else {
					log.Printf("[warn] log subscription ended")
				}
				needsReconnect = true

			case vLog := <-logsCh:
				s.deliver(ctx, vLog)
			}
		}
		sub.Unsubscribe()

		var err error
		gen, sub, logsCh, err = s.resubscribe(ctx, gen)
		if err != nil {
			return
		}
	}
}

func (s *subscription) deliver(ctx context.Context, vLog types.Log) {
	if ctx.Err() != nil {
		return
	}
	s.cur.advance(vLog)
	s.onLog(vLog)
}

// resubscribe redials, subscribes again and then replays logs mined since the
// cursor. Live logs that overlap the replay are delivered twice; subscribers
// deduplicate by transaction.
func (s *subscription) resubscribe(ctx context.Context, stale uint64) (uint64, ethereum.Subscription, chan types.Log, error) {
	delay := s.baseDelay
	for {
		conn, gen, err := s.redial(ctx, stale)
		if err != nil {
			return 0, nil, nil, err
		}

		logsCh := make(chan types.Log, 256)
		sub, err := conn.SubscribeFilterLogs(ctx, s.query, logsCh)
		if err == nil {
			var head uint64
			head, err = conn.BlockNumber(ctx)
			if err == nil {
				err = s.backfill(ctx, conn, s.cur.gapFrom(), head)
			}
			if err == nil {
				return gen, sub, logsCh, nil
			}
			sub.Unsubscribe()
		}
		if ctx.Err() != nil {
			return 0, nil, nil, ctx.Err()
		}

		stale = gen
		wait := backoff.Jitter(delay)
		log.Printf("[warn] resubscribe failed, retrying in %s: %v", wait, err)
		if err := backoff.Sleep(ctx, wait); err != nil {
			return 0, nil, nil, err
		}
		delay = backoff.Next(delay, s.maxDelay)
	}
}

func (s *subscription) backfill(ctx context.Context, f logFilterer, from, to uint64) error {
	if from > to {
		return nil
	}
	log.Printf("[warn] gap-filling missed logs [%d..%d]...", from, to)
	logs, err := fetchLogs(ctx, f, s.query, from, to)
	if err != nil {
		return err
	}
	n := 0
	for _, vLog := range logs {
		if s.cur.covers(vLog) {
			continue
		}
		n++
		s.deliver(ctx, vLog)
	}
	s.metrics.AddBackfilled(n)
	return nil
}

// fetchLogs runs q over [from..to] in chunks, shrinking the chunk when the
// provider rejects the range. Logs come back in chain order.
func fetchLogs(ctx context.Context, f logFilterer, q ethereum.FilterQuery, from, to uint64) ([]types.Log, error) {
	if from > to {
		return nil, nil
	}

	const maxInitialChunk uint64 = 2000
	chunk := to - from + 1
	if chunk > maxInitialChunk {
		chunk = maxInitialChunk
	}

	var out []types.Log
	for start := from; start <= to; {
		end := start + chunk - 1
		if end > to {
			end = to
		}

		query := q
		query.FromBlock = new(big.Int).SetUint64(start)
		query.ToBlock = new(big.Int).SetUint64(end)

		logs, err := f.FilterLogs(ctx, query)
		if err != nil {
			if limit, ok := parseRangeLimit(err); ok && limit > 0 && limit < chunk {
				chunk = limit
				log.Printf("[warn] eth_getLogs range limit detected, retrying with chunk=%d blocks", chunk)
				continue
			}
			if chunk > 1 {
				chunk /= 2
				log.Printf("[warn] backfill query failed, retrying with chunk=%d blocks: %v", chunk, err)
				continue
			}
			return nil, err
		}

		out = append(out, logs...)
		start = end + 1
	}

	sortLogs(out)
	return out, nil
}
