package main

import (
	"sort"
	"sync"
	"time"
)

type stats struct {
	min    int64
	median int64
	p95    int64
	max    int64
}

func summarize(values []int64) stats {
	if len(values) == 0 {
		return stats{}
	}
	sorted := make([]int64, len(values))
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	pick := func(q float64) int64 {
		idx := int(q * float64(len(sorted)))
		if idx >= len(sorted) {
			idx = len(sorted) - 1
		}
		return sorted[idx]
	}
	return stats{
		min:    sorted[0],
		median: pick(0.5),
		p95:    pick(0.95),
		max:    sorted[len(sorted)-1],
	}
}

// ring keeps the most recent samples; older ones are overwritten.
type ring struct {
	buf  []int64
	next int
	full bool
}

func newRing(capacity int) *ring {
	if capacity <= 0 {
		capacity = 4096
	}
	return &ring{buf: make([]int64, capacity)}
}

func (r *ring) add(v int64) {
	r.buf[r.next] = v
	r.next++
	if r.next == len(r.buf) {
		r.next = 0
		r.full = true
	}
}

func (r *ring) values() []int64 {
	if !r.full {
		return append([]int64(nil), r.buf[:r.next]...)
	}
	out := make([]int64, 0, len(r.buf))
	out = append(out, r.buf[r.next:]...)
	return append(out, r.buf[:r.next]...)
}

type endpointStats struct {
	label string
	seen  int64
	wins  int64
	lags  *ring
}

// tracker attributes each notification key (block hash or log id) to the
// endpoint that delivered it first and records how far behind the others were.
type tracker struct {
	mu        sync.Mutex
	endpoints map[string]*endpointStats
	labels    []string
	first     map[string]time.Time
	order     []string
	maxKeys   int
}

func newTracker(labels []string, sampleCap, maxKeys int) *tracker {
	if maxKeys <= 0 {
		maxKeys = 4096
	}
	t := &tracker{
		endpoints: make(map[string]*endpointStats, len(labels)),
		labels:    append([]string(nil), labels...),
		first:     make(map[string]time.Time, maxKeys),
		maxKeys:   maxKeys,
	}
	for _, l := range labels {
		t.endpoints[l] = &endpointStats{label: l, lags: newRing(sampleCap)}
	}
	return t
}

// observe returns the lag behind the first arrival of key and whether this
// endpoint was first.
func (t *tracker) observe(label, key string, at time.Time) (int64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ep, ok := t.endpoints[label]
	if !ok {
		return 0, false
	}
	ep.seen++

	firstAt, ok := t.first[key]
	if !ok {
		t.first[key] = at
		t.order = append(t.order, key)
		if len(t.order) > t.maxKeys {
			delete(t.first, t.order[0])
			t.order = t.order[1:]
		}
		ep.wins++
		ep.lags.add(0)
		return 0, true
	}

	lag := at.Sub(firstAt).Milliseconds()
	if lag < 0 {
		lag = 0
	}
	ep.lags.add(lag)
	return lag, false
}

type endpointSummary struct {
	label string
	seen  int64
	wins  int64
	lag   stats
	n     int
}

func (t *tracker) snapshot() []endpointSummary {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]endpointSummary, 0, len(t.labels))
	for _, l := range t.labels {
		ep := t.endpoints[l]
		vals := ep.lags.values()
		out = append(out, endpointSummary{label: l, seen: ep.seen, wins: ep.wins, lag: summarize(vals), n: len(vals)})
	}
	return out
}
