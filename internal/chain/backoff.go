package chain

import (
	"strconv"
	"strings"
	"time"
)

const (
	defaultBaseDelay = time.Second
	defaultMaxDelay  = 30 * time.Second
)

func normalizeDelays(base, max time.Duration) (time.Duration, time.Duration) {
	if base <= 0 {
		base = defaultBaseDelay
	}
	if max <= 0 {
		max = defaultMaxDelay
	}
	if max < base {
		max = base
	}
	return base, max
}

// parseRangeLimit extracts the block range limit some providers report when
// eth_getLogs spans too many blocks ("... limited to a 1000 block range").
func parseRangeLimit(err error) (uint64, bool) {
	if err == nil {
		return 0, false
	}
	const marker = "limited to a "
	s := err.Error()
	idx := strings.Index(s, marker)
	if idx < 0 {
		return 0, false
	}
	rest := s[idx+len(marker):]
	j := 0
	for j < len(rest) && rest[j] >= '0' && rest[j] <= '9' {
		j++
	}
	if j == 0 {
		return 0, false
	}
	limit, parseErr := strconv.ParseUint(rest[:j], 10, 64)
	if parseErr != nil {
		return 0, false
	}
	return limit, true
}
