package chain

import (
	"sort"

	"github.com/ethereum/go-ethereum/core/types"
)

// cursor is the position of the last log handed to a subscriber.
type cursor struct {
	block uint64
	index uint
	set   bool
}

// liveCursor marks every log of block as delivered, so backfill starts at the
// following block.
func liveCursor(block uint64) cursor {
	return cursor{block: block, index: ^uint(0), set: true}
}

func (c cursor) covers(vLog types.Log) bool {
	if !c.set {
		return false
	}
	if vLog.BlockNumber != c.block {
		return vLog.BlockNumber < c.block
	}
	return vLog.Index <= c.index
}

func (c *cursor) advance(vLog types.Log) {
	if c.covers(vLog) {
		return
	}
	c.block = vLog.BlockNumber
	c.index = vLog.Index
	c.set = true
}

// gapFrom is the first block that may hold logs the subscriber has not seen.
func (c cursor) gapFrom() uint64 {
	if c.index == ^uint(0) {
		return c.block + 1
	}
	return c.block
}

func sortLogs(logs []types.Log) {
	sort.Slice(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		return logs[i].Index < logs[j].Index
	})
}
