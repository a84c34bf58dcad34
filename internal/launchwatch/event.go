package launchwatch

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// LaunchEvent is one delivered log of the target launch event.
type LaunchEvent struct {
	TxHash       common.Hash
	BlockHash    common.Hash
	BlockNumber  uint64
	LogIndex     uint
	Removed      bool
	ReceivedAtMs int64

	Data []byte
}

func FromLog(vLog types.Log, receivedAtMs int64) LaunchEvent {
	return LaunchEvent{
		TxHash:       vLog.TxHash,
		BlockHash:    vLog.BlockHash,
		BlockNumber:  vLog.BlockNumber,
		LogIndex:     vLog.Index,
		Removed:      vLog.Removed,
		ReceivedAtMs: receivedAtMs,
		Data:         vLog.Data,
	}
}

// Matches reports whether vLog belongs to the target event. Providers that
// multiplex subscriptions occasionally leak unrelated logs.
func Matches(vLog types.Log, deployer common.Address, topic common.Hash) bool {
	if vLog.Address != deployer {
		return false
	}
	return len(vLog.Topics) > 0 && vLog.Topics[0] == topic
}
