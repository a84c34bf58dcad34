package launchwatch

import (
	"github.com/ethereum/go-ethereum/common"
)

const (
	slotSize = 32

	// MinPayloadLen is a header slot plus one address slot.
	MinPayloadLen = 2 * slotSize

	// MaxAddresses bounds the work done on a malformed or hostile payload.
	MaxAddresses = 10
)

// ExtractAddresses returns the addresses embedded in the 32-byte aligned
// slots of data, in slot order. A slot counts as an address when its 12
// high-order bytes are zero. The zero address is skipped.
//
// Returns nil when data is shorter than MinPayloadLen.
func ExtractAddresses(data []byte) []common.Address {
	if len(data) < MinPayloadLen {
		return nil
	}

	var out []common.Address
	for off := 0; off+slotSize <= len(data) && len(out) < MaxAddresses; off += slotSize {
		slot := data[off : off+slotSize]
		if !zeroPadded(slot[:slotSize-common.AddressLength]) {
			continue
		}
		addr := common.BytesToAddress(slot[slotSize-common.AddressLength:])
		if addr == (common.Address{}) {
			continue
		}
		out = append(out, addr)
	}
	return out
}

func zeroPadded(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
