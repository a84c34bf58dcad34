package launchwatch

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

func addrSlot(a common.Address) []byte {
	return common.LeftPadBytes(a.Bytes(), 32)
}

func uintSlot(v uint64) []byte {
	return new(big.Int).SetUint64(v).FillBytes(make([]byte, 32))
}

func payload(slots ...[]byte) []byte {
	var out []byte
	for _, s := range slots {
		out = append(out, s...)
	}
	return out
}

func TestExtractAddresses(t *testing.T) {
	contract := common.HexToAddress("0x71B8EFC8BCaD65a5D9386D07f2Dff57ab4EAf533")
	token := common.HexToAddress("0x1111111111111111111111111111111111111111")
	caller := common.HexToAddress("0x81F7cA6AF86D1CA6335E44A2C28bC88807491415")

	t.Run("ordered", func(t *testing.T) {
		got := ExtractAddresses(payload(addrSlot(contract), addrSlot(token), addrSlot(caller)))
		if len(got) != 3 {
			t.Fatalf("expected 3 addresses, got %d: %v", len(got), got)
		}
		if got[0] != contract || got[1] != token || got[2] != caller {
			t.Fatalf("order mismatch: %v", got)
		}
	})

	t.Run("too short", func(t *testing.T) {
		if got := ExtractAddresses(addrSlot(token)); got != nil {
			t.Fatalf("expected nil for single slot, got %v", got)
		}
		if got := ExtractAddresses(nil); got != nil {
			t.Fatalf("expected nil for empty payload, got %v", got)
		}
	})

	t.Run("skips zero and non-address slots", func(t *testing.T) {
		full := make([]byte, 32)
		for i := range full {
			full[i] = 0xff
		}
		got := ExtractAddresses(payload(make([]byte, 32), full, addrSlot(token), make([]byte, 32)))
		if len(got) != 1 || got[0] != token {
			t.Fatalf("unexpected result: %v", got)
		}
	})

	t.Run("small integers look like addresses", func(t *testing.T) {
		got := ExtractAddresses(payload(uintSlot(1000), addrSlot(token)))
		if len(got) != 2 {
			t.Fatalf("expected 2 addresses, got %v", got)
		}
		if got[0] != common.BigToAddress(big.NewInt(1000)) {
			t.Fatalf("slot 0 mismatch: %s", got[0].Hex())
		}
	})

	t.Run("trailing partial slot ignored", func(t *testing.T) {
		data := payload(addrSlot(contract), addrSlot(token), []byte{0, 0, 0})
		if got := ExtractAddresses(data); len(got) != 2 {
			t.Fatalf("expected 2 addresses, got %v", got)
		}
	})

	t.Run("capped", func(t *testing.T) {
		var slots [][]byte
		for i := 1; i <= 25; i++ {
			slots = append(slots, addrSlot(common.BigToAddress(big.NewInt(int64(0x1000+i)))))
		}
		got := ExtractAddresses(payload(slots...))
		if len(got) != MaxAddresses {
			t.Fatalf("expected cap %d, got %d", MaxAddresses, len(got))
		}
		if got[MaxAddresses-1] != common.BigToAddress(big.NewInt(0x1000+MaxAddresses)) {
			t.Fatalf("cap kept wrong slots: last=%s", got[MaxAddresses-1].Hex())
		}
	})
}

func TestFromLogAndMatches(t *testing.T) {
	deployer := common.HexToAddress("0x71B8EFC8BCaD65a5D9386D07f2Dff57ab4EAf533")
	topic := common.HexToHash("0xf9d151d23a5253296eb20ab40959cf48828ea2732d337416716e302ed83ca658")

	vLog := types.Log{
		Address:     deployer,
		Topics:      []common.Hash{topic},
		TxHash:      common.HexToHash("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"),
		BlockNumber: 123,
		Index:       7,
		Data:        []byte{1, 2, 3},
	}
	if !Matches(vLog, deployer, topic) {
		t.Fatalf("expected match")
	}
	if Matches(vLog, common.HexToAddress("0x01"), topic) {
		t.Fatalf("unexpected match for other emitter")
	}
	if Matches(types.Log{Address: deployer}, deployer, topic) {
		t.Fatalf("unexpected match without topics")
	}

	ev := FromLog(vLog, 42)
	if ev.TxHash != vLog.TxHash || ev.BlockNumber != 123 || ev.LogIndex != 7 || ev.ReceivedAtMs != 42 {
		t.Fatalf("event mismatch: %+v", ev)
	}
}
