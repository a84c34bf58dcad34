package ethutil

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestParseAddressList(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		got, err := ParseAddressList("   \n\t")
		if err != nil {
			t.Fatalf("unexpected err: %v", err)
		}
		if got != nil {
			t.Fatalf("expected nil, got %#v", got)
		}
	})

	t.Run("csv+whitespace+dedupe", func(t *testing.T) {
		got, err := ParseAddressList("0x81F7cA6AF86D1CA6335E44A2C28bC88807491415; 0x03Fb99ea8d3A832729a69C3e8273533b52f30D1A\n0x81f7ca6af86d1ca6335e44a2c28bc88807491415")
		if err != nil {
			t.Fatalf("unexpected err: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("expected 2, got %d: %#v", len(got), got)
		}
		if got[0] != common.HexToAddress("0x81F7cA6AF86D1CA6335E44A2C28bC88807491415") {
			t.Fatalf("unexpected order: %#v", got)
		}
		if s := JoinHex(got); s != "0x81F7cA6AF86D1CA6335E44A2C28bC88807491415,0x03Fb99ea8d3A832729a69C3e8273533b52f30D1A" {
			t.Fatalf("JoinHex: got %s", s)
		}
	})

	t.Run("invalid", func(t *testing.T) {
		if _, err := ParseAddressList("0xnotanaddress"); err == nil {
			t.Fatalf("expected err")
		}
	})

	t.Run("zero", func(t *testing.T) {
		if _, err := ParseAddressList("0x0000000000000000000000000000000000000000"); err == nil {
			t.Fatalf("expected err for zero address")
		}
	})
}

func TestParseHash(t *testing.T) {
	const topic = "0xf9d151d23a5253296eb20ab40959cf48828ea2732d337416716e302ed83ca658"
	got, err := ParseHash(" " + topic + " ")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got.Hex() != topic {
		t.Fatalf("got %s want %s", got.Hex(), topic)
	}

	for _, bad := range []string{"", "f9d151d2", "0x1234", topic + "00"} {
		if _, err := ParseHash(bad); err == nil {
			t.Fatalf("expected err for %q", bad)
		}
	}
}
