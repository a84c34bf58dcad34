package wsrpc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestRequest_JSONShape(t *testing.T) {
	b, err := json.Marshal(request{JSONRPC: "2.0", ID: 1, Method: "eth_subscribe", Params: []any{"newHeads"}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"jsonrpc":"2.0","id":1,"method":"eth_subscribe","params":["newHeads"]}`
	if string(b) != want {
		t.Fatalf("got=%s want=%s", b, want)
	}
}

func TestOptions_WithDefaults(t *testing.T) {
	o := (Options{}).withDefaults()
	if o.PingInterval != DefaultPingInterval {
		t.Fatalf("PingInterval: got=%s want=%s", o.PingInterval, DefaultPingInterval)
	}
	if o.BackoffMin <= 0 || o.BackoffMax <= 0 || o.OutBuffer <= 0 {
		t.Fatalf("defaults missing: %#v", o)
	}
}

func TestDecodeHead(t *testing.T) {
	h, err := DecodeHead(json.RawMessage(`{"number":"0x1b4","hash":"0xdc0818cf78f21a8e70579cb46a43643f78291264dda342ae31049421c82d21ae","parentHash":"0x00"}`))
	if err != nil {
		t.Fatalf("DecodeHead: %v", err)
	}
	if h.Number != 436 {
		t.Fatalf("number: got=%d want=436", h.Number)
	}
	if _, err := DecodeHead(json.RawMessage(`{"number":"0x1"}`)); err == nil {
		t.Fatalf("expected error for missing hash")
	}
}

func TestStart_ReceivesNotifications(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var req request
		if err := conn.ReadJSON(&req); err != nil || req.Method != "eth_subscribe" {
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"jsonrpc":"2.0","id":1,"result":"0xabc"}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"jsonrpc":"2.0","method":"eth_subscription","params":{"subscription":"0xother","result":{}}}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"jsonrpc":"2.0","method":"eth_subscription","params":{"subscription":"0xabc","result":{"number":"0x10","hash":"0xdc0818cf78f21a8e70579cb46a43643f78291264dda342ae31049421c82d21ae"}}}`))

		// Hold the connection until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	out, _ := Start(ctx, url, []any{"newHeads"}, Options{})

	select {
	case n := <-out:
		if n.Subscription != "0xabc" {
			t.Fatalf("subscription: got=%s want=0xabc", n.Subscription)
		}
		if n.ReceivedAt.IsZero() {
			t.Fatalf("missing receive timestamp")
		}
		h, err := DecodeHead(n.Result)
		if err != nil || h.Number != 16 {
			t.Fatalf("head: %+v err=%v", h, err)
		}
	case <-ctx.Done():
		t.Fatalf("timed out waiting for notification")
	}

	cancel()
	for range out {
	}
}
