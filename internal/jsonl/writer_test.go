package jsonl

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func readLines(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	var out []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var rec map[string]any
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			t.Fatalf("line %q is not json: %v", sc.Text(), err)
		}
		out = append(out, rec)
	}
	return out
}

func TestWriterEvent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "snipe.jsonl")
	w, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	w.now = func() time.Time { return time.UnixMilli(1234) }

	if err := w.Event("detected", map[string]any{"token": "0xabc", "event": "ignored"}); err != nil {
		t.Fatalf("Event: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := w.Write(map[string]any{"a": 1}); !errors.Is(err, os.ErrClosed) {
		t.Fatalf("write after close: got %v want os.ErrClosed", err)
	}

	lines := readLines(t, path)
	if len(lines) != 1 {
		t.Fatalf("lines: got %d want 1", len(lines))
	}
	if lines[0]["event"] != "detected" || lines[0]["token"] != "0xabc" || lines[0]["ts_ms"] != float64(1234) {
		t.Fatalf("record mismatch: %v", lines[0])
	}
}

func TestWriterConcurrentAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	w, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := w.Event("attempt", map[string]any{"n": i}); err != nil {
				t.Errorf("Event: %v", err)
			}
		}(i)
	}
	wg.Wait()
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if got := len(readLines(t, path)); got != 50 {
		t.Fatalf("lines: got %d want 50", got)
	}
}

func TestNilWriter(t *testing.T) {
	w, err := Open("  ")
	if err != nil || w != nil {
		t.Fatalf("blank path: got %v, %v", w, err)
	}
	if err := w.Event("x", nil); err != nil {
		t.Fatalf("nil Event: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("nil Close: %v", err)
	}
}
