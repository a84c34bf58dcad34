package jsonl

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Writer appends one JSON object per line to a file. It is safe for
// concurrent use; a nil *Writer discards everything.
type Writer struct {
	mu   sync.Mutex
	file *os.File
	w    *bufio.Writer
	now  func() time.Time
}

// Open creates path's directory and opens it for appending. A blank path
// yields a nil Writer.
func Open(path string) (*Writer, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("jsonl: create dir for %s: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("jsonl: open %s: %w", path, err)
	}
	return &Writer{file: f, w: bufio.NewWriterSize(f, 64*1024), now: time.Now}, nil
}

// Event writes fields plus "event" and "ts_ms" keys. Caller keys with the
// same names are overwritten.
func (w *Writer) Event(kind string, fields map[string]any) error {
	if w == nil {
		return nil
	}
	rec := make(map[string]any, len(fields)+2)
	for k, v := range fields {
		rec[k] = v
	}
	rec["event"] = kind
	rec["ts_ms"] = w.now().UnixMilli()
	return w.Write(rec)
}

// Write appends v and flushes so tailers see the record immediately.
func (w *Writer) Write(v any) error {
	if w == nil {
		return nil
	}
	if v == nil {
		return fmt.Errorf("jsonl: nil record")
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.w == nil {
		return os.ErrClosed
	}
	b = append(b, '\n')
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *Writer) Close() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.w == nil {
		return nil
	}

	err := errors.Join(w.w.Flush(), w.file.Close())
	w.w = nil
	w.file = nil
	return err
}
