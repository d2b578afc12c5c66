package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

// Runtime journal: hour-rotated zstd-compressed JSONL files. Entries
// are best effort; a write failure is reported once per file and never
// propagates to the tick loop.

// Sink accepts journal entries. The zero value of interest is a
// *Writer; tests substitute their own.
type Sink interface {
	Record(v any)
}

// TickEntry is one scheduler tick.
type TickEntry struct {
	Kind          string `json:"kind"`
	Tick          uint64 `json:"tick"`
	DurationMicro int64  `json:"duration_us"`
	Actors        int    `json:"actors"`
}

// SessionEntry is a session lifecycle event.
type SessionEntry struct {
	Kind      string `json:"kind"`
	Event     string `json:"event"`
	SessionID uint32 `json:"session_id"`
}

// DropEntry reports mailbox overflow losses for one actor.
type DropEntry struct {
	Kind  string `json:"kind"`
	Actor string `json:"actor"`
	Drops uint64 `json:"drops"`
}

// Writer appends JSONL entries to `<dir>/<prefix>-<hour>.jsonl.zst`,
// rotating when the UTC hour changes.
type Writer struct {
	baseDir string
	prefix  string

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
	warned  bool
}

func NewWriter(baseDir, prefix string) *Writer {
	return &Writer{baseDir: baseDir, prefix: prefix}
}

// Record marshals and appends one entry, stamping the kind field from
// the entry type when present.
func (w *Writer) Record(v any) {
	switch e := v.(type) {
	case TickEntry:
		e.Kind = "tick"
		v = e
	case SessionEntry:
		e.Kind = "session"
		v = e
	case DropEntry:
		e.Kind = "drops"
		v = e
	}
	if err := w.write(v); err != nil {
		w.mu.Lock()
		if !w.warned {
			w.warned = true
			fmt.Fprintf(os.Stderr, "journal: %v\n", err)
		}
		w.mu.Unlock()
	}
}

func (w *Writer) write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := time.Now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *Writer) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	path := w.pathForHour(hour)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 64*1024)
	w.curHour = hour
	w.warned = false
	return nil
}

func (w *Writer) closeLocked() error {
	var first error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		first = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	return first
}

// Close flushes and closes the current file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *Writer) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}
