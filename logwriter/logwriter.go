// Package logwriter implements the Log Writer Subscriber (spec §4.C): a
// bus.Handler subscribed to every event that flattens each one into a
// single JSON line, buffers lines in a bounded ring, and flushes to
// logs/{session_id}.jsonl[.gz] behind a per-file mutex (spec §5's "single
// writer per session; append-only").
package logwriter

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/subagentctl/subagentctl/bus"
	"github.com/subagentctl/subagentctl/telemetry"
)

// Line is the flattened shape written to the log file: one JSON object per
// event, combining envelope fields with the event's own payload.
type Line struct {
	Timestamp time.Time      `json:"timestamp"`
	SessionID string         `json:"session_id"`
	TraceID   string         `json:"trace_id,omitempty"`
	EventType string         `json:"event_type"`
	Payload   map[string]any `json:"-"`
}

// MarshalJSON flattens Payload's keys alongside the envelope fields
// (spec §4.C: "single JSON object {timestamp, session_id, trace_id,
// event_type, ...payload}").
func (l Line) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(l.Payload)+4)
	for k, v := range l.Payload {
		out[k] = v
	}
	out["timestamp"] = l.Timestamp.Format(time.RFC3339Nano)
	out["session_id"] = l.SessionID
	out["event_type"] = l.EventType
	if l.TraceID != "" {
		out["trace_id"] = l.TraceID
	}
	return json.Marshal(out)
}

type fileState struct {
	mu     sync.Mutex
	buffer []Line
}

// Writer buffers flattened events per session in a bounded ring and
// flushes to disk behind a per-file mutex.
type Writer struct {
	dir        string
	bufferSize int
	gzip       bool
	log        telemetry.Logger

	mu    sync.Mutex
	files map[string]*fileState

	errCount int64
}

// Option configures a Writer at construction.
type Option func(*Writer)

// WithLogger injects a telemetry.Logger for write-error reporting.
func WithLogger(l telemetry.Logger) Option {
	return func(w *Writer) { w.log = l }
}

// New constructs a Writer rooted at dir (logs/ by default). bufferSize
// bounds the in-memory ring per session before an implicit flush (default
// 100, spec §4.C).
func New(dir string, bufferSize int, gz bool, opts ...Option) *Writer {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	w := &Writer{
		dir:        dir,
		bufferSize: bufferSize,
		gzip:       gz,
		log:        telemetry.NoopLogger{},
		files:      make(map[string]*fileState),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// HandleEvent implements bus.Handler. Events accepted into the buffer but
// not yet flushed may be lost on crash (spec §4.C crash semantics); this
// is a deliberate bounded-loss tradeoff, not a bug.
func (w *Writer) HandleEvent(ctx context.Context, e bus.Event) error {
	line := Line{
		Timestamp: e.Timestamp(),
		SessionID: e.SessionID(),
		TraceID:   e.TraceID(),
		EventType: string(e.Type()),
		Payload:   e.Payload(),
	}
	return w.append(ctx, line)
}

func (w *Writer) stateFor(sessionID string) *fileState {
	w.mu.Lock()
	defer w.mu.Unlock()
	fs, ok := w.files[sessionID]
	if !ok {
		fs = &fileState{}
		w.files[sessionID] = fs
	}
	return fs
}

func (w *Writer) append(ctx context.Context, line Line) error {
	fs := w.stateFor(line.SessionID)
	fs.mu.Lock()
	fs.buffer = append(fs.buffer, line)
	shouldFlush := len(fs.buffer) >= w.bufferSize
	fs.mu.Unlock()

	if shouldFlush {
		return w.Flush(ctx, line.SessionID)
	}
	return nil
}

// Flush writes every buffered line for sessionID to disk. A write error is
// retried once; if the retry fails too, the batch is dropped, the error
// counter incremented and the error returned. When the flush was triggered
// from HandleEvent, that error is returned to the bus, which counts it
// (spec §4.C: "does not block the bus; the writer drops the batch after
// one retry").
func (w *Writer) Flush(ctx context.Context, sessionID string) error {
	fs := w.stateFor(sessionID)
	fs.mu.Lock()
	batch := fs.buffer
	fs.buffer = nil
	fs.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	err := w.writeBatch(sessionID, batch)
	if err != nil {
		err = w.writeBatch(sessionID, batch) // one retry, per spec
	}
	if err != nil {
		w.mu.Lock()
		w.errCount++
		w.mu.Unlock()
		w.log.Warn(ctx, "logwriter: flush failed, dropping batch", "session_id", sessionID, "error", err.Error())
		return err
	}
	return nil
}

func (w *Writer) path(sessionID string) string {
	name := sessionID + ".jsonl"
	if w.gzip {
		name += ".gz"
	}
	return filepath.Join(w.dir, name)
}

func (w *Writer) writeBatch(sessionID string, batch []Line) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("logwriter: mkdir: %w", err)
	}

	var buf bytes.Buffer
	for _, l := range batch {
		raw, err := json.Marshal(l)
		if err != nil {
			return fmt.Errorf("logwriter: marshal: %w", err)
		}
		buf.Write(raw)
		buf.WriteByte('\n')
	}

	path := w.path(sessionID)
	if w.gzip {
		return w.appendGzip(path, buf.Bytes())
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("logwriter: open: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("logwriter: write: %w", err)
	}
	return nil
}

// appendGzip streams the new batch as its own gzip member appended to the
// file; gzip readers support concatenated members, so reading the whole
// file back decompresses all members in sequence (spec §4.C: "if gzip
// mode, uses streaming compression").
func (w *Writer) appendGzip(path string, raw []byte) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("logwriter: open: %w", err)
	}
	defer f.Close()

	zw := gzip.NewWriter(f)
	if _, err := zw.Write(raw); err != nil {
		return fmt.Errorf("logwriter: gzip write: %w", err)
	}
	return zw.Close()
}

// ErrorCount returns the number of flush batches dropped after a failed
// retry.
func (w *Writer) ErrorCount() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.errCount
}

// FlushAll flushes every session with buffered lines, for shutdown (spec
// §4.C: "Flush triggers: buffer full, explicit flush(), shutdown").
func (w *Writer) FlushAll(ctx context.Context) error {
	w.mu.Lock()
	sessions := make([]string, 0, len(w.files))
	for id := range w.files {
		sessions = append(sessions, id)
	}
	w.mu.Unlock()

	var first error
	for _, id := range sessions {
		if err := w.Flush(ctx, id); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// PruneOldest removes per-session log files beyond the keep most
// recently modified, implementing the activity_log.retention_count
// setting (spec §6). It never removes a file with a session still
// buffered in memory.
func (w *Writer) PruneOldest(keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}
	matches, err := filepath.Glob(filepath.Join(w.dir, "*.jsonl*"))
	if err != nil {
		return 0, fmt.Errorf("logwriter: glob: %w", err)
	}
	if len(matches) <= keep {
		return 0, nil
	}

	w.mu.Lock()
	buffered := make(map[string]bool, len(w.files))
	for id, fs := range w.files {
		fs.mu.Lock()
		if len(fs.buffer) > 0 {
			buffered[w.path(id)] = true
		}
		fs.mu.Unlock()
	}
	w.mu.Unlock()

	type fileInfo struct {
		path    string
		modTime time.Time
	}
	infos := make([]fileInfo, 0, len(matches))
	for _, m := range matches {
		fi, err := os.Stat(m)
		if err != nil {
			continue
		}
		infos = append(infos, fileInfo{path: m, modTime: fi.ModTime()})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].modTime.After(infos[j].modTime) })

	removed := 0
	for _, fi := range infos[min(keep, len(infos)):] {
		if buffered[fi.path] {
			continue
		}
		if err := os.Remove(fi.path); err == nil {
			removed++
		}
	}
	return removed, nil
}
