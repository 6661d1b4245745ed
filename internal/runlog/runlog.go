// Package runlog captures per-run execution output as structured line
// records. Step executors write raw process output through an io.Writer
// adapter; every line passes a redaction hook before it is stored or
// encoded, so secret material never reaches a sink.
package runlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Line is one captured log record.
type Line struct {
	Job    string `json:"job"`
	Step   string `json:"step"`
	Stream string `json:"stream"`
	Text   string `json:"text"`
}

// Sink receives redacted log lines.
type Sink interface {
	Append(Line)
}

// Buffer is an in-memory Sink, used by the engine for run reporting and by
// tests to assert on captured output.
type Buffer struct {
	mu    sync.Mutex
	lines []Line
}

// Append implements Sink.
func (b *Buffer) Append(line Line) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = append(b.lines, line)
}

// Lines returns a copy of everything captured so far.
func (b *Buffer) Lines() []Line {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Line, len(b.lines))
	copy(out, b.lines)
	return out
}

// String renders the captured log as plain text, one record per line.
func (b *Buffer) String() string {
	var sb strings.Builder
	for _, l := range b.Lines() {
		fmt.Fprintf(&sb, "[%s/%s %s] %s\n", l.Job, l.Step, l.Stream, l.Text)
	}
	return sb.String()
}

// FileSink encodes lines as JSON records to a per-run log file.
type FileSink struct {
	mu      sync.Mutex
	file    *os.File
	encoder *json.Encoder
}

// NewFileSink creates baseDir/<runID>.log and returns a sink writing to it.
func NewFileSink(baseDir, runID string) (*FileSink, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating log dir: %w", err)
	}
	file, err := os.Create(filepath.Join(baseDir, runID+".log"))
	if err != nil {
		return nil, fmt.Errorf("creating log file: %w", err)
	}
	return &FileSink{file: file, encoder: json.NewEncoder(file)}, nil
}

// Append implements Sink. Encoding errors are dropped; log delivery must
// never fail a run.
func (s *FileSink) Append(line Line) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.encoder.Encode(line)
}

// Close flushes and closes the underlying file.
func (s *FileSink) Close() error {
	return s.file.Close()
}

// Fanout duplicates lines to several sinks.
type Fanout []Sink

// Append implements Sink.
func (f Fanout) Append(line Line) {
	for _, sink := range f {
		sink.Append(line)
	}
}

// Writer adapts an io.Writer stream (a step's stdout or stderr) into Line
// records. Partial writes are buffered until a newline arrives; Flush
// emits any trailing partial line.
type Writer struct {
	sink   Sink
	job    string
	step   string
	stream string
	redact func(string) string

	mu  sync.Mutex
	buf strings.Builder
}

// NewWriter returns a line-splitting writer for one step stream. redact
// may be nil when no secrets are configured.
func NewWriter(sink Sink, job, step, stream string, redact func(string) string) *Writer {
	if redact == nil {
		redact = func(s string) string { return s }
	}
	return &Writer{sink: sink, job: job, step: step, stream: stream, redact: redact}
}

// Write implements io.Writer.
func (w *Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	for {
		text := w.buf.String()
		idx := strings.IndexByte(text, '\n')
		if idx < 0 {
			break
		}
		w.emit(text[:idx])
		w.buf.Reset()
		w.buf.WriteString(text[idx+1:])
	}
	return len(p), nil
}

// Flush emits a trailing partial line, if any.
func (w *Writer) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf.Len() > 0 {
		w.emit(w.buf.String())
		w.buf.Reset()
	}
}

func (w *Writer) emit(text string) {
	text = strings.TrimRight(text, "\r")
	w.sink.Append(Line{
		Job:    w.job,
		Step:   w.step,
		Stream: w.stream,
		Text:   w.redact(text),
	})
}
