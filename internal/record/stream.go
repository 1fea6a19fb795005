package record

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// maxLineBytes bounds a single stream line; OCR text never comes close.
const maxLineBytes = 1 << 20

// StreamWriter appends records to a JSONL stream file, one record per line.
// Appends are buffered; Sync flushes and fsyncs so a checkpoint written
// afterward never points past durable data.
type StreamWriter struct {
	f  *os.File
	bw *bufio.Writer
}

// OpenStream opens (creating if needed) a stream file for appending.
func OpenStream(path string) (*StreamWriter, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("mkdir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}
	return &StreamWriter{f: f, bw: bufio.NewWriter(f)}, nil
}

// Append writes one record as a JSON line.
func (w *StreamWriter) Append(r MessageRecord) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal record %d: %w", r.ID, err)
	}
	if _, err := w.bw.Write(data); err != nil {
		return fmt.Errorf("append record: %w", err)
	}
	if err := w.bw.WriteByte('\n'); err != nil {
		return fmt.Errorf("append record: %w", err)
	}
	return nil
}

// Sync flushes buffered records to durable storage.
func (w *StreamWriter) Sync() error {
	if err := w.bw.Flush(); err != nil {
		return fmt.Errorf("flush stream: %w", err)
	}
	if err := w.f.Sync(); err != nil {
		return fmt.Errorf("sync stream: %w", err)
	}
	return nil
}

// Close flushes and closes the stream.
func (w *StreamWriter) Close() error {
	if err := w.Sync(); err != nil {
		_ = w.f.Close()
		return err
	}
	return w.f.Close()
}

// ReadStream loads a whole JSONL stream into memory. Blank lines are
// skipped. A missing file yields an empty slice, matching a run that has
// produced no records yet.
func ReadStream(path string) ([]MessageRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open stream: %w", err)
	}
	defer f.Close()

	var records []MessageRecord
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var r MessageRecord
		if err := json.Unmarshal([]byte(text), &r); err != nil {
			return nil, fmt.Errorf("parse stream line %d: %w", line, err)
		}
		records = append(records, r)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read stream: %w", err)
	}
	return records, nil
}

// WriteStream writes records to path, replacing any existing file. Used for
// the canonical stream, which is rewritten as a whole by the dedup pass.
func WriteStream(path string, records []MessageRecord) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create stream: %w", err)
	}
	bw := bufio.NewWriter(f)
	for _, r := range records {
		data, err := json.Marshal(r)
		if err != nil {
			_ = f.Close()
			return fmt.Errorf("marshal record %d: %w", r.ID, err)
		}
		bw.Write(data)
		bw.WriteByte('\n')
	}
	if err := bw.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("flush stream: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync stream: %w", err)
	}
	return f.Close()
}
