package persistence

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// LogWriter manages an append-only JSONL log file, one record per line.
type LogWriter struct {
	mu   sync.Mutex
	file *os.File
	buf  *bufio.Writer
	path string
}

// NewLogWriter opens or creates the log file at path.
func NewLogWriter(path string) (*LogWriter, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("persistence: open log %s: %w", path, err)
	}
	return &LogWriter{file: file, buf: bufio.NewWriter(file), path: path}, nil
}

// Append marshals v as JSON and appends it as one line, flushed to the file.
func (l *LogWriter) Append(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("persistence: marshal log record: %w", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.buf.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("persistence: append log: %w", err)
	}
	return l.buf.Flush()
}

// Truncate clears the log. Used after a successful full rebuild.
func (l *LogWriter) Truncate() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.buf.Flush(); err != nil {
		return err
	}
	if err := l.file.Truncate(0); err != nil {
		return fmt.Errorf("persistence: truncate log: %w", err)
	}
	if _, err := l.file.Seek(0, 0); err != nil {
		return fmt.Errorf("persistence: seek log: %w", err)
	}
	l.buf.Reset(l.file)
	return nil
}

// Close flushes and closes the log file.
func (l *LogWriter) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.buf.Flush(); err != nil {
		_ = l.file.Close()
		return err
	}
	return l.file.Close()
}

// ReadLog decodes every record in the log file at path into a slice of T.
// Malformed lines are skipped: the log is an audit record, not replayed state.
func ReadLog[T any](path string) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var out []T
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec T
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, sc.Err()
}
