package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"swapMonitor/internal/model"
)

// JsonlErrorSink appends decode errors to a JSONL file.
type JsonlErrorSink struct {
	path string
	mu   sync.Mutex
}

func NewJsonlErrorSink(path string) *JsonlErrorSink {
	return &JsonlErrorSink{path: path}
}

// PutDecodeError appends one decode error as a JSON line.
func (s *JsonlErrorSink) PutDecodeError(record model.DecodeError) error {
	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open errors file: %w", err)
	}
	defer file.Close()

	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal decode error: %w", err)
	}

	writer := bufio.NewWriter(file)
	if _, err := writer.Write(line); err != nil {
		return fmt.Errorf("write decode error: %w", err)
	}
	if err := writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("write newline: %w", err)
	}
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush errors file: %w", err)
	}

	return nil
}
