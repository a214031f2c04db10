// Package runlog persists the append-only per-question result log and the
// orchestration error log as JSON lines.
package runlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"quiz-leaderboard/internal/domain"
)

const (
	kindResult = "result"
	kindError  = "error"
)

type resultLine struct {
	Kind string `json:"kind"`
	domain.ResultEntry
}

type errorLine struct {
	Kind string `json:"kind"`
	domain.ErrorEntry
}

// Log appends structured records to a single JSONL file. Every record goes out
// as one O_APPEND write, so interleaved writers cannot corrupt each other's
// lines.
type Log struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

func New(path string) (*Log, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
	}
	return &Log{path: path, now: time.Now}, nil
}

// NewWithClock is test-only for deterministic timestamps.
func NewWithClock(path string, now func() time.Time) (*Log, error) {
	l, err := New(path)
	if err != nil {
		return nil, err
	}
	l.now = now
	return l, nil
}

// Result appends one graded question attempt.
func (l *Log) Result(entry domain.ResultEntry) error {
	entry.LoggedAt = l.now()
	return l.append(resultLine{Kind: kindResult, ResultEntry: entry})
}

// Error appends one orchestration failure record.
func (l *Log) Error(name, endpoint, message string) error {
	return l.append(errorLine{Kind: kindError, ErrorEntry: domain.ErrorEntry{
		Name:     name,
		Endpoint: endpoint,
		Message:  message,
		LoggedAt: l.now(),
	}})
}

func (l *Log) append(record any) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode log record: %w", err)
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open run log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("append run log: %w", err)
	}
	return nil
}

// Results returns the graded attempts recorded for one submission, in append
// order. A missing log file yields an empty slice.
func (l *Log) Results(name, endpoint string) ([]domain.ResultEntry, error) {
	var out []domain.ResultEntry
	err := l.scan(func(kind string, data []byte) error {
		if kind != kindResult {
			return nil
		}
		var line resultLine
		if err := json.Unmarshal(data, &line); err != nil {
			return err
		}
		if line.Name == name && line.Endpoint == endpoint {
			out = append(out, line.ResultEntry)
		}
		return nil
	})
	return out, err
}

// Errors returns the failure records for one submission.
func (l *Log) Errors(name, endpoint string) ([]domain.ErrorEntry, error) {
	var out []domain.ErrorEntry
	err := l.scan(func(kind string, data []byte) error {
		if kind != kindError {
			return nil
		}
		var line errorLine
		if err := json.Unmarshal(data, &line); err != nil {
			return err
		}
		if line.Name == name && line.Endpoint == endpoint {
			out = append(out, line.ErrorEntry)
		}
		return nil
	})
	return out, err
}

func (l *Log) scan(visit func(kind string, data []byte) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open run log: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		data := scanner.Bytes()
		if len(data) == 0 {
			continue
		}
		var peek struct {
			Kind string `json:"kind"`
		}
		if err := json.Unmarshal(data, &peek); err != nil {
			// A torn line from a crashed writer; skip it.
			continue
		}
		if err := visit(peek.Kind, data); err != nil {
			return err
		}
	}
	return scanner.Err()
}
