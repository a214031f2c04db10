// Package csvstore implements the leaderboard store on a single shared CSV
// file guarded by an advisory file lock.
package csvstore

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"quiz-leaderboard/internal/domain"
)

var columns = []string{
	"name", "api_endpoint", "correct_answer_rate", "average_response_time",
	"submission_time", "completion_time", "current_question_index",
	"status", "llm_judge_result",
}

const (
	defaultMaxAttempts = 5
	defaultBackoff     = 200 * time.Millisecond
)

// Store persists submission rows in one CSV file. Every mutation is a full
// read-modify-write cycle under an exclusive, non-blocking advisory lock with
// a bounded retry loop; the write itself goes through Replace so a crash can
// never leave a truncated leaderboard behind. The lock lives on a sidecar
// .lock file because the data file is swapped by rename on every write.
type Store struct {
	path        string
	mu          sync.Mutex // serializes goroutines sharing this handle; the flock covers other processes
	lock        *flock.Flock
	maxAttempts int
	backoff     time.Duration
	now         func() time.Time
}

func New(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create leaderboard directory: %w", err)
		}
	}
	s := &Store{
		path:        path,
		lock:        flock.New(path + ".lock"),
		maxAttempts: defaultMaxAttempts,
		backoff:     defaultBackoff,
		now:         time.Now,
	}
	if err := s.ensureExists(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewWithClock is test-only for deterministic timestamps.
func NewWithClock(path string, now func() time.Time) (*Store, error) {
	s, err := New(path)
	if err != nil {
		return nil, err
	}
	s.now = now
	return s, nil
}

func (s *Store) ensureExists() error {
	if _, err := os.Stat(s.path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat leaderboard: %w", err)
	}
	log.Printf("creating new leaderboard file: %s", s.path)
	return Replace(s.path, func(w io.Writer) error {
		return encodeRows(w, nil)
	})
}

// Create inserts a fresh processing row. A row already keyed by
// (name, endpoint) yields domain.ErrDuplicateSubmission and no change.
func (s *Store) Create(ctx context.Context, name, endpoint string) error {
	return s.mutate(ctx, func(rows []domain.Submission) ([]domain.Submission, error) {
		for _, row := range rows {
			if row.Name == name && row.Endpoint == endpoint {
				return nil, domain.ErrDuplicateSubmission
			}
		}
		return append(rows, domain.Submission{
			Name:        name,
			Endpoint:    endpoint,
			SubmittedAt: s.now(),
			Status:      domain.StatusProcessing,
		}), nil
	})
}

// UpdateProgress checkpoints the question index currently being dispatched.
// A missing row is a logged no-op, not an error.
func (s *Store) UpdateProgress(ctx context.Context, name, endpoint string, index int) error {
	return s.mutate(ctx, func(rows []domain.Submission) ([]domain.Submission, error) {
		i := findRow(rows, name, endpoint)
		if i < 0 {
			log.Printf("no leaderboard row to update for %s (%s)", name, endpoint)
			return rows, nil
		}
		rows[i].CurrentIndex = index
		return rows, nil
	})
}

// Complete writes the final aggregates and moves the row to completed.
func (s *Store) Complete(ctx context.Context, name, endpoint string, correctRate, avgResponseTime, judgeScore float64) error {
	return s.mutate(ctx, func(rows []domain.Submission) ([]domain.Submission, error) {
		i := findRow(rows, name, endpoint)
		if i < 0 {
			log.Printf("no leaderboard row to complete for %s (%s)", name, endpoint)
			return rows, nil
		}
		now := s.now()
		rows[i].CorrectRate = &correctRate
		rows[i].AvgResponseTime = &avgResponseTime
		rows[i].JudgeScore = &judgeScore
		rows[i].CompletedAt = &now
		rows[i].Status = domain.StatusCompleted
		return rows, nil
	})
}

// Fail moves the row to error state. The message is logged only; no partial
// metrics are ever published for a failed run.
func (s *Store) Fail(ctx context.Context, name, endpoint, message string) error {
	return s.mutate(ctx, func(rows []domain.Submission) ([]domain.Submission, error) {
		i := findRow(rows, name, endpoint)
		if i < 0 {
			log.Printf("no leaderboard row to fail for %s (%s)", name, endpoint)
			return rows, nil
		}
		log.Printf("submission failed (%s, %s): %s", name, endpoint, message)
		now := s.now()
		rows[i].CompletedAt = &now
		rows[i].Status = domain.StatusError
		return rows, nil
	})
}

// Snapshot returns the full current table. Read failures degrade to an empty
// table so dashboard reads never break on a transient error.
func (s *Store) Snapshot(_ context.Context) ([]domain.Submission, error) {
	f, err := os.Open(s.path)
	if err != nil {
		log.Printf("leaderboard read failed, serving empty table: %v", err)
		return []domain.Submission{}, nil
	}
	defer f.Close()

	rows, err := decodeRows(f)
	if err != nil {
		log.Printf("leaderboard decode failed, serving empty table: %v", err)
		return []domain.Submission{}, nil
	}
	return rows, nil
}

// mutate runs one read-modify-write cycle under the file lock, retrying lock
// acquisition and I/O failures up to the attempt budget. Domain errors from fn
// (duplicate submission) are returned immediately without retrying.
func (s *Store) mutate(ctx context.Context, fn func([]domain.Submission) ([]domain.Submission, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(s.backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		locked, err := s.lock.TryLock()
		if err != nil || !locked {
			log.Printf("leaderboard lock not acquired (attempt %d/%d)", attempt+1, s.maxAttempts)
			continue
		}

		done, err := s.mutateLocked(fn)
		if unlockErr := s.lock.Unlock(); unlockErr != nil {
			log.Printf("leaderboard unlock failed: %v", unlockErr)
		}
		if done {
			return err
		}
		log.Printf("leaderboard update failed (attempt %d/%d): %v", attempt+1, s.maxAttempts, err)
	}
	return domain.ErrStoreBusy
}

// mutateLocked reports done=false only for retryable I/O failures.
func (s *Store) mutateLocked(fn func([]domain.Submission) ([]domain.Submission, error)) (bool, error) {
	if err := s.ensureExists(); err != nil {
		return false, err
	}
	f, err := os.Open(s.path)
	if err != nil {
		return false, err
	}
	rows, err := decodeRows(f)
	f.Close()
	if err != nil {
		return false, err
	}

	updated, err := fn(rows)
	if err != nil {
		return true, err
	}

	if err := Replace(s.path, func(w io.Writer) error {
		return encodeRows(w, updated)
	}); err != nil {
		return false, err
	}
	return true, nil
}

func findRow(rows []domain.Submission, name, endpoint string) int {
	for i, row := range rows {
		if row.Name == name && row.Endpoint == endpoint {
			return i
		}
	}
	return -1
}

func encodeRows(w io.Writer, rows []domain.Submission) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, row := range rows {
		record := []string{
			row.Name,
			row.Endpoint,
			formatFloat(row.CorrectRate),
			formatFloat(row.AvgResponseTime),
			row.SubmittedAt.Format(domain.TimeLayout),
			formatTime(row.CompletedAt),
			strconv.Itoa(row.CurrentIndex),
			string(row.Status),
			formatFloat(row.JudgeScore),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func decodeRows(r io.Reader) ([]domain.Submission, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(columns)
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read leaderboard: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	rows := make([]domain.Submission, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := domain.Submission{
			Name:     rec[0],
			Endpoint: rec[1],
			Status:   domain.Status(rec[7]),
		}
		if row.CorrectRate, err = parseFloat(rec[2]); err != nil {
			return nil, err
		}
		if row.AvgResponseTime, err = parseFloat(rec[3]); err != nil {
			return nil, err
		}
		if row.SubmittedAt, err = time.ParseInLocation(domain.TimeLayout, rec[4], time.Local); err != nil {
			return nil, fmt.Errorf("parse submission_time %q: %w", rec[4], err)
		}
		if rec[5] != "" {
			t, err := time.ParseInLocation(domain.TimeLayout, rec[5], time.Local)
			if err != nil {
				return nil, fmt.Errorf("parse completion_time %q: %w", rec[5], err)
			}
			row.CompletedAt = &t
		}
		if row.CurrentIndex, err = strconv.Atoi(rec[6]); err != nil {
			return nil, fmt.Errorf("parse current_question_index %q: %w", rec[6], err)
		}
		if row.JudgeScore, err = parseFloat(rec[8]); err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(domain.TimeLayout)
}

func parseFloat(raw string) (*float64, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("parse float %q: %w", raw, err)
	}
	return &v, nil
}
