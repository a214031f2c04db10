// Package memory provides an in-memory submission store, useful for tests and
// demos.
package memory

import (
	"context"
	"log"
	"sync"
	"time"

	"quiz-leaderboard/internal/domain"
)

// Store is an in-memory implementation of app.SubmissionStore with the same
// atomic read-modify-write semantics as the file-backed store.
type Store struct {
	mu   sync.Mutex
	rows []domain.Submission
	now  func() time.Time
}

func NewStore() *Store {
	return &Store{now: time.Now}
}

// NewStoreWithClock is test-only for deterministic timestamps.
func NewStoreWithClock(now func() time.Time) *Store {
	return &Store{now: now}
}

func (s *Store) Create(_ context.Context, name, endpoint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.find(name, endpoint) >= 0 {
		return domain.ErrDuplicateSubmission
	}
	s.rows = append(s.rows, domain.Submission{
		Name:        name,
		Endpoint:    endpoint,
		SubmittedAt: s.now(),
		Status:      domain.StatusProcessing,
	})
	return nil
}

func (s *Store) UpdateProgress(_ context.Context, name, endpoint string, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.find(name, endpoint)
	if i < 0 {
		log.Printf("no submission row to update for %s (%s)", name, endpoint)
		return nil
	}
	s.rows[i].CurrentIndex = index
	return nil
}

func (s *Store) Complete(_ context.Context, name, endpoint string, correctRate, avgResponseTime, judgeScore float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.find(name, endpoint)
	if i < 0 {
		log.Printf("no submission row to complete for %s (%s)", name, endpoint)
		return nil
	}
	now := s.now()
	s.rows[i].CorrectRate = &correctRate
	s.rows[i].AvgResponseTime = &avgResponseTime
	s.rows[i].JudgeScore = &judgeScore
	s.rows[i].CompletedAt = &now
	s.rows[i].Status = domain.StatusCompleted
	return nil
}

func (s *Store) Fail(_ context.Context, name, endpoint, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.find(name, endpoint)
	if i < 0 {
		log.Printf("no submission row to fail for %s (%s)", name, endpoint)
		return nil
	}
	log.Printf("submission failed (%s, %s): %s", name, endpoint, message)
	now := s.now()
	s.rows[i].CompletedAt = &now
	s.rows[i].Status = domain.StatusError
	return nil
}

func (s *Store) Snapshot(_ context.Context) ([]domain.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Submission, len(s.rows))
	copy(out, s.rows)
	return out, nil
}

func (s *Store) find(name, endpoint string) int {
	for i, row := range s.rows {
		if row.Name == name && row.Endpoint == endpoint {
			return i
		}
	}
	return -1
}
