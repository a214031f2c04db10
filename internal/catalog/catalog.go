// Package catalog provides the read-only, ordered quiz question catalog.
package catalog

import (
	"context"
	"log"
	"sync"

	"quiz-leaderboard/internal/domain"
)

// Loader fetches question records from a backing source (CSV file, Postgres).
type Loader interface {
	Load(ctx context.Context) ([]domain.QuizQuestion, error)
}

// Catalog holds the loaded question sequence. A load failure degrades to an
// empty catalog instead of failing the process; dependents then observe
// Total() == 0.
type Catalog struct {
	loader Loader

	mu        sync.RWMutex
	questions []domain.QuizQuestion
}

// New builds a catalog and performs the initial load.
func New(ctx context.Context, loader Loader) *Catalog {
	c := &Catalog{loader: loader}
	c.Reload(ctx)
	return c
}

// Reload re-reads the backing source. On failure the previous contents are
// discarded and the catalog becomes empty.
func (c *Catalog) Reload(ctx context.Context) {
	questions, err := c.loader.Load(ctx)
	if err != nil {
		log.Printf("catalog load failed, serving empty catalog: %v", err)
		questions = nil
	}
	for i := range questions {
		questions[i].Index = i
		if questions[i].Difficulty == "" {
			questions[i].Difficulty = domain.DefaultDifficulty
		}
	}
	c.mu.Lock()
	c.questions = questions
	c.mu.Unlock()
}

// Total returns the number of questions.
func (c *Catalog) Total() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.questions)
}

// Get returns the question at index i.
func (c *Catalog) Get(i int) (domain.QuizQuestion, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i < 0 || i >= len(c.questions) {
		return domain.QuizQuestion{}, domain.ErrQuestionOutOfRange
	}
	return c.questions[i], nil
}

// All returns the full ordered sequence.
func (c *Catalog) All() []domain.QuizQuestion {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.QuizQuestion, len(c.questions))
	copy(out, c.questions)
	return out
}
