// Package postgres backs the submission store and question catalog with a
// transactional database, behind the same interfaces as the file-based
// implementations.
package postgres

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/uptrace/bun"

	"quiz-leaderboard/internal/domain"
)

type submissionRow struct {
	bun.BaseModel `bun:"table:submissions"`

	ID              int64      `bun:"id,pk,autoincrement"`
	Name            string     `bun:"name"`
	Endpoint        string     `bun:"api_endpoint"`
	CorrectRate     *float64   `bun:"correct_answer_rate"`
	AvgResponseTime *float64   `bun:"average_response_time"`
	SubmittedAt     time.Time  `bun:"submission_time"`
	CompletedAt     *time.Time `bun:"completion_time"`
	CurrentIndex    int        `bun:"current_question_index"`
	Status          string     `bun:"status"`
	JudgeScore      *float64   `bun:"llm_judge_result"`
}

// Store implements app.SubmissionStore on Postgres. The unique index on
// (name, api_endpoint) takes over the duplicate-rejection job the file store
// does with its row scan.
type Store struct {
	db  *bun.DB
	now func() time.Time
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func (s *Store) Create(ctx context.Context, name, endpoint string) error {
	row := &submissionRow{
		Name:        name,
		Endpoint:    endpoint,
		SubmittedAt: s.now(),
		Status:      string(domain.StatusProcessing),
	}
	res, err := s.db.NewInsert().
		Model(row).
		On("CONFLICT (name, api_endpoint) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}
	if affected == 0 {
		return domain.ErrDuplicateSubmission
	}
	return nil
}

func (s *Store) UpdateProgress(ctx context.Context, name, endpoint string, index int) error {
	res, err := s.db.NewUpdate().
		Model((*submissionRow)(nil)).
		Set("current_question_index = ?", index).
		Where("name = ? AND api_endpoint = ?", name, endpoint).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	s.warnIfMissing(res, name, endpoint)
	return nil
}

func (s *Store) Complete(ctx context.Context, name, endpoint string, correctRate, avgResponseTime, judgeScore float64) error {
	res, err := s.db.NewUpdate().
		Model((*submissionRow)(nil)).
		Set("correct_answer_rate = ?", correctRate).
		Set("average_response_time = ?", avgResponseTime).
		Set("llm_judge_result = ?", judgeScore).
		Set("completion_time = ?", s.now()).
		Set("status = ?", string(domain.StatusCompleted)).
		Where("name = ? AND api_endpoint = ?", name, endpoint).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("complete submission: %w", err)
	}
	s.warnIfMissing(res, name, endpoint)
	return nil
}

func (s *Store) Fail(ctx context.Context, name, endpoint, message string) error {
	log.Printf("submission failed (%s, %s): %s", name, endpoint, message)
	res, err := s.db.NewUpdate().
		Model((*submissionRow)(nil)).
		Set("completion_time = ?", s.now()).
		Set("status = ?", string(domain.StatusError)).
		Where("name = ? AND api_endpoint = ?", name, endpoint).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("fail submission: %w", err)
	}
	s.warnIfMissing(res, name, endpoint)
	return nil
}

func (s *Store) Snapshot(ctx context.Context) ([]domain.Submission, error) {
	var rows []submissionRow
	if err := s.db.NewSelect().
		Model(&rows).
		Order("submission_time ASC").
		Scan(ctx); err != nil {
		log.Printf("leaderboard read failed, serving empty table: %v", err)
		return []domain.Submission{}, nil
	}
	out := make([]domain.Submission, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.Submission{
			Name:            row.Name,
			Endpoint:        row.Endpoint,
			CorrectRate:     row.CorrectRate,
			AvgResponseTime: row.AvgResponseTime,
			SubmittedAt:     row.SubmittedAt,
			CompletedAt:     row.CompletedAt,
			CurrentIndex:    row.CurrentIndex,
			Status:          domain.Status(row.Status),
			JudgeScore:      row.JudgeScore,
		})
	}
	return out, nil
}

func (s *Store) warnIfMissing(res interface{ RowsAffected() (int64, error) }, name, endpoint string) {
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		log.Printf("no submission row to update for %s (%s)", name, endpoint)
	}
}
