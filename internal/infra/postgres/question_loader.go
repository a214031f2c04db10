package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"quiz-leaderboard/internal/domain"
)

// QuestionLoader reads the quiz catalog from the questions table, ordered by
// insertion so row order matches the external question IDs.
type QuestionLoader struct {
	pool *pgxpool.Pool
}

func NewQuestionLoader(pool *pgxpool.Pool) *QuestionLoader {
	return &QuestionLoader{pool: pool}
}

func (l *QuestionLoader) Load(ctx context.Context) ([]domain.QuizQuestion, error) {
	rows, err := l.pool.Query(ctx, `SELECT question, answer, difficulty FROM questions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	var questions []domain.QuizQuestion
	for rows.Next() {
		var q domain.QuizQuestion
		if err := rows.Scan(&q.Prompt, &q.Answer, &q.Difficulty); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read questions: %w", err)
	}
	return questions, nil
}
