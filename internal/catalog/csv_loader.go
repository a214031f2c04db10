package catalog

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strings"

	"quiz-leaderboard/internal/domain"
)

// CSVLoader reads questions from a CSV file with a header row. The file must
// carry `question` and `answer` columns; `difficulty` is optional.
type CSVLoader struct {
	Path string
}

func NewCSVLoader(path string) *CSVLoader {
	return &CSVLoader{Path: path}
}

func (l *CSVLoader) Load(_ context.Context) ([]domain.QuizQuestion, error) {
	f, err := os.Open(l.Path)
	if err != nil {
		return nil, fmt.Errorf("open quiz data: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read quiz data: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("quiz data %s has no header row", l.Path)
	}

	questionCol, answerCol, difficultyCol := -1, -1, -1
	for i, name := range records[0] {
		switch strings.TrimSpace(strings.ToLower(name)) {
		case "question":
			questionCol = i
		case "answer":
			answerCol = i
		case "difficulty":
			difficultyCol = i
		}
	}
	if questionCol < 0 || answerCol < 0 {
		return nil, fmt.Errorf("quiz data %s missing required columns question, answer", l.Path)
	}

	questions := make([]domain.QuizQuestion, 0, len(records)-1)
	for _, rec := range records[1:] {
		if questionCol >= len(rec) || answerCol >= len(rec) {
			return nil, fmt.Errorf("quiz data %s has a short row", l.Path)
		}
		q := domain.QuizQuestion{
			Prompt: rec[questionCol],
			Answer: rec[answerCol],
		}
		if difficultyCol >= 0 && difficultyCol < len(rec) {
			q.Difficulty = strings.TrimSpace(rec[difficultyCol])
		}
		questions = append(questions, q)
	}
	return questions, nil
}

// StaticLoader serves a fixed slice, useful for tests and demos.
type StaticLoader struct {
	Questions []domain.QuizQuestion
}

func (l *StaticLoader) Load(_ context.Context) ([]domain.QuizQuestion, error) {
	return append([]domain.QuizQuestion(nil), l.Questions...), nil
}
