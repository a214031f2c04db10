// Package app contains the submission processing pipeline: it drives one
// submission's quiz run end-to-end and owns all writes to the leaderboard
// store.
package app

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"quiz-leaderboard/internal/apiclient"
	"quiz-leaderboard/internal/domain"
	"quiz-leaderboard/internal/scoring"
)

// SubmissionStore abstracts the durable leaderboard table (CSV file, Postgres).
// A nil error means the operation was applied; anything else means it was not.
type SubmissionStore interface {
	Create(ctx context.Context, name, endpoint string) error
	UpdateProgress(ctx context.Context, name, endpoint string, index int) error
	Complete(ctx context.Context, name, endpoint string, correctRate, avgResponseTime, judgeScore float64) error
	Fail(ctx context.Context, name, endpoint, message string) error
	Snapshot(ctx context.Context) ([]domain.Submission, error)
}

// Catalog provides the ordered, fixed quiz question sequence.
type Catalog interface {
	Total() int
	Get(i int) (domain.QuizQuestion, error)
	All() []domain.QuizQuestion
}

// AnswerClient dispatches one question to a remote endpoint.
type AnswerClient interface {
	Ask(ctx context.Context, q domain.QuizQuestion) (apiclient.Response, time.Duration, bool)
}

// ClientFactory builds the answer client for one submission's endpoint,
// injectable so tests can script remote behavior.
type ClientFactory func(endpoint string) AnswerClient

// Judge is the LLM scoring oracle. It never fails: oracle errors come back as
// a 0.0 score with the error text as rationale.
type Judge interface {
	Score(ctx context.Context, submitted, expected, question string) (score float64, rationale string)
}

// RunLog is the append-only result/error log.
type RunLog interface {
	Result(entry domain.ResultEntry) error
	Error(name, endpoint, message string) error
	Results(name, endpoint string) ([]domain.ResultEntry, error)
	Errors(name, endpoint string) ([]domain.ErrorEntry, error)
}

// Service accepts submissions and runs them against the quiz catalog.
type Service struct {
	store     SubmissionStore
	catalog   Catalog
	judge     Judge
	runLog    RunLog
	newClient ClientFactory

	wg sync.WaitGroup
}

func NewService(store SubmissionStore, catalog Catalog, judge Judge, runLog RunLog, newClient ClientFactory) *Service {
	return &Service{
		store:     store,
		catalog:   catalog,
		judge:     judge,
		runLog:    runLog,
		newClient: newClient,
	}
}

// Submit registers a new submission and launches its quiz run in the
// background. The run is fire-and-forget relative to the caller: it keeps
// going after this request's context is gone and only ever surfaces its
// outcome through the store and the run log.
func (s *Service) Submit(ctx context.Context, name, endpoint string) error {
	if err := s.store.Create(ctx, name, endpoint); err != nil {
		return err
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(context.Background(), name, endpoint)
	}()
	return nil
}

// Wait blocks until all in-flight runs finish. Used by tests and shutdown.
func (s *Service) Wait() {
	s.wg.Wait()
}

// run walks the catalog in strict index order. Question i+1 is never
// dispatched before question i is fully scored and logged. Transport or
// validation failure aborts the run immediately with no partial aggregates.
func (s *Service) run(ctx context.Context, name, endpoint string) {
	defer func() {
		if r := recover(); r != nil {
			s.failRun(ctx, name, endpoint, fmt.Sprintf("run panicked: %v", r))
		}
	}()

	client := s.newClient(endpoint)
	total := s.catalog.Total()

	exactResults := make([]bool, 0, total)
	judgeScores := make([]float64, 0, total)
	responseTimes := make([]float64, 0, total)

	for i := 0; i < total; i++ {
		if err := s.store.UpdateProgress(ctx, name, endpoint, i); err != nil {
			s.failRun(ctx, name, endpoint, fmt.Sprintf("checkpoint write failed: question %d", i))
			return
		}

		question, err := s.catalog.Get(i)
		if err != nil {
			s.failRun(ctx, name, endpoint, fmt.Sprintf("question %d unavailable: %v", i, err))
			return
		}

		resp, elapsed, ok := client.Ask(ctx, question)
		if !ok {
			s.failRun(ctx, name, endpoint, fmt.Sprintf("API call failed: question %d", i))
			return
		}
		if !apiclient.Validate(resp) {
			s.failRun(ctx, name, endpoint, fmt.Sprintf("invalid response: question %d", i))
			return
		}

		answer := apiclient.Answer(resp)
		correct := scoring.ExactMatch(answer, question.Answer)
		judgeScore, _ := s.judge.Score(ctx, answer, question.Answer, question.Prompt)

		if err := s.runLog.Result(domain.ResultEntry{
			Name:          name,
			Endpoint:      endpoint,
			QuestionIndex: i,
			Question:      question.Prompt,
			UserAnswer:    answer,
			CorrectAnswer: question.Answer,
			ExactMatch:    correct,
			JudgeScore:    judgeScore,
			ResponseTime:  elapsed.Seconds(),
		}); err != nil {
			log.Printf("result log append failed for %s (%s): %v", name, endpoint, err)
		}

		exactResults = append(exactResults, correct)
		judgeScores = append(judgeScores, judgeScore)
		responseTimes = append(responseTimes, elapsed.Seconds())
	}

	correctRate := scoring.Aggregate(exactResults) * 100
	avgResponseTime := scoring.Mean(responseTimes)
	judgeResult := scoring.Mean(judgeScores)

	if err := s.store.Complete(ctx, name, endpoint, correctRate, avgResponseTime, judgeResult); err != nil {
		log.Printf("completion write failed for %s (%s): %v", name, endpoint, err)
	}
}

func (s *Service) failRun(ctx context.Context, name, endpoint, message string) {
	if err := s.runLog.Error(name, endpoint, message); err != nil {
		log.Printf("error log append failed for %s (%s): %v", name, endpoint, err)
	}
	if err := s.store.Fail(ctx, name, endpoint, message); err != nil {
		log.Printf("failure write failed for %s (%s): %v", name, endpoint, err)
	}
}

// SweepStale fails every row still marked processing. It runs at startup so a
// submission orphaned by a crash never sits in processing forever.
func (s *Service) SweepStale(ctx context.Context) (int, error) {
	rows, err := s.store.Snapshot(ctx)
	if err != nil {
		return 0, err
	}
	swept := 0
	for _, row := range rows {
		if row.Status != domain.StatusProcessing {
			continue
		}
		s.failRun(ctx, row.Name, row.Endpoint, "processing interrupted by service restart")
		swept++
	}
	return swept, nil
}

// Leaderboard returns the current submission table.
func (s *Service) Leaderboard(ctx context.Context) ([]domain.Submission, error) {
	return s.store.Snapshot(ctx)
}

// TotalQuestions exposes the catalog size for progress reporting.
func (s *Service) TotalQuestions() int {
	return s.catalog.Total()
}

// Progress returns one submission's row plus its per-question log entries.
func (s *Service) Progress(ctx context.Context, name, endpoint string) (domain.Submission, []domain.ResultEntry, error) {
	rows, err := s.store.Snapshot(ctx)
	if err != nil {
		return domain.Submission{}, nil, err
	}
	for _, row := range rows {
		if row.Name == name && row.Endpoint == endpoint {
			results, err := s.runLog.Results(name, endpoint)
			if err != nil {
				return domain.Submission{}, nil, err
			}
			return row, results, nil
		}
	}
	return domain.Submission{}, nil, domain.ErrSubmissionNotFound
}
