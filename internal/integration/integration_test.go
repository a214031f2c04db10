package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"quiz-leaderboard/internal/apiclient"
	"quiz-leaderboard/internal/app"
	"quiz-leaderboard/internal/catalog"
	"quiz-leaderboard/internal/domain"
	"quiz-leaderboard/internal/infra/postgres"
	"quiz-leaderboard/internal/infra/postgres/migrations"
	"quiz-leaderboard/internal/runlog"
)

type staticJudge struct{}

func (staticJudge) Score(context.Context, string, string, string) (float64, string) {
	return 1.0, "CORRECT - matches"
}

func TestQuizRunEndToEndOnPostgres(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	dsn, cleanup := startPostgres(t, ctx)
	defer cleanup()

	seedQuestions(t, ctx, dsn, map[string]string{
		"Who won at Guandu?": "Cao Cao",
		"Capital of Shu?":    "Chengdu",
	})

	pool, err := pgxpool.Connect(ctx, dsn)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	cat := catalog.New(ctx, postgres.NewQuestionLoader(pool))
	if cat.Total() != 2 {
		t.Fatalf("expected 2 seeded questions, got %d", cat.Total())
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()
	store := postgres.NewStore(db)

	// A contestant endpoint that knows every answer.
	contestant := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Question string `json:"question"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		answers := map[string]string{
			"Who won at Guandu?": "Cao Cao",
			"Capital of Shu?":    "Chengdu",
		}
		json.NewEncoder(w).Encode(map[string]string{"answer": answers[req.Question]})
	}))
	defer contestant.Close()

	runLog, err := runlog.New(filepath.Join(t.TempDir(), "runlog.jsonl"))
	if err != nil {
		t.Fatalf("new run log: %v", err)
	}

	service := app.NewService(store, cat, staticJudge{}, runLog, func(endpoint string) app.AnswerClient {
		return apiclient.New(endpoint, 5*time.Second)
	})

	if err := service.Submit(ctx, "alice", contestant.URL); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := service.Submit(ctx, "alice", contestant.URL); err != domain.ErrDuplicateSubmission {
		t.Fatalf("expected duplicate rejection, got %v", err)
	}
	service.Wait()

	rows, err := service.Leaderboard(ctx)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	row := rows[0]
	if row.Status != domain.StatusCompleted {
		t.Fatalf("expected completed, got %s", row.Status)
	}
	if row.CorrectRate == nil || *row.CorrectRate != 100.0 {
		t.Fatalf("expected 100%% correct, got %v", row.CorrectRate)
	}
	if row.JudgeScore == nil || *row.JudgeScore != 1.0 {
		t.Fatalf("expected judge score 1.0, got %v", row.JudgeScore)
	}
	if row.CompletedAt == nil {
		t.Fatal("completion time must be set")
	}

	results, err := runLog.Results("alice", contestant.URL)
	if err != nil {
		t.Fatalf("run log: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 graded questions, got %d", len(results))
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "leaderboard"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/leaderboard?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func seedQuestions(t *testing.T, ctx context.Context, dsn string, questions map[string]string) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, migrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	for question, answer := range questions {
		if _, err := db.ExecContext(ctx,
			`INSERT INTO questions (question, answer, difficulty) VALUES (?, ?, ?)`,
			question, answer, domain.DefaultDifficulty); err != nil {
			t.Fatalf("insert question: %v", err)
		}
	}
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
