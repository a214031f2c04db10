package cli

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"quiz-leaderboard/internal/apiclient"
	"quiz-leaderboard/internal/app"
	"quiz-leaderboard/internal/catalog"
	"quiz-leaderboard/internal/config"
	"quiz-leaderboard/internal/infra/csvstore"
	infrapg "quiz-leaderboard/internal/infra/postgres"
	infraredis "quiz-leaderboard/internal/infra/redis"
	"quiz-leaderboard/internal/runlog"
	"quiz-leaderboard/internal/scoring"
	transport "quiz-leaderboard/internal/transport/http"
)

// NewServerCmd builds the CLI subcommand to start the leaderboard server.
func NewServerCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "Start the leaderboard server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	questionsPath := cfg.Data.Questions
	if questionsPath == "" {
		questionsPath = "data/quiz_data.csv"
	}
	leaderboardPath := cfg.Data.Leaderboard
	if leaderboardPath == "" {
		leaderboardPath = "data/leaderboard.csv"
	}
	runLogPath := cfg.Data.RunLog
	if runLogPath == "" {
		runLogPath = "data/runlog.jsonl"
	}

	var (
		store  app.SubmissionStore
		loader catalog.Loader
	)
	if cfg.Postgres.URL != "" {
		if err := runMigrations(ctx, cfg); err != nil {
			return err
		}
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
		db := bun.NewDB(sqldb, pgdialect.New())
		defer db.Close()
		store = infrapg.NewStore(db)

		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		loader = infrapg.NewQuestionLoader(pool)
	} else {
		fileStore, err := csvstore.New(leaderboardPath)
		if err != nil {
			return err
		}
		store = fileStore
		loader = catalog.NewCSVLoader(questionsPath)
	}

	if cfg.Redis.Addr != "" {
		redisClient := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		snapshotTTL := config.Duration(cfg.Redis.TTL, 5*time.Second)
		store = infraredis.NewSnapshotCache(store, redisClient, snapshotTTL)
	}

	cat := catalog.New(ctx, loader)
	log.Printf("quiz catalog loaded: %d questions", cat.Total())

	runLog, err := runlog.New(runLogPath)
	if err != nil {
		return err
	}

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		log.Printf("OPENAI_API_KEY not set: judge calls will fail and score 0.0")
	}
	judge := scoring.NewOpenAIJudge(apiKey, cfg.Judge.Model, cfg.Judge.BaseURL)

	clientTimeout := config.Duration(cfg.Client.Timeout, apiclient.DefaultTimeout)
	service := app.NewService(store, cat, judge, runLog, func(endpoint string) app.AnswerClient {
		return apiclient.New(endpoint, clientTimeout)
	})

	if swept, err := service.SweepStale(ctx); err != nil {
		log.Printf("stale submission sweep failed: %v", err)
	} else if swept > 0 {
		log.Printf("swept %d stale processing submissions", swept)
	}

	handler := transport.NewHandler(service)
	feed := transport.NewWSFeed(service, 2*time.Second)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/api/submissions", handler.Submit)
	mux.HandleFunc("/api/leaderboard", handler.Leaderboard)
	mux.HandleFunc("/api/progress", handler.Progress)
	mux.HandleFunc("/ws", feed.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting leaderboard service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
