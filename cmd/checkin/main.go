package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/LeventeLantos/safety-checkin/internal/api"
	"github.com/LeventeLantos/safety-checkin/internal/attach"
	"github.com/LeventeLantos/safety-checkin/internal/cache"
	"github.com/LeventeLantos/safety-checkin/internal/client"
	"github.com/LeventeLantos/safety-checkin/internal/config"
	"github.com/LeventeLantos/safety-checkin/internal/engine"
	"github.com/LeventeLantos/safety-checkin/internal/model"
	"github.com/LeventeLantos/safety-checkin/internal/repo"
	"github.com/LeventeLantos/safety-checkin/internal/scheduler"
	"github.com/LeventeLantos/safety-checkin/internal/service"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadAll()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	db, err := sql.Open("pgx", cfg.Database.PostgresURL)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	records := repo.NewPostgresRecordRepo(db)
	dispatcher := client.NewWebhookDispatcher(cfg.Dispatch.WebhookURL)

	files, err := attach.NewDirStore(cfg.Attachments.Dir)
	if err != nil {
		slog.Error("failed to create attachment store", "error", err)
		os.Exit(1)
	}

	eng, err := engine.New(records, dispatcher, cfg.Dispatch.MaxAttempts)
	if err != nil {
		slog.Error("failed to create engine", "error", err)
		os.Exit(1)
	}

	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		releases := cache.NewRedisCache(rdb, cfg.Redis.TTL)
		eng.WithHooks(
			func(ctx context.Context, rec *model.CheckInRecord, deliveryID string) error {
				return releases.StoreReleased(ctx, rec.ID, deliveryID, time.Now().UTC())
			},
			nil,
		)
	}

	releaser, err := service.NewReleaser(records, eng, cfg.Scheduler.BatchSize, cfg.Dispatch.RetryBackoff)
	if err != nil {
		slog.Error("failed to create releaser", "error", err)
		os.Exit(1)
	}

	sched, err := scheduler.New(cfg.Scheduler.SweepInterval, releaser.Sweep)
	if err != nil {
		slog.Error("failed to create scheduler", "error", err)
		os.Exit(1)
	}
	sched.Start()
	defer sched.Stop()

	handler := api.NewHandler(eng, records, sched, files)
	mux := api.Router(handler)

	slog.Info("safety-checkin starting",
		"addr", cfg.Server.Address,
		"sweep_interval", cfg.Scheduler.SweepInterval,
		"batch_size", cfg.Scheduler.BatchSize,
		"redis", cfg.Redis.Enabled,
	)

	if err := http.ListenAndServe(cfg.Server.Address, loggingMiddleware(mux)); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rec, r)

		slog.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}
