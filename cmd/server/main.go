package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"platescan/internal/adapters/asynqueue"
	"platescan/internal/adapters/fsstore"
	"platescan/internal/adapters/httpapi"
	"platescan/internal/adapters/postgres"
	"platescan/internal/adapters/sqlite"
	"platescan/internal/adapters/stubengine"
	"platescan/internal/adapters/tesseract"
	"platescan/internal/config"
	"platescan/internal/plate"
	"platescan/internal/ports"
	"platescan/internal/preprocess"
	"platescan/internal/services/ingest"
	"platescan/internal/services/query"
	"platescan/internal/workers/recognizer"
)

// store is the union the database adapters provide: job records and the
// queue live in the same database.
type store interface {
	ports.JobRepository
	ports.JobQueue
}

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		log.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var db store
	if cfg.DatabaseURL != "" {
		pg, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.VisibilityTimeout)
		if err != nil {
			log.Error("postgres connect failed", "err", err)
			os.Exit(1)
		}
		defer pg.Close()
		db = pg
		log.Info("using postgres backend")
	} else {
		lite, err := sqlite.Open(cfg.SQLitePath, cfg.VisibilityTimeout)
		if err != nil {
			log.Error("sqlite open failed", "path", cfg.SQLitePath, "err", err)
			os.Exit(1)
		}
		defer lite.Close()
		db = lite
		log.Info("using sqlite backend", "path", cfg.SQLitePath)
	}

	images, err := fsstore.New(cfg.UploadDir)
	if err != nil {
		log.Error("image store init failed", "dir", cfg.UploadDir, "err", err)
		os.Exit(1)
	}

	var engine ports.Engine
	switch cfg.Engine {
	case "stub":
		engine = stubengine.New()
		log.Warn("recognition engine is stubbed, jobs will complete with no plate")
	default:
		engine = tesseract.New(cfg.OCRLanguages...)
	}

	validator, err := plate.NewValidatorFromNames(cfg.PlatePatterns)
	if err != nil {
		log.Error("invalid plate patterns", "patterns", cfg.PlatePatterns, "err", err)
		os.Exit(1)
	}

	processor := recognizer.NewProcessor(db, images, preprocess.New(preprocess.DefaultConfig()),
		engine, validator, log)

	// Queue transport: asynq over Redis when configured, otherwise the
	// database-backed queue with our own worker loop.
	var enqueuer ports.Enqueuer = db
	var asynqRunner *asynqueue.Runner
	if cfg.RedisAddr != "" {
		client := asynqueue.NewClient(cfg.RedisAddr, cfg.VisibilityTimeout)
		defer client.Close()
		enqueuer = client
		if cfg.Workers > 0 {
			asynqRunner = asynqueue.NewRunner(cfg.RedisAddr, processor, cfg.Workers, log)
			if err := asynqRunner.Start(); err != nil {
				log.Error("asynq runner start failed", "err", err)
				os.Exit(1)
			}
			defer asynqRunner.Shutdown()
		}
		log.Info("using asynq queue transport", "redis", cfg.RedisAddr)
	} else if cfg.Workers > 0 {
		go recognizer.Run(ctx, db, processor, cfg.Workers, cfg.PollInterval, log)
		log.Info("recognition workers started", "count", cfg.Workers)
	}

	ingestSvc := ingest.New(db, images, enqueuer, cfg.AllowedTypes, cfg.MaxUploadBytes, log)
	querySvc := query.New(db, cfg.MaxPageSize)

	if cfg.SweepInterval > 0 {
		go ingestSvc.RunSweeper(ctx, cfg.SweepInterval, cfg.SweepAfter, 100)
	}

	api := httpapi.New(ingestSvc, querySvc, cfg.MaxUploadBytes, log)
	r := chi.NewRouter()
	r.Mount("/", api.Routes())

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: r}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	log.Info("listening", "addr", cfg.ListenAddr, "env", cfg.Env)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Info("shutting down", "signal", sig.String())
		cancel()
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown", "err", err)
		}
	case err := <-errCh:
		log.Error("server error", "err", err)
		os.Exit(1)
	}
}
