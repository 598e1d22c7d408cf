package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/statement-extractor/internal/api/handlers"
	"github.com/dvloznov/statement-extractor/internal/api/middleware"
	"github.com/dvloznov/statement-extractor/internal/app"
	"github.com/dvloznov/statement-extractor/internal/config"
	"github.com/dvloznov/statement-extractor/internal/gcs"
	"github.com/dvloznov/statement-extractor/internal/jobs/inmemory"
	"github.com/dvloznov/statement-extractor/internal/logger"
)

func main() {
	// Bootstrap logger until the configured one exists
	log := logger.New()

	cfg, err := config.Load(log)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	log = logger.NewFromConfig(cfg.LogLevel, cfg.LogFormat, os.Stdout)

	ctx := context.Background()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build extraction service")
	}
	defer a.Close()

	// Async jobs need a storage client; without one only synchronous uploads
	// are served.
	var jobsHandler *handlers.JobsHandler
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, cfg.JobWorkers, jobStore)

	workerCtx, cancelWorker := context.WithCancel(logger.WithContext(ctx, log))
	defer cancelWorker()

	fetcher, err := gcs.NewStorageFetcher(ctx, cfg.MaxUploadBytes)
	if err != nil {
		log.Warn().Err(err).Msg("No storage client - async extraction jobs are disabled")
	} else {
		defer fetcher.Close()

		go func() {
			log.Info().Int("workers", cfg.JobWorkers).Msg("Starting job workers")
			if err := jobQueue.Start(workerCtx, a.Service.JobHandler(fetcher)); err != nil {
				log.Error().Err(err).Msg("Job workers stopped with error")
			}
		}()
		jobsHandler = handlers.NewJobsHandler(jobQueue, jobStore, log)
	}

	mux := handlers.NewRouter(handlers.Routes{
		Statements: handlers.NewStatementsHandler(a.Service, cfg.MaxUploadBytes, cfg.LLMExtractTimeout*2, log),
		Jobs:       jobsHandler,
		Categories: handlers.NewCategoriesHandler(a.Service.Categories()),
		Metrics:    a.Metrics.Handler(),
	})

	// Apply middleware
	handler := middleware.Recovery(log)(
		middleware.Logger(log)(
			middleware.RequestID(
				middleware.CORS(
					middleware.MaxBytes(cfg.MaxUploadBytes)(mux),
				),
			),
		),
	)

	// Synchronous uploads hold the response open for the whole extraction.
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.LLMExtractTimeout*2 + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop taking jobs, then wait for in-flight ones
	cancelWorker()
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	if err := jobQueue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job queue")
	}

	log.Info().Msg("Server exited")
}
