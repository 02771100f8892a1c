// Package main is the entry point for the essay pipeline API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/capitalize-ai/essay-pipeline/internal/config"
	"github.com/capitalize-ai/essay-pipeline/internal/handler"
	"github.com/capitalize-ai/essay-pipeline/internal/llm"
	"github.com/capitalize-ai/essay-pipeline/internal/middleware"
	natsclient "github.com/capitalize-ai/essay-pipeline/internal/nats"
	"github.com/capitalize-ai/essay-pipeline/internal/pipeline"
	"github.com/capitalize-ai/essay-pipeline/internal/service"
	"github.com/capitalize-ai/essay-pipeline/pkg/logger"
	"github.com/capitalize-ai/essay-pipeline/pkg/tracing"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting essay pipeline server")

	registry, err := loadPipelines(cfg)
	if err != nil {
		log.Fatal("failed to load pipelines", zap.Error(err))
	}
	if err := cfg.Validate(registry.Providers()...); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "essay-pipeline", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// The run journal is optional; without it readiness ignores NATS and the
	// question catalogue lives in process memory.
	var (
		natsClient *natsclient.Client
		journal    service.Journal
		bucket     service.Bucket = service.NewMemoryBucket()
	)
	if cfg.NATSEnabled {
		natsClient, err = natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			log.Fatal("failed to connect to NATS", zap.Error(err))
		}
		defer natsClient.Close()

		runJournal := natsclient.NewJournal(natsClient, log)
		if err := runJournal.EnsureStream(ctx); err != nil {
			log.Fatal("failed to ensure stream", zap.Error(err))
		}
		journal = runJournal

		catalogBucket, err := natsclient.OpenCatalog(ctx, natsClient)
		if err != nil {
			log.Fatal("failed to open catalog bucket", zap.Error(err))
		}
		bucket = catalogBucket
	}

	dialer := llm.NewDialer(cfg.LLMSettings())
	essaySvc := service.NewEssayService(registry, dialer, journal, log, service.Options{
		BackendTimeout: cfg.BackendTimeout,
		StreamBuffer:   cfg.StreamBuffer,
		PollInterval:   cfg.StreamPollInterval,
		FinishTimeout:  cfg.StreamFinishTimeout,
	})

	catalogSvc := service.NewCatalogService(bucket, log)

	healthHandler := handler.NewHealthHandler(natsClient, len(registry.List()))
	essayHandler := handler.NewEssayHandler(essaySvc, catalogSvc, log)
	catalogHandler := handler.NewCatalogHandler(catalogSvc, log)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.CORSOrigins))

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Post("/write/{language}", essayHandler.Write)
		r.Post("/revise/{language}", essayHandler.Revise)

		r.Route("/subjects", func(r chi.Router) {
			r.Get("/", catalogHandler.ListSubjects)
			r.Post("/", catalogHandler.CreateSubject)
			r.Get("/{id}", catalogHandler.GetSubject)
			r.Put("/{id}", catalogHandler.UpdateSubject)
			r.Delete("/{id}", catalogHandler.DeleteSubject)
		})

		r.Route("/questions", func(r chi.Router) {
			r.Get("/", catalogHandler.ListQuestions)
			r.Post("/", catalogHandler.CreateQuestion)
			r.Get("/{id}", catalogHandler.GetQuestion)
			r.Put("/{id}", catalogHandler.UpdateQuestion)
			r.Delete("/{id}", catalogHandler.DeleteQuestion)
		})

		r.Route("/pipelines", func(r chi.Router) {
			r.Get("/", essayHandler.List)
			r.With(middleware.RequireScope(cfg.JWTSecret, middleware.ScopeRunPipeline)).
				Post("/{name}/run", essayHandler.Run)
		})
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("server listening",
			zap.String("port", cfg.ServerPort),
			zap.String("default_llm", cfg.DefaultLLM),
			zap.Int("pipelines", len(registry.List())),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	// Streams in flight get the finish timeout plus headroom to wind down.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second+cfg.StreamFinishTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}

func loadPipelines(cfg *config.Config) (*pipeline.Registry, error) {
	defaultProvider, err := cfg.DefaultProvider()
	if err != nil {
		return nil, fmt.Errorf("DEFAULT_LLM: %w", err)
	}

	var defs []*pipeline.Definition
	if cfg.PipelinesFile != "" {
		defs, err = pipeline.LoadDefinitionsFile(cfg.PipelinesFile, defaultProvider)
	} else {
		defs, err = pipeline.Builtin(defaultProvider)
	}
	if err != nil {
		return nil, err
	}
	return pipeline.NewRegistry(defs...)
}
