package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	qhhttp "github.com/queryhub/queryhub/internal/adapter/http"
	"github.com/queryhub/queryhub/internal/adapter/llm"
	"github.com/queryhub/queryhub/internal/adapter/metaso"
	otelx "github.com/queryhub/queryhub/internal/adapter/otel"
	"github.com/queryhub/queryhub/internal/adapter/postgres"
	"github.com/queryhub/queryhub/internal/adapter/ristretto"
	"github.com/queryhub/queryhub/internal/config"
	"github.com/queryhub/queryhub/internal/logger"
	"github.com/queryhub/queryhub/internal/port/decisionlog"
	"github.com/queryhub/queryhub/internal/port/tool"
	"github.com/queryhub/queryhub/internal/resilience"
	"github.com/queryhub/queryhub/internal/service"
	"github.com/queryhub/queryhub/internal/tool/compute"
	"github.com/queryhub/queryhub/internal/tool/knowledge"
	"github.com/queryhub/queryhub/internal/tool/responder"
	"github.com/queryhub/queryhub/internal/tool/search"
)

const version = "0.2.0"

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, closeLogs := logger.New(cfg.Logging)
	defer closeLogs.Close()
	slog.SetDefault(log)

	log.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"llm_model", cfg.LLM.Model,
		"kb_root", cfg.KB.Root,
	)

	ctx := context.Background()

	// --- Telemetry ---
	shutdownOtel, err := otelx.Setup(ctx, cfg.Logging.Service, cfg.Otel.Endpoint)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownOtel(sctx)
	}()

	metrics, err := otelx.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Outbound clients ---
	llmClient := llm.NewClient(cfg.LLM)
	llmClient.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))

	searchClient := metaso.NewClient(cfg.Search)
	searchClient.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))

	// --- Decision log (optional) ---
	var recorder decisionlog.Recorder
	var decisions qhhttp.DecisionReader
	if cfg.Postgres.DSN != "" {
		pool, perr := postgres.NewPool(ctx, cfg.Postgres)
		if perr != nil {
			return fmt.Errorf("postgres: %w", perr)
		}
		defer pool.Close()

		if merr := postgres.RunMigrations(ctx, cfg.Postgres.DSN); merr != nil {
			return fmt.Errorf("migrations: %w", merr)
		}
		dl := postgres.NewDecisionLog(pool)
		recorder = dl
		decisions = dl
		log.Info("decision log enabled")
	}

	// --- Services ---
	cache, err := ristretto.New(cfg.Cache.MaxSizeMB<<20, cfg.Cache.SuggestionTTL)
	if err != nil {
		return fmt.Errorf("suggestion cache: %w", err)
	}
	defer cache.Close()

	suggester := service.NewSuggester(llmClient, cache, cfg.Router.SuggestTimeout, log)
	suggester.SetMetrics(metrics)
	probes := service.NewProbeCache(cfg.KB, llmClient, log)
	probes.SetMetrics(metrics)
	ingest := service.NewIngestService(cfg.KB, llmClient, log)
	router := service.NewRouter(probes, suggester, cfg.KB.RouteThreshold, log)

	registry, err := tool.NewRegistry(
		search.New(searchClient, log),
		knowledge.New(probes, llmClient, cfg.KB, log),
		compute.New(llmClient, log),
		responder.New(llmClient, log),
	)
	if err != nil {
		return fmt.Errorf("registry: %w", err)
	}

	orchestrator := service.NewOrchestrator(router, registry, suggester, recorder, metrics, log)

	// --- HTTP ---
	handlers := qhhttp.NewHandlers(orchestrator, ingest, decisions, cfg.KB.RouteKBID, version)

	r := chi.NewRouter()
	r.Use(qhhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(qhhttp.RequestID)
	r.Use(qhhttp.SecurityHeaders)
	r.Use(qhhttp.Logger)
	r.Use(otelx.HTTPMiddleware(cfg.Logging.Service))
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))

	qhhttp.MountRoutes(r, handlers)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "error", err)
		}
	}()

	<-done
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}
