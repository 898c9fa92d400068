package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/okenna/parentcare/internal/advice"
	"github.com/okenna/parentcare/internal/config"
	"github.com/okenna/parentcare/internal/hitl"
	"github.com/okenna/parentcare/internal/httpapi"
	"github.com/okenna/parentcare/internal/knowledge"
	"github.com/okenna/parentcare/internal/llm"
	"github.com/okenna/parentcare/internal/observability/metrics"
	"github.com/okenna/parentcare/internal/push"
	"github.com/okenna/parentcare/internal/safety"
	"github.com/okenna/parentcare/internal/session"
	"github.com/okenna/parentcare/internal/usage"
	"github.com/okenna/parentcare/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting parentcare API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Safety refusal payloads and the knowledge topic table: embedded
	// defaults unless overridden from disk.
	refusals := safety.DefaultRefusals()
	if cfg.RefusalsPath != "" {
		loaded, err := safety.LoadRefusals(cfg.RefusalsPath)
		if err != nil {
			logger.Error("failed to load refusals", "error", err, "path", cfg.RefusalsPath)
			os.Exit(1)
		}
		refusals = loaded
	}
	topics := knowledge.DefaultTopics()
	if cfg.TopicsPath != "" {
		loaded, err := knowledge.LoadTopics(cfg.TopicsPath)
		if err != nil {
			logger.Error("failed to load topics", "error", err, "path", cfg.TopicsPath)
			os.Exit(1)
		}
		topics = loaded
	}

	// Transcript archive (optional).
	var archive *session.RedisArchive
	if cfg.RedisAddr != "" {
		opts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Error("redis unreachable", "error", err, "addr", cfg.RedisAddr)
			os.Exit(1)
		}
		archive = session.NewRedisArchive(client)
		logger.Info("transcript archive enabled", "addr", cfg.RedisAddr)
	}

	var registry *session.Registry
	if archive != nil {
		registry = session.NewRegistry(archive, logger, session.WithIdleTTL(cfg.SessionIdleTTL))
	} else {
		registry = session.NewRegistry(nil, logger, session.WithIdleTTL(cfg.SessionIdleTTL))
	}
	registry.StartSweeper(ctx, cfg.SweepInterval)

	// Case store: Postgres when configured, in-memory otherwise.
	var store hitl.CaseStore = hitl.NewMemoryStore()
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		if err := db.PingContext(ctx); err != nil {
			logger.Error("database unreachable", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		store = hitl.NewPostgresStore(db)
		logger.Info("durable case store enabled")
	}

	adviceMetrics := metrics.NewAdviceMetrics(nil)
	accountant := usage.NewAccountant(nil, logger)

	dispatcher := push.NewDispatcher(cfg.ChannelBuffer, logger)
	queue := hitl.NewQueue(store, registry, dispatcher, logger, hitl.WithMetrics(adviceMetrics))

	var client llm.StreamingClient
	if cfg.UseScriptedLLM || cfg.OpenAIAPIKey == "" {
		logger.Warn("no provider key configured, using scripted generation")
		client = &llm.ScriptClient{TokenDelay: 40 * time.Millisecond}
	} else {
		client = llm.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, logger)
	}

	orch := advice.NewOrchestrator(advice.Deps{
		Classifier: safety.NewClassifier(refusals, logger),
		Retriever:  knowledge.NewRetriever(topics, logger),
		LLM:        client,
		Registry:   registry,
		Queue:      queue,
		Dispatcher: dispatcher,
		Accountant: accountant,
		Metrics:    adviceMetrics,
		Logger:     logger,
	}, advice.Config{
		Model:           cfg.Model,
		MaxAnswerTokens: int32(cfg.MaxAnswerTokens),
		MaxCitations:    cfg.MaxCitations,
		TokenTimeout:    cfg.TokenTimeout,
		StreamTimeout:   cfg.StreamTimeout,
	})

	// Stale-case watchdog (optional).
	if cfg.ReviewerAlertAfter > 0 {
		var notifier hitl.Notifier
		if n := hitl.NewEmailNotifier(hitl.EmailConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
			ToEmail:   cfg.ReviewerAlertEmail,
		}, logger); n != nil {
			notifier = n
		}
		watchdog := hitl.NewWatchdog(store, notifier, cfg.ReviewerAlertAfter, logger)
		go watchdog.Run(ctx, time.Minute)
	}

	var transcripts httpapi.TranscriptReader
	if archive != nil {
		transcripts = archive
	}
	handler := httpapi.NewHandler(registry, queue, orch, dispatcher, transcripts, logger)
	router := httpapi.NewRouter(httpapi.RouterConfig{
		Handler:        handler,
		Logger:         logger,
		MetricsHandler: promhttp.Handler(),
	})

	// No WriteTimeout: the chat sockets hold long-lived streams.
	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
