package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"ai-brand-diagnosis/internal/config"
	"ai-brand-diagnosis/internal/domain"
	"ai-brand-diagnosis/internal/domain/ports/adapter"
	aiAdapters "ai-brand-diagnosis/internal/infra/adapters/ai"
	pg "ai-brand-diagnosis/internal/infra/db/postgres"
	"ai-brand-diagnosis/internal/infra/fault"
	"ai-brand-diagnosis/internal/infra/logging"
	"ai-brand-diagnosis/internal/infra/metrics"
	red "ai-brand-diagnosis/internal/infra/redis"
	"ai-brand-diagnosis/internal/infra/sched"
	"ai-brand-diagnosis/internal/infra/web"
	"ai-brand-diagnosis/internal/infra/worker"
	"ai-brand-diagnosis/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, noop AI fallback)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Info().Msg("dev mode enabled")
	}
	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 10)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	// ---- Redis (optional: rate limiting + report cache) ----
	var rateLimiter worker.RateLimiter
	var reportCache usecase.ReportCache
	if cfg.Redis.URL != "" {
		redisClient, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		defer redisClient.Close()
		rateLimiter = modelRateLimiter{inner: red.NewRateLimiter(redisClient)}
		reportCache = red.NewReportCache(redisClient, cfg.Redis.TTL)
	} else {
		logger.Warn().Msg("redis not configured; running without dispatch limits and report cache")
	}

	// ---- Repositories ----
	diagRepo := pg.NewDiagnosisRepo(pool)
	resultRepo := pg.NewResultRepo(pool)
	dlRepo := pg.NewDeadLetterRepo(pool)

	// ---- AI senders ----
	sender, err := buildSender(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("ai sender: %v", err)
	}
	sender = aiAdapters.NewLimitedSender(sender, cfg.AI.ConcurrentLimit)

	// ---- Fault tolerance primitives ----
	retryPolicy, err := fault.NewRetryPolicy(fault.RetryConfig{
		MaxRetries:  cfg.Engine.MaxRetries,
		BaseDelay:   cfg.Engine.BaseDelay,
		MaxDelay:    cfg.Engine.MaxDelay,
		Exponential: cfg.Engine.Exponential,
		Jitter:      cfg.Engine.Jitter,
		Retryable:   []domain.ErrorKind{domain.ErrKindTimeout, domain.ErrKindRateLimited},
	}, logger)
	if err != nil {
		log.Fatalf("retry policy: %v", err)
	}
	breakers := fault.NewBreakerRegistry(cfg.Engine.BreakerThreshold, cfg.Engine.BreakerCooldown, logger)
	executor := fault.NewExecutor(cfg.Engine.CallTimeout, logger)
	timeouts := fault.NewTimeoutManager(logger)

	// ---- Use cases ----
	sm := usecase.NewStateMachine(diagRepo, logger)
	dlqUC := usecase.NewDeadLetterUseCase(dlRepo, logger)
	reportUC := usecase.NewReportUseCase(diagRepo, resultRepo, dlqUC, logger)

	// ---- Execution engine ----
	engine := worker.NewEngine(sender, breakers, retryPolicy, executor, timeouts,
		sm, dlqUC, resultRepo, rateLimiter,
		worker.Options{
			Workers:        cfg.Engine.Workers,
			CallTimeout:    cfg.Engine.CallTimeout,
			JobTimeout:     cfg.Engine.JobTimeout,
			ModelRateLimit: cfg.Engine.ModelRateLimit,
			RateWindow:     cfg.Engine.RateWindow,
		}, logger)
	engine.Start(ctx)
	defer engine.Stop()

	diagUC := usecase.NewDiagnosisService(diagRepo, sm, engine, reportUC, reportCache, logger)

	// ---- HTTP API ----
	auth := web.NewAuthManager(cfg.Admin.JWTSecret, !cfg.Runtime.Dev, "", 30*time.Minute)
	srv := web.NewServer(diagUC, dlqUC, cfg.Admin.APIKey, auth, logger)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Admin.Port),
		Handler: srv.Routes(),
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	// ---- Dead letter retention sweep ----
	retention := sched.NewRetentionWorker(cfg.Retention.SweepInterval, cfg.Retention.ResolvedDays, dlqUC, logger)
	go func() { _ = retention.Run(ctx) }()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)
	cancel()
}

// buildSender wires the configured providers behind one routing sender.
func buildSender(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (adapter.PromptSender, error) {
	byProvider := map[string]adapter.PromptSender{}

	if cfg.AI.OpenAIKey != "" {
		s, err := aiAdapters.NewOpenAISender(cfg.AI.OpenAIKey, "gpt-4o-mini", 1024)
		if err != nil {
			return nil, err
		}
		byProvider["openai"] = s
		logger.Info().Msg("AI provider: openai")
	}
	if cfg.AI.GeminiKey != "" {
		s, err := aiAdapters.NewGeminiSender(ctx, cfg.AI.GeminiKey, cfg.AI.GeminiURL, "gemini-2.0-flash", 1024)
		if err != nil {
			return nil, err
		}
		byProvider["gemini"] = s
		logger.Info().Msg("AI provider: gemini")
	}
	if cfg.AI.GatewayKey != "" {
		s, err := aiAdapters.NewGatewaySender(cfg.AI.GatewayKey, "gpt-4o-mini", cfg.AI.GatewayBaseURL)
		if err != nil {
			return nil, err
		}
		byProvider["gateway"] = s
		logger.Info().Str("base", cfg.AI.GatewayBaseURL).Msg("AI provider: gateway (OpenAI compatible)")
	}
	if len(byProvider) == 0 {
		if cfg.Runtime.Dev {
			logger.Warn().Msg("no AI provider configured; using noop sender")
			return aiAdapters.NewNoopSender(0), nil
		}
		return nil, fmt.Errorf("no AI provider configured")
	}

	return aiAdapters.NewMultiSender(cfg.AI.DefaultProvider, byProvider, cfg.AI.ModelProviders), nil
}

// modelRateLimiter adapts the redis fixed-window limiter to the engine's
// per-model keying.
type modelRateLimiter struct {
	inner *red.RateLimiter
}

func (m modelRateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return m.inner.Allow(ctx, red.ModelDispatchKey(key), limit, window)
}
