package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/cliqpat/voicereports/cmd/mainconfig"
	"github.com/cliqpat/voicereports/internal/api/router"
	appconfig "github.com/cliqpat/voicereports/internal/config"
	"github.com/cliqpat/voicereports/internal/conversation"
	"github.com/cliqpat/voicereports/internal/http/handlers"
	observemetrics "github.com/cliqpat/voicereports/internal/observability/metrics"
	"github.com/cliqpat/voicereports/internal/report"
	"github.com/cliqpat/voicereports/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting voicereports API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()

	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create pgx pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	store := conversation.NewStore(pool)

	llm, closeLLM, err := buildLLMClient(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to configure LLM providers", "error", err)
		os.Exit(1)
	}
	defer closeLLM()

	generator := report.NewGenerator(report.GeneratorConfig{
		LLM:       llm,
		Model:     cfg.GeminiModelID,
		MaxTokens: int32(cfg.ReportMaxTokens),
		Timeout:   cfg.ReportTimeout,
		Logger:    logger.Component("report"),
	})

	var cache *report.Cache
	if cfg.RedisAddr != "" {
		opts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		cache = report.NewCache(redis.NewClient(opts), nil)
		logger.Info("report cache enabled", "addr", cfg.RedisAddr)
	}

	metrics := observemetrics.NewWebhookMetrics(nil)

	webhookCfg := handlers.ConversationWebhookConfig{
		Store:          store,
		Generator:      generator,
		Logger:         logger.Component("webhooks"),
		Metrics:        metrics,
		LookupFallback: cfg.LookupFallbackEnabled,
	}
	if cache != nil {
		// Assign only a non-nil pointer so the handler's nil check works.
		webhookCfg.Cache = cache
	}
	webhooks := handlers.NewConversationWebhookHandler(webhookCfg)

	r := router.New(&router.Config{
		Logger:             logger,
		Webhooks:           webhooks,
		MetricsHandler:     promhttp.Handler(),
		CORSAllowedOrigins: cfg.CORSOrigins,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.ReportTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// buildLLMClient wires Gemini as the primary provider with Bedrock as an
// optional fallback. At least one provider must be configured.
func buildLLMClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (report.LLMClient, func(), error) {
	closeFn := func() {}

	var bedrock report.LLMClient
	if cfg.BedrockModelID != "" {
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, closeFn, err
		}
		bedrock = report.NewBedrockLLMClient(bedrockruntime.NewFromConfig(awsCfg))
		logger.Info("bedrock fallback configured", "model", cfg.BedrockModelID)
	}

	if cfg.GeminiAPIKey != "" {
		gemini, err := report.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			return nil, closeFn, err
		}
		closeFn = func() { _ = gemini.Close() }
		if bedrock != nil {
			return report.NewFallbackLLMClient(gemini, bedrockModelAdapter{bedrock, cfg.BedrockModelID}, logger), closeFn, nil
		}
		return gemini, closeFn, nil
	}

	if bedrock != nil {
		return bedrockModelAdapter{bedrock, cfg.BedrockModelID}, closeFn, nil
	}
	return nil, closeFn, errNoProvider
}

var errNoProvider = &configError{"set GEMINI_API_KEY or BEDROCK_MODEL_ID"}

type configError struct{ msg string }

func (e *configError) Error() string { return e.msg }

// bedrockModelAdapter substitutes the Bedrock model id, since requests are
// built with the Gemini model name.
type bedrockModelAdapter struct {
	client  report.LLMClient
	modelID string
}

func (a bedrockModelAdapter) Complete(ctx context.Context, req report.LLMRequest) (report.LLMResponse, error) {
	req.Model = a.modelID
	return a.client.Complete(ctx, req)
}
