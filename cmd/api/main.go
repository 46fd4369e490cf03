// Package main is the entry point for the support API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/support-desk/internal/config"
	"github.com/capitalize-ai/support-desk/internal/handler"
	"github.com/capitalize-ai/support-desk/internal/llm"
	natsclient "github.com/capitalize-ai/support-desk/internal/nats"
	"github.com/capitalize-ai/support-desk/internal/relay"
	"github.com/capitalize-ai/support-desk/internal/retrieval"
	"github.com/capitalize-ai/support-desk/internal/service"
	"github.com/capitalize-ai/support-desk/internal/session"
	"github.com/capitalize-ai/support-desk/internal/store"
	"github.com/capitalize-ai/support-desk/pkg/logger"
	"github.com/capitalize-ai/support-desk/pkg/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log, err := logger.NewForEnv(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	logger.SetGlobal(log)

	if err := run(cfg, log); err != nil {
		log.Error("server exited", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	log.Info("starting support API", zap.String("env", cfg.Env))

	ctx := context.Background()

	// Initialize tracing if enabled
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "support-desk", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer func() { _ = tracing.Shutdown(context.Background(), tp) }()
		}
	}

	// Durable escalation records
	repo, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer repo.Close()
	log.Info("escalation store ready", zap.Bool("postgres", cfg.UsesPostgres()))

	checks := map[string]handler.Pinger{"store": repo}

	// Optional transcript persistence
	var transcripts store.TranscriptStore
	if cfg.RedisURL != "" {
		rt, err := store.NewRedisTranscripts(ctx, cfg.RedisURL, cfg.TranscriptTTL)
		if err != nil {
			log.Warn("redis unavailable, transcripts will not survive restarts", zap.Error(err))
		} else {
			defer rt.Close()
			transcripts = rt
			checks["redis"] = rt
		}
	}

	// Optional event log
	var events service.EventPublisher
	if cfg.NATSURL != "" {
		natsClient, err := natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			return fmt.Errorf("connect to NATS: %w", err)
		}
		defer natsClient.Close()

		streamManager := natsclient.NewStreamManager(natsClient)
		if err := streamManager.EnsureStream(ctx); err != nil {
			return fmt.Errorf("ensure stream: %w", err)
		}
		events = streamManager
		checks["nats"] = natsClient
	}

	// Initialize LLM client
	apiKey := cfg.OpenAIAPIKey
	if llm.Provider(cfg.LLMProvider) == llm.ProviderAnthropic {
		apiKey = cfg.AnthropicAPIKey
	}
	llmClient, err := llm.NewClient(llm.Options{
		Provider: llm.Provider(cfg.LLMProvider),
		APIKey:   apiKey,
		BaseURL:  cfg.OpenAIBaseURL,
		Model:    cfg.LLMModel,
	})
	if err != nil {
		return fmt.Errorf("create LLM client: %w", err)
	}

	var retriever retrieval.Retriever = retrieval.Noop{}
	if rc := retrieval.NewClient(cfg.RetrievalURL, cfg.RetrievalTimeout); rc.IsEnabled() {
		retriever = rc
	} else {
		log.Warn("no retrieval backend configured, answers will carry no context")
	}

	// Initialize services
	sessions := session.NewStore()
	router := relay.NewRouter(log)
	bridge := service.NewPersistenceBridge(repo, transcripts, events, log)
	chatSvc := service.NewChatService(sessions, llmClient, retriever, bridge, router, service.Options{
		Persona:          cfg.AssistantPersona,
		Brand:            cfg.BrandName,
		TopK:             cfg.RetrievalTopK,
		LLMTimeout:       cfg.LLMTimeout,
		RetrievalTimeout: cfg.RetrievalTimeout,
	}, log)

	restored, err := chatSvc.Rehydrate(ctx)
	if err != nil {
		log.Error("failed to restore escalated sessions", zap.Error(err))
	} else {
		log.Info("restored escalated sessions", zap.Int("count", restored))
	}

	// Initialize handlers
	h := handler.NewRouter(handler.RouterConfig{
		JWTSecret:         cfg.JWTSecret,
		AllowedOrigins:    cfg.AllowedOrigins,
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitWindow:   cfg.RateLimitWindow,
	}, handler.Handlers{
		Health: handler.NewHealthHandler(checks),
		Chat:   handler.NewChatHandler(chatSvc, log),
		Agent:  handler.NewAgentHandler(chatSvc, log),
		WS:     handler.NewWSHandler(chatSvc, router, cfg.AllowedOrigins, log),
	}, log)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      h,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	}

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
	return nil
}
