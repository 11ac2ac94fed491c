package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/roundtable/internal/config"
	"github.com/capitalize-ai/roundtable/internal/handler"
	"github.com/capitalize-ai/roundtable/internal/llm"
	natsclient "github.com/capitalize-ai/roundtable/internal/nats"
	"github.com/capitalize-ai/roundtable/internal/orchestrator"
	"github.com/capitalize-ai/roundtable/internal/ratelimit"
	"github.com/capitalize-ai/roundtable/internal/realtime"
	"github.com/capitalize-ai/roundtable/internal/service"
	"github.com/capitalize-ai/roundtable/internal/store"
	"github.com/capitalize-ai/roundtable/pkg/logger"
	"github.com/capitalize-ai/roundtable/pkg/tracing"
)

const shutdownTimeout = 30 * time.Second

func serve(ctx context.Context) error {
	cfg := config.Load()

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("starting API server",
		zap.String("port", cfg.ServerPort),
		zap.String("llm_provider", cfg.LLMProvider),
	)

	// Initialize tracing if enabled
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "roundtable", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = tracing.Shutdown(shutdownCtx, tp)
			}()
		}
	}

	st, err := openSeededStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	client, err := newLLMClient(cfg)
	if err != nil {
		return err
	}
	log.Info("completion provider ready",
		zap.String("provider", client.Name()),
		zap.String("default_model", client.DefaultModel()),
	)

	hub := realtime.NewHub(realtime.Config{
		HeartbeatInterval: cfg.WSHeartbeatInterval,
		SweepInterval:     cfg.WSSweepInterval,
	}, log)

	// Optional event journal
	var (
		natsReady handler.ConnChecker
		journal   *natsclient.EventJournal
	)
	if cfg.NATSEnabled {
		nc, err := natsclient.Connect(natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		defer nc.Close()

		journal = natsclient.NewEventJournal(nc, log)
		if err := journal.EnsureStream(ctx); err != nil {
			return fmt.Errorf("failed to ensure event stream: %w", err)
		}
		hub.SetMirror(journal)
		natsReady = nc
	}

	orch := orchestrator.New(st, client, hub, orchestrator.Config{
		TurnDelay:         cfg.TurnDelay,
		MaxTurns:          cfg.MaxTurnsPerRun,
		CompletionTimeout: cfg.CompletionTimeout,
		FallbackModel:     cfg.FallbackModel,
	}, log)

	// Initialize services
	conversationSvc := service.NewConversationService(st, hub, log)
	personalitySvc := service.NewPersonalityService(st, client.DefaultModel(), log)
	messageSvc := service.NewMessageService(st, orch, log)
	orchestrationSvc := service.NewOrchestrationService(st, orch, cfg.MaxTurnsPerRun, log)
	insightsSvc := service.NewInsightsService(st, client, service.InsightsConfig{
		Model:         cfg.InsightsModel,
		FallbackModel: cfg.FallbackModel,
		Timeout:       cfg.CompletionTimeout,
	}, log)

	// Background janitors
	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()

	orchestrateLimiter := ratelimit.NewSlidingWindow(cfg.OrchestrateRateLimit, cfg.OrchestrateRateWindow)
	insightsLimiter := ratelimit.NewSlidingWindow(cfg.InsightsRateLimit, cfg.InsightsRateWindow)
	go orchestrateLimiter.Run(runCtx, 0)
	go insightsLimiter.Run(runCtx, 0)
	go hub.Run(runCtx)

	// Initialize handlers
	handlers := handler.Handlers{
		Health:        handler.NewHealthHandler(st, natsReady),
		Conversations: handler.NewConversationHandler(conversationSvc, log),
		Messages:      handler.NewMessageHandler(messageSvc, log),
		Personalities: handler.NewPersonalityHandler(personalitySvc, log),
		Orchestration: handler.NewOrchestrationHandler(orchestrationSvc, insightsSvc, log),
		WS:            handler.NewWSHandler(hub),
	}
	if journal != nil {
		handlers.Events = handler.NewEventHandler(journal, conversationSvc, log)
	}

	router := handler.NewRouter(handlers, handler.RouterConfig{
		JWTSecret:          cfg.JWTSecret,
		CORSOrigins:        cfg.CORSOrigins,
		RateLimitRequests:  cfg.RateLimitRequests,
		RateLimitWindow:    cfg.RateLimitWindow,
		OrchestrateLimiter: orchestrateLimiter,
		InsightsLimiter:    insightsLimiter,
	}, log)

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down server")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}
	if err := orch.Shutdown(shutdownCtx); err != nil {
		log.Error("orchestration runs did not stop in time", zap.Error(err))
	}
	hub.Close()

	log.Info("server stopped")
	return nil
}

func seedPersonas(ctx context.Context) error {
	cfg := config.Load()

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	st, err := openSeededStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	n, err := st.CountPersonalities(ctx)
	if err != nil {
		return err
	}
	log.Info("persona catalog ready", zap.Int64("personas", n))
	return nil
}

// openSeededStore opens the database and seeds the persona catalog when no
// personas exist yet.
func openSeededStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (*store.Store, error) {
	st, err := store.Open(cfg.DatabaseDSN, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	catalog, err := config.LoadPersonaCatalog(cfg.PersonasFile)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to load persona catalog: %w", err)
	}

	n, err := st.SeedPersonalities(ctx, catalog)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to seed personas: %w", err)
	}
	if n > 0 {
		log.Info("seeded persona catalog", zap.Int("count", n))
	}
	return st, nil
}

func newLLMClient(cfg *config.Config) (llm.Client, error) {
	provider := llm.Provider(cfg.LLMProvider)

	var opts llm.Options
	switch provider {
	case llm.ProviderOpenAI:
		opts = llm.Options{APIKey: cfg.OpenAIAPIKey}
	case llm.ProviderAnthropic:
		opts = llm.Options{APIKey: cfg.AnthropicAPIKey}
	case llm.ProviderLocal:
		opts = llm.Options{
			APIKey:  cfg.LocalLLMToken,
			BaseURL: cfg.LocalLLMBaseURL,
			Model:   cfg.LocalLLMModel,
		}
	}

	client, err := llm.NewClient(provider, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", cfg.LLMProvider, err)
	}
	return client, nil
}
