// Package main is the entry point for the API server.
package main

import (
	"context"
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

	"github.com/omnidesk/omnichannel-crm/internal/ai"
	"github.com/omnidesk/omnichannel-crm/internal/assign"
	"github.com/omnidesk/omnichannel-crm/internal/config"
	"github.com/omnidesk/omnichannel-crm/internal/dispatch"
	"github.com/omnidesk/omnichannel-crm/internal/handler"
	"github.com/omnidesk/omnichannel-crm/internal/middleware"
	"github.com/omnidesk/omnichannel-crm/internal/model"
	"github.com/omnidesk/omnichannel-crm/internal/provider"
	"github.com/omnidesk/omnichannel-crm/internal/queue"
	"github.com/omnidesk/omnichannel-crm/internal/store"
	"github.com/omnidesk/omnichannel-crm/internal/webhook"
	"github.com/omnidesk/omnichannel-crm/internal/worker"
	"github.com/omnidesk/omnichannel-crm/pkg/logger"
	"github.com/omnidesk/omnichannel-crm/pkg/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting API server")

	// Initialize tracing if enabled
	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "omnichannel-crm", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Connect to NATS
	natsClient, err := queue.ConnectNATS(queue.NATSConfig{
		URL:      cfg.NATSURL,
		CAFile:   cfg.NATSCAFile,
		CertFile: cfg.NATSCertFile,
		KeyFile:  cfg.NATSKeyFile,
		Token:    cfg.NATSToken,
	}, log)
	if err != nil {
		log.Error("failed to connect to NATS", zap.Error(err))
		os.Exit(1)
	}
	defer natsClient.Close()

	jobQueue := queue.NewJetStreamQueue(natsClient, log)
	if err := jobQueue.EnsureStream(ctx); err != nil {
		log.Error("failed to ensure job stream", zap.Error(err))
		os.Exit(1)
	}

	// Stores. In-memory for now; each interface maps onto one table in
	// the relational layer.
	contacts := store.NewMemoryContactStore()
	conversations := store.NewMemoryConversationStore()
	messages := store.NewMemoryMessageStore()
	channels := store.NewMemoryChannelStore()
	chatbots := store.NewMemoryChatbotStore()
	campaigns := store.NewMemoryCampaignStore()
	scheduled := store.NewMemoryScheduledMessageStore()
	deadLetters := store.NewMemoryDeadLetterStore()

	// AI collaborator
	var aiClient ai.Client
	switch {
	case cfg.DefaultAI == "anthropic" && cfg.AnthropicAPIKey != "":
		aiClient, err = ai.NewAnthropicClient(cfg.AnthropicAPIKey)
	case cfg.OpenAIAPIKey != "":
		aiClient, err = ai.NewOpenAIClient(cfg.OpenAIAPIKey)
	}
	if err != nil {
		log.Warn("failed to create AI client, AI replies disabled", zap.Error(err))
		aiClient = nil
	}

	// Provider send adapters
	senders := provider.NewRegistry()
	senders.Register(model.ProviderBridge, provider.NewBridgeSender(cfg.BridgeBaseURL, cfg.BridgeAPIKey))
	senders.Register(model.ProviderCloud, provider.NewCloudSender(cfg.CloudBaseURL, cfg.CloudToken))
	senders.Register(model.ProviderInstagram, provider.NewInstagramSender(cfg.CloudBaseURL, cfg.InstagramToken))

	// Flow action side effects. Deal creation needs an external CRM
	// collaborator and stays unconfigured here; create_deal actions
	// fail soft until one is wired.
	picker := assign.NewRoundRobinPicker(assign.NewMemoryCursorStore(), "agents")
	var agents dispatch.AgentDirectory
	if len(cfg.AgentIDs) > 0 {
		agents = dispatch.StaticAgents(cfg.AgentIDs)
	}
	actions := dispatch.NewActions(contacts, conversations, picker, agents, nil, jobQueue, cfg.RetryMaxAttempts, log)

	// Inbound pipeline
	dispatcher := dispatch.New(dispatch.Deps{
		Conversations: conversations,
		Contacts:      contacts,
		Messages:      messages,
		Channels:      channels,
		Chatbots:      chatbots,
		AIClient:      aiClient,
		Actions:       actions,
		Queue:         jobQueue,
		Logger:        log,
		AITimeout:     cfg.AITimeout,
	})
	processor := webhook.NewProcessor(channels, contacts, conversations, messages, dispatcher, log)

	// Delivery workers
	outbound := worker.NewOutbound(messages, conversations, contacts, channels, senders, log)
	campaignRunner := worker.NewCampaignRunner(campaigns, contacts, messages, outbound, log)
	scheduledRunner := worker.NewScheduledRunner(scheduled, conversations, messages, outbound, log)
	relayRunner := worker.NewWebhookRelayRunner(jobQueue, deadLetters, worker.RetryPolicy{
		BaseDelay: cfg.RetryBaseDelay,
		MaxDelay:  cfg.RetryMaxDelay,
		Jitter:    0.1,
	}, log)

	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()

	pool := worker.NewPool(jobQueue, outbound, campaignRunner, scheduledRunner, relayRunner, worker.Concurrency{
		Campaign:  cfg.CampaignConcurrency,
		Scheduled: cfg.ScheduledConcurrency,
		AIReply:   cfg.AIJobConcurrency,
		Retry:     cfg.RetryConcurrency,
	}, log)
	if err := pool.Start(workerCtx); err != nil {
		log.Error("failed to start worker pool", zap.Error(err))
		os.Exit(1)
	}

	sweeper := worker.NewSweeper(scheduled, deadLetters, jobQueue, cfg.DeadLetterRetention, log)
	if err := sweeper.Start(workerCtx); err != nil {
		log.Error("failed to start sweeper", zap.Error(err))
		os.Exit(1)
	}
	defer sweeper.Stop()

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(natsClient)
	webhookHandler := handler.NewWebhookHandler(processor, cfg.BridgeWebhookSecret, cfg.MetaVerifyToken, log)
	deadLetterHandler := handler.NewDeadLetterHandler(deadLetters, jobQueue, log)
	campaignHandler := handler.NewCampaignHandler(campaigns, jobQueue, log)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS())

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// Provider webhooks authenticate with their own schemes, never JWT.
	r.Route("/webhooks", func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
		r.Post("/bridge", webhookHandler.Bridge)
		r.Get("/meta", webhookHandler.MetaVerify)
		r.Post("/meta", webhookHandler.Meta)
	})

	// Operations surface with authentication
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Route("/dead-letters", func(r chi.Router) {
			r.Use(middleware.RequireScope("ops"))
			r.Get("/", deadLetterHandler.List)
			r.Post("/{id}/replay", deadLetterHandler.Replay)
		})

		r.Route("/campaigns/{id}", func(r chi.Router) {
			r.Get("/", campaignHandler.Get)
			r.Post("/start", campaignHandler.Start)
			r.Post("/pause", campaignHandler.Pause)
			r.Post("/resume", campaignHandler.Resume)
			r.Post("/cancel", campaignHandler.Cancel)
		})
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	stopWorkers()

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
