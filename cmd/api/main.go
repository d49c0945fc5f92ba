// Package main is the entry point for the message service API server.
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
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/modai-platform/message-service/internal/config"
	"github.com/modai-platform/message-service/internal/handler"
	"github.com/modai-platform/message-service/internal/middleware"
	"github.com/modai-platform/message-service/internal/queue"
	"github.com/modai-platform/message-service/internal/service"
	"github.com/modai-platform/message-service/internal/store"
	"github.com/modai-platform/message-service/internal/usage"
	"github.com/modai-platform/message-service/pkg/logger"
	"github.com/modai-platform/message-service/pkg/tracing"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting message service")

	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "message-service", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Storage backend
	var st store.Store
	if cfg.DBUseInMemory {
		log.Warn("using in-memory storage; data will not survive restarts")
		st = store.NewMemoryStore()
	} else {
		pg, err := store.NewPostgresStore(store.PostgresConfig{
			Host:     cfg.DBHost,
			Port:     cfg.DBPort,
			User:     cfg.DBUser,
			Password: cfg.DBPassword,
			DBName:   cfg.DBName,
			SSLMode:  cfg.DBSSLMode,
		})
		if err != nil {
			log.Error("failed to connect to database", zap.Error(err))
			os.Exit(1)
		}
		st = pg
	}
	defer st.Close()

	// Classification queue (optional)
	var publisher queue.Publisher = queue.NewNoopPublisher()
	if cfg.NATSURL != "" {
		natsClient, err := queue.Connect(ctx, queue.Config{
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

		js := queue.NewJetStreamPublisher(natsClient)
		if err := js.EnsureStream(ctx); err != nil {
			log.Error("failed to ensure classification stream", zap.Error(err))
			os.Exit(1)
		}
		publisher = js
	} else {
		log.Warn("NATS_URL not set; classification jobs will be dropped")
	}

	// Usage tracking client (disabled when URL unset)
	tracker := usage.NewClient(cfg.UsageServiceURL, cfg.UsageRequestTimeout, log)

	// Services
	svcCfg := service.Config{
		ConversationPageSize: cfg.ConversationPageSize,
		MessagePageSize:      cfg.MessagePageSize,
	}
	conversationSvc := service.NewConversationService(st, svcCfg, log)
	messageSvc := service.NewMessageService(st, publisher, tracker, svcCfg, log)

	// Handlers
	healthHandler := handler.NewHealthHandler(st)
	conversationHandler := handler.NewConversationHandler(conversationSvc, log)
	messageHandler := handler.NewMessageHandler(messageSvc, log)

	// Router
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"Link", "X-Correlation-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// API routes with authentication
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		// Conversations
		r.Route("/conversations", func(r chi.Router) {
			r.Post("/", conversationHandler.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", conversationHandler.Get)
				r.Patch("/", conversationHandler.Update)
				r.Delete("/", conversationHandler.Delete)
				r.Get("/with-messages", conversationHandler.GetWithMessages)

				// Messages
				r.Get("/messages", messageHandler.List)
				r.Post("/messages", messageHandler.Create)
			})
		})

		// Teen-scoped listing
		r.Get("/teens/{teenID}/conversations", conversationHandler.ListByTeen)

		// Messages
		r.Route("/messages/{id}", func(r chi.Router) {
			r.Get("/", messageHandler.Get)
			r.Put("/classification", messageHandler.Classify)
			r.Post("/safety-flags", messageHandler.AddSafetyFlag)
			r.Post("/block", messageHandler.Block)
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
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
