package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ozyassistant/ozy/backend/internal/config"
	"github.com/ozyassistant/ozy/backend/internal/handler"
	"github.com/ozyassistant/ozy/backend/internal/logging"
	"github.com/ozyassistant/ozy/backend/internal/model/persona"
	"github.com/ozyassistant/ozy/backend/internal/observability"
	"github.com/ozyassistant/ozy/backend/internal/service/ai"
	"github.com/ozyassistant/ozy/backend/internal/service/chat"
	"github.com/ozyassistant/ozy/backend/internal/service/interaction"
	"github.com/ozyassistant/ozy/backend/internal/service/research"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bootLogger, _ := zap.NewProduction()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		bootLogger.Info("no .env file loaded, using system environment only", zap.Error(err))
	}

	cfg, err := config.Load()
	if err != nil {
		if errors.Is(err, config.ErrMissingAPIKey) {
			bootLogger.Fatal("startup aborted: model API key missing", zap.Error(err))
		}
		bootLogger.Fatal("failed to load configuration", zap.Error(err))
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		bootLogger.Fatal("failed to build logger", zap.Error(err))
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	metrics := observability.Default()
	personaStore := persona.NewMemoryStore(persona.Seed())

	aiService, err := ai.NewService(ctx, cfg.AI, metrics, logger)
	if err != nil {
		logger.Fatal("failed to initialize AI service", zap.Error(err))
	}

	pipeline, err := research.NewGeminiPipeline(ctx, aiService.Client(), cfg.Research, metrics, logger)
	if err != nil {
		logger.Warn("research delegate unavailable, research turns will continue without context", zap.Error(err))
	}

	chatService := chat.NewService(cfg.Session, chat.Options{
		DefaultPersona:  persona.NoviceGuide,
		ResearchEnabled: cfg.Research.DefaultEnabled,
		Metrics:         metrics,
		Logger:          logger,
	})
	controller := interaction.NewController(chatService, aiService, pipeline, personaStore, metrics, logger)

	router := handler.NewRouter(handler.Dependencies{
		Personas:       personaStore,
		Chat:           chatService,
		Controller:     controller,
		MaxUploadBytes: cfg.Upload.MaxBytes,
		Logger:         logger,
	})

	startServer(ctx, cfg.Server, router, logger)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, logger *zap.Logger) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("Ozy backend listening", zap.String("addr", addr))
	if err := runServer(ctx, srv); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
