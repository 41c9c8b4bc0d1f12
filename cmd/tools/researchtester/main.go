package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ozyassistant/ozy/backend/internal/config"
	"github.com/ozyassistant/ozy/backend/internal/handler/upload"
	"github.com/ozyassistant/ozy/backend/internal/logging"
	"github.com/ozyassistant/ozy/backend/internal/model/persona"
	"github.com/ozyassistant/ozy/backend/internal/service/ai"
	"github.com/ozyassistant/ozy/backend/internal/service/chat"
	"github.com/ozyassistant/ozy/backend/internal/service/interaction"
	"github.com/ozyassistant/ozy/backend/internal/service/research"
)

func main() {
	mode := flag.String("mode", "turn", "test mode: research (pipeline only) or turn (full chat turn)")
	prompt := flag.String("prompt", "", "user prompt")
	personaID := flag.String("persona", string(persona.NoviceGuide), "persona id: professor-ozy or ozy-guru")
	withResearch := flag.Bool("research", false, "enable web research for the turn")
	imagePath := flag.String("image", "", "optional JPEG/PNG screenshot to attach")
	timeout := flag.Duration("timeout", 2*time.Minute, "overall timeout")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "no .env loaded, using system environment: %v\n", err)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	cfg.Log.Development = true
	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if strings.TrimSpace(*prompt) == "" {
		flag.Usage()
		logger.Fatal("a prompt is required, pass -prompt")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	aiService, err := ai.NewService(ctx, cfg.AI, nil, logger)
	if err != nil {
		logger.Fatal("failed to initialize AI service", zap.Error(err))
	}
	pipeline, err := research.NewGeminiPipeline(ctx, aiService.Client(), cfg.Research, nil, logger)
	if err != nil {
		logger.Warn("research delegate unavailable", zap.Error(err))
	}

	switch *mode {
	case "research":
		runResearch(ctx, pipeline, *prompt, logger)
	case "turn":
		runTurn(ctx, cfg, aiService, pipeline, *prompt, persona.ID(*personaID), *withResearch, *imagePath, logger)
	default:
		flag.Usage()
		logger.Fatal("unknown mode", zap.String("mode", *mode))
	}
}

func runResearch(ctx context.Context, pipeline *research.Pipeline, prompt string, logger *zap.Logger) {
	result, err := pipeline.Run(ctx, prompt)
	if err != nil {
		logger.Fatal("research failed", zap.Error(err))
	}
	fmt.Printf("Simplified query: %s\n", result.Query)
	fmt.Println(research.FormatContext(result.Findings))
}

func runTurn(ctx context.Context, cfg *config.Config, aiService *ai.Service, pipeline *research.Pipeline, prompt string, personaID persona.ID, withResearch bool, imagePath string, logger *zap.Logger) {
	personas := persona.NewMemoryStore(persona.Seed())
	store := chat.NewService(cfg.Session, chat.Options{DefaultPersona: personaID, ResearchEnabled: withResearch, Logger: logger})
	controller := interaction.NewController(store, aiService, pipeline, personas, nil, logger)

	session, err := store.CreateSession(ctx)
	if err != nil {
		logger.Fatal("failed to create session", zap.Error(err))
	}
	if session.ActivePersona != personaID {
		logger.Fatal("unknown persona", zap.String("persona", string(personaID)))
	}

	sub := interaction.Submission{SessionID: session.ID, Text: prompt}
	if imagePath != "" {
		data, err := os.ReadFile(imagePath)
		if err != nil {
			logger.Fatal("failed to read image", zap.Error(err))
		}
		if sub.Image, err = upload.DecodeImage(imagePath, data); err != nil {
			logger.Fatal("invalid image", zap.Error(err))
		}
	}

	result, err := controller.Submit(ctx, sub, func(e interaction.Event) {
		if e.Notice != nil {
			fmt.Printf("[%s] %s\n", e.Notice.Level, e.Notice.Message)
			return
		}
		logger.Debug("stage", zap.String("stage", string(e.Stage)))
	})
	if err != nil {
		logger.Fatal("turn failed", zap.Error(err))
	}

	fmt.Printf("\n%s: %s\n", result.Assistant.Author, result.Assistant.Content)
}
