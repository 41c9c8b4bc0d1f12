package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/ozyassistant/ozy/backend/internal/config"
	"github.com/ozyassistant/ozy/backend/internal/model/chat"
	"github.com/ozyassistant/ozy/backend/internal/model/persona"
	"github.com/ozyassistant/ozy/backend/internal/observability"
)

// ErrEmptyReply is returned when the model answers without any text.
var ErrEmptyReply = errors.New("model returned an empty reply")

// Service opens persona-primed Gemini chat sessions.
type Service struct {
	client  *genai.Client
	prompts *PersonaPromptManager
	cfg     config.AIConfig
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewService creates the Gemini client shared by every conversation.
func NewService(ctx context.Context, cfg config.AIConfig, metrics *observability.Metrics, logger *zap.Logger) (*Service, error) {
	if cfg.APIKey == "" {
		return nil, config.ErrMissingAPIKey
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		client:  client,
		prompts: NewPersonaPromptManager(),
		cfg:     cfg,
		metrics: metrics,
		logger:  logger.Named("ai"),
	}, nil
}

// Client exposes the underlying genai client for components that share it.
func (s *Service) Client() *genai.Client {
	return s.client
}

// Prompts returns the persona prompt manager.
func (s *Service) Prompts() *PersonaPromptManager {
	return s.prompts
}

// OpenSession builds a fresh chat for the persona with no prior turns.
func (s *Service) OpenSession(ctx context.Context, id persona.ID) (chat.Conversation, error) {
	instruction, err := s.prompts.BuildSystemPrompt(id)
	if err != nil {
		return nil, err
	}

	session, err := s.client.Chats.Create(ctx, s.cfg.Model, buildGenerateConfig(s.cfg, instruction), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open chat for persona %s: %w", id, err)
	}

	s.logger.Info("opened chat session", zap.String("persona", string(id)), zap.String("model", s.cfg.Model))
	return &geminiConversation{
		chat:    session,
		persona: id,
		timeout: s.cfg.RequestTimeout,
		metrics: s.metrics,
		logger:  s.logger,
	}, nil
}

func buildGenerateConfig(cfg config.AIConfig, instruction string) *genai.GenerateContentConfig {
	candidates := cfg.CandidateCount
	if candidates <= 0 {
		candidates = 1
	}

	return &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: instruction}}},
		CandidateCount:    candidates,
		Temperature:       genai.Ptr(cfg.Temperature),
		SafetySettings:    safetySettings(),
	}
}

func safetySettings() []*genai.SafetySetting {
	return []*genai.SafetySetting{
		{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockThresholdBlockOnlyHigh},
		{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockThresholdBlockOnlyHigh},
		{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockThresholdBlockOnlyHigh},
		{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockThresholdBlockNone},
	}
}

func toGenaiParts(parts []chat.Part) []genai.Part {
	out := make([]genai.Part, 0, len(parts))
	for _, part := range parts {
		switch {
		case part.Image != nil && len(part.Image.Data) > 0:
			out = append(out, *genai.NewPartFromBytes(part.Image.Data, part.Image.MIMEType))
		case part.Text != "":
			out = append(out, *genai.NewPartFromText(part.Text))
		}
	}
	return out
}

// geminiConversation wraps a genai chat, which accumulates turns internally.
type geminiConversation struct {
	mu      sync.Mutex
	chat    *genai.Chat
	persona persona.ID
	timeout time.Duration
	metrics *observability.Metrics
	logger  *zap.Logger
}

func (c *geminiConversation) Send(ctx context.Context, parts []chat.Part) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	started := time.Now()
	resp, err := c.chat.SendMessage(ctx, toGenaiParts(parts)...)
	if err != nil {
		c.metrics.ObserveModelSend(started, "error")
		return "", fmt.Errorf("failed to send message: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		c.metrics.ObserveModelSend(started, "empty")
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return "", fmt.Errorf("%w: blocked (%s)", ErrEmptyReply, resp.PromptFeedback.BlockReason)
		}
		return "", ErrEmptyReply
	}

	c.metrics.ObserveModelSend(started, "ok")
	c.logger.Debug("model replied",
		zap.String("persona", string(c.persona)),
		zap.Int("parts", len(parts)),
		zap.Int("length", len(text)),
		zap.Duration("elapsed", time.Since(started)))
	return text, nil
}
