package research

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/ozyassistant/ozy/backend/internal/config"
	"github.com/ozyassistant/ozy/backend/internal/observability"
)

// NewGeminiDelegate builds the agent model and web tools on a shared genai client.
func NewGeminiDelegate(ctx context.Context, client *genai.Client, cfg config.ResearchConfig, logger *zap.Logger) (*ADKDelegate, error) {
	if client == nil {
		return nil, ErrDelegateUnavailable
	}

	chatModel, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client: client,
		Model:  cfg.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create research chat model: %w", err)
	}

	tools, err := NewTools(
		NewGroundedSearcher(client, cfg.SearchModel),
		NewHTTPPageFetcher(cfg.FetchTimeout, cfg.FetchMaxChars),
	)
	if err != nil {
		return nil, err
	}

	return NewADKDelegate(chatModel, tools, cfg.MaxIterations, logger), nil
}

// NewGeminiPipeline returns a pipeline over NewGeminiDelegate. When the
// delegate cannot be built the pipeline is still returned, without a
// delegate, together with the error.
func NewGeminiPipeline(ctx context.Context, client *genai.Client, cfg config.ResearchConfig, metrics *observability.Metrics, logger *zap.Logger) (*Pipeline, error) {
	delegate, err := NewGeminiDelegate(ctx, client, cfg, logger)
	if err != nil {
		return NewPipeline(nil, cfg.Timeout, metrics, logger), err
	}
	return NewPipeline(delegate, cfg.Timeout, metrics, logger), nil
}
