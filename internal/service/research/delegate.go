package research

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/adk"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"
)

// ErrNoFinalResponse is returned when a delegate run ends without a final
// assistant message.
var ErrNoFinalResponse = errors.New("delegate produced no final response")

const (
	delegateUserID    = "user1"
	delegateSessionID = "session1"
)

// Task describes one delegate turn.
type Task struct {
	Name        string
	Description string
	Instruction string
	Input       string
	// UseTools attaches the web tools to the delegate agent.
	UseTools bool
}

// Delegate runs a single agent turn to completion and returns its final text.
type Delegate interface {
	RunTurn(ctx context.Context, task Task) (string, error)
}

// SessionKey returns the synthetic, single-use session identifier of a delegate.
func SessionKey(name string) string {
	return fmt.Sprintf("%s_%s_%s", name, delegateUserID, delegateSessionID)
}

// ADKDelegate runs tasks as eino ADK chat-model agents.
type ADKDelegate struct {
	model         model.ToolCallingChatModel
	tools         []tool.BaseTool
	maxIterations int
	logger        *zap.Logger
}

// NewADKDelegate creates a delegate backed by chatModel. tools are only
// attached to tasks that ask for them.
func NewADKDelegate(chatModel model.ToolCallingChatModel, tools []tool.BaseTool, maxIterations int, logger *zap.Logger) *ADKDelegate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ADKDelegate{
		model:         chatModel,
		tools:         tools,
		maxIterations: maxIterations,
		logger:        logger.Named("delegate"),
	}
}

// RunTurn builds a fresh agent and runner for the task, so no state is shared
// between turns.
func (d *ADKDelegate) RunTurn(ctx context.Context, task Task) (string, error) {
	if d == nil || d.model == nil {
		return "", ErrDelegateUnavailable
	}

	cfg := &adk.ChatModelAgentConfig{
		Name:          task.Name,
		Description:   task.Description,
		Instruction:   task.Instruction,
		Model:         d.model,
		MaxIterations: d.maxIterations,
	}
	if task.UseTools && len(d.tools) > 0 {
		cfg.ToolsConfig = adk.ToolsConfig{
			ToolsNodeConfig: compose.ToolsNodeConfig{Tools: d.tools},
		}
	}

	agent, err := adk.NewChatModelAgent(ctx, cfg)
	if err != nil {
		return "", fmt.Errorf("failed to create agent %s: %w", task.Name, err)
	}

	key := SessionKey(task.Name)
	runner := adk.NewRunner(ctx, adk.RunnerConfig{Agent: agent})
	iter := runner.Query(ctx, task.Input, adk.WithSessionValues(map[string]any{
		"user_id":    delegateUserID,
		"session_id": key,
	}))

	d.logger.Debug("running delegate", zap.String("agent", task.Name), zap.String("session", key))
	text, err := collectFinalResponse(iter)
	if err != nil {
		return "", fmt.Errorf("agent %s: %w", task.Name, err)
	}
	return text, nil
}

// collectFinalResponse drains the event stream and keeps only the last
// assistant message that carries no tool calls.
func collectFinalResponse(iter *adk.AsyncIterator[*adk.AgentEvent]) (string, error) {
	var final adk.Message
	for {
		event, ok := iter.Next()
		if !ok {
			break
		}
		if event == nil {
			continue
		}
		if event.Err != nil {
			return "", event.Err
		}
		if event.Output == nil || event.Output.MessageOutput == nil {
			continue
		}

		variant := event.Output.MessageOutput
		if variant.Role != schema.Assistant {
			continue
		}
		msg, err := variant.GetMessage()
		if err != nil {
			return "", err
		}
		if msg == nil || len(msg.ToolCalls) > 0 {
			continue
		}
		final = msg
	}

	if final == nil {
		return "", ErrNoFinalResponse
	}
	return strings.TrimSpace(messageText(final)), nil
}

// messageText concatenates every text fragment of msg with no separator.
func messageText(msg *schema.Message) string {
	var b strings.Builder
	b.WriteString(msg.Content)
	for _, part := range msg.MultiContent {
		if part.Type == schema.ChatMessagePartTypeText {
			b.WriteString(part.Text)
		}
	}
	return b.String()
}
