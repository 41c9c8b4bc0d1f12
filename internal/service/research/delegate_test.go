package research

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/adk"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func iteratorOf(events ...*adk.AgentEvent) *adk.AsyncIterator[*adk.AgentEvent] {
	iter, gen := adk.NewAsyncIteratorPair[*adk.AgentEvent]()
	for _, e := range events {
		gen.Send(e)
	}
	gen.Close()
	return iter
}

func assistantEvent(msg *schema.Message) *adk.AgentEvent {
	return adk.EventFromMessage(msg, nil, schema.Assistant, "")
}

func TestCollectFinalResponseKeepsOnlyFinalAssistantMessage(t *testing.T) {
	toolCall := schema.AssistantMessage("", []schema.ToolCall{{ID: "1", Function: schema.FunctionCall{Name: webSearchToolName}}})
	toolResult := adk.EventFromMessage(schema.ToolMessage(`{"summary":"raw"}`, "1"), nil, schema.Tool, webSearchToolName)

	text, err := collectFinalResponse(iteratorOf(
		assistantEvent(schema.AssistantMessage("thinking out loud", nil)),
		assistantEvent(toolCall),
		toolResult,
		assistantEvent(schema.AssistantMessage("  Use High preset. Link: http://x \n", nil)),
	))
	require.NoError(t, err)
	assert.Equal(t, "Use High preset. Link: http://x", text)
}

func TestCollectFinalResponseJoinsTextPartsWithoutSeparator(t *testing.T) {
	msg := &schema.Message{
		Role:    schema.Assistant,
		Content: "first",
		MultiContent: []schema.ChatMessagePart{
			{Type: schema.ChatMessagePartTypeText, Text: "second"},
			{Type: schema.ChatMessagePartTypeImageURL, ImageURL: &schema.ChatMessageImageURL{URL: "http://img"}},
			{Type: schema.ChatMessagePartTypeText, Text: "third"},
		},
	}

	text, err := collectFinalResponse(iteratorOf(assistantEvent(msg)))
	require.NoError(t, err)
	assert.Equal(t, "firstsecondthird", text)
}

func TestCollectFinalResponseSurfacesEventError(t *testing.T) {
	boom := errors.New("model exploded")
	_, err := collectFinalResponse(iteratorOf(&adk.AgentEvent{Err: boom}))
	assert.ErrorIs(t, err, boom)
}

func TestCollectFinalResponseWithoutFinalMessage(t *testing.T) {
	_, err := collectFinalResponse(iteratorOf())
	assert.ErrorIs(t, err, ErrNoFinalResponse)
}

func TestSessionKeyIsScopedToDelegate(t *testing.T) {
	assert.Equal(t, "agent_simplifier_user1_session1", SessionKey(simplifierName))
	assert.NotEqual(t, SessionKey(simplifierName), SessionKey(searcherName))
}

func TestADKDelegateWithoutModel(t *testing.T) {
	d := NewADKDelegate(nil, nil, 0, nil)
	_, err := d.RunTurn(context.Background(), Task{Name: "x"})
	assert.ErrorIs(t, err, ErrDelegateUnavailable)
}

type echoModel struct {
	inputs [][]*schema.Message
	reply  string
}

func (m *echoModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.inputs = append(m.inputs, input)
	return schema.AssistantMessage(m.reply, nil), nil
}

func (m *echoModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func (m *echoModel) WithTools(_ []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	return m, nil
}

func TestADKDelegateRunTurnReturnsTrimmedFinalText(t *testing.T) {
	chatModel := &echoModel{reply: "  best graphics settings  "}
	d := NewADKDelegate(chatModel, nil, 4, nil)

	text, err := d.RunTurn(context.Background(), Task{
		Name:        simplifierName,
		Description: "simplifies",
		Instruction: simplifierInstruction,
		Input:       "Simplify: 'make my game prettier'",
	})
	require.NoError(t, err)
	assert.Equal(t, "best graphics settings", text)

	require.NotEmpty(t, chatModel.inputs)
	var sawInput bool
	for _, msg := range chatModel.inputs[0] {
		if msg.Role == schema.User && msg.Content == "Simplify: 'make my game prettier'" {
			sawInput = true
		}
	}
	assert.True(t, sawInput, "user input must reach the model")
}
