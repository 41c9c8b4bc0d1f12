package live

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ozyassistant/ozy/backend/internal/config"
	"github.com/ozyassistant/ozy/backend/internal/model/chat"
	"github.com/ozyassistant/ozy/backend/internal/model/persona"
	chatservice "github.com/ozyassistant/ozy/backend/internal/service/chat"
	"github.com/ozyassistant/ozy/backend/internal/service/interaction"
)

type replyConversation struct{}

func (replyConversation) Send(_ context.Context, parts []chat.Part) (string, error) {
	return "echo: " + parts[len(parts)-1].Text, nil
}

type replyOpener struct{}

func (replyOpener) OpenSession(context.Context, persona.ID) (chat.Conversation, error) {
	return replyConversation{}, nil
}

type received struct {
	Type      string         `json:"type"`
	SessionID string         `json:"sessionId"`
	Data      map[string]any `json:"data"`
}

type slowConversation struct {
	delay time.Duration
}

func (c slowConversation) Send(ctx context.Context, parts []chat.Part) (string, error) {
	select {
	case <-time.After(c.delay):
		return "done: " + parts[len(parts)-1].Text, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

type slowOpener struct {
	delay time.Duration
}

func (o slowOpener) OpenSession(context.Context, persona.ID) (chat.Conversation, error) {
	return slowConversation{delay: o.delay}, nil
}

func setup(t *testing.T) (*httptest.Server, *chatservice.Service, chat.Session) {
	t.Helper()
	return setupWith(t, replyOpener{}, nil)
}

func setupWith(t *testing.T, opener chatservice.Opener, configure func(*WebSocketHandler)) (*httptest.Server, *chatservice.Service, chat.Session) {
	t.Helper()
	chatSvc := chatservice.NewService(config.SessionConfig{MaxSessions: 4, TTL: time.Hour}, chatservice.Options{})
	personas := persona.NewMemoryStore(persona.Seed())
	controller := interaction.NewController(chatSvc, opener, nil, personas, nil, nil)
	session, err := chatSvc.CreateSession(context.Background())
	require.NoError(t, err)

	r := chi.NewRouter()
	h := NewWebSocketHandler(chatSvc, controller, personas, 1<<20, nil)
	if configure != nil {
		configure(h)
	}
	h.RegisterWebSocketRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, chatSvc, session
}

func dial(t *testing.T, srv *httptest.Server, sessionID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/" + sessionID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil returns the first message of the given type.
func readUntil(t *testing.T, conn *websocket.Conn, kind string) received {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var msg received
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == kind {
			return msg
		}
	}
}

func TestWebSocketTextTurn(t *testing.T) {
	srv, chatSvc, session := setup(t)
	conn := dial(t, srv, session.ID)

	connected := readUntil(t, conn, "connected")
	assert.Equal(t, session.ID, connected.SessionID)

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type": "text",
		"data": map[string]any{"text": "hello"},
	}))

	stage := readUntil(t, conn, "stage")
	assert.Equal(t, string(interaction.StageAssembling), stage.Data["stage"])

	msg := readUntil(t, conn, "message")
	assistant, ok := msg.Data["assistant"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "echo: hello", assistant["content"])

	history, err := chatSvc.LoadTranscript(context.Background(), session.ID, persona.NoviceGuide)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestWebSocketSurvivesTurnLongerThanPongWait(t *testing.T) {
	srv, _, session := setupWith(t, slowOpener{delay: 600 * time.Millisecond}, func(h *WebSocketHandler) {
		h.pongWait = 200 * time.Millisecond
		h.pingPeriod = time.Hour
	})
	conn := dial(t, srv, session.ID)
	readUntil(t, conn, "connected")

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type": "text",
		"data": map[string]any{"text": "slow question"},
	}))
	msg := readUntil(t, conn, "message")
	assistant, ok := msg.Data["assistant"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "done: slow question", assistant["content"])

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type": "config",
		"data": map[string]any{"researchEnabled": true},
	}))
	cfg := readUntil(t, conn, "config")
	assert.Equal(t, session.ID, cfg.SessionID)
}

func TestWebSocketConfigAndClear(t *testing.T) {
	srv, chatSvc, session := setup(t)
	conn := dial(t, srv, session.ID)
	readUntil(t, conn, "connected")

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type": "config",
		"data": map[string]any{"personaId": "ozy-guru", "researchEnabled": true},
	}))
	readUntil(t, conn, "config")

	got, err := chatSvc.GetSession(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, persona.ExpertGuru, got.ActivePersona)
	assert.True(t, got.ResearchEnabled)

	_, err = chatSvc.SaveMessage(context.Background(), session.ID, persona.ExpertGuru, chat.Message{Content: "x"})
	require.NoError(t, err)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "clear"}))
	cleared := readUntil(t, conn, "cleared")
	assert.Equal(t, string(persona.ExpertGuru), cleared.Data["personaId"])

	history, _ := chatSvc.LoadTranscript(context.Background(), session.ID, persona.ExpertGuru)
	assert.Empty(t, history)
}

func TestWebSocketReportsErrors(t *testing.T) {
	srv, _, session := setup(t)
	conn := dial(t, srv, session.ID)
	readUntil(t, conn, "connected")

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type": "config",
		"data": map[string]any{"personaId": "wizard"},
	}))
	msg := readUntil(t, conn, "error")
	assert.EqualValues(t, http.StatusBadRequest, msg.Data["status"])

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "audio"}))
	msg = readUntil(t, conn, "error")
	assert.Contains(t, msg.Data["message"], "unsupported message type")

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type": "text",
		"data": map[string]any{"text": "hi", "image": "R0lGODlhAQABAAAAADs="},
	}))
	msg = readUntil(t, conn, "error")
	assert.Contains(t, msg.Data["message"], "only JPEG and PNG")
}

func TestWebSocketUnknownSession(t *testing.T) {
	srv, _, _ := setup(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/missing"

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestReadLimitLeavesRoomForBase64(t *testing.T) {
	assert.Zero(t, readLimitFor(0))
	assert.Greater(t, readLimitFor(3<<20), int64(4<<20))
}
