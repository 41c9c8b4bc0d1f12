package live

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ozyassistant/ozy/backend/internal/handler/apierr"
	"github.com/ozyassistant/ozy/backend/internal/handler/upload"
	"github.com/ozyassistant/ozy/backend/internal/model/chat"
	"github.com/ozyassistant/ozy/backend/internal/model/persona"
	chatservice "github.com/ozyassistant/ozy/backend/internal/service/chat"
	"github.com/ozyassistant/ozy/backend/internal/service/interaction"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second
)

// WebSocketHandler WebSocket实时对话处理器
type WebSocketHandler struct {
	chatSvc      *chatservice.Service
	controller   *interaction.Controller
	personaStore persona.Store
	upgrader     websocket.Upgrader
	readLimit    int64
	pongWait     time.Duration
	pingPeriod   time.Duration
	logger       *zap.Logger
}

// NewWebSocketHandler 创建WebSocket处理器
func NewWebSocketHandler(chatSvc *chatservice.Service, controller *interaction.Controller, personaStore persona.Store, maxUploadBytes int64, logger *zap.Logger) *WebSocketHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebSocketHandler{
		chatSvc:      chatSvc,
		controller:   controller,
		personaStore: personaStore,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		readLimit:  readLimitFor(maxUploadBytes),
		pongWait:   pongWait,
		pingPeriod: pingPeriod,
		logger:     logger.Named("websocket"),
	}
}

// readLimitFor leaves room for the base64 expansion of an uploaded image.
func readLimitFor(maxUploadBytes int64) int64 {
	if maxUploadBytes <= 0 {
		return 0
	}
	return maxUploadBytes/3*4 + 64<<10
}

// RegisterWebSocketRoutes 注册WebSocket路由
func (h *WebSocketHandler) RegisterWebSocketRoutes(r chi.Router) {
	r.Get("/ws/{sessionID}", h.handleWebSocket)
}

type inboundMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data"`
}

// TextMessage 用户提交的一轮对话
type TextMessage struct {
	Text      string `json:"text"`
	Image     []byte `json:"image,omitempty"`
	ImageName string `json:"imageName,omitempty"`
}

// ConfigMessage 配置消息
type ConfigMessage struct {
	PersonaID       persona.ID `json:"personaId,omitempty"`
	ResearchEnabled *bool      `json:"researchEnabled,omitempty"`
}

// ClearMessage 清空某个角色的历史；为空时使用当前角色
type ClearMessage struct {
	PersonaID persona.ID `json:"personaId,omitempty"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// handleWebSocket 处理WebSocket连接
func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	session, err := h.chatSvc.GetSession(r.Context(), sessionID)
	if err != nil {
		apierr.Respond(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	if h.readLimit > 0 {
		conn.SetReadLimit(h.readLimit)
	}

	log := h.logger.With(zap.String("session", sessionID))
	log.Info("connection opened")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadDeadline(time.Now().Add(h.pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(h.pongWait))
		return nil
	})

	go h.pingLoop(ctx, conn)

	h.send(conn, sessionID, "connected", h.sessionPayload(session))

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("read error", zap.Error(err))
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(h.pongWait))

		if msg.SessionID != "" && msg.SessionID != sessionID {
			h.sendError(conn, sessionID, errors.New("session mismatch"))
			continue
		}
		h.handleMessage(ctx, conn, sessionID, &msg)
	}
}

func (h *WebSocketHandler) handleMessage(ctx context.Context, conn *websocket.Conn, sessionID string, msg *inboundMessage) {
	switch msg.Type {
	case "text":
		h.handleTextMessage(ctx, conn, sessionID, msg.Data)
	case "config":
		h.handleConfigMessage(ctx, conn, sessionID, msg.Data)
	case "clear":
		h.handleClearMessage(ctx, conn, sessionID, msg.Data)
	default:
		h.sendError(conn, sessionID, errors.New("unsupported message type: "+msg.Type))
	}
}

func (h *WebSocketHandler) handleTextMessage(ctx context.Context, conn *websocket.Conn, sessionID string, raw json.RawMessage) {
	var text TextMessage
	if err := json.Unmarshal(raw, &text); err != nil {
		h.sendError(conn, sessionID, errors.New("invalid text payload"))
		return
	}

	img, err := upload.DecodeImage(text.ImageName, text.Image)
	if err != nil {
		h.sendError(conn, sessionID, err)
		return
	}

	// 一轮对话期间不读取连接，pong 无法续期，先取消读超时
	conn.SetReadDeadline(time.Time{})
	defer func() {
		conn.SetReadDeadline(time.Now().Add(h.pongWait))
	}()

	result, err := h.controller.Submit(ctx, interaction.Submission{
		SessionID: sessionID,
		Text:      text.Text,
		Image:     img,
	}, func(e interaction.Event) {
		if e.Notice != nil {
			h.send(conn, sessionID, "notice", e.Notice)
			return
		}
		h.send(conn, sessionID, "stage", map[string]any{"stage": e.Stage})
	})
	if err != nil {
		h.sendError(conn, sessionID, err)
		return
	}
	h.send(conn, sessionID, "message", result)
}

func (h *WebSocketHandler) handleConfigMessage(ctx context.Context, conn *websocket.Conn, sessionID string, raw json.RawMessage) {
	var cfg ConfigMessage
	if err := json.Unmarshal(raw, &cfg); err != nil {
		h.sendError(conn, sessionID, errors.New("invalid config payload"))
		return
	}

	session, err := h.applyConfig(ctx, sessionID, cfg)
	if err != nil {
		h.sendError(conn, sessionID, err)
		return
	}
	h.send(conn, sessionID, "config", h.sessionPayload(session))
}

func (h *WebSocketHandler) applyConfig(ctx context.Context, sessionID string, cfg ConfigMessage) (chat.Session, error) {
	session, err := h.chatSvc.GetSession(ctx, sessionID)
	if err != nil {
		return chat.Session{}, err
	}
	if cfg.PersonaID != "" && cfg.PersonaID != session.ActivePersona {
		if session, err = h.chatSvc.SetActivePersona(ctx, sessionID, cfg.PersonaID); err != nil {
			return chat.Session{}, err
		}
	}
	if cfg.ResearchEnabled != nil {
		if session, err = h.chatSvc.SetResearchEnabled(ctx, sessionID, *cfg.ResearchEnabled); err != nil {
			return chat.Session{}, err
		}
	}
	return session, nil
}

func (h *WebSocketHandler) handleClearMessage(ctx context.Context, conn *websocket.Conn, sessionID string, raw json.RawMessage) {
	var req ClearMessage
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &req); err != nil {
			h.sendError(conn, sessionID, errors.New("invalid clear payload"))
			return
		}
	}

	personaID := req.PersonaID
	if personaID == "" {
		session, err := h.chatSvc.GetSession(ctx, sessionID)
		if err != nil {
			h.sendError(conn, sessionID, err)
			return
		}
		personaID = session.ActivePersona
	}

	session, err := h.chatSvc.ClearHistory(ctx, sessionID, personaID)
	if err != nil {
		h.sendError(conn, sessionID, err)
		return
	}
	h.send(conn, sessionID, "cleared", map[string]any{
		"personaId": personaID,
		"session":   session,
	})
}

func (h *WebSocketHandler) sessionPayload(session chat.Session) map[string]any {
	payload := map[string]any{"session": session}
	if p, ok := h.personaStore.FindByID(session.ActivePersona); ok {
		payload["persona"] = p
	}
	return payload
}

func (h *WebSocketHandler) send(conn *websocket.Conn, sessionID, kind string, data interface{}) {
	msg := outgoingMessage{
		Type:      kind,
		SessionID: sessionID,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(msg); err != nil {
		h.logger.Debug("write failed", zap.String("type", kind), zap.Error(err))
	}
}

func (h *WebSocketHandler) sendError(conn *websocket.Conn, sessionID string, err error) {
	h.send(conn, sessionID, "error", map[string]any{
		"message": err.Error(),
		"status":  apierr.Status(err),
	})
}

// pingLoop 定期发送ping消息
func (h *WebSocketHandler) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(h.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
