package stream

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ozyassistant/ozy/backend/internal/handler/apierr"
	"github.com/ozyassistant/ozy/backend/internal/handler/upload"
	chatService "github.com/ozyassistant/ozy/backend/internal/service/chat"
	"github.com/ozyassistant/ozy/backend/internal/service/interaction"
	"github.com/ozyassistant/ozy/backend/pkg/utils"
)

// SSE event names.
const (
	EventStage   = "stage"
	EventNotice  = "notice"
	EventMessage = "message"
	EventError   = "error"
	EventEnd     = "end"
)

// Handler runs a turn and reports its progress as Server-Sent Events.
type Handler struct {
	chatSvc        *chatService.Service
	controller     *interaction.Controller
	maxUploadBytes int64
	logger         *zap.Logger
}

// New creates a new stream handler
func New(chatSvc *chatService.Service, controller *interaction.Controller, maxUploadBytes int64, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		chatSvc:        chatSvc,
		controller:     controller,
		maxUploadBytes: maxUploadBytes,
		logger:         logger.Named("stream"),
	}
}

// RegisterRoutes mounts the streaming turn endpoint.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/stream/{sessionID}", h.handleStream)
}

// StreamResponse represents a streaming response chunk
type StreamResponse struct {
	SessionID string              `json:"sessionId,omitempty"`
	Stage     interaction.Stage   `json:"stage,omitempty"`
	Notice    *interaction.Notice `json:"notice,omitempty"`
	Result    *interaction.Result `json:"result,omitempty"`
	Finished  bool                `json:"finished,omitempty"`
	Error     string              `json:"error,omitempty"`
}

// handleStream validates the submission up front so request errors keep
// their HTTP status, then switches to SSE for the turn itself.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	form, err := upload.ParseForm(w, r, h.maxUploadBytes)
	if err != nil {
		apierr.Respond(w, err)
		return
	}
	if strings.TrimSpace(form.Text) == "" {
		apierr.Respond(w, interaction.ErrEmptyMessage)
		return
	}
	if _, err := h.chatSvc.GetSession(r.Context(), sessionID); err != nil {
		apierr.Respond(w, err)
		return
	}

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	send := func(event string, payload StreamResponse) {
		payload.SessionID = sessionID
		if err := utils.SendSSEEvent(w, flusher, event, payload); err != nil {
			h.logger.Debug("sse write failed", zap.String("session", sessionID), zap.Error(err))
		}
	}

	result, err := h.controller.Submit(r.Context(), interaction.Submission{
		SessionID: sessionID,
		Text:      form.Text,
		Image:     form.Image,
	}, func(e interaction.Event) {
		if e.Notice != nil {
			send(EventNotice, StreamResponse{Notice: e.Notice})
			return
		}
		send(EventStage, StreamResponse{Stage: e.Stage})
	})
	if err != nil {
		h.logger.Warn("turn failed", zap.String("session", sessionID), zap.Error(err))
		send(EventError, StreamResponse{Error: err.Error()})
		send(EventEnd, StreamResponse{Finished: true})
		return
	}

	send(EventMessage, StreamResponse{Result: result})
	send(EventEnd, StreamResponse{Finished: true})
}
