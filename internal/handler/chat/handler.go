package chat

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ozyassistant/ozy/backend/internal/handler/apierr"
	"github.com/ozyassistant/ozy/backend/internal/handler/upload"
	"github.com/ozyassistant/ozy/backend/internal/model/chat"
	"github.com/ozyassistant/ozy/backend/internal/model/persona"
	chatService "github.com/ozyassistant/ozy/backend/internal/service/chat"
	"github.com/ozyassistant/ozy/backend/internal/service/interaction"
	"github.com/ozyassistant/ozy/backend/pkg/utils"
)

// Handler 聊天服务的HTTP处理器
type Handler struct {
	chatSvc        *chatService.Service
	controller     *interaction.Controller
	personaStore   persona.Store
	maxUploadBytes int64
	logger         *zap.Logger
}

// New 创建聊天处理器
func New(chatSvc *chatService.Service, controller *interaction.Controller, personaStore persona.Store, maxUploadBytes int64, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		chatSvc:        chatSvc,
		controller:     controller,
		personaStore:   personaStore,
		maxUploadBytes: maxUploadBytes,
		logger:         logger.Named("chat"),
	}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/session", h.handleCreateSession)
	r.Route("/session/{sessionID}", func(r chi.Router) {
		r.Get("/", h.handleGetSession)
		r.Delete("/", h.handleDeleteSession)
		r.Put("/persona", h.handleSetPersona)
		r.Put("/research", h.handleSetResearch)
		r.Get("/history", h.handleGetHistory)
		r.Delete("/history", h.handleClearHistory)
		r.Post("/messages", h.handleSubmit)
	})
}

// SessionView is a session with its active persona resolved.
type SessionView struct {
	Session chat.Session     `json:"session"`
	Persona *persona.Persona `json:"persona,omitempty"`
}

// HistoryView is one persona's display history.
type HistoryView struct {
	PersonaID persona.ID     `json:"personaId"`
	Messages  []chat.Message `json:"messages"`
}

// handleCreateSession 创建会话
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		PersonaID       persona.ID `json:"personaId"`
		ResearchEnabled *bool      `json:"researchEnabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.PersonaID != "" && !payload.PersonaID.Valid() {
		utils.RespondError(w, http.StatusBadRequest, "persona not found")
		return
	}

	ctx := r.Context()
	session, err := h.chatSvc.CreateSession(ctx)
	if err != nil {
		apierr.Respond(w, err)
		return
	}
	if payload.PersonaID != "" {
		if session, err = h.chatSvc.SetActivePersona(ctx, session.ID, payload.PersonaID); err != nil {
			apierr.Respond(w, err)
			return
		}
	}
	if payload.ResearchEnabled != nil {
		if session, err = h.chatSvc.SetResearchEnabled(ctx, session.ID, *payload.ResearchEnabled); err != nil {
			apierr.Respond(w, err)
			return
		}
	}

	h.logger.Info("session created", zap.String("session", session.ID), zap.String("persona", string(session.ActivePersona)))
	utils.RespondJSON(w, http.StatusCreated, h.view(session))
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.chatSvc.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		apierr.Respond(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, h.view(session))
}

func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.chatSvc.DeleteSession(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		apierr.Respond(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSetPersona 切换当前角色，其他角色的历史保持不变
func (h *Handler) handleSetPersona(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		PersonaID persona.ID `json:"personaId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := h.chatSvc.SetActivePersona(r.Context(), chi.URLParam(r, "sessionID"), payload.PersonaID)
	if err != nil {
		apierr.Respond(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, h.view(session))
}

func (h *Handler) handleSetResearch(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Enabled == nil {
		utils.RespondError(w, http.StatusBadRequest, "enabled is required")
		return
	}

	session, err := h.chatSvc.SetResearchEnabled(r.Context(), chi.URLParam(r, "sessionID"), *payload.Enabled)
	if err != nil {
		apierr.Respond(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, h.view(session))
}

func (h *Handler) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	personaID, err := h.resolvePersona(r, sessionID)
	if err != nil {
		apierr.Respond(w, err)
		return
	}

	messages, err := h.chatSvc.LoadTranscript(r.Context(), sessionID, personaID)
	if err != nil {
		apierr.Respond(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, HistoryView{PersonaID: personaID, Messages: messages})
}

// handleClearHistory 清空指定角色的历史并丢弃其模型会话
func (h *Handler) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	personaID, err := h.resolvePersona(r, sessionID)
	if err != nil {
		apierr.Respond(w, err)
		return
	}

	session, err := h.chatSvc.ClearHistory(r.Context(), sessionID, personaID)
	if err != nil {
		apierr.Respond(w, err)
		return
	}
	h.logger.Info("history cleared", zap.String("session", sessionID), zap.String("persona", string(personaID)))
	utils.RespondJSON(w, http.StatusOK, h.view(session))
}

// handleSubmit 执行一次完整的对话回合
func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	form, err := upload.ParseForm(w, r, h.maxUploadBytes)
	if err != nil {
		apierr.Respond(w, err)
		return
	}

	result, err := h.controller.Submit(r.Context(), interaction.Submission{
		SessionID: chi.URLParam(r, "sessionID"),
		Text:      form.Text,
		Image:     form.Image,
	}, nil)
	if err != nil {
		apierr.Respond(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, result)
}

// resolvePersona reads ?personaId= and falls back to the session's active persona.
func (h *Handler) resolvePersona(r *http.Request, sessionID string) (persona.ID, error) {
	if raw := r.URL.Query().Get("personaId"); raw != "" {
		id := persona.ID(raw)
		if !id.Valid() {
			return "", chatService.ErrInvalidPersona
		}
		return id, nil
	}
	session, err := h.chatSvc.GetSession(r.Context(), sessionID)
	if err != nil {
		return "", err
	}
	return session.ActivePersona, nil
}

func (h *Handler) view(session chat.Session) SessionView {
	v := SessionView{Session: session}
	if p, ok := h.personaStore.FindByID(session.ActivePersona); ok {
		v.Persona = &p
	}
	return v
}
