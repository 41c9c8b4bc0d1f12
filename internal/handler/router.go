package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ozyassistant/ozy/backend/internal/handler/chat"
	"github.com/ozyassistant/ozy/backend/internal/handler/live"
	"github.com/ozyassistant/ozy/backend/internal/handler/persona"
	"github.com/ozyassistant/ozy/backend/internal/handler/stream"
	middlewarePkg "github.com/ozyassistant/ozy/backend/internal/middleware"
	personaModel "github.com/ozyassistant/ozy/backend/internal/model/persona"
	chatService "github.com/ozyassistant/ozy/backend/internal/service/chat"
	"github.com/ozyassistant/ozy/backend/internal/service/interaction"
	"github.com/ozyassistant/ozy/backend/pkg/utils"
)

// Dependencies are the services the HTTP surface is built on.
type Dependencies struct {
	Personas       personaModel.Store
	Chat           *chatService.Service
	Controller     *interaction.Controller
	MaxUploadBytes int64
	// Metrics serves /metrics; nil falls back to the default Prometheus registry.
	Metrics http.Handler
	Logger  *zap.Logger
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Dependencies) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = promhttp.Handler()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger:  zap.NewStdLog(logger.Named("http")),
		NoColor: true,
	}))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	personaHandler := persona.New(deps.Personas)
	chatHandler := chat.New(deps.Chat, deps.Controller, deps.Personas, deps.MaxUploadBytes, logger)
	streamHandler := stream.New(deps.Chat, deps.Controller, deps.MaxUploadBytes, logger)
	liveHandler := live.NewWebSocketHandler(deps.Chat, deps.Controller, deps.Personas, deps.MaxUploadBytes, logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"status":   "ok",
			"sessions": deps.Chat.Len(),
		})
	})
	r.Method(http.MethodGet, "/metrics", metrics)

	r.Route("/api", func(api chi.Router) {
		personaHandler.RegisterRoutes(api)
		chatHandler.RegisterRoutes(api)
		streamHandler.RegisterRoutes(api)
		liveHandler.RegisterWebSocketRoutes(api)
	})

	return r
}
