// Package apierr maps domain errors onto HTTP status codes.
package apierr

import (
	"errors"
	"net/http"

	"github.com/ozyassistant/ozy/backend/internal/handler/upload"
	chatservice "github.com/ozyassistant/ozy/backend/internal/service/chat"
	"github.com/ozyassistant/ozy/backend/internal/service/interaction"
	"github.com/ozyassistant/ozy/backend/pkg/utils"
)

// Status returns the HTTP status that best describes err.
func Status(err error) int {
	switch {
	case errors.Is(err, chatservice.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, chatservice.ErrInvalidPersona),
		errors.Is(err, interaction.ErrEmptyMessage),
		errors.Is(err, upload.ErrUnsupportedImage),
		errors.Is(err, upload.ErrMalformed):
		return http.StatusBadRequest
	case errors.Is(err, upload.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, chatservice.ErrTurnInFlight):
		return http.StatusConflict
	case errors.Is(err, interaction.ErrConversationUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Respond writes err as a JSON error body with its mapped status.
func Respond(w http.ResponseWriter, err error) {
	utils.RespondError(w, Status(err), err.Error())
}
