package chat

import (
	"time"

	"github.com/ozyassistant/ozy/backend/internal/model/persona"
)

// Session is a snapshot of one user's state bag.
type Session struct {
	ID              string     `json:"id"`
	ActivePersona   persona.ID `json:"activePersona"`
	ResearchEnabled bool       `json:"researchEnabled"`
	// UploaderKey changes whenever the client must discard its selected image.
	UploaderKey int       `json:"uploaderKey"`
	CreatedAt   time.Time `json:"createdAt"`
}
