package chat

import (
	"time"

	"github.com/ozyassistant/ozy/backend/internal/model/persona"
)

// Role marks who authored a display message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// UserAuthor labels user entries in the display history.
const UserAuthor = "You"

// Image is an uploaded screenshot attached to a user turn.
type Image struct {
	Name     string `json:"name,omitempty"`
	MIMEType string `json:"mimeType"`
	Data     []byte `json:"data"`
}

// Message is one entry of a persona's display history.
type Message struct {
	ID        string     `json:"id"`
	Role      Role       `json:"role"`
	Content   string     `json:"content"`
	Author    string     `json:"author,omitempty"`
	Image     *Image     `json:"image,omitempty"`
	PersonaID persona.ID `json:"personaId,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}
