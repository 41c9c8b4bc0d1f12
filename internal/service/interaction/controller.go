package interaction

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ozyassistant/ozy/backend/internal/model/chat"
	"github.com/ozyassistant/ozy/backend/internal/model/persona"
	"github.com/ozyassistant/ozy/backend/internal/observability"
	chatsvc "github.com/ozyassistant/ozy/backend/internal/service/chat"
	"github.com/ozyassistant/ozy/backend/internal/service/research"
)

// Apology replaces the assistant reply when the model send fails.
const Apology = "Sorry, I couldn't process your request right now."

var (
	// ErrEmptyMessage is returned for submissions without text.
	ErrEmptyMessage = errors.New("message text is required")
	// ErrConversationUnavailable wraps model session factory failures.
	ErrConversationUnavailable = errors.New("could not open a model conversation")
)

// Stage is a step of the turn state machine.
type Stage string

const (
	StageIdle       Stage = "idle"
	StageAssembling Stage = "assembling"
	StageSending    Stage = "sending"
	StageRecording  Stage = "recording"
	StageReset      Stage = "reset"
)

// NoticeLevel mirrors the severity of a user-facing status line.
type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeSuccess NoticeLevel = "success"
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
)

// Notice is a transient status line shown while a turn runs.
type Notice struct {
	Level   NoticeLevel `json:"level"`
	Message string      `json:"message"`
}

// Event is delivered to an Observer on every stage change or notice.
// Exactly one of Stage or Notice is set.
type Event struct {
	Stage  Stage   `json:"stage,omitempty"`
	Notice *Notice `json:"notice,omitempty"`
}

// Observer receives turn progress. It is called synchronously.
type Observer func(Event)

// Submission is one user turn.
type Submission struct {
	SessionID string
	Text      string
	Image     *chat.Image
}

// Result describes a completed turn.
type Result struct {
	Session     chat.Session     `json:"session"`
	PersonaID   persona.ID       `json:"personaId"`
	User        chat.Message     `json:"user"`
	Assistant   chat.Message     `json:"assistant"`
	Parts       []chat.Part      `json:"-"`
	Research    *research.Result `json:"research,omitempty"`
	Notices     []Notice         `json:"notices,omitempty"`
	UploaderKey int              `json:"uploaderKey"`
}

// Researcher produces web findings for a prompt in two steps, so the
// refined query can be reported before the search runs.
type Researcher interface {
	Simplify(ctx context.Context, prompt string) (string, error)
	Search(ctx context.Context, query string) (string, error)
}

// Controller drives one turn from submission to recorded reply.
type Controller struct {
	store      *chatsvc.Service
	opener     chatsvc.Opener
	researcher Researcher
	personas   persona.Store
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// NewController wires the controller. researcher may be nil, in which case
// research-enabled turns continue without context.
func NewController(store *chatsvc.Service, opener chatsvc.Opener, researcher Researcher, personas persona.Store, metrics *observability.Metrics, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		store:      store,
		opener:     opener,
		researcher: researcher,
		personas:   personas,
		metrics:    metrics,
		logger:     logger.Named("interaction"),
	}
}

// AssembleParts orders a turn's parts as image, text, then research context.
func AssembleParts(image *chat.Image, text, contextBlock string) []chat.Part {
	parts := make([]chat.Part, 0, 3)
	if image != nil && len(image.Data) > 0 {
		parts = append(parts, chat.ImagePart(image))
	}
	parts = append(parts, chat.TextPart(text))
	if contextBlock != "" {
		parts = append(parts, chat.TextPart(contextBlock))
	}
	return parts
}

// Submit runs a full turn for the session's active persona.
func (c *Controller) Submit(ctx context.Context, sub Submission, observe Observer) (*Result, error) {
	if strings.TrimSpace(sub.Text) == "" {
		return nil, ErrEmptyMessage
	}

	session, err := c.store.GetSession(ctx, sub.SessionID)
	if err != nil {
		return nil, err
	}
	personaID := session.ActivePersona

	release, err := c.store.BeginTurn(ctx, session.ID, personaID)
	if err != nil {
		return nil, err
	}
	defer release()

	t := &turn{observe: observe}
	log := c.logger.With(zap.String("session", session.ID), zap.String("persona", string(personaID)))

	t.stage(StageAssembling)
	var (
		found        *research.Result
		contextBlock string
	)
	if session.ResearchEnabled {
		found = c.research(ctx, t, sub.Text, log)
		if found != nil {
			contextBlock = research.FormatContext(found.Findings)
		}
	}
	parts := AssembleParts(sub.Image, sub.Text, contextBlock)

	t.stage(StageSending)
	conv, err := c.store.Conversation(ctx, session.ID, personaID, c.opener)
	if err != nil {
		c.metrics.ObserveTurn(string(personaID), "aborted")
		log.Error("failed to open conversation", zap.Error(err))
		t.stage(StageIdle)
		return nil, fmt.Errorf("%w: %w", ErrConversationUnavailable, err)
	}

	outcome := "ok"
	reply, err := conv.Send(ctx, parts)
	if err != nil {
		outcome = "apology"
		log.Warn("model send failed", zap.Error(err))
		t.notice(NoticeError, fmt.Sprintf("Error while communicating with the AI: %v", err))
		reply = Apology
	}

	t.stage(StageRecording)
	user, err := c.store.SaveMessage(ctx, session.ID, personaID, chat.Message{
		Role:    chat.RoleUser,
		Content: sub.Text,
		Author:  chat.UserAuthor,
		Image:   sub.Image,
	})
	if err != nil {
		return nil, fmt.Errorf("record user message: %w", err)
	}
	assistant, err := c.store.SaveMessage(ctx, session.ID, personaID, chat.Message{
		Role:      chat.RoleAssistant,
		Content:   reply,
		Author:    c.authorOf(personaID),
		PersonaID: personaID,
	})
	if err != nil {
		return nil, fmt.Errorf("record assistant message: %w", err)
	}

	t.stage(StageReset)
	key, err := c.store.BumpUploaderKey(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	if snapshot, err := c.store.GetSession(ctx, session.ID); err == nil {
		session = snapshot
	}

	c.metrics.ObserveTurn(string(personaID), outcome)
	t.stage(StageIdle)
	log.Info("turn completed", zap.String("outcome", outcome), zap.Bool("research", found != nil))

	return &Result{
		Session:     session,
		PersonaID:   personaID,
		User:        user,
		Assistant:   assistant,
		Parts:       parts,
		Research:    found,
		Notices:     t.notices,
		UploaderKey: key,
	}, nil
}

func (c *Controller) research(ctx context.Context, t *turn, prompt string, log *zap.Logger) *research.Result {
	if c.researcher == nil {
		t.notice(NoticeWarning, "Web research is unavailable. Continuing without it.")
		return nil
	}

	t.notice(NoticeSuccess, "Ozy Researcher is active.")
	t.notice(NoticeInfo, "Ozy Researcher is working on your question...")
	result, err := c.runResearch(ctx, t, prompt)
	if err != nil {
		log.Warn("research failed", zap.Error(err))
		t.notice(NoticeWarning, "Could not get research results. Continuing without them.")
	}
	t.notice(NoticeInfo, "Ozy Researcher finished.")
	if err != nil {
		return nil
	}

	t.notice(NoticeSuccess, "Research result included in the prompt.")
	return &result
}

func (c *Controller) runResearch(ctx context.Context, t *turn, prompt string) (research.Result, error) {
	query, err := c.researcher.Simplify(ctx, prompt)
	if err != nil {
		return research.Result{}, fmt.Errorf("%w: simplify: %w", research.ErrResearchFailed, err)
	}
	t.notice(NoticeInfo, fmt.Sprintf("Simplified query: %s", query))

	findings, err := c.researcher.Search(ctx, query)
	if err != nil {
		return research.Result{}, fmt.Errorf("%w: search: %w", research.ErrResearchFailed, err)
	}
	return research.Result{Query: query, Findings: findings}, nil
}

func (c *Controller) authorOf(id persona.ID) string {
	if c.personas != nil {
		if p, ok := c.personas.FindByID(id); ok {
			return p.Name
		}
	}
	return string(id)
}

type turn struct {
	observe Observer
	notices []Notice
}

func (t *turn) stage(s Stage) {
	if t.observe != nil {
		t.observe(Event{Stage: s})
	}
}

func (t *turn) notice(level NoticeLevel, message string) {
	n := Notice{Level: level, Message: message}
	t.notices = append(t.notices, n)
	if t.observe != nil {
		t.observe(Event{Notice: &n})
	}
}
