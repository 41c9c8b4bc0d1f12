package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/ozyassistant/ozy/backend/internal/config"
	"github.com/ozyassistant/ozy/backend/internal/model/chat"
	"github.com/ozyassistant/ozy/backend/internal/model/persona"
	"github.com/ozyassistant/ozy/backend/internal/observability"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrInvalidPersona  = errors.New("invalid persona id")
	ErrTurnInFlight    = errors.New("a turn is already in progress for this persona")
)

// Opener opens a fresh model conversation for a persona.
type Opener interface {
	OpenSession(ctx context.Context, personaID persona.ID) (chat.Conversation, error)
}

// state is the server-side bag of one user session.
type state struct {
	mu            sync.Mutex
	session       chat.Session
	histories     map[persona.ID][]chat.Message
	conversations map[persona.ID]chat.Conversation
	inFlight      map[persona.ID]bool
}

// Service keeps per-session, per-persona conversation state in memory.
type Service struct {
	sessions       *expirable.LRU[string, *state]
	defaultPersona persona.ID
	researchOn     bool
	metrics        *observability.Metrics
	logger         *zap.Logger
}

// Options tunes session defaults that come from outside the session config.
type Options struct {
	DefaultPersona  persona.ID
	ResearchEnabled bool
	Metrics         *observability.Metrics
	Logger          *zap.Logger
}

// NewService bootstraps the in-memory store. Sessions beyond cfg.MaxSessions
// evict the least recently used one; idle sessions expire after cfg.TTL.
func NewService(cfg config.SessionConfig, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if !opts.DefaultPersona.Valid() {
		opts.DefaultPersona = persona.NoviceGuide
	}
	size := cfg.MaxSessions
	if size < 1 {
		size = 1
	}

	s := &Service{
		defaultPersona: opts.DefaultPersona,
		researchOn:     opts.ResearchEnabled,
		metrics:        opts.Metrics,
		logger:         opts.Logger.Named("sessions"),
	}
	s.sessions = expirable.NewLRU[string, *state](size, func(id string, _ *state) {
		s.metrics.SessionClosed()
		s.logger.Debug("session evicted", zap.String("session", id))
	}, cfg.TTL)
	return s
}

// CreateSession provisions an anonymous session on the default persona.
func (s *Service) CreateSession(_ context.Context) (chat.Session, error) {
	st := &state{
		session: chat.Session{
			ID:              uuid.NewString(),
			ActivePersona:   s.defaultPersona,
			ResearchEnabled: s.researchOn,
			CreatedAt:       time.Now().UTC(),
		},
		histories:     make(map[persona.ID][]chat.Message),
		conversations: make(map[persona.ID]chat.Conversation),
		inFlight:      make(map[persona.ID]bool),
	}

	s.sessions.Add(st.session.ID, st)
	s.metrics.SessionOpened()
	return st.session, nil
}

// GetSession retrieves a session snapshot by identifier.
func (s *Service) GetSession(_ context.Context, sessionID string) (chat.Session, error) {
	st, err := s.lookup(sessionID)
	if err != nil {
		return chat.Session{}, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.session, nil
}

// DeleteSession drops a session and everything it holds.
func (s *Service) DeleteSession(_ context.Context, sessionID string) error {
	if !s.sessions.Remove(sessionID) {
		return ErrSessionNotFound
	}
	return nil
}

// SetActivePersona switches the persona new turns are routed to. Other
// personas keep their history and conversation untouched.
func (s *Service) SetActivePersona(_ context.Context, sessionID string, personaID persona.ID) (chat.Session, error) {
	if !personaID.Valid() {
		return chat.Session{}, fmt.Errorf("%w: %q", ErrInvalidPersona, personaID)
	}
	st, err := s.lookup(sessionID)
	if err != nil {
		return chat.Session{}, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	st.session.ActivePersona = personaID
	return st.session, nil
}

// SetResearchEnabled toggles web research for the session's next turns.
func (s *Service) SetResearchEnabled(_ context.Context, sessionID string, enabled bool) (chat.Session, error) {
	st, err := s.lookup(sessionID)
	if err != nil {
		return chat.Session{}, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	st.session.ResearchEnabled = enabled
	return st.session, nil
}

// LoadTranscript returns a copy of the persona's display history, empty when
// nothing was recorded yet.
func (s *Service) LoadTranscript(_ context.Context, sessionID string, personaID persona.ID) ([]chat.Message, error) {
	if !personaID.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPersona, personaID)
	}
	st, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	messages := st.histories[personaID]
	copied := make([]chat.Message, len(messages))
	copy(copied, messages)
	return copied, nil
}

// SaveMessage appends a message to the persona's display history.
func (s *Service) SaveMessage(_ context.Context, sessionID string, personaID persona.ID, message chat.Message) (chat.Message, error) {
	if !personaID.Valid() {
		return chat.Message{}, fmt.Errorf("%w: %q", ErrInvalidPersona, personaID)
	}
	st, err := s.lookup(sessionID)
	if err != nil {
		return chat.Message{}, err
	}

	message.ID = uuid.NewString()
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}

	st.mu.Lock()
	st.histories[personaID] = append(st.histories[personaID], message)
	st.mu.Unlock()
	return message, nil
}

// Conversation returns the persona's model conversation, opening one through
// opener when none exists or the last one was cleared.
func (s *Service) Conversation(ctx context.Context, sessionID string, personaID persona.ID, opener Opener) (chat.Conversation, error) {
	if !personaID.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPersona, personaID)
	}
	st, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	conv, ok := st.conversations[personaID]
	st.mu.Unlock()
	if ok {
		return conv, nil
	}

	opened, err := opener.OpenSession(ctx, personaID)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if conv, ok := st.conversations[personaID]; ok {
		return conv, nil
	}
	st.conversations[personaID] = opened
	s.logger.Debug("conversation opened", zap.String("session", sessionID), zap.String("persona", string(personaID)))
	return opened, nil
}

// ClearHistory wipes the persona's display history and drops its model
// conversation; the next turn starts from an empty context. It fails with
// ErrTurnInFlight while a turn for that persona is running.
func (s *Service) ClearHistory(_ context.Context, sessionID string, personaID persona.ID) (chat.Session, error) {
	if !personaID.Valid() {
		return chat.Session{}, fmt.Errorf("%w: %q", ErrInvalidPersona, personaID)
	}
	st, err := s.lookup(sessionID)
	if err != nil {
		return chat.Session{}, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.inFlight[personaID] {
		return chat.Session{}, ErrTurnInFlight
	}

	delete(st.histories, personaID)
	delete(st.conversations, personaID)
	st.session.UploaderKey++
	return st.session, nil
}

// BumpUploaderKey tells the client to discard its selected image.
func (s *Service) BumpUploaderKey(_ context.Context, sessionID string) (int, error) {
	st, err := s.lookup(sessionID)
	if err != nil {
		return 0, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	st.session.UploaderKey++
	return st.session.UploaderKey, nil
}

// BeginTurn marks a turn in progress for the persona. The returned release
// must be called once the turn is recorded.
func (s *Service) BeginTurn(_ context.Context, sessionID string, personaID persona.ID) (func(), error) {
	if !personaID.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPersona, personaID)
	}
	st, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.inFlight[personaID] {
		return nil, ErrTurnInFlight
	}
	st.inFlight[personaID] = true

	var once sync.Once
	return func() {
		once.Do(func() {
			st.mu.Lock()
			delete(st.inFlight, personaID)
			st.mu.Unlock()
		})
	}, nil
}

// Len reports how many sessions are live.
func (s *Service) Len() int {
	return s.sessions.Len()
}

func (s *Service) lookup(sessionID string) (*state, error) {
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}
	st, ok := s.sessions.Get(sessionID)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return st, nil
}
