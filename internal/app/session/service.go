package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/PabloGalante/travel-agent/internal/domain"
	"github.com/PabloGalante/travel-agent/internal/observability"
)

type Service struct {
	store domain.SessionStore
	now   func() time.Time
	newID func() string
}

func NewService(store domain.SessionStore) *Service {
	return &Service{
		store: store,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

type CreateInput struct {
	CreatedBy string
	Notes     string
	Agent     domain.Agent
}

// Create starts a session seeded with the greeting pair.
func (s *Service) Create(ctx context.Context, in CreateInput) (*domain.Session, error) {
	now := s.now().UTC()

	sess := &domain.Session{
		ID:           domain.SessionID(s.newID()),
		CreatedBy:    in.CreatedBy,
		CreatedAt:    now,
		LastActiveAt: now,
		Notes:        in.Notes,
		Agent:        in.Agent,
		Conversation: domain.GreetingHistory(),
	}

	log := observability.LoggerFromContext(ctx).With("session_id", sess.ID, "agent", in.Agent.ID)
	if err := s.store.CreateSession(ctx, sess); err != nil {
		log.Error("failed to create session", "error", err)
		return nil, fmt.Errorf("create session: %w", err)
	}

	log.Info("session created")
	return sess, nil
}

func (s *Service) Get(ctx context.Context, id domain.SessionID) (*domain.Session, error) {
	return s.store.LoadSession(ctx, id)
}

// UserMessages returns the text the user typed during the session, oldest
// first. The seeded greeting is not something the user typed and is skipped.
func (s *Service) UserMessages(ctx context.Context, id domain.SessionID) ([]string, error) {
	sess, err := s.store.LoadSession(ctx, id)
	if err != nil {
		return nil, err
	}
	return UserMessages(sess.Conversation), nil
}

// ClearHistory drops the conversation and report but keeps the session.
func (s *Service) ClearHistory(ctx context.Context, id domain.SessionID) error {
	if err := s.store.Clear(ctx, id); err != nil {
		if !errors.Is(err, domain.ErrSessionNotFound) {
			observability.LoggerFromContext(ctx).Error("failed to clear history", "session_id", id, "error", err)
		}
		return err
	}
	observability.LoggerFromContext(ctx).Info("history cleared", "session_id", id)
	return nil
}

// UserMessages extracts the leading text of every user entry. A user
// "Hello" immediately answered by the canonical welcome is the seed and is
// skipped, as are entries with no text (image-only turns).
func UserMessages(history []domain.ConversationEntry) []string {
	out := []string{}
	for i, e := range history {
		if e.Role != domain.RoleUser {
			continue
		}
		text := e.FirstText()
		if text == "" {
			continue
		}
		if isGreetingSeed(history, i) {
			continue
		}
		out = append(out, text)
	}
	return out
}

func isGreetingSeed(history []domain.ConversationEntry, i int) bool {
	if history[i].FirstText() != domain.GreetingText || i+1 >= len(history) {
		return false
	}
	next := history[i+1]
	return next.Role == domain.RoleModel && next.FirstText() == domain.WelcomeReply
}
