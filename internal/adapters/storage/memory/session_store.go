package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/PabloGalante/travel-agent/internal/domain"
)

// SessionStore keeps sessions in process memory. Reads and writes go through
// deep copies so callers never share slices with the map.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[domain.SessionID]*domain.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[domain.SessionID]*domain.Session),
	}
}

func (s *SessionStore) CreateSession(_ context.Context, session *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.ID]; exists {
		return domain.ErrSessionExists
	}

	s.sessions[session.ID] = session.Clone()
	return nil
}

func (s *SessionStore) LoadSession(_ context.Context, id domain.SessionID) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}

	return sess.Clone(), nil
}

func (s *SessionStore) AppendAndSave(_ context.Context, id domain.SessionID, at time.Time, entries ...domain.ConversationEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return domain.ErrSessionNotFound
	}

	for _, e := range entries {
		sess.Conversation = append(sess.Conversation, e.Clone())
	}
	touch(sess, at)
	return nil
}

func (s *SessionStore) Touch(_ context.Context, id domain.SessionID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return domain.ErrSessionNotFound
	}
	touch(sess, at)
	return nil
}

func (s *SessionStore) Clear(_ context.Context, id domain.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return domain.ErrSessionNotFound
	}
	clearContent(sess)
	return nil
}

func (s *SessionStore) SaveReport(_ context.Context, id domain.SessionID, report *domain.TravelReport, transcript []domain.TranscriptMessage, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return domain.ErrSessionNotFound
	}

	sess.Report = nil
	if report != nil {
		sess.Report = report.Clone()
	}
	sess.Transcript = slices.Clone(transcript)
	touch(sess, at)
	return nil
}

func (s *SessionStore) ClearIdle(_ context.Context, cutoff time.Time) ([]domain.SessionID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var cleared []domain.SessionID
	for id, sess := range s.sessions {
		if !sess.LastActiveAt.Before(cutoff) || !sess.HasContent() {
			continue
		}
		clearContent(sess)
		cleared = append(cleared, id)
	}
	slices.Sort(cleared)
	return cleared, nil
}

func touch(sess *domain.Session, at time.Time) {
	if at.After(sess.LastActiveAt) {
		sess.LastActiveAt = at
	}
}

func clearContent(sess *domain.Session) {
	sess.Conversation = nil
	sess.Report = nil
	sess.Transcript = nil
}
