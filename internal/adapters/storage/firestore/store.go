package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/PabloGalante/travel-agent/internal/domain"
)

type Store struct {
	client *firestore.Client
}

// NewStore creates a Firestore store.
// Uses the project passed (TRAVEL_STORAGE_GCP_PROJECT). Honors FIRESTORE_EMULATOR_HOST.
func NewStore(ctx context.Context, projectID string) (*Store, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required for Firestore store")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}

	return &Store{client: client}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

// ─────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────

func (s *Store) sessionsCol() *firestore.CollectionRef {
	return s.client.Collection("sessions")
}

func (s *Store) sessionDoc(id domain.SessionID) *firestore.DocumentRef {
	return s.sessionsCol().Doc(string(id))
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

func latest(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}

// ─────────────────────────────────────────
// Firestore Types
// ─────────────────────────────────────────

type sessionDoc struct {
	CreatedBy    string                     `firestore:"created_by"`
	Notes        string                     `firestore:"notes"`
	Agent        domain.Agent               `firestore:"selected_agent"`
	Conversation []entryDoc                 `firestore:"conversation"`
	Report       *domain.TravelReport       `firestore:"report"`
	Transcript   []domain.TranscriptMessage `firestore:"transcript"`
	CreatedAt    time.Time                  `firestore:"created_at"`
	LastActiveAt time.Time                  `firestore:"last_active_at"`
}

type entryDoc struct {
	Role  string    `firestore:"role"`
	Parts []partDoc `firestore:"parts"`
}

type partDoc struct {
	Text     string `firestore:"text,omitempty"`
	MIMEType string `firestore:"mime_type,omitempty"`
	Data     []byte `firestore:"data,omitempty"`
}

func toEntryDocs(entries []domain.ConversationEntry) []entryDoc {
	if len(entries) == 0 {
		return nil
	}
	out := make([]entryDoc, len(entries))
	for i, e := range entries {
		d := entryDoc{Role: string(e.Role), Parts: make([]partDoc, len(e.Parts))}
		for j, p := range e.Parts {
			d.Parts[j] = partDoc{Text: p.Text}
			if p.InlineData != nil {
				d.Parts[j].MIMEType = p.InlineData.MIMEType
				d.Parts[j].Data = p.InlineData.Data
			}
		}
		out[i] = d
	}
	return out
}

func fromEntryDocs(docs []entryDoc) []domain.ConversationEntry {
	if len(docs) == 0 {
		return nil
	}
	out := make([]domain.ConversationEntry, len(docs))
	for i, d := range docs {
		e := domain.ConversationEntry{Role: domain.Role(d.Role), Parts: make([]domain.Part, len(d.Parts))}
		for j, p := range d.Parts {
			e.Parts[j] = domain.Part{Text: p.Text}
			if p.MIMEType != "" || len(p.Data) > 0 {
				e.Parts[j].InlineData = &domain.Blob{MIMEType: p.MIMEType, Data: p.Data}
			}
		}
		out[i] = e
	}
	return out
}

func (d *sessionDoc) toDomain(id domain.SessionID) *domain.Session {
	return &domain.Session{
		ID:           id,
		CreatedBy:    d.CreatedBy,
		Notes:        d.Notes,
		Agent:        d.Agent,
		Conversation: fromEntryDocs(d.Conversation),
		Report:       d.Report,
		Transcript:   d.Transcript,
		CreatedAt:    d.CreatedAt,
		LastActiveAt: d.LastActiveAt,
	}
}

// update runs fn on the current document inside a transaction.
func (s *Store) update(ctx context.Context, id domain.SessionID, fn func(doc *sessionDoc) []firestore.Update) error {
	ref := s.sessionDoc(id)
	return s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			if isNotFound(err) {
				return domain.ErrSessionNotFound
			}
			return err
		}
		var doc sessionDoc
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode sessionDoc: %w", err)
		}
		return tx.Update(ref, fn(&doc))
	})
}

func wrap(op string, err error) error {
	if err == nil || errors.Is(err, domain.ErrSessionNotFound) {
		return err
	}
	return fmt.Errorf("firestore %s: %w", op, err)
}

// ─────────────────────────────────────────
// SessionStore implementation
// ─────────────────────────────────────────

func (s *Store) CreateSession(ctx context.Context, session *domain.Session) error {
	doc := sessionDoc{
		CreatedBy:    session.CreatedBy,
		Notes:        session.Notes,
		Agent:        session.Agent,
		Conversation: toEntryDocs(session.Conversation),
		Report:       session.Report,
		Transcript:   session.Transcript,
		CreatedAt:    session.CreatedAt,
		LastActiveAt: session.LastActiveAt,
	}

	_, err := s.sessionDoc(session.ID).Create(ctx, doc)
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return domain.ErrSessionExists
		}
		return fmt.Errorf("firestore CreateSession: %w", err)
	}
	return nil
}

func (s *Store) LoadSession(ctx context.Context, id domain.SessionID) (*domain.Session, error) {
	snap, err := s.sessionDoc(id).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("firestore LoadSession: %w", err)
	}

	var doc sessionDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("firestore LoadSession decode: %w", err)
	}
	return doc.toDomain(id), nil
}

func (s *Store) AppendAndSave(ctx context.Context, id domain.SessionID, at time.Time, entries ...domain.ConversationEntry) error {
	err := s.update(ctx, id, func(doc *sessionDoc) []firestore.Update {
		return []firestore.Update{
			{Path: "conversation", Value: append(doc.Conversation, toEntryDocs(entries)...)},
			{Path: "last_active_at", Value: latest(doc.LastActiveAt, at)},
		}
	})
	return wrap("AppendAndSave", err)
}

func (s *Store) Touch(ctx context.Context, id domain.SessionID, at time.Time) error {
	err := s.update(ctx, id, func(doc *sessionDoc) []firestore.Update {
		return []firestore.Update{{Path: "last_active_at", Value: latest(doc.LastActiveAt, at)}}
	})
	return wrap("Touch", err)
}

func (s *Store) Clear(ctx context.Context, id domain.SessionID) error {
	_, err := s.sessionDoc(id).Update(ctx, clearUpdates())
	if err != nil {
		if isNotFound(err) {
			return domain.ErrSessionNotFound
		}
		return fmt.Errorf("firestore Clear: %w", err)
	}
	return nil
}

func (s *Store) SaveReport(ctx context.Context, id domain.SessionID, report *domain.TravelReport, transcript []domain.TranscriptMessage, at time.Time) error {
	err := s.update(ctx, id, func(doc *sessionDoc) []firestore.Update {
		return []firestore.Update{
			{Path: "report", Value: report},
			{Path: "transcript", Value: transcript},
			{Path: "last_active_at", Value: latest(doc.LastActiveAt, at)},
		}
	})
	return wrap("SaveReport", err)
}

func (s *Store) ClearIdle(ctx context.Context, cutoff time.Time) ([]domain.SessionID, error) {
	iter := s.sessionsCol().Where("last_active_at", "<", cutoff).Documents(ctx)
	defer iter.Stop()

	var cleared []domain.SessionID
	for {
		snap, err := iter.Next()
		if err != nil {
			if err == iterator.Done {
				break
			}
			return cleared, fmt.Errorf("firestore ClearIdle: %w", err)
		}

		var doc sessionDoc
		if err := snap.DataTo(&doc); err != nil {
			return cleared, fmt.Errorf("decode sessionDoc: %w", err)
		}
		if !doc.toDomain("").HasContent() {
			continue
		}

		if _, err := snap.Ref.Update(ctx, clearUpdates(), firestore.LastUpdateTime(snap.UpdateTime)); err != nil {
			// Written to since the query ran; it is no longer idle.
			if status.Code(err) == codes.FailedPrecondition {
				continue
			}
			return cleared, fmt.Errorf("firestore ClearIdle %s: %w", snap.Ref.ID, err)
		}
		cleared = append(cleared, domain.SessionID(snap.Ref.ID))
	}
	return cleared, nil
}

func clearUpdates() []firestore.Update {
	return []firestore.Update{
		{Path: "conversation", Value: nil},
		{Path: "report", Value: nil},
		{Path: "transcript", Value: nil},
	}
}
