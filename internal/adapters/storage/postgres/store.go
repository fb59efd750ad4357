package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/PabloGalante/travel-agent/internal/domain"
)

const uniqueViolation = "23505"

type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to dsn and verifies the connection.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("dsn is required for Postgres store")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("creating postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	return &Store{pool: pool}, nil
}

func (s *Store) Pool() *pgxpool.Pool { return s.pool }

func (s *Store) Close() { s.pool.Close() }

// ─────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────

// nullableJSON encodes v for a JSONB column, mapping empty values to SQL NULL.
func nullableJSON[T any](v []T) (any, error) {
	if len(v) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func decodeJSON(raw []byte, into any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, into)
}

func notFoundIfNoRows(tag pgconn.CommandTag) error {
	if tag.RowsAffected() == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

// ─────────────────────────────────────────
// SessionStore implementation
// ─────────────────────────────────────────

func (s *Store) CreateSession(ctx context.Context, session *domain.Session) error {
	agent, err := json.Marshal(session.Agent)
	if err != nil {
		return fmt.Errorf("postgres CreateSession encode agent: %w", err)
	}
	conv, err := nullableJSON(session.Conversation)
	if err != nil {
		return fmt.Errorf("postgres CreateSession encode conversation: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO sessions (session_id, created_by, notes, selected_agent, conversation, created_at, last_active_at)
		VALUES ($1, $2, $3, $4::jsonb, $5::jsonb, $6, $7)`,
		string(session.ID), session.CreatedBy, session.Notes, string(agent), conv,
		session.CreatedAt, session.LastActiveAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrSessionExists
		}
		return fmt.Errorf("postgres CreateSession: %w", err)
	}
	return nil
}

func (s *Store) LoadSession(ctx context.Context, id domain.SessionID) (*domain.Session, error) {
	var (
		sess                          = &domain.Session{ID: id}
		agent, conv, report, transcr []byte
	)

	err := s.pool.QueryRow(ctx, `
		SELECT created_by, notes, selected_agent, conversation, report, transcript, created_at, last_active_at
		FROM sessions WHERE session_id = $1`, string(id),
	).Scan(&sess.CreatedBy, &sess.Notes, &agent, &conv, &report, &transcr, &sess.CreatedAt, &sess.LastActiveAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("postgres LoadSession: %w", err)
	}

	if err := decodeJSON(agent, &sess.Agent); err != nil {
		return nil, fmt.Errorf("postgres LoadSession decode agent: %w", err)
	}
	if err := decodeJSON(conv, &sess.Conversation); err != nil {
		return nil, fmt.Errorf("postgres LoadSession decode conversation: %w", err)
	}
	if len(report) > 0 {
		sess.Report = &domain.TravelReport{}
		if err := json.Unmarshal(report, sess.Report); err != nil {
			return nil, fmt.Errorf("postgres LoadSession decode report: %w", err)
		}
	}
	if err := decodeJSON(transcr, &sess.Transcript); err != nil {
		return nil, fmt.Errorf("postgres LoadSession decode transcript: %w", err)
	}
	return sess, nil
}

// AppendAndSave appends in a single statement, so concurrent appends to one
// session are serialized by the row lock.
func (s *Store) AppendAndSave(ctx context.Context, id domain.SessionID, at time.Time, entries ...domain.ConversationEntry) error {
	if len(entries) == 0 {
		return s.Touch(ctx, id, at)
	}
	b, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("postgres AppendAndSave encode: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE sessions
		SET conversation = COALESCE(conversation, '[]'::jsonb) || $2::jsonb,
		    last_active_at = GREATEST(last_active_at, $3)
		WHERE session_id = $1`,
		string(id), string(b), at,
	)
	if err != nil {
		return fmt.Errorf("postgres AppendAndSave: %w", err)
	}
	return notFoundIfNoRows(tag)
}

func (s *Store) Touch(ctx context.Context, id domain.SessionID, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sessions SET last_active_at = GREATEST(last_active_at, $2) WHERE session_id = $1`,
		string(id), at,
	)
	if err != nil {
		return fmt.Errorf("postgres Touch: %w", err)
	}
	return notFoundIfNoRows(tag)
}

func (s *Store) Clear(ctx context.Context, id domain.SessionID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sessions SET conversation = NULL, report = NULL, transcript = NULL WHERE session_id = $1`,
		string(id),
	)
	if err != nil {
		return fmt.Errorf("postgres Clear: %w", err)
	}
	return notFoundIfNoRows(tag)
}

func (s *Store) SaveReport(ctx context.Context, id domain.SessionID, report *domain.TravelReport, transcript []domain.TranscriptMessage, at time.Time) error {
	var reportJSON any
	if report != nil {
		b, err := json.Marshal(report)
		if err != nil {
			return fmt.Errorf("postgres SaveReport encode report: %w", err)
		}
		reportJSON = string(b)
	}
	transcriptJSON, err := nullableJSON(transcript)
	if err != nil {
		return fmt.Errorf("postgres SaveReport encode transcript: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE sessions
		SET report = $2::jsonb, transcript = $3::jsonb, last_active_at = GREATEST(last_active_at, $4)
		WHERE session_id = $1`,
		string(id), reportJSON, transcriptJSON, at,
	)
	if err != nil {
		return fmt.Errorf("postgres SaveReport: %w", err)
	}
	return notFoundIfNoRows(tag)
}

func (s *Store) ClearIdle(ctx context.Context, cutoff time.Time) ([]domain.SessionID, error) {
	rows, err := s.pool.Query(ctx, `
		UPDATE sessions
		SET conversation = NULL, report = NULL, transcript = NULL
		WHERE last_active_at < $1
		  AND (conversation IS NOT NULL OR report IS NOT NULL OR transcript IS NOT NULL)
		RETURNING session_id`, cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres ClearIdle: %w", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("postgres ClearIdle scan: %w", err)
	}

	out := make([]domain.SessionID, len(ids))
	for i, id := range ids {
		out[i] = domain.SessionID(id)
	}
	return out, nil
}
