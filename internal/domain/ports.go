package domain

import (
	"context"
	"encoding/json"
	"time"
)

// LLMClient defines how the core application interacts with the dialogue model.
// Generate returns the raw model text; interpreting it is the caller's job.
type LLMClient interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// GenerateRequest is one model call: prior history, the new user turn and the
// instruction block for this turn.
type GenerateRequest struct {
	History     []ConversationEntry
	Turn        ConversationEntry
	Instruction string
}

// SessionStore defines session and conversation persistence.
//
// A missing session is always reported as ErrSessionNotFound, never as an
// empty session. Every successful write moves LastActiveAt forward (never back).
type SessionStore interface {
	CreateSession(ctx context.Context, session *Session) error
	LoadSession(ctx context.Context, id SessionID) (*Session, error)
	AppendAndSave(ctx context.Context, id SessionID, at time.Time, entries ...ConversationEntry) error
	Touch(ctx context.Context, id SessionID, at time.Time) error
	Clear(ctx context.Context, id SessionID) error
	SaveReport(ctx context.Context, id SessionID, report *TravelReport, transcript []TranscriptMessage, at time.Time) error
	// ClearIdle soft-clears sessions inactive since before cutoff and returns their IDs.
	ClearIdle(ctx context.Context, cutoff time.Time) ([]SessionID, error)
}

// PlacesQuery is a nearby search around a point.
type PlacesQuery struct {
	Location     Location
	RadiusMeters float64
	Types        []string
	MaxResults   int
}

// PlacesFinder looks up points of interest near a location.
type PlacesFinder interface {
	SearchNearby(ctx context.Context, q PlacesQuery) ([]Place, error)
}

// SpeechSynthesizer turns text into encoded (MP3) speech audio.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text, voiceID string) ([]byte, error)
}

// VisemeExtractor derives a timestamped mouth-shape track from an audio file.
type VisemeExtractor interface {
	Extract(ctx context.Context, audioPath string) (json.RawMessage, error)
}

// ReportGenerator runs a single system+user completion and returns the raw text.
type ReportGenerator interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Voice is a speech voice offered by the speech provider.
type Voice struct {
	ID       string            `json:"voice_id"`
	Name     string            `json:"name"`
	Category string            `json:"category,omitempty"`
	Labels   map[string]string `json:"labels,omitempty"`
}

// VoiceCatalog lists the voices a session agent may use.
type VoiceCatalog interface {
	ListVoices(ctx context.Context) ([]Voice, error)
}
