package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PabloGalante/travel-agent/internal/app/dialogue"
	"github.com/PabloGalante/travel-agent/internal/app/grounding"
	"github.com/PabloGalante/travel-agent/internal/app/synth"
	"github.com/PabloGalante/travel-agent/internal/domain"
	"github.com/PabloGalante/travel-agent/internal/observability"
)

// ErrNotConfigured is returned before any external call when credentials
// needed by a turn are missing.
var ErrNotConfigured = errors.New("external service credentials are not configured")

// TurnError is a turn that could not produce a model reply. History is the
// conversation as it stood before the turn.
type TurnError struct {
	State   State
	History []domain.ConversationEntry
	Err     error
}

func (e *TurnError) Error() string {
	return fmt.Sprintf("turn failed after %s: %v", e.State, e.Err)
}

func (e *TurnError) Unwrap() error { return e.Err }

type Options struct {
	// DefaultVoice is used when the session's agent has no voice of its own.
	DefaultVoice string
	// TempDir is where per-turn workspaces are created.
	TempDir string
	// MissingCredentials reports unconfigured credentials; nil means none.
	MissingCredentials func() []string
}

type Service struct {
	store    domain.SessionStore
	enricher *grounding.Enricher
	engine   *dialogue.Engine
	synth    *synth.Synthesizer
	opts     Options
	now      func() time.Time
}

func NewService(
	store domain.SessionStore,
	enricher *grounding.Enricher,
	engine *dialogue.Engine,
	synthesizer *synth.Synthesizer,
	opts Options,
) *Service {
	return &Service{
		store:    store,
		enricher: enricher,
		engine:   engine,
		synth:    synthesizer,
		opts:     opts,
		now:      time.Now,
	}
}

type TurnInput struct {
	SessionID domain.SessionID
	Text      string
	Image     *dialogue.Image
	Location  *domain.Location
}

type TurnOutput struct {
	SessionID domain.SessionID
	Segments  []domain.ReplySegment
	// History is the conversation including this turn.
	History []domain.ConversationEntry
	State   State
	// Persisted is false when the reply could not be saved; the client still
	// gets it but the stored history does not contain this turn.
	Persisted bool
}

// ProcessTurn runs one user turn end to end.
func (s *Service) ProcessTurn(ctx context.Context, in TurnInput) (*TurnOutput, error) {
	if in.SessionID == "" {
		return nil, errors.New("session id is required")
	}
	ctx = observability.WithSessionID(ctx, string(in.SessionID))
	log := observability.LoggerFromContext(ctx)

	if s.opts.MissingCredentials != nil {
		if missing := s.opts.MissingCredentials(); len(missing) > 0 {
			log.Error("turn rejected, credentials missing", "missing", missing)
			return nil, fmt.Errorf("%w: %s", ErrNotConfigured, strings.Join(missing, ", "))
		}
	}

	tr := newTracker(log)
	log.Info("turn started",
		"has_text", strings.TrimSpace(in.Text) != "",
		"has_image", in.Image != nil,
		"has_location", in.Location != nil,
	)

	// Idle -> HistoryLoaded
	history, seed, agent, err := s.loadHistory(ctx, in.SessionID)
	if err != nil {
		tr.fail(err)
		return nil, &TurnError{State: StateIdle, Err: err}
	}
	tr.to(StateHistoryLoaded, "history_len", len(history), "reseeded", len(seed) > 0)

	// HistoryLoaded -> ContextEnriched
	grounded := s.enricher.Enrich(ctx, in.Location)
	tr.to(StateContextEnriched, "location_known", grounded.LocationKnown, "places", len(grounded.Places))

	// ContextEnriched -> ModelInvoked
	turn := dialogue.ComposeTurn(in.Text, in.Image)
	instruction := dialogue.ComposeInstruction(dialogue.InstructionInput{
		UserText:  in.Text,
		HasImage:  hasImage(turn),
		Grounding: grounded,
		Persona:   agent.Prompt,
	})
	reply, err := s.engine.Respond(ctx, history, turn, instruction)
	if err != nil {
		failedAt := tr.state
		tr.fail(err)
		return nil, &TurnError{State: failedAt, History: history, Err: err}
	}
	tr.to(StateModelInvoked, "parsed", reply.Parsed, "segments", len(reply.Segments))

	ws, wsErr := synth.NewWorkspace(s.opts.TempDir, in.SessionID)
	if wsErr != nil {
		log.Error("could not create turn workspace, replying without audio", "error", wsErr)
	} else {
		defer func() {
			if err := ws.Cleanup(); err != nil {
				log.Warn("turn workspace cleanup failed", "dir", ws.Dir(), "error", err)
			}
		}()
	}

	// ModelInvoked -> PersistedHistory
	modelEntry := domain.TextEntry(domain.RoleModel, reply.Raw)
	toPersist := append(append(seed, turn), modelEntry)
	updated := append(domain.CloneHistory(history), turn, modelEntry)

	persisted := true
	if err := s.store.AppendAndSave(ctx, in.SessionID, s.now().UTC(), toPersist...); err != nil {
		persisted = false
		log.Error("failed to persist turn, stored history diverges from reply",
			"state_divergence", true,
			"error", err,
		)
		tr.fail(err)
	} else {
		tr.to(StatePersistedHistory, "appended", len(toPersist))
	}

	// PersistedHistory -> SegmentsSynthesized
	segments := reply.Segments
	if ws != nil {
		segments = s.synth.Synthesize(ctx, ws, s.voiceFor(agent), reply.Segments)
	}
	if persisted {
		tr.to(StateSegmentsSynthesized)
		tr.to(StateResponded)
	}

	return &TurnOutput{
		SessionID: in.SessionID,
		Segments:  segments,
		History:   updated,
		State:     tr.state,
		Persisted: persisted,
	}, nil
}

// loadHistory returns the history the model sees and the entries that must be
// persisted ahead of this turn. A cleared session is reseeded with the greeting
// pair; a session that does not exist yet is created with it.
func (s *Service) loadHistory(ctx context.Context, id domain.SessionID) (history, seed []domain.ConversationEntry, agent domain.Agent, err error) {
	sess, err := s.store.LoadSession(ctx, id)
	switch {
	case err == nil:
		history, seed = existingHistory(sess)
		return history, seed, sess.Agent, nil

	case errors.Is(err, domain.ErrSessionNotFound):
		observability.LoggerFromContext(ctx).Warn("session not found, creating it with the greeting")
		now := s.now().UTC()
		boot := &domain.Session{
			ID:           id,
			CreatedAt:    now,
			LastActiveAt: now,
			Conversation: domain.GreetingHistory(),
		}
		if err := s.store.CreateSession(ctx, boot); err != nil {
			if !errors.Is(err, domain.ErrSessionExists) {
				return nil, nil, domain.Agent{}, fmt.Errorf("bootstrap session: %w", err)
			}
			// Another turn created it first; load it once.
			sess, err := s.store.LoadSession(ctx, id)
			if err != nil {
				return nil, nil, domain.Agent{}, fmt.Errorf("load session after concurrent create: %w", err)
			}
			history, seed = existingHistory(sess)
			return history, seed, sess.Agent, nil
		}
		return domain.GreetingHistory(), nil, domain.Agent{}, nil

	default:
		return nil, nil, domain.Agent{}, fmt.Errorf("load session: %w", err)
	}
}

func existingHistory(sess *domain.Session) (history, seed []domain.ConversationEntry) {
	if len(sess.Conversation) == 0 {
		return domain.GreetingHistory(), domain.GreetingHistory()
	}
	return sess.Conversation, nil
}

func (s *Service) voiceFor(agent domain.Agent) string {
	if agent.VoiceID != "" {
		return agent.VoiceID
	}
	return s.opts.DefaultVoice
}

func hasImage(e domain.ConversationEntry) bool {
	for _, p := range e.Parts {
		if p.InlineData != nil {
			return true
		}
	}
	return false
}
