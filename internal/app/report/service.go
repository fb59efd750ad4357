package report

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/PabloGalante/travel-agent/internal/domain"
	"github.com/PabloGalante/travel-agent/internal/observability"
)

const systemPrompt = "You are an AI Travel Agent that just finished a voice conversation with a user. Based on the travel AI agent info and the conversation between the AI travel agent and the user, generate a structured travel report with the following fields:\n" +
	`
1. agent: the travel specialist name (e.g., "CityExplorer AI")
2. user: name of the traveler or "Anonymous" if not provided
3. timestamp: current date and time in ISO format
4. tripPurpose: one-sentence summary of why the user is traveling (e.g., "sightseeing", "business", "family visit")
5. summary: a 2-3 sentence overview of the conversation, including key preferences and constraints
6. currentLocation: the user's last known GPS-derived location or city
7. recommendedItinerary: an ordered list of POIs or activities suggested, each with mode of transport and estimated times
8. transportationUpdates: list of any real-time issues mentioned (e.g., "subway delay on Line 2", "heavy traffic on Main St.")
9. weatherAlerts: list of any weather conditions or forecasts that could affect travel (e.g., "rain expected at 3 PM")
10. crowdAlerts: list of any crowd or obstruction warnings from the user's camera input (e.g., "entrance to museum is crowded")
11. recommendations: list of AI suggestions (e.g., "visit the art gallery tomorrow morning", "take bus instead of subway")

Return the result in this exact JSON format (only include fields that have data):

{
  "agent": "string",
  "user": "string",
  "timestamp": "ISO Date string",
  "tripPurpose": "string",
  "summary": "string",
  "currentLocation": "string",
  "recommendedItinerary": [{"place": "string", "mode": "string", "eta": "string"}],
  "transportationUpdates": ["string"],
  "weatherAlerts": ["string"],
  "crowdAlerts": ["string"],
  "recommendations": ["string"]
}

Respond with nothing else.`

// Service generates and reads the travel report of a session.
type Service struct {
	store     domain.SessionStore
	generator domain.ReportGenerator
	timeout   time.Duration
	now       func() time.Time
}

// NewService creates a report service. generator may be nil when no report
// backend is configured; Generate then fails and Get still works.
func NewService(store domain.SessionStore, generator domain.ReportGenerator, timeout time.Duration) *Service {
	return &Service{
		store:     store,
		generator: generator,
		timeout:   timeout,
		now:       time.Now,
	}
}

type GenerateInput struct {
	SessionID domain.SessionID
	// SessionDetail is the client's view of the session; when empty the
	// stored agent and notes are used.
	SessionDetail json.RawMessage
	Messages      []domain.TranscriptMessage
}

func (s *Service) Generate(ctx context.Context, in GenerateInput) (*domain.TravelReport, error) {
	log := observability.LoggerFromContext(ctx).With("session_id", in.SessionID, "messages", len(in.Messages))

	if s.generator == nil {
		return nil, fmt.Errorf("report generator is not configured")
	}

	sess, err := s.store.LoadSession(ctx, in.SessionID)
	if err != nil {
		return nil, err
	}

	detail := in.SessionDetail
	if len(detail) == 0 || string(detail) == "null" {
		detail, err = json.Marshal(map[string]any{
			"sessionId":     sess.ID,
			"notes":         sess.Notes,
			"selectedAgent": sess.Agent,
			"createdBy":     sess.CreatedBy,
		})
		if err != nil {
			return nil, fmt.Errorf("encode session detail: %w", err)
		}
	}
	messages, err := json.Marshal(in.Messages)
	if err != nil {
		return nil, fmt.Errorf("encode conversation: %w", err)
	}
	userInput := "AI Travel Agent Info:" + string(detail) + ", Conversation:" + string(messages)

	genCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	raw, err := s.generator.Complete(genCtx, systemPrompt, userInput)
	if err != nil {
		log.Error("report generation failed", "error", err)
		return nil, fmt.Errorf("generate report: %w", err)
	}

	report, err := ParseReport(raw)
	if err != nil {
		log.Error("report is not valid JSON", "error", err, "raw_len", len(raw))
		return nil, err
	}

	if err := s.store.SaveReport(ctx, in.SessionID, report, in.Messages, s.now().UTC()); err != nil {
		log.Error("failed to save report", "error", err)
		return nil, fmt.Errorf("save report: %w", err)
	}

	log.Info("report generated", "elapsed_ms", time.Since(start).Milliseconds())
	return report, nil
}

// Get returns the last generated report of a session.
func (s *Service) Get(ctx context.Context, id domain.SessionID) (*domain.TravelReport, error) {
	sess, err := s.store.LoadSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Report == nil {
		return nil, domain.ErrReportNotFound
	}
	return sess.Report, nil
}

// ParseReport decodes a model reply, tolerating a surrounding ```json fence.
func ParseReport(raw string) (*domain.TravelReport, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")

	var report domain.TravelReport
	if err := json.Unmarshal([]byte(strings.TrimSpace(s)), &report); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return &report, nil
}
