package domain

import "errors"

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExists   = errors.New("session already exists")
	ErrReportNotFound  = errors.New("report not found")
)

// Agent describes the travel agent persona selected for a session.
type Agent struct {
	ID           string `json:"id" firestore:"id"`
	Title        string `json:"title" firestore:"title"`
	Prompt       string `json:"agentPrompt" firestore:"prompt"`
	VoiceID      string `json:"voiceId" firestore:"voice_id"`
	Subscription bool   `json:"subscriptionRequired" firestore:"subscription"`
}

// Session is one conversation between a user and a travel agent persona.
type Session struct {
	ID           SessionID
	CreatedBy    string
	CreatedAt    Timestamp
	LastActiveAt Timestamp
	Notes        string
	Agent        Agent

	// Conversation is the model-facing history. Nil after a clear or sweep.
	Conversation []ConversationEntry

	Report     *TravelReport
	Transcript []TranscriptMessage
}

// HasContent reports whether a sweep would have anything to clear.
func (s *Session) HasContent() bool {
	return len(s.Conversation) > 0 || s.Report != nil || len(s.Transcript) > 0
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Conversation = CloneHistory(s.Conversation)
	if s.Report != nil {
		out.Report = s.Report.Clone()
	}
	if s.Transcript != nil {
		out.Transcript = append([]TranscriptMessage(nil), s.Transcript...)
	}
	return &out
}

// TranscriptMessage is one line of the client-side spoken transcript.
type TranscriptMessage struct {
	Role string `json:"role" firestore:"role"`
	Text string `json:"text" firestore:"text"`
}

// ItineraryStop is one recommended stop in a travel report.
type ItineraryStop struct {
	Place string `json:"place" firestore:"place"`
	Mode  string `json:"mode" firestore:"mode"`
	ETA   string `json:"eta" firestore:"eta"`
}

// TravelReport is the structured summary generated after a conversation.
type TravelReport struct {
	Agent                 string          `json:"agent,omitempty" firestore:"agent"`
	User                  string          `json:"user,omitempty" firestore:"user"`
	Timestamp             string          `json:"timestamp,omitempty" firestore:"timestamp"`
	TripPurpose           string          `json:"tripPurpose,omitempty" firestore:"trip_purpose"`
	Summary               string          `json:"summary,omitempty" firestore:"summary"`
	CurrentLocation       string          `json:"currentLocation,omitempty" firestore:"current_location"`
	RecommendedItinerary  []ItineraryStop `json:"recommendedItinerary,omitempty" firestore:"recommended_itinerary"`
	TransportationUpdates []string        `json:"transportationUpdates,omitempty" firestore:"transportation_updates"`
	WeatherAlerts         []string        `json:"weatherAlerts,omitempty" firestore:"weather_alerts"`
	CrowdAlerts           []string        `json:"crowdAlerts,omitempty" firestore:"crowd_alerts"`
	Recommendations       []string        `json:"recommendations,omitempty" firestore:"recommendations"`
}

func (r *TravelReport) Clone() *TravelReport {
	out := *r
	out.RecommendedItinerary = append([]ItineraryStop(nil), r.RecommendedItinerary...)
	out.TransportationUpdates = append([]string(nil), r.TransportationUpdates...)
	out.WeatherAlerts = append([]string(nil), r.WeatherAlerts...)
	out.CrowdAlerts = append([]string(nil), r.CrowdAlerts...)
	out.Recommendations = append([]string(nil), r.Recommendations...)
	return &out
}
