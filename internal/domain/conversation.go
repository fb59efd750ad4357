package domain

import (
	"encoding/json"
	"strings"
)

// Blob is inline binary content (an image) sent to the model.
type Blob struct {
	MIMEType string `json:"mimeType" firestore:"mime_type"`
	Data     []byte `json:"data" firestore:"data"`
}

// Part is one piece of a conversation entry: either text or inline data.
type Part struct {
	Text       string `json:"text,omitempty" firestore:"text,omitempty"`
	InlineData *Blob  `json:"inlineData,omitempty" firestore:"inline_data,omitempty"`
}

// ConversationEntry is a single turn of one role in the model history.
type ConversationEntry struct {
	Role  Role   `json:"role" firestore:"role"`
	Parts []Part `json:"parts" firestore:"parts"`
}

// TextEntry builds a single-part text entry.
func TextEntry(role Role, text string) ConversationEntry {
	return ConversationEntry{Role: role, Parts: []Part{{Text: text}}}
}

// FirstText returns the text of the first part, or "" if the first part is not text.
func (e ConversationEntry) FirstText() string {
	if len(e.Parts) == 0 {
		return ""
	}
	return e.Parts[0].Text
}

// Clone returns a deep copy so callers can't mutate stored history.
func (e ConversationEntry) Clone() ConversationEntry {
	out := ConversationEntry{Role: e.Role, Parts: make([]Part, len(e.Parts))}
	for i, p := range e.Parts {
		out.Parts[i] = Part{Text: p.Text}
		if p.InlineData != nil {
			data := make([]byte, len(p.InlineData.Data))
			copy(data, p.InlineData.Data)
			out.Parts[i].InlineData = &Blob{MIMEType: p.InlineData.MIMEType, Data: data}
		}
	}
	return out
}

// CloneHistory deep-copies an ordered history.
func CloneHistory(h []ConversationEntry) []ConversationEntry {
	if h == nil {
		return nil
	}
	out := make([]ConversationEntry, len(h))
	for i, e := range h {
		out[i] = e.Clone()
	}
	return out
}

// ReplySegment is one unit of the agent's reply, later enriched with speech and visemes.
type ReplySegment struct {
	Text             string           `json:"text"`
	FacialExpression FacialExpression `json:"facialExpression"`
	Animation        Animation        `json:"animation"`
	Audio            *string          `json:"audio"`
	LipSync          json.RawMessage  `json:"lipsync"`
}

const (
	// GreetingText is the user part substituted when a turn carries neither text nor image.
	GreetingText = "Hello"

	WelcomeText = "Welcome! I'm your personal travel agent. Where would you like to go?"

	ParseFallbackText = "I'm sorry, I had trouble processing that request. Could you try again?"
	TurnFailureText   = "I'm sorry, I encountered an error processing your request. Please try again."
	NotConfiguredText = "API keys are not configured correctly."
)

// WelcomeReply is the raw model text of the greeting pair, in the same JSON
// shape the model is asked to produce.
const WelcomeReply = `{"messages":[{"text":"` + WelcomeText + `","facialExpression":"smile","animation":"Talking_1"}]}`

// GreetingHistory returns the canonical two-entry history every conversation starts from.
func GreetingHistory() []ConversationEntry {
	return []ConversationEntry{
		TextEntry(RoleUser, GreetingText),
		TextEntry(RoleModel, WelcomeReply),
	}
}

// ParseFallbackSegment is shown when the model reply could not be decoded.
func ParseFallbackSegment() ReplySegment {
	return ReplySegment{
		Text:             ParseFallbackText,
		FacialExpression: ExpressionDefault,
		Animation:        AnimationTalking0,
	}
}

// TurnFailureSegment is returned when the turn could not reach the model.
func TurnFailureSegment() ReplySegment {
	return ReplySegment{
		Text:             TurnFailureText,
		FacialExpression: ExpressionSad,
		Animation:        AnimationTalking0,
	}
}

// Location is the user's current position, supplied per request.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Place is a nearby point of interest returned by the places provider.
type Place struct {
	Name     string
	Category string
}

func (p Place) String() string {
	if p.Category == "" {
		return p.Name
	}
	return p.Name + " (" + p.Category + ")"
}

// GroundingContext is the real-world information injected into the prompt.
// LocationKnown=false means no coordinates were supplied, which is phrased
// differently from a known location with no places around it.
type GroundingContext struct {
	LocationKnown bool
	Places        []Place
}

// Summary renders the places as "Name (Category), ...".
func (g GroundingContext) Summary() string {
	names := make([]string, 0, len(g.Places))
	for _, p := range g.Places {
		names = append(names, p.String())
	}
	return strings.Join(names, ", ")
}
