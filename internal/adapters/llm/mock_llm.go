package llm

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/PabloGalante/travel-agent/internal/domain"
)

// MockLLM replays scripted replies in order, then falls back to an echo
// reply in the agent's JSON shape. It records every request it receives.
type MockLLM struct {
	mu       sync.Mutex
	replies  []string
	err      error
	requests []domain.GenerateRequest
}

func NewMockLLM(replies ...string) *MockLLM {
	return &MockLLM{replies: replies}
}

// NewFailingLLM returns a mock whose every call fails with err.
func NewFailingLLM(err error) *MockLLM {
	return &MockLLM{err: err}
}

func (m *MockLLM) Generate(_ context.Context, req domain.GenerateRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)
	if m.err != nil {
		return "", m.err
	}
	if len(m.replies) > 0 {
		reply := m.replies[0]
		m.replies = m.replies[1:]
		return reply, nil
	}
	return echoReply(req.Turn), nil
}

// Requests returns a copy of the requests seen so far.
func (m *MockLLM) Requests() []domain.GenerateRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.GenerateRequest(nil), m.requests...)
}

func echoReply(turn domain.ConversationEntry) string {
	text := "I see you sent me a picture. Where would you like to go next?"
	if t := turn.FirstText(); t != "" {
		text = "You said: " + t + ". Tell me more about your trip!"
	}
	b, _ := json.Marshal(map[string]any{
		"messages": []map[string]string{{
			"text":             text,
			"facialExpression": string(domain.ExpressionSmile),
			"animation":        string(domain.AnimationTalking1),
		}},
	})
	return string(b)
}
