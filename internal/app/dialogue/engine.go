package dialogue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/PabloGalante/travel-agent/internal/domain"
	"github.com/PabloGalante/travel-agent/internal/observability"
)

// Reply is the interpreted model output for one turn.
type Reply struct {
	Segments []domain.ReplySegment
	// Raw is the model text exactly as received; it is what gets persisted.
	Raw string
	// Parsed is false when Segments holds the fallback segment.
	Parsed bool
}

type Engine struct {
	llm     domain.LLMClient
	timeout time.Duration
}

func NewEngine(llm domain.LLMClient, timeout time.Duration) *Engine {
	return &Engine{llm: llm, timeout: timeout}
}

// Respond calls the model. Only the call itself can fail; a reply that does
// not decode becomes the fallback segment.
func (e *Engine) Respond(
	ctx context.Context,
	history []domain.ConversationEntry,
	turn domain.ConversationEntry,
	instruction string,
) (Reply, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	raw, err := e.llm.Generate(ctx, domain.GenerateRequest{
		History:     history,
		Turn:        turn,
		Instruction: instruction,
	})
	if err != nil {
		return Reply{}, fmt.Errorf("dialogue model call: %w", err)
	}

	segments, ok := ParseReply(raw)
	if !ok {
		observability.LoggerFromContext(ctx).Warn("model reply is not valid JSON, using fallback",
			"raw_len", len(raw),
		)
	}
	return Reply{Segments: segments, Raw: raw, Parsed: ok}, nil
}

type wireReply struct {
	Messages []wireSegment `json:"messages"`
}

type wireSegment struct {
	Text             string `json:"text"`
	FacialExpression string `json:"facialExpression"`
	Animation        string `json:"animation"`
}

// ParseReply decodes raw into segments. It returns the single fallback
// segment and false when raw is not JSON or carries no messages. Unknown
// tags become the defaults; segments are never dropped.
func ParseReply(raw string) ([]domain.ReplySegment, bool) {
	var decoded wireReply
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil || len(decoded.Messages) == 0 {
		return []domain.ReplySegment{domain.ParseFallbackSegment()}, false
	}

	out := make([]domain.ReplySegment, len(decoded.Messages))
	for i, m := range decoded.Messages {
		expr := domain.FacialExpression(m.FacialExpression)
		if !expr.Valid() {
			expr = domain.ExpressionDefault
		}
		anim := domain.Animation(m.Animation)
		if !anim.Valid() {
			anim = domain.AnimationTalking0
		}
		out[i] = domain.ReplySegment{Text: m.Text, FacialExpression: expr, Animation: anim}
	}
	return out, true
}
