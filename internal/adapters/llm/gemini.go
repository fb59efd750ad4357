package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/PabloGalante/travel-agent/internal/domain"
)

// GeminiConfig selects between the Gemini API (API key) and Vertex AI
// (project + location, application default credentials).
type GeminiConfig struct {
	Backend     string // "gemini" or "vertex"
	APIKey      string
	Project     string
	Location    string
	Model       string
	Temperature float64

	// BaseURL overrides the service endpoint, mostly for tests.
	BaseURL string
}

type GeminiClient struct {
	client      *genai.Client
	modelName   string
	temperature float32
}

// NewGeminiClient creates an LLMClient backed by Gemini.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig) (*GeminiClient, error) {
	cc := &genai.ClientConfig{}
	switch cfg.Backend {
	case "vertex":
		if cfg.Project == "" || cfg.Location == "" {
			return nil, fmt.Errorf("project and location must be set for Vertex AI")
		}
		cc.Project = cfg.Project
		cc.Location = cfg.Location
		cc.Backend = genai.BackendVertexAI
	default:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("api key must be set for the Gemini API")
		}
		cc.APIKey = cfg.APIKey
		cc.Backend = genai.BackendGeminiAPI
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions.BaseURL = cfg.BaseURL
	}

	modelName := cfg.Model
	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	return &GeminiClient{
		client:      client,
		modelName:   modelName,
		temperature: float32(cfg.Temperature),
	}, nil
}

// Generate implements domain.LLMClient. The reply is requested as JSON; the
// caller decides what to do if it isn't.
func (g *GeminiClient) Generate(ctx context.Context, req domain.GenerateRequest) (string, error) {
	// 1) History + current turn, roles and order untouched
	contents := toContents(req.History, req.Turn)

	// 2) Model config
	temp := g.temperature
	cfg := &genai.GenerateContentConfig{
		Temperature:      &temp,
		ResponseMIMEType: "application/json",
	}
	if strings.TrimSpace(req.Instruction) != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.Instruction, genai.RoleUser)
	}

	// 3) Call
	res, err := g.client.Models.GenerateContent(ctx, g.modelName, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}

	text := res.Text()
	if text == "" {
		return "", fmt.Errorf("gemini returned empty text")
	}
	return text, nil
}

func toContents(history []domain.ConversationEntry, turn domain.ConversationEntry) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history)+1)
	for _, e := range history {
		contents = append(contents, toContent(e))
	}
	return append(contents, toContent(turn))
}

func toContent(e domain.ConversationEntry) *genai.Content {
	var role genai.Role = genai.RoleUser
	if e.Role == domain.RoleModel {
		role = genai.RoleModel
	}

	parts := make([]*genai.Part, 0, len(e.Parts))
	for _, p := range e.Parts {
		if p.InlineData != nil {
			parts = append(parts, genai.NewPartFromBytes(p.InlineData.Data, p.InlineData.MIMEType))
			continue
		}
		parts = append(parts, genai.NewPartFromText(p.Text))
	}
	return genai.NewContentFromParts(parts, role)
}
