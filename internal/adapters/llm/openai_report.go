package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// ReportClient runs single-shot completions against an OpenAI-compatible
// endpoint (OpenRouter by default).
type ReportClient struct {
	client *openai.Client
	model  string
}

func NewReportClient(apiKey, baseURL, model string) (*ReportClient, error) {
	if apiKey == "" {
		return nil, errors.New("api key is required for the report client")
	}
	if model == "" {
		return nil, errors.New("model is required for the report client")
	}

	clientConfig := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientConfig.BaseURL = strings.TrimSuffix(baseURL, "/")
	}

	return &ReportClient{
		client: openai.NewClientWithConfig(clientConfig),
		model:  model,
	}, nil
}

// Complete implements domain.ReportGenerator.
func (c *ReportClient) Complete(ctx context.Context, system, user string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		return "", fmt.Errorf("report completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("report completion returned no choices")
	}

	text := resp.Choices[0].Message.Content
	if strings.TrimSpace(text) == "" {
		return "", errors.New("report completion returned empty content")
	}
	return text, nil
}
