package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/PabloGalante/travel-agent/internal/domain"
)

const (
	defaultBaseURL = "https://api.elevenlabs.io"
	defaultModelID = "eleven_multilingual_v2"

	// Upper bound on one synthesized clip.
	maxAudioBytes = 32 << 20
)

// Client talks to the ElevenLabs REST API.
type Client struct {
	apiKey     string
	baseURL    string
	modelID    string
	httpClient *http.Client
}

func NewClient(apiKey, baseURL, modelID string, httpClient *http.Client) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultBaseURL
	}
	if strings.TrimSpace(modelID) == "" {
		modelID = defaultModelID
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    strings.TrimRight(baseURL, "/"),
		modelID:    modelID,
		httpClient: httpClient,
	}
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

type ttsRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

// Synthesize returns MP3 audio for text spoken by voiceID.
func (c *Client) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("elevenlabs api key is not configured")
	}
	if strings.TrimSpace(voiceID) == "" {
		return nil, fmt.Errorf("voice id is required")
	}

	body, err := json.Marshal(ttsRequest{
		Text:          text,
		ModelID:       c.modelID,
		VoiceSettings: voiceSettings{Stability: 0.5, SimilarityBoost: 0.75, UseSpeakerBoost: true},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := c.baseURL + "/v1/text-to-speech/" + url.PathEscape(voiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		return nil, fmt.Errorf("elevenlabs error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	audio, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("elevenlabs returned empty audio")
	}
	if len(audio) > maxAudioBytes {
		return nil, fmt.Errorf("elevenlabs audio exceeds %d bytes", maxAudioBytes)
	}
	return audio, nil
}

// ListVoices returns the voices available to the configured account.
func (c *Client) ListVoices(ctx context.Context) ([]domain.Voice, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("elevenlabs api key is not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/voices", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		return nil, fmt.Errorf("elevenlabs error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var decoded struct {
		Voices []domain.Voice `json:"voices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return decoded.Voices, nil
}
