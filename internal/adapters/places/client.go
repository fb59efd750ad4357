package places

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/PabloGalante/travel-agent/internal/domain"
)

const (
	defaultBaseURL = "https://places.googleapis.com"
	fieldMask      = "places.displayName,places.primaryTypeDisplayName"
)

// Client calls the Google Places API (New) nearby search.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func NewClient(apiKey, baseURL string, httpClient *http.Client) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

type localizedText struct {
	Text string `json:"text"`
}

type searchNearbyRequest struct {
	IncludedTypes       []string `json:"includedTypes,omitempty"`
	MaxResultCount      int      `json:"maxResultCount,omitempty"`
	LocationRestriction struct {
		Circle struct {
			Center struct {
				Latitude  float64 `json:"latitude"`
				Longitude float64 `json:"longitude"`
			} `json:"center"`
			Radius float64 `json:"radius"`
		} `json:"circle"`
	} `json:"locationRestriction"`
}

type searchNearbyResponse struct {
	Places []struct {
		DisplayName            *localizedText `json:"displayName"`
		PrimaryTypeDisplayName *localizedText `json:"primaryTypeDisplayName"`
	} `json:"places"`
}

// SearchNearby returns the places around q.Location. A response without a
// places array yields no places and no error.
func (c *Client) SearchNearby(ctx context.Context, q domain.PlacesQuery) ([]domain.Place, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("places api key is not configured")
	}

	var payload searchNearbyRequest
	payload.IncludedTypes = q.Types
	payload.MaxResultCount = q.MaxResults
	payload.LocationRestriction.Circle.Center.Latitude = q.Location.Latitude
	payload.LocationRestriction.Circle.Center.Longitude = q.Location.Longitude
	payload.LocationRestriction.Circle.Radius = q.RadiusMeters

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/places:searchNearby", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", c.apiKey)
	req.Header.Set("X-Goog-FieldMask", fieldMask)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		return nil, fmt.Errorf("places error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var decoded searchNearbyResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	out := make([]domain.Place, 0, len(decoded.Places))
	for _, p := range decoded.Places {
		if p.DisplayName == nil || strings.TrimSpace(p.DisplayName.Text) == "" {
			continue
		}
		place := domain.Place{Name: strings.TrimSpace(p.DisplayName.Text)}
		if p.PrimaryTypeDisplayName != nil {
			place.Category = strings.TrimSpace(p.PrimaryTypeDisplayName.Text)
		}
		out = append(out, place)
	}
	return out, nil
}
