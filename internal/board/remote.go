package board

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hari-na/hari-jeopardy/internal/game"
)

// RemoteGenerator asks a board-generation HTTP service for a themed grid.
// Failures are fatal to session initialization; there is no retry here.
type RemoteGenerator struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewRemoteGenerator builds a generator against a service base URL. Both the
// URL and the API key are required; a missing one is reported as
// ErrMissingConfig on the first Generate call so callers surface it as an
// initialization failure.
func NewRemoteGenerator(baseURL, apiKey string) *RemoteGenerator {
	return &RemoteGenerator{
		baseURL: baseURL,
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type generateRequest struct {
	Theme string `json:"theme"`
}

type generateResponse struct {
	Categories []game.Category `json:"categories"`
}

func (g *RemoteGenerator) Generate(ctx context.Context, theme string) ([]game.Category, error) {
	if g.baseURL == "" {
		return nil, fmt.Errorf("%w: board service URL not set", ErrMissingConfig)
	}
	if g.apiKey == "" {
		return nil, fmt.Errorf("%w: board service API key not set", ErrMissingConfig)
	}

	body, err := json.Marshal(generateRequest{Theme: theme})
	if err != nil {
		return nil, fmt.Errorf("marshal board request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/boards", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		responseBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("board service returned status code: %d, response: %s", resp.StatusCode, string(responseBody))
	}

	var decoded generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBoard, err)
	}

	log.Info().Str("theme", theme).Int("categories", len(decoded.Categories)).Msg("board generated")
	return decoded.Categories, nil
}
