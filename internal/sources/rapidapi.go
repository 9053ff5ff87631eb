package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golazo/internal/types"
)

const rapidAPIBaseURL = "https://free-football-soccer-videos.p.rapidapi.com"
const rapidAPIHost = "free-football-soccer-videos.p.rapidapi.com"

// RapidAPISource fetches goal clips from the free-football-soccer-videos
// API on RapidAPI.
type RapidAPISource struct {
	name       string
	apiKey     string
	baseURL    string
	maxItems   int
	httpClient *http.Client
	logger     *slog.Logger
}

func NewRapidAPISource(name, apiKey, baseURL string, maxItems int, logger *slog.Logger) (*RapidAPISource, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("rapidapi: api_key is required")
	}
	if baseURL == "" {
		baseURL = rapidAPIBaseURL
	}
	if maxItems <= 0 {
		maxItems = 20
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &RapidAPISource{
		name:       name,
		apiKey:     apiKey,
		baseURL:    baseURL,
		maxItems:   maxItems,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}, nil
}

func (s *RapidAPISource) Name() string {
	return s.name
}

func (s *RapidAPISource) Initialize(ctx context.Context) error {
	s.logger.Info("RapidAPI source initializing", "source", s.name, "max_items", s.maxItems)
	return nil
}

func (s *RapidAPISource) Fetch(ctx context.Context) ([]*types.ContentItem, error) {
	headers := map[string]string{
		"X-RapidAPI-Key":  s.apiKey,
		"X-RapidAPI-Host": rapidAPIHost,
	}

	var payload json.RawMessage
	if err := fetchJSON(ctx, s.httpClient, s.baseURL+"/", headers, &payload); err != nil {
		return nil, fmt.Errorf("rapidapi fetch failed: %w", err)
	}

	// The endpoint has answered with both a bare array and an object
	// wrapping one; accept either.
	var records []map[string]any
	if err := json.Unmarshal(payload, &records); err != nil {
		var envelope struct {
			Videos []map[string]any `json:"videos"`
			Data   []map[string]any `json:"data"`
		}
		if err := json.Unmarshal(payload, &envelope); err != nil {
			return nil, fmt.Errorf("rapidapi: unexpected payload shape: %w", err)
		}
		records = envelope.Videos
		if records == nil {
			records = envelope.Data
		}
	}

	if len(records) > s.maxItems {
		records = records[:s.maxItems]
	}

	items := make([]*types.ContentItem, 0, len(records))
	for _, raw := range records {
		items = append(items, Normalize(s.name, raw))
	}

	s.logger.Info("RapidAPI source fetched items", "source", s.name, "count", len(items))
	return items, nil
}

func (s *RapidAPISource) Shutdown(ctx context.Context) error {
	return nil
}
