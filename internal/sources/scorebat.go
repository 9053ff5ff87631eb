package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golazo/internal/types"
)

const scorebatBaseURL = "https://www.scorebat.com/video-api/v3"

// ScorebatSource fetches the Scorebat v3 highlight feed.
type ScorebatSource struct {
	name       string
	token      string
	baseURL    string
	maxItems   int
	httpClient *http.Client
	logger     *slog.Logger
}

func NewScorebatSource(name, token, baseURL string, maxItems int, logger *slog.Logger) *ScorebatSource {
	if baseURL == "" {
		baseURL = scorebatBaseURL
	}
	if maxItems <= 0 {
		maxItems = 20
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &ScorebatSource{
		name:       name,
		token:      token,
		baseURL:    baseURL,
		maxItems:   maxItems,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

func (s *ScorebatSource) Name() string {
	return s.name
}

func (s *ScorebatSource) Initialize(ctx context.Context) error {
	s.logger.Info("Scorebat source initializing", "source", s.name, "max_items", s.maxItems)
	return nil
}

func (s *ScorebatSource) Fetch(ctx context.Context) ([]*types.ContentItem, error) {
	endpoint := fmt.Sprintf("%s/feed/?token=%s", s.baseURL, s.token)

	var envelope struct {
		Response []map[string]any `json:"response"`
	}
	if err := fetchJSON(ctx, s.httpClient, endpoint, nil, &envelope); err != nil {
		return nil, fmt.Errorf("scorebat fetch failed: %w", err)
	}

	records := envelope.Response
	if len(records) > s.maxItems {
		records = records[:s.maxItems]
	}

	items := make([]*types.ContentItem, 0, len(records))
	for _, raw := range records {
		items = append(items, Normalize(s.name, raw))
	}

	s.logger.Info("Scorebat source fetched items", "source", s.name, "count", len(items))
	return items, nil
}

func (s *ScorebatSource) Shutdown(ctx context.Context) error {
	return nil
}

// fetchJSON issues one GET and decodes the payload. Upstream rate limits
// and auth failures surface as classified errors so the caller can log
// the distinction; fetch itself is not retried, the next scheduled run
// covers that.
func fetchJSON(ctx context.Context, client *http.Client, endpoint string, headers map[string]string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	for key, val := range headers {
		req.Header.Set(key, val)
	}

	resp, err := client.Do(req)
	if err != nil {
		return &types.DeliveryError{Platform: "upstream", Kind: types.KindTransientNetwork, Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return &types.DeliveryError{Platform: "upstream", Kind: types.KindTransientNetwork, Message: err.Error()}
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return json.Unmarshal(body, out)
	case resp.StatusCode == http.StatusTooManyRequests:
		return &types.DeliveryError{Platform: "upstream", Kind: types.KindRateLimited, Code: resp.StatusCode, Message: "rate limited"}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &types.DeliveryError{Platform: "upstream", Kind: types.KindAuth, Code: resp.StatusCode, Message: "upstream rejected credentials"}
	case resp.StatusCode >= 500:
		return &types.DeliveryError{Platform: "upstream", Kind: types.KindTransientNetwork, Code: resp.StatusCode, Message: resp.Status}
	default:
		return &types.DeliveryError{Platform: "upstream", Kind: types.KindUnexpectedResponse, Code: resp.StatusCode, Message: resp.Status, Raw: string(body[:min(len(body), 200)])}
	}
}
