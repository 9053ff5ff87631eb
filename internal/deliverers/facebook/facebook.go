package facebook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golazo/internal/types"
)

const DefaultBaseURL = "https://graph.facebook.com/v18.0"

const platformName = "facebook"

// Graph API error codes the bot has run into. Classification is an
// explicit table rather than string matching on error messages.
var codeKinds = map[int]types.ErrorKind{
	190: types.KindAuth,             // invalid or expired access token
	102: types.KindAuth,             // session key invalid
	1:   types.KindTransientNetwork, // unknown error, API asks to retry
	2:   types.KindTransientNetwork, // service temporarily unavailable
	4:   types.KindRateLimited,      // application request limit reached
	17:  types.KindRateLimited,      // user request limit reached
	32:  types.KindRateLimited,      // page request limit reached
	613: types.KindRateLimited,      // custom rate limit
	368: types.KindContentRejected,  // page temporarily blocked from posting
	506: types.KindContentRejected,  // duplicate post
}

type graphError struct {
	Message    string `json:"message"`
	Code       int    `json:"code"`
	Subcode    int    `json:"error_subcode"`
	RetryAfter int    `json:"estimated_time_to_regain_access"`
}

type graphResponse struct {
	ID    string      `json:"id"`
	Error *graphError `json:"error"`
}

// Client posts to a Facebook Page via the Graph API. The primary method
// uploads the clip through the page's /videos edge (Facebook fetches
// file_url itself); the fallback posts the clip URL to the page feed as
// a link with preview.
type Client struct {
	name        string
	pageID      string
	accessToken string
	baseURL     string
	httpClient  *http.Client
	logger      *slog.Logger
}

func New(name, pageID, accessToken, baseURL string, logger *slog.Logger) (*Client, error) {
	if pageID == "" {
		return nil, fmt.Errorf("facebook: page_id is required")
	}
	if accessToken == "" {
		return nil, fmt.Errorf("facebook: access_token is required")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		name:        name,
		pageID:      pageID,
		accessToken: accessToken,
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  &http.Client{Timeout: 60 * time.Second},
		logger:      logger,
	}, nil
}

func (c *Client) Name() string {
	return c.name
}

// Initialize verifies the token before the run starts, so a dead
// credential fails fast instead of after the first delivery attempt.
func (c *Client) Initialize(ctx context.Context) error {
	endpoint := fmt.Sprintf("%s/me?access_token=%s&fields=id,name", c.baseURL, url.QueryEscape(c.accessToken))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &types.DeliveryError{Platform: platformName, Kind: types.KindTransientNetwork, Message: err.Error()}
	}
	defer resp.Body.Close()

	decoded, derr := c.decode(resp)
	if derr != nil {
		return derr
	}

	c.logger.Info("Facebook page token verified", "page_id", decoded.ID)
	return nil
}

func (c *Client) UploadMedia(ctx context.Context, item *types.ContentItem, caption string) (*types.DeliveryResult, error) {
	form := url.Values{
		"file_url":     {item.MediaURL},
		"title":        {item.Title},
		"description":  {caption},
		"access_token": {c.accessToken},
	}

	decoded, err := c.post(ctx, fmt.Sprintf("%s/%s/videos", c.baseURL, c.pageID), form)
	if err != nil {
		return nil, err
	}

	return &types.DeliveryResult{
		Target:    c.name,
		RemoteID:  decoded.ID,
		Timestamp: time.Now(),
		Metadata:  map[string]any{"method": "video_upload", "page_id": c.pageID},
	}, nil
}

func (c *Client) PostLink(ctx context.Context, item *types.ContentItem, caption string) (*types.DeliveryResult, error) {
	form := url.Values{
		"message":      {caption},
		"link":         {item.MediaURL},
		"access_token": {c.accessToken},
	}

	decoded, err := c.post(ctx, fmt.Sprintf("%s/%s/feed", c.baseURL, c.pageID), form)
	if err != nil {
		return nil, err
	}

	return &types.DeliveryResult{
		Target:    c.name,
		RemoteID:  decoded.ID,
		Timestamp: time.Now(),
		Metadata:  map[string]any{"method": "link_post", "page_id": c.pageID},
	}, nil
}

// Prefetch warms the clip URL so Facebook's server-side fetch of
// file_url hits a hot CDN edge. Failures are irrelevant here; the upload
// attempt will surface anything real.
func (c *Client) Prefetch(ctx context.Context, item *types.ContentItem) {
	if item.MediaURL == "" {
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, item.MediaURL, nil)
	if err != nil {
		return
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return
	}
	resp.Body.Close()
}

func (c *Client) Shutdown(ctx context.Context) error {
	return nil
}

func (c *Client) post(ctx context.Context, endpoint string, form url.Values) (*graphResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &types.DeliveryError{Platform: platformName, Kind: types.KindTransientNetwork, Message: err.Error()}
	}
	defer resp.Body.Close()

	return c.decode(resp)
}

// decode turns a Graph API response into either a payload or a
// classified *types.DeliveryError.
func (c *Client) decode(resp *http.Response) (*graphResponse, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &types.DeliveryError{Platform: platformName, Kind: types.KindTransientNetwork, Message: err.Error()}
	}

	var decoded graphResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, c.httpLevelError(resp, body)
	}

	if decoded.Error != nil {
		kind, known := codeKinds[decoded.Error.Code]
		if !known {
			kind = types.KindUnexpectedResponse
			c.logger.Error("Unclassified Graph API error", "code", decoded.Error.Code, "subcode", decoded.Error.Subcode, "raw", string(body))
		}

		derr := &types.DeliveryError{
			Platform: platformName,
			Kind:     kind,
			Code:     decoded.Error.Code,
			Message:  decoded.Error.Message,
			Raw:      string(body),
		}
		if kind == types.KindRateLimited {
			derr.RetryAfter = retryAfterFrom(resp, decoded.Error)
		}
		return nil, derr
	}

	if decoded.ID == "" {
		return nil, &types.DeliveryError{
			Platform: platformName,
			Kind:     types.KindUnexpectedResponse,
			Message:  "response carries neither id nor error",
			Raw:      string(body),
		}
	}

	return &decoded, nil
}

func (c *Client) httpLevelError(resp *http.Response, body []byte) error {
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		derr := &types.DeliveryError{
			Platform: platformName,
			Kind:     types.KindRateLimited,
			Message:  "too many requests",
		}
		derr.RetryAfter = retryAfterFrom(resp, nil)
		return derr
	case resp.StatusCode >= 500:
		return &types.DeliveryError{
			Platform: platformName,
			Kind:     types.KindTransientNetwork,
			Message:  fmt.Sprintf("server error: %s", resp.Status),
		}
	default:
		return &types.DeliveryError{
			Platform: platformName,
			Kind:     types.KindUnexpectedResponse,
			Message:  fmt.Sprintf("unparseable response: %s", resp.Status),
			Raw:      string(body),
		}
	}
}

func retryAfterFrom(resp *http.Response, gerr *graphError) time.Duration {
	if header := resp.Header.Get("Retry-After"); header != "" {
		if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	if gerr != nil && gerr.RetryAfter > 0 {
		return time.Duration(gerr.RetryAfter) * time.Second
	}
	return 0
}
