package bluesky

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/bluesky-social/indigo/api/atproto"
	"github.com/bluesky-social/indigo/api/bsky"
	lexutil "github.com/bluesky-social/indigo/lex/util"
	"github.com/bluesky-social/indigo/xrpc"

	"golazo/internal/types"
)

const platformName = "bluesky"

const maxPostLength = 300

// Target posts to Bluesky over XRPC. The primary method publishes the
// caption with an external-embed card pointing at the clip; the fallback
// is a bare text post carrying the URL inline.
type Target struct {
	name       string
	identifier string
	password   string
	host       string
	languages  []string
	client     *xrpc.Client
	logger     *slog.Logger
}

func New(name, identifier, password string, languages []string, logger *slog.Logger) (*Target, error) {
	if identifier == "" {
		return nil, fmt.Errorf("bluesky: identifier is required")
	}
	if password == "" {
		return nil, fmt.Errorf("bluesky: password is required")
	}
	if len(languages) == 0 {
		languages = []string{"en"}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Target{
		name:       name,
		identifier: identifier,
		password:   password,
		host:       "https://bsky.social",
		languages:  languages,
		logger:     logger,
	}, nil
}

func (t *Target) Name() string {
	return t.name
}

func (t *Target) Initialize(ctx context.Context) error {
	client := &xrpc.Client{Host: t.host}

	auth, err := atproto.ServerCreateSession(ctx, client, &atproto.ServerCreateSession_Input{
		Identifier: t.identifier,
		Password:   t.password,
	})
	if err != nil {
		return classify(err)
	}

	client.Auth = &xrpc.AuthInfo{
		AccessJwt:  auth.AccessJwt,
		RefreshJwt: auth.RefreshJwt,
		Handle:     auth.Handle,
		Did:        auth.Did,
	}

	t.client = client
	t.logger.Info("Bluesky session created", "handle", auth.Handle)
	return nil
}

func (t *Target) UploadMedia(ctx context.Context, item *types.ContentItem, caption string) (*types.DeliveryResult, error) {
	post := t.basePost(caption)
	post.Embed = &bsky.FeedPost_Embed{
		EmbedExternal: &bsky.EmbedExternal{
			External: &bsky.EmbedExternal_External{
				Uri:         item.MediaURL,
				Title:       item.Title,
				Description: item.Competition,
			},
		},
	}

	return t.createRecord(ctx, post, "external_embed")
}

func (t *Target) PostLink(ctx context.Context, item *types.ContentItem, caption string) (*types.DeliveryResult, error) {
	post := t.basePost(truncatePost(caption + "\n" + item.MediaURL))
	return t.createRecord(ctx, post, "text")
}

func (t *Target) Shutdown(ctx context.Context) error {
	return nil
}

func (t *Target) basePost(text string) *bsky.FeedPost {
	return &bsky.FeedPost{
		Text:      truncatePost(text),
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Langs:     t.languages,
	}
}

func (t *Target) createRecord(ctx context.Context, post *bsky.FeedPost, method string) (*types.DeliveryResult, error) {
	resp, err := atproto.RepoCreateRecord(ctx, t.client, &atproto.RepoCreateRecord_Input{
		Collection: "app.bsky.feed.post",
		Repo:       t.client.Auth.Did,
		Record:     &lexutil.LexiconTypeDecoder{Val: post},
	})
	if err != nil {
		return nil, classify(err)
	}

	return &types.DeliveryResult{
		Target:    t.name,
		RemoteID:  resp.Uri,
		Timestamp: time.Now(),
		Metadata:  map[string]any{"method": method, "cid": resp.Cid},
	}, nil
}

func classify(err error) error {
	var xerr *xrpc.Error
	if !errors.As(err, &xerr) {
		return &types.DeliveryError{Platform: platformName, Kind: types.KindTransientNetwork, Message: err.Error()}
	}

	derr := &types.DeliveryError{
		Platform: platformName,
		Code:     xerr.StatusCode,
		Message:  err.Error(),
	}

	switch {
	case xerr.StatusCode == 401 || xerr.StatusCode == 403:
		derr.Kind = types.KindAuth
	case xerr.StatusCode == 429:
		derr.Kind = types.KindRateLimited
		if xerr.Ratelimit != nil {
			derr.RetryAfter = time.Until(xerr.Ratelimit.Reset)
		}
	case xerr.StatusCode == 400:
		derr.Kind = types.KindContentRejected
	case xerr.StatusCode >= 500:
		derr.Kind = types.KindTransientNetwork
	default:
		derr.Kind = types.KindUnexpectedResponse
	}

	return derr
}

func truncatePost(s string) string {
	if utf8.RuneCountInString(s) <= maxPostLength {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxPostLength-1]) + "…"
}
