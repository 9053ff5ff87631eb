package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"

	"golazo/internal/types"
)

const platformName = "discord"

// Target posts highlight clips to a Discord channel. Primary delivery is
// an embed card with the clip link and thumbnail, fallback a plain
// message with the bare URL.
type Target struct {
	name      string
	botToken  string
	channelID string
	session   *discordgo.Session
	logger    *slog.Logger
}

func New(name, botToken, channelID string, logger *slog.Logger) (*Target, error) {
	if botToken == "" {
		return nil, fmt.Errorf("discord: bot_token is required")
	}
	if channelID == "" {
		return nil, fmt.Errorf("discord: channel_id is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Target{
		name:      name,
		botToken:  botToken,
		channelID: channelID,
		logger:    logger,
	}, nil
}

func (t *Target) Name() string {
	return t.name
}

func (t *Target) Initialize(ctx context.Context) error {
	session, err := discordgo.New("Bot " + t.botToken)
	if err != nil {
		return fmt.Errorf("failed to create discord session: %w", err)
	}

	if err := session.Open(); err != nil {
		return classify(err)
	}

	t.session = session
	return nil
}

func (t *Target) UploadMedia(ctx context.Context, item *types.ContentItem, caption string) (*types.DeliveryResult, error) {
	embed := &discordgo.MessageEmbed{
		Title: truncate(item.Title, 256),
		URL:   item.MediaURL,
	}
	if item.Thumbnail != "" {
		embed.Image = &discordgo.MessageEmbedImage{URL: item.Thumbnail}
	}
	if item.Competition != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: item.Competition}
	}

	msg, err := t.session.ChannelMessageSendComplex(t.channelID, &discordgo.MessageSend{
		Content: caption,
		Embeds:  []*discordgo.MessageEmbed{embed},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return nil, classify(err)
	}

	return t.result(msg, "embed"), nil
}

func (t *Target) PostLink(ctx context.Context, item *types.ContentItem, caption string) (*types.DeliveryResult, error) {
	msg, err := t.session.ChannelMessageSend(t.channelID, caption+"\n"+item.MediaURL, discordgo.WithContext(ctx))
	if err != nil {
		return nil, classify(err)
	}

	return t.result(msg, "message"), nil
}

func (t *Target) Shutdown(ctx context.Context) error {
	if t.session != nil {
		return t.session.Close()
	}
	return nil
}

func (t *Target) result(msg *discordgo.Message, method string) *types.DeliveryResult {
	return &types.DeliveryResult{
		Target:    t.name,
		RemoteID:  msg.ID,
		Timestamp: time.Now(),
		Metadata:  map[string]any{"method": method, "channel_id": t.channelID},
	}
}

func classify(err error) error {
	var rateErr *discordgo.RateLimitError
	if errors.As(err, &rateErr) {
		return &types.DeliveryError{
			Platform:   platformName,
			Kind:       types.KindRateLimited,
			Message:    "rate limited",
			RetryAfter: rateErr.RetryAfter,
		}
	}

	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) || restErr.Response == nil {
		return &types.DeliveryError{Platform: platformName, Kind: types.KindTransientNetwork, Message: err.Error()}
	}

	derr := &types.DeliveryError{
		Platform: platformName,
		Code:     restErr.Response.StatusCode,
		Message:  err.Error(),
	}

	switch {
	case restErr.Response.StatusCode == 401 || restErr.Response.StatusCode == 403:
		// Missing permissions fail every later delivery the same way, so
		// treat them like a bad credential.
		derr.Kind = types.KindAuth
	case restErr.Response.StatusCode == 429:
		derr.Kind = types.KindRateLimited
	case restErr.Response.StatusCode == 400:
		derr.Kind = types.KindContentRejected
	case restErr.Response.StatusCode >= 500:
		derr.Kind = types.KindTransientNetwork
	default:
		derr.Kind = types.KindUnexpectedResponse
		derr.Raw = string(restErr.ResponseBody)
	}

	return derr
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max-3]) + "..."
}
