package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"golazo/internal/types"
)

const platformName = "telegram"

// Target posts to a Telegram chat or channel. Primary delivery is a
// native video message (Telegram fetches the clip URL itself), fallback
// is a plain message whose link preview carries the clip.
type Target struct {
	name     string
	token    string
	chatID   int64
	username string
	bot      *tgbotapi.BotAPI
	logger   *slog.Logger
}

func New(name, token, chat string, logger *slog.Logger) (*Target, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram: bot_token is required")
	}
	if chat == "" {
		return nil, fmt.Errorf("telegram: chat_id is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	t := &Target{
		name:   name,
		token:  token,
		logger: logger,
	}

	if id, err := strconv.ParseInt(chat, 10, 64); err == nil {
		t.chatID = id
	} else {
		t.username = chat
	}

	return t, nil
}

func (t *Target) Name() string {
	return t.name
}

func (t *Target) Initialize(ctx context.Context) error {
	bot, err := tgbotapi.NewBotAPI(t.token)
	if err != nil {
		return classify(err)
	}
	t.bot = bot
	t.logger.Info("Telegram bot authorized", "username", bot.Self.UserName)
	return nil
}

func (t *Target) UploadMedia(ctx context.Context, item *types.ContentItem, caption string) (*types.DeliveryResult, error) {
	video := tgbotapi.NewVideo(t.chatID, tgbotapi.FileURL(item.MediaURL))
	video.ChannelUsername = t.username
	video.Caption = caption

	msg, err := t.bot.Send(video)
	if err != nil {
		return nil, classify(err)
	}

	return t.result(msg, "video"), nil
}

func (t *Target) PostLink(ctx context.Context, item *types.ContentItem, caption string) (*types.DeliveryResult, error) {
	text := caption + "\n" + item.MediaURL
	message := tgbotapi.NewMessage(t.chatID, text)
	message.ChannelUsername = t.username

	msg, err := t.bot.Send(message)
	if err != nil {
		return nil, classify(err)
	}

	return t.result(msg, "message"), nil
}

func (t *Target) Shutdown(ctx context.Context) error {
	return nil
}

func (t *Target) result(msg tgbotapi.Message, method string) *types.DeliveryResult {
	return &types.DeliveryResult{
		Target:    t.name,
		RemoteID:  strconv.Itoa(msg.MessageID),
		Timestamp: time.Now(),
		Metadata:  map[string]any{"method": method, "chat_id": msg.Chat.ID},
	}
}

// classify maps Bot API error codes onto the shared taxonomy. 429
// responses carry retry_after in their parameters, which the pipeline
// uses instead of its own backoff.
func classify(err error) error {
	var tgErr *tgbotapi.Error
	if !errors.As(err, &tgErr) {
		return &types.DeliveryError{Platform: platformName, Kind: types.KindTransientNetwork, Message: err.Error()}
	}

	derr := &types.DeliveryError{
		Platform: platformName,
		Code:     tgErr.Code,
		Message:  tgErr.Message,
	}

	switch {
	case tgErr.Code == 401:
		derr.Kind = types.KindAuth
	case tgErr.Code == 429:
		derr.Kind = types.KindRateLimited
		derr.RetryAfter = time.Duration(tgErr.RetryAfter) * time.Second
	case tgErr.Code == 400 || tgErr.Code == 403:
		derr.Kind = types.KindContentRejected
	case tgErr.Code >= 500:
		derr.Kind = types.KindTransientNetwork
	default:
		derr.Kind = types.KindUnexpectedResponse
		derr.Raw = tgErr.Message
	}

	return derr
}
