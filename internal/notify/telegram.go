package notify

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramSender posts MarkdownV2 messages through the Bot API, retrying
// with linear backoff.
type TelegramSender struct {
	bot        *tgbotapi.BotAPI
	chatID     int64
	maxRetries int
	retryDelay time.Duration
}

// NewTelegramSender authenticates the bot. endpoint overrides the Bot API
// URL format and is normally empty.
func NewTelegramSender(token, chatID, endpoint string, maxRetries int, retryDelay time.Duration) (*TelegramSender, error) {
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	bot, err := tgbotapi.NewBotAPIWithClient(token, endpoint, &http.Client{Timeout: 10 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("telegram: create bot: %w", err)
	}
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("telegram: invalid chat id: %w", err)
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelay <= 0 {
		retryDelay = time.Second
	}
	return &TelegramSender{bot: bot, chatID: id, maxRetries: maxRetries, retryDelay: retryDelay}, nil
}

// Send posts title in bold followed by message as MarkdownV2, retrying
// failed attempts.
func (t *TelegramSender) Send(ctx context.Context, title, message string) error {
	msg := tgbotapi.NewMessage(t.chatID, fmt.Sprintf("*%s*\n%s", escapeMarkdownV2(title), escapeMarkdownV2(message)))
	msg.ParseMode = tgbotapi.ModeMarkdownV2

	var lastErr error
	for i := 0; i < t.maxRetries; i++ {
		if _, err := t.bot.Send(msg); err == nil {
			return nil
		} else {
			lastErr = err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(t.retryDelay * time.Duration(i+1)):
		}
	}
	return fmt.Errorf("telegram: failed after %d attempts: %w", t.maxRetries, lastErr)
}

// Name returns the sender identifier.
func (t *TelegramSender) Name() string { return "telegram" }

func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4)
	for _, r := range text {
		switch r {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
