// Copyright 2024-2026 Aiku AI

// Package telegram delivers notifications as Telegram bot messages.
// Addresses are numeric chat IDs.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/aiku/threadtag/pkg/conversation"
	"github.com/aiku/threadtag/pkg/conversation/textfmt"
)

// Config holds the bot settings.
type Config struct {
	Token string
	// APIEndpoint is a format string taking the token and the method name.
	// Defaults to the public Bot API.
	APIEndpoint string
	Timeout     time.Duration
}

// Notifier sends notifications from a Telegram bot. The bot is authenticated
// on first use; a failed login is retried on the next send.
type Notifier struct {
	cfg    Config
	client *http.Client
	log    zerolog.Logger

	mu  sync.Mutex
	bot *tgbotapi.BotAPI
}

var _ conversation.Notifier = (*Notifier)(nil)

// NewNotifier creates a notifier from cfg. No request is made until the
// first Send.
func NewNotifier(cfg Config, log zerolog.Logger) (*Notifier, error) {
	if cfg.Token == "" {
		return nil, errors.New("telegram bot token is required")
	}
	if cfg.APIEndpoint == "" {
		cfg.APIEndpoint = tgbotapi.APIEndpoint
	}
	client := &http.Client{Timeout: cfg.Timeout}
	return &Notifier{
		cfg:    cfg,
		client: client,
		log:    log.With().Str("component", "telegram_notifier").Logger(),
	}, nil
}

func (n *Notifier) botAPI() (*tgbotapi.BotAPI, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.bot != nil {
		return n.bot, nil
	}
	bot, err := tgbotapi.NewBotAPIWithClient(n.cfg.Token, n.cfg.APIEndpoint, n.client)
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate bot: %w", err)
	}
	n.log.Info().Str("username", bot.Self.UserName).Msg("Authenticated Telegram bot")
	n.bot = bot
	return bot, nil
}

func parseAddress(address string) (int64, error) {
	chatID, err := strconv.ParseInt(strings.TrimSpace(address), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a Telegram chat ID", conversation.ErrUnsupportedAddress, address)
	}
	return chatID, nil
}

// FormatMessage builds the Telegram HTML text for a notification. The Bot
// API accepts only a few inline tags, so the body is sent as escaped plain
// text under a bold subject.
func FormatMessage(subject, body string, isHTML bool) string {
	if isHTML {
		body = textfmt.Plain(body)
	}
	body = html.EscapeString(body)
	if subject == "" {
		return body
	}
	return "<b>" + html.EscapeString(subject) + "</b>\n\n" + body
}

func (n *Notifier) Send(ctx context.Context, address, subject, body string, isHTML bool) error {
	chatID, err := parseAddress(address)
	if err != nil {
		return err
	}
	if err = ctx.Err(); err != nil {
		return err
	}
	bot, err := n.botAPI()
	if err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, FormatMessage(subject, body, isHTML))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	sent, err := bot.Send(msg)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	n.log.Debug().
		Int64("chat_id", chatID).
		Int("message_id", sent.MessageID).
		Msg("Sent message")
	return nil
}
