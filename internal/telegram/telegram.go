// Package telegram hosts the Telegram client, the command dispatcher, and the
// chat handlers.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"numinfo_bot/internal/config"
	"numinfo_bot/internal/logging"
)

// botRunner captures the subset of bot.Bot used by the client so tests can
// substitute a fake without network access.
type botRunner interface {
	Start(ctx context.Context)
	StartWebhook(ctx context.Context)
	WebhookHandler() http.HandlerFunc
}

var (
	defaultAllowedUpdates = bot.AllowedUpdates{
		"message",
		"callback_query",
	}

	createBot = func(token string, options ...bot.Option) (botRunner, error) {
		return bot.New(token, options...)
	}
)

// Client wraps the Telegram bot instance and the transport binding. The same
// dispatcher serves both long polling and webhook mode.
type Client struct {
	bot        botRunner
	raw        *bot.Bot
	mode       string
	dispatcher *Dispatcher
	logger     *logrus.Entry
}

// NewClient initializes the Telegram bot for the configured transport mode.
// The dispatcher is attached later with SetDispatcher, once its dependencies
// (which need the bot API) exist.
func NewClient(cfg config.Config, logger *logrus.Entry) (*Client, error) {
	if strings.TrimSpace(cfg.TelegramToken) == "" {
		return nil, errors.New("telegram token is required")
	}
	if logger == nil {
		logger = logging.Logger()
	}

	client := &Client{
		mode:   cfg.BotMode,
		logger: logger,
	}

	tgBot, err := createBot(cfg.TelegramToken,
		bot.WithAllowedUpdates(defaultAllowedUpdates),
		bot.WithDefaultHandler(client.handleUpdate),
		bot.WithErrorsHandler(errorHandler(logger)),
	)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot client: %w", err)
	}

	client.bot = tgBot
	if raw, ok := tgBot.(*bot.Bot); ok {
		client.raw = raw
	}

	return client, nil
}

// SetDispatcher attaches the dispatcher. Updates arriving before attachment
// are dropped.
func (c *Client) SetDispatcher(d *Dispatcher) {
	c.dispatcher = d
}

// Bot returns the underlying bot API for components that query or send
// through Telegram. Nil under test fakes.
func (c *Client) Bot() *bot.Bot {
	return c.raw
}

// Start begins receiving updates on the configured transport until the
// context is canceled.
func (c *Client) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	c.logger.WithFields(logging.Fields{
		"event":           "telegram_listen",
		"mode":            c.mode,
		"allowed_updates": defaultAllowedUpdates,
	}).Info("starting telegram update delivery")

	if c.mode == config.ModeWebhook {
		c.bot.StartWebhook(ctx)
	} else {
		c.bot.Start(ctx)
	}

	c.logger.WithField("event", "telegram_stopped").Info("telegram update delivery stopped")
}

// WebhookHandler exposes the inbound update endpoint for webhook mode; the
// HTTP server mounts it under the secret-bearing path.
func (c *Client) WebhookHandler() http.HandlerFunc {
	return c.bot.WebhookHandler()
}

func (c *Client) handleUpdate(ctx context.Context, _ *bot.Bot, update *models.Update) {
	if update == nil || c.dispatcher == nil {
		return
	}

	c.dispatcher.HandleUpdate(ctx, update)
}

func errorHandler(logger *logrus.Entry) bot.ErrorsHandler {
	if logger == nil {
		logger = logging.Logger()
	}

	return func(err error) {
		if err == nil {
			return
		}

		logger.WithField("event", "telegram_error").WithError(err).Error("telegram transport error")
	}
}
