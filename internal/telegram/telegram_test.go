package telegram

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"numinfo_bot/internal/config"
)

type fakeRunner struct {
	started        bool
	webhookStarted bool
}

func (f *fakeRunner) Start(_ context.Context)        { f.started = true }
func (f *fakeRunner) StartWebhook(_ context.Context) { f.webhookStarted = true }
func (f *fakeRunner) WebhookHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}
}

func stubCreateBot(t *testing.T, runner botRunner, err error) {
	t.Helper()

	original := createBot
	createBot = func(_ string, _ ...bot.Option) (botRunner, error) {
		return runner, err
	}
	t.Cleanup(func() { createBot = original })
}

func testEntry() *logrus.Entry {
	logger, _ := logtest.NewNullLogger()
	return logrus.NewEntry(logger)
}

func TestNewClientRequiresToken(t *testing.T) {
	if _, err := NewClient(config.Config{TelegramToken: "  "}, testEntry()); err == nil {
		t.Fatalf("expected error for blank token")
	}
}

func TestNewClientWrapsInitFailure(t *testing.T) {
	stubCreateBot(t, nil, errors.New("bad token"))

	if _, err := NewClient(config.Config{TelegramToken: "123:abc"}, testEntry()); err == nil {
		t.Fatalf("expected init failure to surface")
	}
}

func TestStartUsesConfiguredTransport(t *testing.T) {
	runner := &fakeRunner{}
	stubCreateBot(t, runner, nil)

	client, err := NewClient(config.Config{TelegramToken: "123:abc", BotMode: config.ModePolling}, testEntry())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	client.Start(context.Background())
	if !runner.started || runner.webhookStarted {
		t.Fatalf("expected long polling start, got polling=%v webhook=%v", runner.started, runner.webhookStarted)
	}
}

func TestStartWebhookMode(t *testing.T) {
	runner := &fakeRunner{}
	stubCreateBot(t, runner, nil)

	client, err := NewClient(config.Config{TelegramToken: "123:abc", BotMode: config.ModeWebhook}, testEntry())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	client.Start(context.Background())
	if !runner.webhookStarted || runner.started {
		t.Fatalf("expected webhook start, got polling=%v webhook=%v", runner.started, runner.webhookStarted)
	}
}

func TestUpdatesBeforeDispatcherAreDropped(t *testing.T) {
	runner := &fakeRunner{}
	stubCreateBot(t, runner, nil)

	client, err := NewClient(config.Config{TelegramToken: "123:abc"}, testEntry())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// No dispatcher attached yet; must not panic.
	client.handleUpdate(context.Background(), nil, privateUpdate(testUserID, "/start"))
}

func privateUpdate(userID int64, text string) *models.Update {
	return &models.Update{Message: privateMessage(userID, text)}
}
