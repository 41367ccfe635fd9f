// Package broadcast implements best-effort message fan-out to every known
// user.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"numinfo_bot/internal/domain"
	"numinfo_bot/internal/logging"
)

// Kind selects how a broadcast payload is delivered.
type Kind string

const (
	KindText     Kind = "text"
	KindPhoto    Kind = "photo"
	KindVideo    Kind = "video"
	KindDocument Kind = "document"
)

// Content is one broadcast payload. Media kinds carry the original remote
// file reference so Telegram re-serves the upload.
type Content struct {
	Kind   Kind
	Text   string // message text, or caption for media kinds
	FileID string
}

// ContentFromMessage maps an inbound message to a broadcastable payload.
// Returns false for message kinds the engine does not forward.
func ContentFromMessage(msg *models.Message) (Content, bool) {
	if msg == nil {
		return Content{}, false
	}

	switch {
	case len(msg.Photo) > 0:
		// The last size is the largest rendition.
		return Content{Kind: KindPhoto, Text: msg.Caption, FileID: msg.Photo[len(msg.Photo)-1].FileID}, true
	case msg.Video != nil:
		return Content{Kind: KindVideo, Text: msg.Caption, FileID: msg.Video.FileID}, true
	case msg.Document != nil:
		return Content{Kind: KindDocument, Text: msg.Caption, FileID: msg.Document.FileID}, true
	case msg.Text != "":
		return Content{Kind: KindText, Text: msg.Text}, true
	default:
		return Content{}, false
	}
}

// Describe summarizes the content for the audit log.
func (c Content) Describe() string {
	snippet := c.Text
	if len(snippet) > 64 {
		snippet = snippet[:64] + "…"
	}
	if c.Kind == KindText {
		return snippet
	}
	return fmt.Sprintf("[%s] %s", c.Kind, snippet)
}

// Report tallies one broadcast run. Success+Failed always equals Total.
type Report struct {
	Total   int64
	Success int64
	Failed  int64
}

type sender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	SendPhoto(ctx context.Context, params *bot.SendPhotoParams) (*models.Message, error)
	SendVideo(ctx context.Context, params *bot.SendVideoParams) (*models.Message, error)
	SendDocument(ctx context.Context, params *bot.SendDocumentParams) (*models.Message, error)
}

type audienceLister interface {
	ListUserIDs(ctx context.Context) ([]int64, error)
}

type logCollection interface {
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
}

// Engine fans one payload out to every registered user with a fixed
// inter-send delay.
type Engine struct {
	sender   sender
	audience audienceLister
	logs     logCollection
	delay    time.Duration
	logger   *logrus.Entry
}

// NewEngine constructs an Engine. delay spaces consecutive sends to respect
// outbound rate limits.
func NewEngine(sender sender, audience audienceLister, logs logCollection, delay time.Duration, logger *logrus.Entry) *Engine {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Engine{
		sender:   sender,
		audience: audience,
		logs:     logs,
		delay:    delay,
		logger:   logger,
	}
}

// Run delivers content to every known user. Per-user failures (blocked bot,
// deleted account) are tallied and never abort the loop. The report is
// appended to the broadcast log before returning.
func (e *Engine) Run(ctx context.Context, content Content) (Report, error) {
	if e == nil || e.sender == nil || e.audience == nil {
		return Report{}, errors.New("broadcast engine is not initialized")
	}
	if ctx == nil {
		return Report{}, errors.New("context is required")
	}

	ids, err := e.audience.ListUserIDs(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("list broadcast audience: %w", err)
	}

	report := Report{Total: int64(len(ids))}

	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			report.Failed = report.Total - report.Success
			e.appendPartialLog(ctx, content, report)
			return report, err
		}

		if err := e.deliver(ctx, id, content); err != nil {
			report.Failed++
			e.logger.WithFields(logging.Fields{
				"event":   "broadcast_send_failed",
				"user_id": id,
			}).WithError(err).Debug("broadcast delivery failed")
		} else {
			report.Success++
		}

		if e.delay > 0 && i < len(ids)-1 {
			select {
			case <-ctx.Done():
				report.Failed = report.Total - report.Success
				e.appendPartialLog(ctx, content, report)
				return report, ctx.Err()
			case <-time.After(e.delay):
			}
		}
	}

	e.appendLog(ctx, content, report)

	e.logger.WithFields(logging.Fields{
		"event":   "broadcast_complete",
		"total":   report.Total,
		"success": report.Success,
		"failed":  report.Failed,
	}).Info("broadcast finished")

	return report, nil
}

func (e *Engine) deliver(ctx context.Context, chatID int64, content Content) error {
	switch content.Kind {
	case KindPhoto:
		_, err := e.sender.SendPhoto(ctx, &bot.SendPhotoParams{
			ChatID:  chatID,
			Photo:   &models.InputFileString{Data: content.FileID},
			Caption: content.Text,
		})
		return err
	case KindVideo:
		_, err := e.sender.SendVideo(ctx, &bot.SendVideoParams{
			ChatID:  chatID,
			Video:   &models.InputFileString{Data: content.FileID},
			Caption: content.Text,
		})
		return err
	case KindDocument:
		_, err := e.sender.SendDocument(ctx, &bot.SendDocumentParams{
			ChatID:   chatID,
			Document: &models.InputFileString{Data: content.FileID},
			Caption:  content.Text,
		})
		return err
	default:
		_, err := e.sender.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: chatID,
			Text:   content.Text,
		})
		return err
	}
}

// appendPartialLog records an interrupted run. The audit write gets a
// detached bounded context because the run's own context is already canceled.
func (e *Engine) appendPartialLog(ctx context.Context, content Content, report Report) {
	logCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	e.appendLog(logCtx, content, report)
}

func (e *Engine) appendLog(ctx context.Context, content Content, report Report) {
	if e.logs == nil {
		return
	}

	row := domain.BroadcastLog{
		Description: content.Describe(),
		Total:       report.Total,
		Success:     report.Success,
		Failed:      report.Failed,
		CreatedAt:   time.Now().UTC().Truncate(time.Millisecond),
	}

	if _, err := e.logs.InsertOne(ctx, row); err != nil {
		e.logger.WithField("event", "broadcast_log_failed").WithError(err).Warn("failed to append broadcast log")
	}
}
