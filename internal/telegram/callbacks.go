package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"numinfo_bot/internal/domain"
	"numinfo_bot/internal/logging"
)

// handleCallback routes inline-button presses. Every callback is answered so
// the client-side loading spinner always clears.
func (d *Dispatcher) handleCallback(ctx context.Context, cb *models.CallbackQuery) {
	userID := cb.From.ID
	chatID := callbackChatID(cb)
	data := strings.TrimSpace(cb.Data)

	d.trackUser(ctx, &cb.From)

	switch {
	case data == callbackTryAgain:
		d.ack(ctx, cb.ID, "Checking membership…")
		d.handleTryAgain(ctx, userID, chatID)

	case data == callbackRefreshBalance:
		d.ack(ctx, cb.ID, "")
		if chatID != 0 {
			d.handleBalance(ctx, userID, chatID)
		}

	case data == callbackMyReferrals:
		d.ack(ctx, cb.ID, "")
		d.handleMyReferrals(ctx, userID, chatID)

	case strings.HasPrefix(data, callbackDepositPrefix):
		d.ack(ctx, cb.ID, "")
		d.handleDepositChoice(ctx, userID, chatID, strings.TrimPrefix(data, callbackDepositPrefix))

	case strings.HasPrefix(data, callbackCheckPayPrefix):
		d.ack(ctx, cb.ID, "")
		d.handleCheckPayment(ctx, chatID, strings.TrimPrefix(data, callbackCheckPayPrefix))

	default:
		d.ack(ctx, cb.ID, "OK")
	}
}

func (d *Dispatcher) handleTryAgain(ctx context.Context, userID, chatID int64) {
	if chatID == 0 {
		return
	}

	decision := d.Gate.Check(ctx, userID)
	if decision.Joined {
		d.reply(ctx, chatID, textJoinedNow)
		return
	}

	_, err := d.API.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:      chatID,
		Text:        textStillMissing,
		ReplyMarkup: joinKeyboard(decision.Missing),
	})
	if err != nil {
		d.logSendError(chatID, err)
	}
}

func (d *Dispatcher) handleMyReferrals(ctx context.Context, userID, chatID int64) {
	if chatID == 0 {
		return
	}

	pending, completed, err := d.Referrals.Stats(ctx, userID)
	if err != nil {
		d.Logger.WithFields(logging.Fields{
			"event":   "referral_stats_failed",
			"user_id": userID,
		}).WithError(err).Warn("failed to load referral stats")
		d.reply(ctx, chatID, textTryLater)
		return
	}

	d.replyf(ctx, chatID, textReferStats, completed, pending)
}

func (d *Dispatcher) handleDepositChoice(ctx context.Context, userID, chatID int64, rawAmount string) {
	if chatID == 0 {
		return
	}
	if d.Payments == nil {
		d.reply(ctx, chatID, textDepositOff)
		return
	}

	amount, err := strconv.ParseInt(rawAmount, 10, 64)
	if err != nil || !d.allowedAmount(amount) {
		d.reply(ctx, chatID, textDepositError)
		return
	}

	order, err := d.Payments.CreateOrder(ctx, userID, chatID, amount)
	if err != nil {
		d.Logger.WithFields(logging.Fields{
			"event":   "order_create_failed",
			"user_id": userID,
			"amount":  amount,
		}).WithError(err).Warn("failed to create payment order")
		d.reply(ctx, chatID, textDepositError)
		return
	}

	_, sendErr := d.API.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:      chatID,
		Text:        fmt.Sprintf(textDepositLink, order.PayURL, order.Points),
		ReplyMarkup: checkPaymentKeyboard(order.OrderID),
	})
	if sendErr != nil {
		d.logSendError(chatID, sendErr)
	}
}

func (d *Dispatcher) handleCheckPayment(ctx context.Context, chatID int64, orderID string) {
	if chatID == 0 || d.Payments == nil {
		return
	}

	row, err := d.Payments.CheckOrder(ctx, orderID)
	if err != nil {
		d.reply(ctx, chatID, textPayUnknown)
		return
	}

	switch row.Status {
	case domain.PaymentStatusPaid:
		d.replyf(ctx, chatID, textPayDone, row.Points)
	case domain.PaymentStatusRejected:
		d.reply(ctx, chatID, textPayRejected)
	default:
		d.reply(ctx, chatID, textPayPending)
	}
}

func (d *Dispatcher) allowedAmount(amount int64) bool {
	for _, allowed := range d.Cfg.DepositAmounts {
		if amount == allowed {
			return true
		}
	}
	return false
}

func (d *Dispatcher) ack(ctx context.Context, callbackID, text string) {
	_, err := d.API.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: callbackID,
		Text:            text,
	})
	if err != nil {
		d.Logger.WithField("event", "callback_ack_failed").WithError(err).Warn("failed to answer callback query")
	}
}

func callbackChatID(cb *models.CallbackQuery) int64 {
	switch cb.Message.Type {
	case models.MaybeInaccessibleMessageTypeMessage:
		if cb.Message.Message == nil {
			return 0
		}
		return cb.Message.Message.Chat.ID
	case models.MaybeInaccessibleMessageTypeInaccessibleMessage:
		if cb.Message.InaccessibleMessage == nil {
			return 0
		}
		return cb.Message.InaccessibleMessage.Chat.ID
	default:
		return 0
	}
}
