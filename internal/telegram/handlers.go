package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"numinfo_bot/internal/domain"
	"numinfo_bot/internal/logging"
)

// handleStart records the referral (if any) and seeds the points account
// before gating, so a not-yet-joined invitee still ends up with a pending
// referral that pays out once they clear the gate.
func (d *Dispatcher) handleStart(ctx context.Context, userID, chatID int64, arg string) {
	referrerID := parseReferrer(arg, userID)

	if d.Ledger != nil {
		if _, err := d.Ledger.InitIfNew(ctx, userID, referrerID); err != nil {
			d.Logger.WithFields(logging.Fields{
				"event":   "points_init_failed",
				"user_id": userID,
			}).WithError(err).Warn("failed to init points account")
		}
	}

	if referrerID != 0 && d.Referrals != nil {
		if err := d.Referrals.Record(ctx, referrerID, userID); err != nil {
			d.Logger.WithFields(logging.Fields{
				"event":       "referral_record_failed",
				"referrer_id": referrerID,
				"referred_id": userID,
			}).WithError(err).Warn("failed to record referral")
		}
	}

	if !d.requireMembership(ctx, userID, chatID) {
		return
	}

	// The gate's pass hook already completed referrals, but /start is also a
	// completion trigger on its own when no gate is configured.
	d.CompleteReferrals(ctx, userID)

	_, err := d.API.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:      chatID,
		Text:        textWelcome,
		ReplyMarkup: mainMenuKeyboard(),
	})
	if err != nil {
		d.logSendError(chatID, err)
	}
}

func (d *Dispatcher) handleHelp(ctx context.Context, chatID int64) {
	d.replyf(ctx, chatID, textHelp, d.Cfg.LookupCost, d.Cfg.ReferralReward)
}

// handleNum starts the lookup flow. Without an argument it opens the
// await-number session; with one it resolves immediately.
func (d *Dispatcher) handleNum(ctx context.Context, userID, chatID int64, arg string) {
	if arg == "" {
		if d.setSession(ctx, chatID, userID, domain.ActionAwaitNumber, nil) {
			d.reply(ctx, chatID, textNumUsage)
		}
		return
	}

	d.processNumber(ctx, userID, chatID, arg, false)
}

// processNumber validates, meters, and resolves one lookup. inSession keeps
// the await-number slot open on invalid input so the user can retry.
func (d *Dispatcher) processNumber(ctx context.Context, userID, chatID int64, raw string, inSession bool) {
	number := digitsOnly(raw)
	if len(number) != 10 {
		d.reply(ctx, chatID, textNumInvalid)
		return
	}

	if inSession {
		d.clearSession(ctx, userID)
	}

	balance, err := d.Ledger.Get(ctx, userID)
	if err != nil {
		d.Logger.WithFields(logging.Fields{
			"event":   "balance_read_failed",
			"user_id": userID,
		}).WithError(err).Warn("failed to read balance")
		d.reply(ctx, chatID, textTryLater)
		return
	}
	if balance < d.Cfg.LookupCost {
		d.reply(ctx, chatID, textNoPoints)
		return
	}

	status, err := d.API.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   textNumSearching,
	})
	if err != nil {
		d.logSendError(chatID, err)
	}

	result, err := d.Lookup.Lookup(ctx, number)
	if err != nil {
		d.Logger.WithFields(logging.Fields{
			"event":   "lookup_failed",
			"user_id": userID,
		}).WithError(err).Warn("lookup failed")
		d.resolveStatus(ctx, chatID, status, textLookupFailed)
		return
	}

	if !result.Found {
		d.resolveStatus(ctx, chatID, status, textNumNoData)
		return
	}

	// Deduct only on a successful non-empty result. Spend is conditional on
	// the balance, so a concurrent lookup racing this one cannot overdraw.
	spent, err := d.Ledger.Spend(ctx, userID, d.Cfg.LookupCost)
	if err != nil {
		d.Logger.WithFields(logging.Fields{
			"event":   "points_spend_failed",
			"user_id": userID,
		}).WithError(err).Warn("failed to deduct lookup cost")
		d.resolveStatus(ctx, chatID, status, textTryLater)
		return
	}
	if !spent {
		// A concurrent lookup drained the balance between the read and the
		// deduction. The result is only delivered once it has been paid for.
		d.resolveStatus(ctx, chatID, status, textNoPoints)
		return
	}

	d.resolveStatus(ctx, chatID, status, result.Text)
}

// resolveStatus edits the transient "searching" message into the final text,
// falling back to a fresh message when the edit is impossible.
func (d *Dispatcher) resolveStatus(ctx context.Context, chatID int64, status *models.Message, text string) {
	if status != nil && status.ID != 0 {
		_, err := d.API.EditMessageText(ctx, &bot.EditMessageTextParams{
			ChatID:    chatID,
			MessageID: status.ID,
			Text:      text,
		})
		if err == nil {
			return
		}
		d.logSendError(chatID, err)
	}

	d.reply(ctx, chatID, text)
}

func (d *Dispatcher) handleBalance(ctx context.Context, userID, chatID int64) {
	balance, err := d.Ledger.Get(ctx, userID)
	if err != nil {
		d.Logger.WithFields(logging.Fields{
			"event":   "balance_read_failed",
			"user_id": userID,
		}).WithError(err).Warn("failed to read balance")
	}

	_, sendErr := d.API.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:      chatID,
		Text:        fmt.Sprintf(textBalance, balance),
		ReplyMarkup: balanceKeyboard(),
	})
	if sendErr != nil {
		d.logSendError(chatID, sendErr)
	}
}

func (d *Dispatcher) handleRefer(ctx context.Context, userID, chatID int64) {
	link := fmt.Sprintf("https://t.me/%s?start=%d", d.BotUsername, userID)

	_, err := d.API.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:      chatID,
		Text:        fmt.Sprintf(textReferIntro, d.Cfg.ReferralReward, link),
		ReplyMarkup: referKeyboard(),
	})
	if err != nil {
		d.logSendError(chatID, err)
	}
}

func (d *Dispatcher) handleDeposit(ctx context.Context, chatID int64) {
	if d.Payments == nil {
		d.reply(ctx, chatID, textDepositOff)
		return
	}

	_, err := d.API.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:      chatID,
		Text:        textDepositPick,
		ReplyMarkup: depositKeyboard(d.Cfg.DepositAmounts),
	})
	if err != nil {
		d.logSendError(chatID, err)
	}
}

func (d *Dispatcher) handleStatsCmd(ctx context.Context, userID, chatID int64) {
	if !d.Roles.Resolve(ctx, userID).IsElevated() {
		d.reply(ctx, chatID, textDenied)
		return
	}

	total, err := d.Stats.CountUsers(ctx)
	if err != nil {
		d.Logger.WithField("event", "stats_failed").WithError(err).Warn("failed to count users")
		d.reply(ctx, chatID, textStatsFailed)
		return
	}

	today := time.Now().UTC().Truncate(24 * time.Hour)
	active, err := d.Stats.CountActiveSince(ctx, today)
	if err != nil {
		d.Logger.WithField("event", "stats_failed").WithError(err).Warn("failed to count active users")
		d.reply(ctx, chatID, textStatsFailed)
		return
	}

	d.replyf(ctx, chatID, textStats, total, active)
}

func (d *Dispatcher) handleBroadcastCmd(ctx context.Context, userID, chatID int64) {
	if !d.Roles.Resolve(ctx, userID).IsElevated() {
		d.reply(ctx, chatID, textDenied)
		return
	}

	if d.setSession(ctx, chatID, userID, domain.ActionBroadcastWaitMsg, nil) {
		d.reply(ctx, chatID, textBroadcastAsk)
	}
}

func (d *Dispatcher) handleAdminToggleCmd(ctx context.Context, userID, chatID int64, action string) {
	if d.Roles.Resolve(ctx, userID) != domain.RoleOwner {
		d.reply(ctx, chatID, textDenied)
		return
	}

	if d.setSession(ctx, chatID, userID, action, nil) {
		d.reply(ctx, chatID, textAskUserID)
	}
}

func (d *Dispatcher) handleAddPointsCmd(ctx context.Context, userID, chatID int64) {
	if d.Roles.Resolve(ctx, userID) != domain.RoleOwner {
		d.reply(ctx, chatID, textDenied)
		return
	}

	if d.setSession(ctx, chatID, userID, domain.ActionAwaitAddPointsUser, nil) {
		d.reply(ctx, chatID, textAskUserID)
	}
}

// parseReferrer extracts a referral user id from the /start argument.
// Self-referrals and non-numeric payloads resolve to zero.
func parseReferrer(arg string, userID int64) int64 {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return 0
	}

	referrerID, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || referrerID <= 0 || referrerID == userID {
		return 0
	}

	return referrerID
}

func digitsOnly(raw string) string {
	var sb strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
