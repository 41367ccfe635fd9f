package telegram

import (
	"context"
	"strconv"
	"strings"

	"github.com/go-telegram/bot/models"

	"numinfo_bot/internal/broadcast"
	"numinfo_bot/internal/domain"
	"numinfo_bot/internal/logging"
)

// handleSessionInput feeds a non-command message to the active flow. Each
// flow either completes (clearing the slot), advances to a next action, or
// re-prompts leaving the slot intact so the user can retry.
func (d *Dispatcher) handleSessionInput(ctx context.Context, sess *domain.Session, msg *models.Message) {
	userID := msg.From.ID
	chatID := msg.Chat.ID
	text := strings.TrimSpace(msg.Text)

	switch sess.Action {
	case domain.ActionAwaitNumber:
		d.processNumber(ctx, userID, chatID, text, true)

	case domain.ActionBroadcastWaitMsg:
		d.runBroadcastFlow(ctx, userID, chatID, msg)

	case domain.ActionAddAdminWaitID:
		d.runAdminToggleFlow(ctx, userID, chatID, text, true)

	case domain.ActionRemoveAdminWaitID:
		d.runAdminToggleFlow(ctx, userID, chatID, text, false)

	case domain.ActionAwaitAddPointsUser:
		d.runAddPointsUserStep(ctx, userID, chatID, text)

	case domain.ActionAwaitAddPointsValue:
		d.runAddPointsValueStep(ctx, userID, chatID, text, sess.Payload)

	default:
		// Unknown action, likely from an older build. Drop it.
		d.Logger.WithFields(logging.Fields{
			"event":   "session_unknown_action",
			"user_id": userID,
			"action":  sess.Action,
		}).Warn("clearing session with unknown action")
		d.clearSession(ctx, userID)
		d.reply(ctx, chatID, textMenuHint)
	}
}

func (d *Dispatcher) runBroadcastFlow(ctx context.Context, userID, chatID int64, msg *models.Message) {
	if !d.Roles.Resolve(ctx, userID).IsElevated() {
		d.clearSession(ctx, userID)
		d.reply(ctx, chatID, textDenied)
		return
	}

	content, ok := broadcast.ContentFromMessage(msg)
	if !ok {
		// Unsupported kind: keep the slot so the admin can retry.
		d.reply(ctx, chatID, textBroadcastBad)
		return
	}

	d.clearSession(ctx, userID)
	d.reply(ctx, chatID, textBroadcastRun)

	report, err := d.Broadcast.Run(ctx, content)
	if err != nil {
		d.Logger.WithFields(logging.Fields{
			"event":   "broadcast_failed",
			"user_id": userID,
		}).WithError(err).Error("broadcast run failed")
	}

	d.replyf(ctx, chatID, textBroadcastDone, report.Success, report.Failed, report.Total)
}

func (d *Dispatcher) runAdminToggleFlow(ctx context.Context, userID, chatID int64, text string, grant bool) {
	if d.Roles.Resolve(ctx, userID) != domain.RoleOwner {
		d.clearSession(ctx, userID)
		d.reply(ctx, chatID, textDenied)
		return
	}

	targetID, err := strconv.ParseInt(text, 10, 64)
	if err != nil || targetID <= 0 {
		d.reply(ctx, chatID, textInvalidUserID)
		return
	}

	d.clearSession(ctx, userID)

	if err := d.Roles.SetAdmin(ctx, targetID, grant); err != nil {
		d.Logger.WithFields(logging.Fields{
			"event":     "admin_toggle_failed",
			"target_id": targetID,
		}).WithError(err).Warn("failed to toggle admin flag")
		d.reply(ctx, chatID, textAdminFailed)
		return
	}

	if grant {
		d.replyf(ctx, chatID, textAdminAdded, targetID)
	} else {
		d.replyf(ctx, chatID, textAdminRemoved, targetID)
	}
}

func (d *Dispatcher) runAddPointsUserStep(ctx context.Context, userID, chatID int64, text string) {
	if d.Roles.Resolve(ctx, userID) != domain.RoleOwner {
		d.clearSession(ctx, userID)
		d.reply(ctx, chatID, textDenied)
		return
	}

	targetID, err := strconv.ParseInt(text, 10, 64)
	if err != nil || targetID <= 0 {
		d.reply(ctx, chatID, textInvalidUserID)
		return
	}

	payload := map[string]any{"target_id": targetID}
	if d.setSession(ctx, chatID, userID, domain.ActionAwaitAddPointsValue, payload) {
		d.reply(ctx, chatID, textAskPoints)
	}
}

func (d *Dispatcher) runAddPointsValueStep(ctx context.Context, userID, chatID int64, text string, payload map[string]any) {
	if d.Roles.Resolve(ctx, userID) != domain.RoleOwner {
		d.clearSession(ctx, userID)
		d.reply(ctx, chatID, textDenied)
		return
	}

	delta, err := strconv.ParseInt(text, 10, 64)
	if err != nil || delta == 0 {
		d.reply(ctx, chatID, textInvalidPoints)
		return
	}

	targetID := payloadInt64(payload, "target_id")
	if targetID == 0 {
		d.clearSession(ctx, userID)
		d.reply(ctx, chatID, textTryLater)
		return
	}

	d.clearSession(ctx, userID)

	if err := d.Ledger.Add(ctx, targetID, delta); err != nil {
		d.Logger.WithFields(logging.Fields{
			"event":     "add_points_failed",
			"target_id": targetID,
		}).WithError(err).Warn("failed to adjust points")
		d.reply(ctx, chatID, textPointsFailed)
		return
	}

	d.replyf(ctx, chatID, textPointsAdded, targetID, delta)
}

// payloadInt64 reads an integer out of a session payload, covering the
// numeric types the BSON decoder may hand back.
func payloadInt64(payload map[string]any, key string) int64 {
	if payload == nil {
		return 0
	}

	switch v := payload[key].(type) {
	case int64:
		return v
	case int32:
		return int64(v)
	case int:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}
