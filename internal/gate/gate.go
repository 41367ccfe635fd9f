// Package gate implements the channel-membership check that fronts every
// gated command.
package gate

import (
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"numinfo_bot/internal/config"
	"numinfo_bot/internal/logging"
)

// memberQuerier is the slice of the Telegram client the gate needs.
type memberQuerier interface {
	GetChatMember(ctx context.Context, params *bot.GetChatMemberParams) (*models.ChatMember, error)
}

// PassHook runs once per fully passed check, before Check returns. The gate
// is the trigger point for referral payouts, so the hook must stay idempotent.
type PassHook func(ctx context.Context, userID int64)

// Decision is the outcome of one membership check.
type Decision struct {
	Joined  bool
	Missing []config.Channel // channels the user still has to join
}

// Gate queries membership for every configured channel.
type Gate struct {
	querier  memberQuerier
	channels []config.Channel
	onPass   PassHook
	logger   *logrus.Entry
}

// New constructs a Gate. With no channels configured the gate passes
// trivially (feature disabled) but still fires the pass hook.
func New(querier memberQuerier, channels []config.Channel, logger *logrus.Entry) *Gate {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Gate{
		querier:  querier,
		channels: channels,
		logger:   logger,
	}
}

// SetPassHook installs the hook fired when a check fully passes.
func (g *Gate) SetPassHook(hook PassHook) {
	g.onPass = hook
}

// Check queries every configured channel. A failed or ambiguous query counts
// as "not joined" (fail-closed): the user gets a join prompt instead of
// silent access.
func (g *Gate) Check(ctx context.Context, userID int64) Decision {
	if g == nil {
		return Decision{Joined: true}
	}

	var missing []config.Channel
	for _, channel := range g.channels {
		if !g.isMember(ctx, userID, channel) {
			missing = append(missing, channel)
		}
	}

	if len(missing) > 0 {
		return Decision{Joined: false, Missing: missing}
	}

	if g.onPass != nil {
		g.onPass(ctx, userID)
	}

	return Decision{Joined: true}
}

func (g *Gate) isMember(ctx context.Context, userID int64, channel config.Channel) bool {
	if g.querier == nil {
		return false
	}

	member, err := g.querier.GetChatMember(ctx, &bot.GetChatMemberParams{
		ChatID: channel.ChatID,
		UserID: userID,
	})
	if err != nil || member == nil {
		g.logger.WithFields(logging.Fields{
			"event":   "membership_query_failed",
			"user_id": userID,
			"chat":    channel.ChatID,
		}).WithError(err).Warn("membership query failed, treating as not joined")
		return false
	}

	switch member.Type {
	case models.ChatMemberTypeOwner, models.ChatMemberTypeAdministrator, models.ChatMemberTypeMember:
		return true
	default:
		// left, kicked/banned, restricted
		return false
	}
}
