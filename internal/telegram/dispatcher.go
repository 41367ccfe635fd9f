package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"numinfo_bot/internal/broadcast"
	"numinfo_bot/internal/config"
	"numinfo_bot/internal/domain"
	"numinfo_bot/internal/gate"
	"numinfo_bot/internal/logging"
	"numinfo_bot/internal/lookup"
	"numinfo_bot/internal/payment"
	"numinfo_bot/internal/referral"
)

// API is the slice of the bot client the dispatcher sends through.
type API interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	EditMessageText(ctx context.Context, params *bot.EditMessageTextParams) (*models.Message, error)
	AnswerCallbackQuery(ctx context.Context, params *bot.AnswerCallbackQueryParams) (bool, error)
}

type userRegistrar interface {
	EnsureUser(ctx context.Context, userID int64, profile domain.Profile) (bool, error)
}

type membershipGate interface {
	Check(ctx context.Context, userID int64) gate.Decision
}

type sessionStore interface {
	Set(ctx context.Context, userID int64, action string, payload map[string]any) error
	Get(ctx context.Context, userID int64) (*domain.Session, error)
	Clear(ctx context.Context, userID int64) error
}

type pointsLedger interface {
	Get(ctx context.Context, userID int64) (int64, error)
	InitIfNew(ctx context.Context, userID, referredBy int64) (bool, error)
	Add(ctx context.Context, userID, delta int64) error
	Spend(ctx context.Context, userID, cost int64) (bool, error)
}

type referralTracker interface {
	Record(ctx context.Context, referrerID, referredID int64) error
	CompleteIfPending(ctx context.Context, referredID int64) ([]referral.Completion, error)
	Stats(ctx context.Context, referrerID int64) (pending, completed int64, err error)
}

type roleResolver interface {
	Resolve(ctx context.Context, userID int64) domain.Role
	SetAdmin(ctx context.Context, userID int64, isAdmin bool) error
}

type numberLookup interface {
	Lookup(ctx context.Context, number string) (lookup.Result, error)
}

type broadcaster interface {
	Run(ctx context.Context, content broadcast.Content) (broadcast.Report, error)
}

type userStats interface {
	CountUsers(ctx context.Context) (int64, error)
	CountActiveSince(ctx context.Context, since time.Time) (int64, error)
}

type paymentBridge interface {
	CreateOrder(ctx context.Context, userID, chatID, amount int64) (payment.Order, error)
	CheckOrder(ctx context.Context, orderID string) (domain.PendingPayment, error)
}

// Deps bundles the dispatcher's collaborators.
type Deps struct {
	API         API
	Cfg         config.Config
	Users       userRegistrar
	Gate        membershipGate
	Sessions    sessionStore
	Ledger      pointsLedger
	Referrals   referralTracker
	Roles       roleResolver
	Lookup      numberLookup
	Broadcast   broadcaster
	Stats       userStats
	Payments    paymentBridge // nil when no gateway is configured
	BotUsername string
	Logger      *logrus.Entry
}

// Dispatcher routes every inbound update through membership gating, session
// interception, and role-gated command routing. It holds no per-user state in
// memory; everything is re-derived from storage per event.
type Dispatcher struct {
	Deps
}

// NewDispatcher constructs the Dispatcher.
func NewDispatcher(deps Deps) *Dispatcher {
	if deps.Logger == nil {
		deps.Logger = logging.Logger()
	}

	return &Dispatcher{Deps: deps}
}

// HandleUpdate is the single entry point for both transports.
func (d *Dispatcher) HandleUpdate(ctx context.Context, update *models.Update) {
	if update == nil {
		return
	}

	switch {
	case update.Message != nil:
		d.handleMessage(ctx, update.Message)
	case update.CallbackQuery != nil:
		d.handleCallback(ctx, update.CallbackQuery)
	}
}

func (d *Dispatcher) handleMessage(ctx context.Context, msg *models.Message) {
	if msg.From == nil {
		return
	}
	// Only private one-to-one conversations are served; group and channel
	// events are accepted and dropped.
	if msg.Chat.Type != "private" {
		return
	}

	userID := msg.From.ID
	chatID := msg.Chat.ID

	d.trackUser(ctx, msg.From)

	text := strings.TrimSpace(msg.Text)
	if mapped, ok := labelToCommand[text]; ok {
		text = mapped
	}
	isCommand := strings.HasPrefix(text, "/")

	if sess := d.pendingSession(ctx, userID); sess != nil {
		if isCommand {
			// A fresh command abandons the stuck flow.
			d.clearSession(ctx, userID)
		} else {
			d.handleSessionInput(ctx, sess, msg)
			return
		}
	}

	if !isCommand {
		if !d.requireMembership(ctx, userID, chatID) {
			return
		}
		d.reply(ctx, chatID, textMenuHint)
		return
	}

	command, arg := splitCommand(text)

	switch command {
	case "/start":
		d.handleStart(ctx, userID, chatID, arg)
		return
	case "/help":
		d.handleHelp(ctx, chatID)
		return
	}

	if !d.requireMembership(ctx, userID, chatID) {
		return
	}

	switch command {
	case "/num", "/numberinfo":
		d.handleNum(ctx, userID, chatID, arg)
	case "/balance":
		d.handleBalance(ctx, userID, chatID)
	case "/refer":
		d.handleRefer(ctx, userID, chatID)
	case "/deposit":
		d.handleDeposit(ctx, chatID)
	case "/stats":
		d.handleStatsCmd(ctx, userID, chatID)
	case "/broadcast":
		d.handleBroadcastCmd(ctx, userID, chatID)
	case "/addadmin":
		d.handleAdminToggleCmd(ctx, userID, chatID, domain.ActionAddAdminWaitID)
	case "/removeadmin":
		d.handleAdminToggleCmd(ctx, userID, chatID, domain.ActionRemoveAdminWaitID)
	case "/addpoints":
		d.handleAddPointsCmd(ctx, userID, chatID)
	default:
		d.reply(ctx, chatID, textMenuHint)
	}
}

// trackUser upserts the user row before any other logic runs.
func (d *Dispatcher) trackUser(ctx context.Context, from *models.User) {
	if d.Users == nil {
		return
	}

	profile := domain.Profile{
		FirstName:    from.FirstName,
		LastName:     from.LastName,
		Username:     from.Username,
		LanguageCode: from.LanguageCode,
	}
	if _, err := d.Users.EnsureUser(ctx, from.ID, profile); err != nil {
		d.Logger.WithFields(logging.Fields{
			"event":   "user_track_failed",
			"user_id": from.ID,
		}).WithError(err).Warn("failed to upsert user")
	}
}

// pendingSession reads the session slot; storage failures read as no session
// so the bot keeps routing.
func (d *Dispatcher) pendingSession(ctx context.Context, userID int64) *domain.Session {
	if d.Sessions == nil {
		return nil
	}

	sess, err := d.Sessions.Get(ctx, userID)
	if err != nil {
		d.Logger.WithFields(logging.Fields{
			"event":   "session_read_failed",
			"user_id": userID,
		}).WithError(err).Warn("failed to read session")
		return nil
	}

	return sess
}

func (d *Dispatcher) clearSession(ctx context.Context, userID int64) {
	if d.Sessions == nil {
		return
	}
	if err := d.Sessions.Clear(ctx, userID); err != nil {
		d.Logger.WithFields(logging.Fields{
			"event":   "session_clear_failed",
			"user_id": userID,
		}).WithError(err).Warn("failed to clear session")
	}
}

func (d *Dispatcher) setSession(ctx context.Context, chatID, userID int64, action string, payload map[string]any) bool {
	if d.Sessions == nil {
		d.reply(ctx, chatID, textTryLater)
		return false
	}
	if err := d.Sessions.Set(ctx, userID, action, payload); err != nil {
		d.Logger.WithFields(logging.Fields{
			"event":   "session_set_failed",
			"user_id": userID,
			"action":  action,
		}).WithError(err).Warn("failed to set session")
		d.reply(ctx, chatID, textTryLater)
		return false
	}
	return true
}

// requireMembership runs the gate and sends the join prompt on failure. The
// gate's pass hook completes pending referrals.
func (d *Dispatcher) requireMembership(ctx context.Context, userID, chatID int64) bool {
	if d.Gate == nil {
		return true
	}

	decision := d.Gate.Check(ctx, userID)
	if decision.Joined {
		return true
	}

	d.sendJoinPrompt(ctx, chatID, decision.Missing)
	return false
}

func (d *Dispatcher) sendJoinPrompt(ctx context.Context, chatID int64, missing []config.Channel) {
	_, err := d.API.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:      chatID,
		Text:        textJoinPrompt,
		ReplyMarkup: joinKeyboard(missing),
	})
	if err != nil {
		d.logSendError(chatID, err)
	}
}

// CompleteReferrals finishes pending referrals for the user and notifies each
// referrer. Safe to call redundantly; the tracker only pays pending rows.
// Wired as the membership gate's pass hook and called from /start.
func (d *Dispatcher) CompleteReferrals(ctx context.Context, userID int64) {
	if d.Referrals == nil {
		return
	}

	completions, err := d.Referrals.CompleteIfPending(ctx, userID)
	if err != nil {
		d.Logger.WithFields(logging.Fields{
			"event":   "referral_complete_failed",
			"user_id": userID,
		}).WithError(err).Warn("failed to complete referrals")
	}

	for _, done := range completions {
		d.replyf(ctx, done.ReferrerID, textReferralPaid, done.Reward)
	}
}

func (d *Dispatcher) reply(ctx context.Context, chatID int64, text string) {
	_, err := d.API.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	})
	if err != nil {
		d.logSendError(chatID, err)
	}
}

func (d *Dispatcher) replyf(ctx context.Context, chatID int64, format string, args ...any) {
	d.reply(ctx, chatID, fmt.Sprintf(format, args...))
}

func (d *Dispatcher) logSendError(chatID int64, err error) {
	d.Logger.WithFields(logging.Fields{
		"event":   "send_failed",
		"chat_id": chatID,
	}).WithError(err).Warn("failed to send reply")
}

// splitCommand separates the command word from its argument and strips the
// @botname suffix Telegram appends in some clients.
func splitCommand(text string) (command, arg string) {
	parts := strings.SplitN(text, " ", 2)
	command = strings.ToLower(parts[0])
	if at := strings.Index(command, "@"); at > 0 {
		command = command[:at]
	}
	if len(parts) == 2 {
		arg = strings.TrimSpace(parts[1])
	}
	return command, arg
}
