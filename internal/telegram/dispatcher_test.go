package telegram

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"numinfo_bot/internal/broadcast"
	"numinfo_bot/internal/config"
	"numinfo_bot/internal/domain"
	"numinfo_bot/internal/gate"
	"numinfo_bot/internal/lookup"
	"numinfo_bot/internal/payment"
	"numinfo_bot/internal/referral"
)

// Fakes for every dispatcher collaborator. Each one records the calls it
// receives so tests can assert on side effects, not just replies.

type sentMessage struct {
	ChatID int64
	Text   string
	Markup any
}

type fakeAPI struct {
	sent    []sentMessage
	edits   []*bot.EditMessageTextParams
	acks    []*bot.AnswerCallbackQueryParams
	nextID  int
	sendErr error
}

func (f *fakeAPI) SendMessage(_ context.Context, params *bot.SendMessageParams) (*models.Message, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.nextID++
	f.sent = append(f.sent, sentMessage{
		ChatID: params.ChatID.(int64),
		Text:   params.Text,
		Markup: params.ReplyMarkup,
	})
	return &models.Message{ID: f.nextID}, nil
}

func (f *fakeAPI) EditMessageText(_ context.Context, params *bot.EditMessageTextParams) (*models.Message, error) {
	f.edits = append(f.edits, params)
	return &models.Message{ID: params.MessageID}, nil
}

func (f *fakeAPI) AnswerCallbackQuery(_ context.Context, params *bot.AnswerCallbackQueryParams) (bool, error) {
	f.acks = append(f.acks, params)
	return true, nil
}

func (f *fakeAPI) lastText(t *testing.T) string {
	t.Helper()
	if len(f.sent) == 0 {
		t.Fatalf("expected at least one sent message")
	}
	return f.sent[len(f.sent)-1].Text
}

func (f *fakeAPI) lastEditText(t *testing.T) string {
	t.Helper()
	if len(f.edits) == 0 {
		t.Fatalf("expected at least one message edit")
	}
	return f.edits[len(f.edits)-1].Text
}

type fakeRegistrar struct {
	tracked []int64
	err     error
}

func (f *fakeRegistrar) EnsureUser(_ context.Context, userID int64, _ domain.Profile) (bool, error) {
	f.tracked = append(f.tracked, userID)
	return false, f.err
}

type fakeGate struct {
	decision gate.Decision
	checks   int
}

func (f *fakeGate) Check(_ context.Context, _ int64) gate.Decision {
	f.checks++
	return f.decision
}

type fakeSessions struct {
	slots map[int64]*domain.Session
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{slots: make(map[int64]*domain.Session)}
}

func (f *fakeSessions) Set(_ context.Context, userID int64, action string, payload map[string]any) error {
	f.slots[userID] = &domain.Session{UserID: userID, Action: action, Payload: payload}
	return nil
}

func (f *fakeSessions) Get(_ context.Context, userID int64) (*domain.Session, error) {
	return f.slots[userID], nil
}

func (f *fakeSessions) Clear(_ context.Context, userID int64) error {
	delete(f.slots, userID)
	return nil
}

type initCall struct{ UserID, ReferredBy int64 }
type addCall struct{ UserID, Delta int64 }
type spendCall struct{ UserID, Cost int64 }

type fakeLedger struct {
	balances    map[int64]int64
	getErr      error
	addErr      error
	spendErr    error
	spendDenied bool
	inits       []initCall
	adds        []addCall
	spends      []spendCall
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{balances: make(map[int64]int64)}
}

func (f *fakeLedger) Get(_ context.Context, userID int64) (int64, error) {
	return f.balances[userID], f.getErr
}

func (f *fakeLedger) InitIfNew(_ context.Context, userID, referredBy int64) (bool, error) {
	f.inits = append(f.inits, initCall{UserID: userID, ReferredBy: referredBy})
	return true, nil
}

func (f *fakeLedger) Add(_ context.Context, userID, delta int64) error {
	if f.addErr != nil {
		return f.addErr
	}
	f.adds = append(f.adds, addCall{UserID: userID, Delta: delta})
	f.balances[userID] += delta
	return nil
}

func (f *fakeLedger) Spend(_ context.Context, userID, cost int64) (bool, error) {
	f.spends = append(f.spends, spendCall{UserID: userID, Cost: cost})
	if f.spendErr != nil {
		return false, f.spendErr
	}
	if f.spendDenied {
		return false, nil
	}
	f.balances[userID] -= cost
	return true, nil
}

type fakeReferrals struct {
	records       []initCall
	recordErr     error
	completions   []referral.Completion
	completedFor  []int64
	pendingCount  int64
	completeCount int64
	statsErr      error
}

func (f *fakeReferrals) Record(_ context.Context, referrerID, referredID int64) error {
	if f.recordErr != nil {
		return f.recordErr
	}
	f.records = append(f.records, initCall{UserID: referredID, ReferredBy: referrerID})
	return nil
}

func (f *fakeReferrals) CompleteIfPending(_ context.Context, referredID int64) ([]referral.Completion, error) {
	f.completedFor = append(f.completedFor, referredID)
	return f.completions, nil
}

func (f *fakeReferrals) Stats(_ context.Context, _ int64) (int64, int64, error) {
	return f.pendingCount, f.completeCount, f.statsErr
}

type adminToggle struct {
	UserID  int64
	IsAdmin bool
}

type fakeRoles struct {
	roles    map[int64]domain.Role
	toggles  []adminToggle
	setErr   error
	resolves int
}

func newFakeRoles() *fakeRoles {
	return &fakeRoles{roles: make(map[int64]domain.Role)}
}

func (f *fakeRoles) Resolve(_ context.Context, userID int64) domain.Role {
	f.resolves++
	if role, ok := f.roles[userID]; ok {
		return role
	}
	return domain.RoleUser
}

func (f *fakeRoles) SetAdmin(_ context.Context, userID int64, isAdmin bool) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.toggles = append(f.toggles, adminToggle{UserID: userID, IsAdmin: isAdmin})
	return nil
}

type fakeLookup struct {
	result  lookup.Result
	err     error
	numbers []string
}

func (f *fakeLookup) Lookup(_ context.Context, number string) (lookup.Result, error) {
	f.numbers = append(f.numbers, number)
	return f.result, f.err
}

type fakeBroadcast struct {
	report   broadcast.Report
	err      error
	contents []broadcast.Content
}

func (f *fakeBroadcast) Run(_ context.Context, content broadcast.Content) (broadcast.Report, error) {
	f.contents = append(f.contents, content)
	return f.report, f.err
}

type fakeStats struct {
	total, active      int64
	totalErr, activeErr error
}

func (f *fakeStats) CountUsers(_ context.Context) (int64, error) {
	return f.total, f.totalErr
}

func (f *fakeStats) CountActiveSince(_ context.Context, _ time.Time) (int64, error) {
	return f.active, f.activeErr
}

type fakePayments struct {
	order     payment.Order
	createErr error
	created   []int64
	row       domain.PendingPayment
	checkErr  error
	checked   []string
}

func (f *fakePayments) CreateOrder(_ context.Context, _, _, amount int64) (payment.Order, error) {
	if f.createErr != nil {
		return payment.Order{}, f.createErr
	}
	f.created = append(f.created, amount)
	return f.order, nil
}

func (f *fakePayments) CheckOrder(_ context.Context, orderID string) (domain.PendingPayment, error) {
	f.checked = append(f.checked, orderID)
	return f.row, f.checkErr
}

const (
	testUserID  int64 = 42
	testOwnerID int64 = 900
	testAdminID int64 = 901
)

type harness struct {
	api       *fakeAPI
	users     *fakeRegistrar
	gate      *fakeGate
	sessions  *fakeSessions
	ledger    *fakeLedger
	referrals *fakeReferrals
	roles     *fakeRoles
	lookup    *fakeLookup
	broadcast *fakeBroadcast
	stats     *fakeStats
	payments  *fakePayments
	d         *Dispatcher
}

func newHarness() *harness {
	h := &harness{
		api:       &fakeAPI{},
		users:     &fakeRegistrar{},
		gate:      &fakeGate{decision: gate.Decision{Joined: true}},
		sessions:  newFakeSessions(),
		ledger:    newFakeLedger(),
		referrals: &fakeReferrals{},
		roles:     newFakeRoles(),
		lookup:    &fakeLookup{result: lookup.Result{Found: true, Text: "Name: Ada Lovelace"}},
		broadcast: &fakeBroadcast{},
		stats:     &fakeStats{},
		payments:  &fakePayments{},
	}
	h.roles.roles[testOwnerID] = domain.RoleOwner
	h.roles.roles[testAdminID] = domain.RoleAdmin

	logger, _ := logtest.NewNullLogger()
	h.d = NewDispatcher(Deps{
		API: h.api,
		Cfg: config.Config{
			BotOwnerID:     testOwnerID,
			StartBonus:     5,
			LookupCost:     1,
			ReferralReward: 2,
			DepositAmounts: []int64{10, 20, 50},
		},
		Users:       h.users,
		Gate:        h.gate,
		Sessions:    h.sessions,
		Ledger:      h.ledger,
		Referrals:   h.referrals,
		Roles:       h.roles,
		Lookup:      h.lookup,
		Broadcast:   h.broadcast,
		Stats:       h.stats,
		Payments:    h.payments,
		BotUsername: "NumInfoBot",
		Logger:      logrus.NewEntry(logger),
	})
	return h
}

func privateMessage(userID int64, text string) *models.Message {
	return &models.Message{
		ID:   1,
		From: &models.User{ID: userID, FirstName: "Test", Username: "tester"},
		Chat: models.Chat{ID: userID, Type: "private"},
		Text: text,
	}
}

func (h *harness) send(userID int64, text string) {
	h.d.HandleUpdate(context.Background(), &models.Update{Message: privateMessage(userID, text)})
}

func TestNilAndEmptyUpdatesAreIgnored(t *testing.T) {
	h := newHarness()

	h.d.HandleUpdate(context.Background(), nil)
	h.d.HandleUpdate(context.Background(), &models.Update{})

	if len(h.api.sent) != 0 {
		t.Fatalf("expected no replies, got %d", len(h.api.sent))
	}
}

func TestGroupMessagesAreDropped(t *testing.T) {
	h := newHarness()

	msg := privateMessage(testUserID, "/balance")
	msg.Chat.Type = "group"
	msg.Chat.ID = -100123
	h.d.HandleUpdate(context.Background(), &models.Update{Message: msg})

	if len(h.api.sent) != 0 {
		t.Fatalf("expected group message to be dropped, got %d replies", len(h.api.sent))
	}
	if len(h.users.tracked) != 0 {
		t.Fatalf("expected no user tracking for group messages")
	}
}

func TestEveryPrivateMessageTracksTheUser(t *testing.T) {
	h := newHarness()

	h.send(testUserID, "/help")
	h.send(testUserID, "hello there")

	if len(h.users.tracked) != 2 || h.users.tracked[0] != testUserID {
		t.Fatalf("expected user %d tracked twice, got %v", testUserID, h.users.tracked)
	}
}

func TestMenuLabelRoutesLikeCommand(t *testing.T) {
	h := newHarness()
	h.ledger.balances[testUserID] = 7

	h.send(testUserID, labelBalance)

	want := fmt.Sprintf(textBalance, int64(7))
	if h.api.lastText(t) != want {
		t.Fatalf("expected balance reply %q, got %q", want, h.api.lastText(t))
	}
}

func TestUnknownTextShowsMenuHint(t *testing.T) {
	h := newHarness()

	h.send(testUserID, "what can you do?")

	if h.api.lastText(t) != textMenuHint {
		t.Fatalf("expected menu hint, got %q", h.api.lastText(t))
	}
}

func TestUnknownCommandShowsMenuHint(t *testing.T) {
	h := newHarness()

	h.send(testUserID, "/teleport")

	if h.api.lastText(t) != textMenuHint {
		t.Fatalf("expected menu hint, got %q", h.api.lastText(t))
	}
}

func TestGatedCommandSendsJoinPrompt(t *testing.T) {
	h := newHarness()
	h.gate.decision = gate.Decision{
		Joined:  false,
		Missing: []config.Channel{{ChatID: "@numinfo_news", Label: "News", JoinURL: "https://t.me/numinfo_news"}},
	}

	h.send(testUserID, "/balance")

	last := h.api.sent[len(h.api.sent)-1]
	if last.Text != textJoinPrompt {
		t.Fatalf("expected join prompt, got %q", last.Text)
	}
	if last.Markup == nil {
		t.Fatalf("expected join keyboard on the prompt")
	}
	if len(h.lookup.numbers) != 0 || len(h.ledger.spends) != 0 {
		t.Fatalf("expected no side effects behind the gate")
	}
}

func TestHelpBypassesGate(t *testing.T) {
	h := newHarness()
	h.gate.decision = gate.Decision{Joined: false}

	h.send(testUserID, "/help")

	want := fmt.Sprintf(textHelp, int64(1), int64(2))
	if h.api.lastText(t) != want {
		t.Fatalf("expected help text, got %q", h.api.lastText(t))
	}
}

func TestStartRecordsReferralBeforeGating(t *testing.T) {
	h := newHarness()
	h.gate.decision = gate.Decision{
		Joined:  false,
		Missing: []config.Channel{{ChatID: "@numinfo_news", Label: "News"}},
	}

	h.send(testUserID, "/start 999")

	if len(h.ledger.inits) != 1 || h.ledger.inits[0].ReferredBy != 999 {
		t.Fatalf("expected points init with referrer 999, got %v", h.ledger.inits)
	}
	if len(h.referrals.records) != 1 || h.referrals.records[0].ReferredBy != 999 {
		t.Fatalf("expected referral recorded for referrer 999, got %v", h.referrals.records)
	}
	if h.api.lastText(t) != textJoinPrompt {
		t.Fatalf("expected join prompt instead of welcome, got %q", h.api.lastText(t))
	}
}

func TestStartIgnoresSelfReferral(t *testing.T) {
	h := newHarness()

	h.send(testUserID, fmt.Sprintf("/start %d", testUserID))

	if len(h.referrals.records) != 0 {
		t.Fatalf("expected no referral for self-invite, got %v", h.referrals.records)
	}
	if h.ledger.inits[0].ReferredBy != 0 {
		t.Fatalf("expected zero referrer on init, got %v", h.ledger.inits)
	}
}

func TestStartWelcomesAndPaysReferrer(t *testing.T) {
	h := newHarness()
	h.referrals.completions = []referral.Completion{
		{ReferrerID: 999, ReferredID: testUserID, Reward: 2},
	}

	h.send(testUserID, "/start")

	if len(h.api.sent) != 2 {
		t.Fatalf("expected referrer notice plus welcome, got %d sends", len(h.api.sent))
	}
	notice := h.api.sent[0]
	if notice.ChatID != 999 || notice.Text != fmt.Sprintf(textReferralPaid, int64(2)) {
		t.Fatalf("unexpected referrer notice: %+v", notice)
	}
	welcome := h.api.sent[1]
	if welcome.ChatID != testUserID || welcome.Text != textWelcome {
		t.Fatalf("unexpected welcome: %+v", welcome)
	}
	if welcome.Markup == nil {
		t.Fatalf("expected main menu keyboard on welcome")
	}
}

func TestCommandEscapesActiveSession(t *testing.T) {
	h := newHarness()
	h.sessions.slots[testUserID] = &domain.Session{UserID: testUserID, Action: domain.ActionBroadcastWaitMsg}

	h.send(testUserID, "/start")

	if h.sessions.slots[testUserID] != nil {
		t.Fatalf("expected session cleared by fresh command")
	}
	if h.api.lastText(t) != textWelcome {
		t.Fatalf("expected command to run after escape, got %q", h.api.lastText(t))
	}
}

func TestCommandStripsBotNameSuffix(t *testing.T) {
	h := newHarness()
	h.ledger.balances[testUserID] = 3

	h.send(testUserID, "/num@NumInfoBot 9235895648")

	if len(h.lookup.numbers) != 1 || h.lookup.numbers[0] != "9235895648" {
		t.Fatalf("expected lookup for 9235895648, got %v", h.lookup.numbers)
	}
}

func TestSplitCommand(t *testing.T) {
	cases := []struct {
		in, command, arg string
	}{
		{"/num 9235895648", "/num", "9235895648"},
		{"/NUM 123", "/num", "123"},
		{"/start@NumInfoBot 999", "/start", "999"},
		{"/help", "/help", ""},
		{"/num   123  ", "/num", "123"},
	}

	for _, tc := range cases {
		command, arg := splitCommand(tc.in)
		if command != tc.command || arg != tc.arg {
			t.Fatalf("splitCommand(%q) = %q, %q; want %q, %q", tc.in, command, arg, tc.command, tc.arg)
		}
	}
}
