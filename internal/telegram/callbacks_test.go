package telegram

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/go-telegram/bot/models"

	"numinfo_bot/internal/config"
	"numinfo_bot/internal/domain"
	"numinfo_bot/internal/gate"
	"numinfo_bot/internal/payment"
)

func callbackUpdate(userID int64, data string) *models.Update {
	return &models.Update{
		CallbackQuery: &models.CallbackQuery{
			ID:   "cb-1",
			From: models.User{ID: userID, FirstName: "Test", Username: "tester"},
			Data: data,
			Message: models.MaybeInaccessibleMessage{
				Type: models.MaybeInaccessibleMessageTypeMessage,
				Message: &models.Message{
					ID:   10,
					Chat: models.Chat{ID: userID, Type: "private"},
				},
			},
		},
	}
}

func (h *harness) press(userID int64, data string) {
	h.d.HandleUpdate(context.Background(), callbackUpdate(userID, data))
}

func TestUnknownCallbackIsStillAcked(t *testing.T) {
	h := newHarness()

	h.press(testUserID, "garbage_button")

	if len(h.api.acks) != 1 || h.api.acks[0].Text != "OK" {
		t.Fatalf("expected a generic ack, got %v", h.api.acks)
	}
	if len(h.api.sent) != 0 {
		t.Fatalf("expected no reply for unknown callback")
	}
}

func TestCallbackTracksTheUser(t *testing.T) {
	h := newHarness()

	h.press(testUserID, callbackRefreshBalance)

	if len(h.users.tracked) != 1 || h.users.tracked[0] != testUserID {
		t.Fatalf("expected callback user tracked, got %v", h.users.tracked)
	}
}

func TestTryAgainCallbackWhenJoined(t *testing.T) {
	h := newHarness()
	h.gate.decision = gate.Decision{Joined: true}

	h.press(testUserID, callbackTryAgain)

	if len(h.api.acks) != 1 {
		t.Fatalf("expected callback acked")
	}
	if h.api.lastText(t) != textJoinedNow {
		t.Fatalf("expected joined confirmation, got %q", h.api.lastText(t))
	}
}

func TestTryAgainCallbackWhenStillMissing(t *testing.T) {
	h := newHarness()
	h.gate.decision = gate.Decision{
		Joined:  false,
		Missing: []config.Channel{{ChatID: "@numinfo_news", Label: "News", JoinURL: "https://t.me/numinfo_news"}},
	}

	h.press(testUserID, callbackTryAgain)

	last := h.api.sent[len(h.api.sent)-1]
	if last.Text != textStillMissing {
		t.Fatalf("expected still-missing reply, got %q", last.Text)
	}
	if last.Markup == nil {
		t.Fatalf("expected join keyboard on the reply")
	}
}

func TestRefreshBalanceCallback(t *testing.T) {
	h := newHarness()
	h.ledger.balances[testUserID] = 9

	h.press(testUserID, callbackRefreshBalance)

	if h.api.lastText(t) != fmt.Sprintf(textBalance, int64(9)) {
		t.Fatalf("unexpected balance reply: %q", h.api.lastText(t))
	}
}

func TestMyReferralsCallback(t *testing.T) {
	h := newHarness()
	h.referrals.pendingCount = 1
	h.referrals.completeCount = 4

	h.press(testUserID, callbackMyReferrals)

	want := fmt.Sprintf(textReferStats, int64(4), int64(1))
	if h.api.lastText(t) != want {
		t.Fatalf("expected referral stats %q, got %q", want, h.api.lastText(t))
	}
}

func TestDepositCallbackRejectsUnlistedAmount(t *testing.T) {
	h := newHarness()

	h.press(testUserID, "deposit_13")

	if h.api.lastText(t) != textDepositError {
		t.Fatalf("expected rejection for unlisted amount, got %q", h.api.lastText(t))
	}
	if len(h.payments.created) != 0 {
		t.Fatalf("expected no order for unlisted amount")
	}
}

func TestDepositCallbackCreatesOrder(t *testing.T) {
	h := newHarness()
	h.payments.order = payment.Order{
		OrderID: "ord-1",
		PayURL:  "https://pay.example/ord-1",
		Amount:  10,
		Points:  20,
	}

	h.press(testUserID, "deposit_10")

	if len(h.payments.created) != 1 || h.payments.created[0] != 10 {
		t.Fatalf("expected order for amount 10, got %v", h.payments.created)
	}
	last := h.api.sent[len(h.api.sent)-1]
	want := fmt.Sprintf(textDepositLink, "https://pay.example/ord-1", int64(20))
	if last.Text != want {
		t.Fatalf("expected pay link %q, got %q", want, last.Text)
	}
	if last.Markup == nil {
		t.Fatalf("expected check-payment keyboard")
	}
}

func TestDepositCallbackReportsGatewayTrouble(t *testing.T) {
	h := newHarness()
	h.payments.createErr = errors.New("gateway unreachable")

	h.press(testUserID, "deposit_10")

	if h.api.lastText(t) != textDepositError {
		t.Fatalf("expected error reply, got %q", h.api.lastText(t))
	}
}

func TestCheckPaymentCallbackStatuses(t *testing.T) {
	cases := []struct {
		name   string
		status string
		want   string
	}{
		{"paid", domain.PaymentStatusPaid, fmt.Sprintf(textPayDone, int64(20))},
		{"rejected", domain.PaymentStatusRejected, textPayRejected},
		{"pending", domain.PaymentStatusPending, textPayPending},
	}

	for _, tc := range cases {
		h := newHarness()
		h.payments.row = domain.PendingPayment{OrderID: "ord-1", Points: 20, Status: tc.status}

		h.press(testUserID, "check_pay_ord-1")

		if len(h.payments.checked) != 1 || h.payments.checked[0] != "ord-1" {
			t.Fatalf("%s: expected order looked up, got %v", tc.name, h.payments.checked)
		}
		if h.api.lastText(t) != tc.want {
			t.Fatalf("%s: expected %q, got %q", tc.name, tc.want, h.api.lastText(t))
		}
	}
}

func TestCheckPaymentCallbackUnknownOrder(t *testing.T) {
	h := newHarness()
	h.payments.checkErr = errors.New("no such order")

	h.press(testUserID, "check_pay_ghost")

	if h.api.lastText(t) != textPayUnknown {
		t.Fatalf("expected unknown-order reply, got %q", h.api.lastText(t))
	}
}

func TestInaccessibleCallbackMessageIsAckedOnly(t *testing.T) {
	h := newHarness()

	update := callbackUpdate(testUserID, callbackMyReferrals)
	update.CallbackQuery.Message = models.MaybeInaccessibleMessage{
		Type: models.MaybeInaccessibleMessageTypeInaccessibleMessage,
		InaccessibleMessage: &models.InaccessibleMessage{
			Chat: models.Chat{ID: 0},
		},
	}
	h.d.HandleUpdate(context.Background(), update)

	if len(h.api.acks) != 1 {
		t.Fatalf("expected callback acked")
	}
	if len(h.api.sent) != 0 {
		t.Fatalf("expected no reply without a reachable chat")
	}
}
