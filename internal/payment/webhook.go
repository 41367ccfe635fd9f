package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"numinfo_bot/internal/domain"
	"numinfo_bot/internal/logging"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw webhook body.
const SignatureHeader = "X-Signature"

const maxWebhookBody = 1 << 16

type webhookEvent struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
	Amount  int64  `json:"amount"`
}

// WebhookHandler returns the HTTP handler for gateway status callbacks.
// Signature mismatches are a security boundary: they are logged and rejected
// with no state change. Crediting is keyed on the pending→paid transition,
// so redelivered events credit at most once.
func (b *Bridge) WebhookHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			http.Error(w, "read error", http.StatusBadRequest)
			return
		}

		if !b.verifySignature(body, r.Header.Get(SignatureHeader)) {
			b.logger.WithField("event", "payment_webhook_bad_signature").Warn("rejected webhook with invalid signature")
			http.Error(w, "invalid signature", http.StatusForbidden)
			return
		}

		var event webhookEvent
		if err := json.Unmarshal(body, &event); err != nil {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}
		if event.OrderID == "" {
			http.Error(w, "missing order_id", http.StatusBadRequest)
			return
		}

		ctx := r.Context()

		switch event.Status {
		case domain.PaymentStatusPaid:
			if err := b.settle(ctx, event.OrderID); err != nil {
				b.logger.WithFields(logging.Fields{
					"event":    "payment_settle_failed",
					"order_id": event.OrderID,
				}).WithError(err).Error("failed to settle payment")
				http.Error(w, "settle error", http.StatusInternalServerError)
				return
			}
		case domain.PaymentStatusRejected:
			b.reject(ctx, event.OrderID)
		default:
			b.logger.WithFields(logging.Fields{
				"event":    "payment_webhook_ignored",
				"order_id": event.OrderID,
				"status":   event.Status,
			}).Info("ignored webhook with unhandled status")
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}
}

func (b *Bridge) verifySignature(body []byte, signature string) bool {
	if b.webhookSecret == "" || signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(b.webhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}

// settle claims the pending row and credits the points. The status filter in
// the update makes the claim exclusive: a second delivery for the same order
// finds nothing pending and exits without crediting.
func (b *Bridge) settle(ctx context.Context, orderID string) error {
	now := time.Now().UTC().Truncate(time.Millisecond)

	result := b.payments.FindOneAndUpdate(ctx,
		bson.M{"order_id": orderID, "status": domain.PaymentStatusPending},
		bson.M{"$set": bson.M{
			"status":  domain.PaymentStatusPaid,
			"paid_at": now,
		}},
	)
	if result == nil {
		return errors.New("claim payment returned no result")
	}
	if err := result.Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			b.logger.WithFields(logging.Fields{
				"event":    "payment_already_settled",
				"order_id": orderID,
			}).Info("webhook redelivery for settled order")
			return nil
		}
		return err
	}

	var row domain.PendingPayment
	if err := result.Decode(&row); err != nil {
		return err
	}

	if b.ledger != nil && row.Points > 0 {
		if err := b.ledger.Add(ctx, row.UserID, row.Points); err != nil {
			return err
		}
	}

	b.logger.WithFields(logging.Fields{
		"event":    "payment_credited",
		"order_id": orderID,
		"user_id":  row.UserID,
		"points":   row.Points,
	}).Info("credited points for paid order")

	if b.notify != nil {
		row.Status = domain.PaymentStatusPaid
		row.PaidAt = now
		b.notify(ctx, row)
	}

	return nil
}

func (b *Bridge) reject(ctx context.Context, orderID string) {
	result := b.payments.FindOneAndUpdate(ctx,
		bson.M{"order_id": orderID, "status": domain.PaymentStatusPending},
		bson.M{"$set": bson.M{"status": domain.PaymentStatusRejected}},
	)
	if result == nil {
		return
	}
	if err := result.Err(); err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
		b.logger.WithFields(logging.Fields{
			"event":    "payment_reject_failed",
			"order_id": orderID,
		}).WithError(err).Warn("failed to mark payment rejected")
		return
	}

	b.logger.WithFields(logging.Fields{
		"event":    "payment_rejected",
		"order_id": orderID,
	}).Info("marked payment rejected")
}
