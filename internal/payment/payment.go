// Package payment bridges the bot to the external payment gateway: it creates
// orders and credits points from verified webhook events, at most once per
// order.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"numinfo_bot/internal/domain"
	"numinfo_bot/internal/logging"
)

const gatewayTimeout = 15 * time.Second

type paymentCollection interface {
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	FindOneAndUpdate(ctx context.Context, filter interface{}, update interface{}, opts ...*options.FindOneAndUpdateOptions) *mongo.SingleResult
}

type crediter interface {
	Add(ctx context.Context, userID, delta int64) error
}

type doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Order is the outcome of a successful order creation.
type Order struct {
	OrderID string
	PayURL  string
	Amount  int64
	Points  int64
}

// CreditNotifier is told about each order credited from a webhook so the
// paying user can be messaged. It runs after the ledger credit.
type CreditNotifier func(ctx context.Context, payment domain.PendingPayment)

// Bridge owns the gateway client and the pending payments collection.
type Bridge struct {
	payments      paymentCollection
	ledger        crediter
	httpClient    doer
	apiURL        string
	apiKey        string
	webhookSecret string
	pointsPerUnit int64
	notify        CreditNotifier
	logger        *logrus.Entry
}

// NewBridge constructs a Bridge. pointsPerUnit is the amount→points
// conversion applied at order creation.
func NewBridge(payments paymentCollection, ledger crediter, apiURL, apiKey, webhookSecret string, pointsPerUnit int64, logger *logrus.Entry) *Bridge {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Bridge{
		payments:      payments,
		ledger:        ledger,
		httpClient:    &http.Client{Timeout: gatewayTimeout},
		apiURL:        apiURL,
		apiKey:        apiKey,
		webhookSecret: webhookSecret,
		pointsPerUnit: pointsPerUnit,
		logger:        logger,
	}
}

// SetCreditNotifier installs the hook fired after each webhook credit.
func (b *Bridge) SetCreditNotifier(notify CreditNotifier) {
	b.notify = notify
}

type createOrderRequest struct {
	OrderID string `json:"order_id"`
	Amount  int64  `json:"amount"`
	Key     string `json:"key"`
}

type createOrderResponse struct {
	OK     bool   `json:"ok"`
	PayURL string `json:"pay_url"`
	Error  string `json:"error,omitempty"`
}

// CreateOrder asks the gateway for a payment link and persists the pending
// row. Order ids are generated locally so the row exists before the gateway
// ever calls back.
func (b *Bridge) CreateOrder(ctx context.Context, userID, chatID, amount int64) (Order, error) {
	if b == nil || b.payments == nil {
		return Order{}, errors.New("payment bridge is not initialized")
	}
	if ctx == nil {
		return Order{}, errors.New("context is required")
	}
	if userID == 0 || chatID == 0 {
		return Order{}, errors.New("user and chat ids are required")
	}
	if amount <= 0 {
		return Order{}, fmt.Errorf("amount must be positive, got %d", amount)
	}

	orderID := uuid.NewString()

	payURL, err := b.requestPayURL(ctx, orderID, amount)
	if err != nil {
		return Order{}, err
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	row := domain.PendingPayment{
		OrderID:   orderID,
		UserID:    userID,
		ChatID:    chatID,
		Amount:    amount,
		Points:    amount * b.pointsPerUnit,
		Status:    domain.PaymentStatusPending,
		CreatedAt: now,
	}

	if _, err := b.payments.InsertOne(ctx, row); err != nil {
		return Order{}, fmt.Errorf("insert pending payment: %w", err)
	}

	b.logger.WithFields(logging.Fields{
		"event":    "payment_order_created",
		"order_id": orderID,
		"user_id":  userID,
		"amount":   amount,
	}).Info("created payment order")

	return Order{OrderID: orderID, PayURL: payURL, Amount: amount, Points: row.Points}, nil
}

// CheckOrder reads back a pending payment by order id for the manual
// refresh-status affordance.
func (b *Bridge) CheckOrder(ctx context.Context, orderID string) (domain.PendingPayment, error) {
	if b == nil || b.payments == nil {
		return domain.PendingPayment{}, errors.New("payment bridge is not initialized")
	}
	if ctx == nil {
		return domain.PendingPayment{}, errors.New("context is required")
	}
	if orderID == "" {
		return domain.PendingPayment{}, errors.New("order id is required")
	}

	result := b.payments.FindOne(ctx, bson.M{"order_id": orderID})
	if result == nil {
		return domain.PendingPayment{}, errors.New("find payment returned no result")
	}
	if err := result.Err(); err != nil {
		return domain.PendingPayment{}, fmt.Errorf("find payment: %w", err)
	}

	var row domain.PendingPayment
	if err := result.Decode(&row); err != nil {
		return domain.PendingPayment{}, fmt.Errorf("decode payment: %w", err)
	}

	return row, nil
}

func (b *Bridge) requestPayURL(ctx context.Context, orderID string, amount int64) (string, error) {
	body, err := json.Marshal(createOrderRequest{
		OrderID: orderID,
		Amount:  amount,
		Key:     b.apiKey,
	})
	if err != nil {
		return "", fmt.Errorf("encode order request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.apiURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build order request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("gateway order request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gateway order status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read gateway response: %w", err)
	}

	var parsed createOrderResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("decode gateway response: %w", err)
	}
	if !parsed.OK || parsed.PayURL == "" {
		return "", fmt.Errorf("gateway rejected order: %s", parsed.Error)
	}

	return parsed.PayURL, nil
}
