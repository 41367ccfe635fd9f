package domain

import "time"

// Pending payment statuses.
const (
	PaymentStatusPending  = "pending"
	PaymentStatusPaid     = "paid"
	PaymentStatusRejected = "rejected"
)

// PendingPayment tracks one gateway order. The order id is the idempotency
// key: crediting points happens at most once per order, on the first verified
// pending→paid transition.
type PendingPayment struct {
	OrderID   string    `bson:"order_id" json:"order_id"`
	UserID    int64     `bson:"user_id" json:"user_id"`
	ChatID    int64     `bson:"chat_id" json:"chat_id"`
	Amount    int64     `bson:"amount" json:"amount"`
	Points    int64     `bson:"points" json:"points"`
	Status    string    `bson:"status" json:"status"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	PaidAt    time.Time `bson:"paid_at,omitempty" json:"paid_at,omitempty"`
}
