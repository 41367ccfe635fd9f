package domain

import "time"

// Referral statuses.
const (
	ReferralStatusPending   = "pending"
	ReferralStatusCompleted = "completed"
)

// Referral records an invite relationship. One row per (referrer, referred)
// pair; the pending→completed transition happens exactly once, when the
// referred user clears the membership gate.
type Referral struct {
	ReferrerID  int64     `bson:"referrer_id" json:"referrer_id"`
	ReferredID  int64     `bson:"referred_id" json:"referred_id"`
	Status      string    `bson:"status" json:"status"`
	CreatedAt   time.Time `bson:"created_at" json:"created_at"`
	CompletedAt time.Time `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
}
