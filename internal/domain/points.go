package domain

import "time"

// PointsAccount holds the metered balance for one user. The balance is always
// non-negative; all mutations clamp at zero inside the storage layer.
type PointsAccount struct {
	UserID     int64     `bson:"user_id" json:"user_id"`
	Points     int64     `bson:"points" json:"points"`
	ReferredBy int64     `bson:"referred_by,omitempty" json:"referred_by,omitempty"`
	CreatedAt  time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt  time.Time `bson:"updated_at" json:"updated_at"`
}
