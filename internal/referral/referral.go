// Package referral tracks invite relationships and pays the reward when the
// invited user clears the membership gate.
package referral

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"numinfo_bot/internal/domain"
	"numinfo_bot/internal/logging"
)

type referralCollection interface {
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
	FindOneAndUpdate(ctx context.Context, filter interface{}, update interface{}, opts ...*options.FindOneAndUpdateOptions) *mongo.SingleResult
	CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error)
}

// crediter is the slice of the points ledger the tracker needs for payouts.
type crediter interface {
	Add(ctx context.Context, userID, delta int64) error
}

// Completion reports one referral payout so the caller can notify the referrer.
type Completion struct {
	ReferrerID int64
	ReferredID int64
	Reward     int64
}

// Tracker persists referral rows and drives the pending→completed transition.
type Tracker struct {
	referrals referralCollection
	ledger    crediter
	reward    int64
	logger    *logrus.Entry
}

// NewTracker constructs a Tracker paying reward points to each side of a
// completed referral.
func NewTracker(referrals referralCollection, ledger crediter, reward int64, logger *logrus.Entry) *Tracker {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Tracker{
		referrals: referrals,
		ledger:    ledger,
		reward:    reward,
		logger:    logger,
	}
}

// Record inserts a pending referral row for the pair. Self-referrals are
// ignored, and the unique (referrer, referred) index makes repeats a no-op.
func (t *Tracker) Record(ctx context.Context, referrerID, referredID int64) error {
	if t == nil || t.referrals == nil {
		return errors.New("referral tracker is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}
	if referrerID == 0 || referredID == 0 {
		return errors.New("referrer and referred ids are required")
	}
	if referrerID == referredID {
		return nil
	}

	row := domain.Referral{
		ReferrerID: referrerID,
		ReferredID: referredID,
		Status:     domain.ReferralStatusPending,
		CreatedAt:  time.Now().UTC().Truncate(time.Millisecond),
	}

	if _, err := t.referrals.InsertOne(ctx, row); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil
		}
		return fmt.Errorf("insert referral: %w", err)
	}

	t.logger.WithFields(logging.Fields{
		"event":       "referral_recorded",
		"referrer_id": referrerID,
		"referred_id": referredID,
	}).Info("recorded pending referral")

	return nil
}

// CompleteIfPending transitions every pending referral of the given referred
// user to completed and credits both parties. The status filter inside the
// update is the idempotency barrier: a row can only be claimed once, so
// redundant calls never double-pay.
func (t *Tracker) CompleteIfPending(ctx context.Context, referredID int64) ([]Completion, error) {
	if t == nil || t.referrals == nil {
		return nil, errors.New("referral tracker is not initialized")
	}
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if referredID == 0 {
		return nil, errors.New("referred id is required")
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	var completions []Completion

	for {
		result := t.referrals.FindOneAndUpdate(ctx,
			bson.M{"referred_id": referredID, "status": domain.ReferralStatusPending},
			bson.M{"$set": bson.M{
				"status":       domain.ReferralStatusCompleted,
				"completed_at": now,
			}},
		)
		if result == nil {
			return completions, errors.New("claim referral returned no result")
		}
		if err := result.Err(); err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				return completions, nil
			}
			return completions, fmt.Errorf("claim referral: %w", err)
		}

		var row domain.Referral
		if err := result.Decode(&row); err != nil {
			return completions, fmt.Errorf("decode referral: %w", err)
		}

		if err := t.payout(ctx, row); err != nil {
			return completions, err
		}

		completions = append(completions, Completion{
			ReferrerID: row.ReferrerID,
			ReferredID: row.ReferredID,
			Reward:     t.reward,
		})
	}
}

// Stats returns the pending and completed referral counts for a referrer.
func (t *Tracker) Stats(ctx context.Context, referrerID int64) (pending, completed int64, err error) {
	if t == nil || t.referrals == nil {
		return 0, 0, errors.New("referral tracker is not initialized")
	}
	if ctx == nil {
		return 0, 0, errors.New("context is required")
	}
	if referrerID == 0 {
		return 0, 0, errors.New("referrer id is required")
	}

	pending, err = t.referrals.CountDocuments(ctx, bson.M{
		"referrer_id": referrerID,
		"status":      domain.ReferralStatusPending,
	})
	if err != nil {
		return 0, 0, fmt.Errorf("count pending referrals: %w", err)
	}

	completed, err = t.referrals.CountDocuments(ctx, bson.M{
		"referrer_id": referrerID,
		"status":      domain.ReferralStatusCompleted,
	})
	if err != nil {
		return 0, 0, fmt.Errorf("count completed referrals: %w", err)
	}

	return pending, completed, nil
}

func (t *Tracker) payout(ctx context.Context, row domain.Referral) error {
	if t.ledger == nil || t.reward == 0 {
		return nil
	}

	if err := t.ledger.Add(ctx, row.ReferrerID, t.reward); err != nil {
		return fmt.Errorf("credit referrer %d: %w", row.ReferrerID, err)
	}
	if err := t.ledger.Add(ctx, row.ReferredID, t.reward); err != nil {
		return fmt.Errorf("credit referred %d: %w", row.ReferredID, err)
	}

	t.logger.WithFields(logging.Fields{
		"event":       "referral_completed",
		"referrer_id": row.ReferrerID,
		"referred_id": row.ReferredID,
		"reward":      t.reward,
	}).Info("completed referral and paid both sides")

	return nil
}
