// Package ledger implements the per-user points balance and its mutations.
//
// Every mutation is a single server-side write (conditional update or update
// pipeline), never application-level read-modify-write, so balances stay
// consistent under concurrent requests from the same user.
package ledger

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

type pointsCollection interface {
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
}

// Ledger mediates access to the points accounts collection.
type Ledger struct {
	points     pointsCollection
	startBonus int64
	logger     *logrus.Entry
}

// New constructs a Ledger. New accounts are seeded with startBonus points.
func New(points pointsCollection, startBonus int64, logger *logrus.Entry) *Ledger {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Ledger{
		points:     points,
		startBonus: startBonus,
		logger:     logger,
	}
}

// Get returns the current balance. A missing account reads as zero and is not
// created.
func (l *Ledger) Get(ctx context.Context, userID int64) (int64, error) {
	if l == nil || l.points == nil {
		return 0, errors.New("ledger is not initialized")
	}
	if ctx == nil {
		return 0, errors.New("context is required")
	}
	if userID == 0 {
		return 0, errors.New("user id is required")
	}

	result := l.points.FindOne(ctx, bson.M{"user_id": userID})
	if result == nil {
		return 0, errors.New("find points account returned no result")
	}
	if err := result.Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, nil
		}
		return 0, fmt.Errorf("find points account: %w", err)
	}

	var account domain.PointsAccount
	if err := result.Decode(&account); err != nil {
		return 0, fmt.Errorf("decode points account: %w", err)
	}

	return account.Points, nil
}

// InitIfNew creates the account with the starting bonus if it does not exist
// yet. Existing accounts are untouched, so repeated calls are idempotent.
// referredBy is recorded once at creation; pass 0 when there is no referrer.
func (l *Ledger) InitIfNew(ctx context.Context, userID, referredBy int64) (bool, error) {
	if l == nil || l.points == nil {
		return false, errors.New("ledger is not initialized")
	}
	if ctx == nil {
		return false, errors.New("context is required")
	}
	if userID == 0 {
		return false, errors.New("user id is required")
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	onInsert := bson.M{
		"user_id":    userID,
		"points":     l.startBonus,
		"created_at": now,
		"updated_at": now,
	}
	if referredBy != 0 && referredBy != userID {
		onInsert["referred_by"] = referredBy
	}

	result, err := l.points.UpdateOne(ctx,
		bson.M{"user_id": userID},
		bson.M{"$setOnInsert": onInsert},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return false, fmt.Errorf("init points account: %w", err)
	}

	created := result != nil && result.UpsertedCount > 0
	if created {
		l.logger.WithFields(logging.Fields{
			"event":   "points_account_created",
			"user_id": userID,
			"points":  l.startBonus,
		}).Info("created points account with starting bonus")
	}

	return created, nil
}

// Add applies a delta to the balance in one server-side write, clamping the
// result at zero. Accounts missing at call time are left missing; credits to
// unknown users are dropped by the filter rather than creating a row.
func (l *Ledger) Add(ctx context.Context, userID, delta int64) error {
	if l == nil || l.points == nil {
		return errors.New("ledger is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}
	if userID == 0 {
		return errors.New("user id is required")
	}
	if delta == 0 {
		return nil
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"points": bson.M{"$max": bson.A{
				bson.M{"$add": bson.A{"$points", delta}},
				int64(0),
			}},
			"updated_at": now,
		}}},
	}

	result, err := l.points.UpdateOne(ctx, bson.M{"user_id": userID}, pipeline)
	if err != nil {
		return fmt.Errorf("adjust points: %w", err)
	}
	if result != nil && result.MatchedCount == 0 {
		return fmt.Errorf("adjust points: no account for user %d", userID)
	}

	l.logger.WithFields(logging.Fields{
		"event":   "points_adjusted",
		"user_id": userID,
		"delta":   delta,
	}).Debug("adjusted points balance")

	return nil
}

// Spend atomically deducts cost when the balance covers it. The filter carries
// the balance check, so a concurrent spender cannot drive the account negative.
// Returns false without mutation when the balance is insufficient.
func (l *Ledger) Spend(ctx context.Context, userID, cost int64) (bool, error) {
	if l == nil || l.points == nil {
		return false, errors.New("ledger is not initialized")
	}
	if ctx == nil {
		return false, errors.New("context is required")
	}
	if userID == 0 {
		return false, errors.New("user id is required")
	}
	if cost <= 0 {
		return false, fmt.Errorf("spend cost must be positive, got %d", cost)
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	result, err := l.points.UpdateOne(ctx,
		bson.M{"user_id": userID, "points": bson.M{"$gte": cost}},
		bson.M{
			"$inc": bson.M{"points": -cost},
			"$set": bson.M{"updated_at": now},
		},
	)
	if err != nil {
		return false, fmt.Errorf("spend points: %w", err)
	}

	spent := result != nil && result.ModifiedCount > 0
	if spent {
		l.logger.WithFields(logging.Fields{
			"event":   "points_spent",
			"user_id": userID,
			"cost":    cost,
		}).Debug("deducted points")
	}

	return spent, nil
}
