// Package roles classifies users as owner, admin, or plain user for command
// gating.
package roles

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

type userCollection interface {
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
}

// Resolver resolves roles from the static owner id plus the persisted admin
// flag. The owner check is first and needs no storage access.
type Resolver struct {
	users   userCollection
	ownerID int64
	logger  *logrus.Entry
}

// NewResolver constructs a Resolver for the configured owner id.
func NewResolver(users userCollection, ownerID int64, logger *logrus.Entry) *Resolver {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Resolver{
		users:   users,
		ownerID: ownerID,
		logger:  logger,
	}
}

// Resolve classifies the user. Storage failures degrade to RoleUser so the
// bot keeps answering even when the database is down; unauthorized is the
// safe direction for admin commands.
func (r *Resolver) Resolve(ctx context.Context, userID int64) domain.Role {
	if userID != 0 && userID == r.ownerID {
		return domain.RoleOwner
	}
	if r == nil || r.users == nil || ctx == nil || userID == 0 {
		return domain.RoleUser
	}

	result := r.users.FindOne(ctx, bson.M{"user_id": userID})
	if result == nil {
		return domain.RoleUser
	}
	if err := result.Err(); err != nil {
		if !errors.Is(err, mongo.ErrNoDocuments) {
			r.logger.WithFields(logging.Fields{
				"event":   "role_lookup_failed",
				"user_id": userID,
			}).WithError(err).Warn("role lookup failed, treating as plain user")
		}
		return domain.RoleUser
	}

	var user domain.User
	if err := result.Decode(&user); err != nil {
		r.logger.WithFields(logging.Fields{
			"event":   "role_decode_failed",
			"user_id": userID,
		}).WithError(err).Warn("role decode failed, treating as plain user")
		return domain.RoleUser
	}

	if user.IsAdmin {
		return domain.RoleAdmin
	}

	return domain.RoleUser
}

// SetAdmin toggles the persisted admin flag for a user.
func (r *Resolver) SetAdmin(ctx context.Context, userID int64, isAdmin bool) error {
	if r == nil || r.users == nil {
		return errors.New("role resolver is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}
	if userID == 0 {
		return errors.New("user id is required")
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	result, err := r.users.UpdateOne(ctx,
		bson.M{"user_id": userID},
		bson.M{"$set": bson.M{
			"is_admin":   isAdmin,
			"updated_at": now,
		}},
	)
	if err != nil {
		return fmt.Errorf("set admin flag: %w", err)
	}
	if result != nil && result.MatchedCount == 0 {
		return fmt.Errorf("set admin flag: no user %d", userID)
	}

	r.logger.WithFields(logging.Fields{
		"event":    "admin_flag_set",
		"user_id":  userID,
		"is_admin": isAdmin,
	}).Info("updated admin flag")

	return nil
}
