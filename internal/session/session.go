// Package session implements the single-slot pending-action store behind the
// bot's short multi-step conversational flows.
package session

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

type sessionCollection interface {
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	ReplaceOne(ctx context.Context, filter interface{}, replacement interface{}, opts ...*options.ReplaceOptions) (*mongo.UpdateResult, error)
	DeleteOne(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error)
}

// Store persists one pending action per user.
type Store struct {
	sessions sessionCollection
	logger   *logrus.Entry
}

// NewStore constructs a Store over the sessions collection.
func NewStore(sessions sessionCollection, logger *logrus.Entry) *Store {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Store{
		sessions: sessions,
		logger:   logger,
	}
}

// Set writes the pending action for the user, replacing any prior slot.
func (s *Store) Set(ctx context.Context, userID int64, action string, payload map[string]any) error {
	if s == nil || s.sessions == nil {
		return errors.New("session store is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}
	if userID == 0 {
		return errors.New("user id is required")
	}
	if action == "" {
		return errors.New("action is required")
	}

	row := domain.Session{
		UserID:    userID,
		Action:    action,
		Payload:   payload,
		UpdatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}

	if _, err := s.sessions.ReplaceOne(ctx,
		bson.M{"user_id": userID},
		row,
		options.Replace().SetUpsert(true),
	); err != nil {
		return fmt.Errorf("set session: %w", err)
	}

	s.logger.WithFields(logging.Fields{
		"event":   "session_set",
		"user_id": userID,
		"action":  action,
	}).Debug("stored pending session")

	return nil
}

// Get returns the pending action for the user, or nil when there is none.
func (s *Store) Get(ctx context.Context, userID int64) (*domain.Session, error) {
	if s == nil || s.sessions == nil {
		return nil, errors.New("session store is not initialized")
	}
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if userID == 0 {
		return nil, errors.New("user id is required")
	}

	result := s.sessions.FindOne(ctx, bson.M{"user_id": userID})
	if result == nil {
		return nil, errors.New("find session returned no result")
	}
	if err := result.Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("find session: %w", err)
	}

	var row domain.Session
	if err := result.Decode(&row); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}

	return &row, nil
}

// Clear removes the pending action for the user. Clearing an absent slot is a
// no-op.
func (s *Store) Clear(ctx context.Context, userID int64) error {
	if s == nil || s.sessions == nil {
		return errors.New("session store is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}
	if userID == 0 {
		return errors.New("user id is required")
	}

	if _, err := s.sessions.DeleteOne(ctx, bson.M{"user_id": userID}); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}

	return nil
}
