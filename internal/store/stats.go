// Package store encapsulates MongoDB client management and collection helpers.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type userQueryCollection interface {
	CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error)
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
}

// StatsProvider answers aggregate questions about the user base: totals for
// the admin stats command and the id roster for broadcasts.
type StatsProvider struct {
	users userQueryCollection
}

// NewStatsProvider constructs a StatsProvider backed by the users collection.
func NewStatsProvider(users userQueryCollection) *StatsProvider {
	return &StatsProvider{users: users}
}

// CountUsers returns the number of distinct registered users.
func (p *StatsProvider) CountUsers(ctx context.Context) (int64, error) {
	if ctx == nil {
		return 0, errors.New("context is required")
	}
	if p == nil || p.users == nil {
		return 0, errors.New("stats provider is not initialized")
	}

	count, err := p.users.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}

	return count, nil
}

// CountActiveSince returns the number of users whose last_seen_at is at or
// after the given instant.
func (p *StatsProvider) CountActiveSince(ctx context.Context, since time.Time) (int64, error) {
	if ctx == nil {
		return 0, errors.New("context is required")
	}
	if p == nil || p.users == nil {
		return 0, errors.New("stats provider is not initialized")
	}

	count, err := p.users.CountDocuments(ctx, bson.M{"last_seen_at": bson.M{"$gte": since}})
	if err != nil {
		return 0, fmt.Errorf("count active users: %w", err)
	}

	return count, nil
}

// ListUserIDs returns every registered user id, for broadcast fan-out.
func (p *StatsProvider) ListUserIDs(ctx context.Context) ([]int64, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if p == nil || p.users == nil {
		return nil, errors.New("stats provider is not initialized")
	}

	projection := options.Find().SetProjection(bson.M{"user_id": 1, "_id": 0})
	cursor, err := p.users.Find(ctx, bson.D{}, projection)
	if err != nil {
		return nil, fmt.Errorf("list user ids: %w", err)
	}
	defer cursor.Close(ctx)

	var ids []int64
	for cursor.Next(ctx) {
		var row struct {
			UserID int64 `bson:"user_id"`
		}
		if err := cursor.Decode(&row); err != nil {
			return nil, fmt.Errorf("decode user id: %w", err)
		}
		ids = append(ids, row.UserID)
	}

	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("iterate user ids: %w", err)
	}

	return ids, nil
}
