// Package store encapsulates MongoDB client management and collection helpers.
package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"numinfo_bot/internal/config"
)

// Collection names used across the bot.
const (
	CollectionUsers         = "users"
	CollectionPoints        = "points_accounts"
	CollectionReferrals     = "referrals"
	CollectionSessions      = "sessions"
	CollectionBroadcastLogs = "broadcast_logs"
	CollectionPayments      = "pending_payments"
)

// mongoClient captures the subset of mongo.Client behavior we rely on to allow
// lightweight stubbing in tests without a live Mongo deployment.
type mongoClient interface {
	Ping(context.Context, *readpref.ReadPref) error
	Database(string, ...*options.DatabaseOptions) *mongo.Database
	Disconnect(context.Context) error
}

// connectMongo is overridable for tests.
var connectMongo = func(ctx context.Context, opts *options.ClientOptions) (mongoClient, error) {
	return mongo.Connect(ctx, opts)
}

// createIndexes is overridable for tests.
var createIndexes = func(ctx context.Context, coll *mongo.Collection, models []mongo.IndexModel) ([]string, error) {
	return coll.Indexes().CreateMany(ctx, models)
}

// Manager owns a MongoDB client and the configured database handle.
type Manager struct {
	client mongoClient
	db     *mongo.Database
}

// NewManager initializes the Mongo client using the supplied configuration and
// verifies connectivity with a ping.
func NewManager(ctx context.Context, cfg config.Config) (*Manager, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	client, err := connectMongo(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	return &Manager{
		client: client,
		db:     client.Database(cfg.MongoDB),
	}, nil
}

// Database returns the configured database handle.
func (m *Manager) Database() *mongo.Database {
	return m.db
}

// Collection returns a collection handle for the given name.
func (m *Manager) Collection(name string) *mongo.Collection {
	return m.db.Collection(name)
}

// Users returns the users collection handle.
func (m *Manager) Users() *mongo.Collection {
	return m.Collection(CollectionUsers)
}

// Points returns the points accounts collection handle.
func (m *Manager) Points() *mongo.Collection {
	return m.Collection(CollectionPoints)
}

// Referrals returns the referrals collection handle.
func (m *Manager) Referrals() *mongo.Collection {
	return m.Collection(CollectionReferrals)
}

// Sessions returns the sessions collection handle.
func (m *Manager) Sessions() *mongo.Collection {
	return m.Collection(CollectionSessions)
}

// BroadcastLogs returns the broadcast log collection handle.
func (m *Manager) BroadcastLogs() *mongo.Collection {
	return m.Collection(CollectionBroadcastLogs)
}

// Payments returns the pending payments collection handle.
func (m *Manager) Payments() *mongo.Collection {
	return m.Collection(CollectionPayments)
}

// Ping verifies connectivity for health checks.
func (m *Manager) Ping(ctx context.Context) error {
	if m == nil || m.client == nil {
		return errors.New("store manager is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	return m.client.Ping(ctx, readpref.Primary())
}

// EnsureBaseIndexes creates the foundational indexes for every collection the
// bot writes. Collections are created implicitly if they do not already exist.
func (m *Manager) EnsureBaseIndexes(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if m == nil || m.db == nil {
		return errors.New("store manager is not initialized")
	}

	plan := []struct {
		coll    *mongo.Collection
		indexes []mongo.IndexModel
	}{
		{
			coll: m.Users(),
			indexes: []mongo.IndexModel{{
				Keys:    bson.D{{Key: "user_id", Value: 1}},
				Options: options.Index().SetName("user_id_unique").SetUnique(true),
			}, {
				Keys:    bson.D{{Key: "last_seen_at", Value: -1}},
				Options: options.Index().SetName("last_seen_at_desc"),
			}},
		},
		{
			coll: m.Points(),
			indexes: []mongo.IndexModel{{
				Keys:    bson.D{{Key: "user_id", Value: 1}},
				Options: options.Index().SetName("user_id_unique").SetUnique(true),
			}},
		},
		{
			coll: m.Referrals(),
			indexes: []mongo.IndexModel{{
				Keys:    bson.D{{Key: "referrer_id", Value: 1}, {Key: "referred_id", Value: 1}},
				Options: options.Index().SetName("referral_pair_unique").SetUnique(true),
			}, {
				Keys:    bson.D{{Key: "referred_id", Value: 1}, {Key: "status", Value: 1}},
				Options: options.Index().SetName("referred_status"),
			}},
		},
		{
			coll: m.Sessions(),
			indexes: []mongo.IndexModel{{
				Keys:    bson.D{{Key: "user_id", Value: 1}},
				Options: options.Index().SetName("user_id_unique").SetUnique(true),
			}},
		},
		{
			coll: m.Payments(),
			indexes: []mongo.IndexModel{{
				Keys:    bson.D{{Key: "order_id", Value: 1}},
				Options: options.Index().SetName("order_id_unique").SetUnique(true),
			}, {
				Keys:    bson.D{{Key: "user_id", Value: 1}},
				Options: options.Index().SetName("user_id"),
			}},
		},
	}

	for _, step := range plan {
		if _, err := createIndexes(ctx, step.coll, step.indexes); err != nil {
			return fmt.Errorf("create %s indexes: %w", step.coll.Name(), err)
		}
	}

	return nil
}

// Close disconnects the Mongo client.
func (m *Manager) Close(ctx context.Context) error {
	if m == nil || m.client == nil {
		return nil
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	return m.client.Disconnect(ctx)
}
