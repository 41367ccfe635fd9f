package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func TestStatsProviderCountsUsers(t *testing.T) {
	users := &stubUserQueryCollection{count: 12}
	provider := NewStatsProvider(users)

	count, err := provider.CountUsers(context.Background())
	if err != nil {
		t.Fatalf("expected user count to succeed, got error: %v", err)
	}
	if count != 12 {
		t.Fatalf("expected 12 users, got %d", count)
	}
	if users.countCalls != 1 {
		t.Fatalf("expected count to be called once, got %d", users.countCalls)
	}
}

func TestStatsProviderCountsActiveSince(t *testing.T) {
	users := &stubUserQueryCollection{count: 4}
	provider := NewStatsProvider(users)

	since := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)
	count, err := provider.CountActiveSince(context.Background(), since)
	if err != nil {
		t.Fatalf("expected active count to succeed, got error: %v", err)
	}
	if count != 4 {
		t.Fatalf("expected 4 active users, got %d", count)
	}

	filter, ok := users.lastFilter.(bson.M)
	if !ok {
		t.Fatalf("expected bson.M filter, got %T", users.lastFilter)
	}
	rangeDoc, ok := filter["last_seen_at"].(bson.M)
	if !ok || !rangeDoc["$gte"].(time.Time).Equal(since) {
		t.Fatalf("expected last_seen_at $gte filter, got %v", filter)
	}
}

func TestStatsProviderListsUserIDs(t *testing.T) {
	users := &stubUserQueryCollection{ids: []int64{1, 2, 3}}
	provider := NewStatsProvider(users)

	ids, err := provider.ListUserIDs(context.Background())
	if err != nil {
		t.Fatalf("expected id listing to succeed, got error: %v", err)
	}
	if len(ids) != 3 || ids[0] != 1 || ids[2] != 3 {
		t.Fatalf("unexpected ids: %v", ids)
	}
}

func TestStatsProviderRequiresContext(t *testing.T) {
	provider := NewStatsProvider(&stubUserQueryCollection{})

	if _, err := provider.CountUsers(nil); err == nil {
		t.Fatalf("expected error for nil context")
	}
	if _, err := provider.CountActiveSince(nil, time.Now()); err == nil {
		t.Fatalf("expected error for nil context")
	}
	if _, err := provider.ListUserIDs(nil); err == nil {
		t.Fatalf("expected error for nil context")
	}
}

func TestStatsProviderRequiresInitialization(t *testing.T) {
	var provider *StatsProvider

	if _, err := provider.CountUsers(context.Background()); err == nil {
		t.Fatalf("expected error for nil provider")
	}
	if _, err := provider.ListUserIDs(context.Background()); err == nil {
		t.Fatalf("expected error for nil provider")
	}
}

func TestStatsProviderPropagatesErrors(t *testing.T) {
	expectedErr := errors.New("query failed")
	provider := NewStatsProvider(&stubUserQueryCollection{err: expectedErr})

	if _, err := provider.CountUsers(context.Background()); err == nil {
		t.Fatalf("expected error from user count")
	}
	if _, err := provider.CountActiveSince(context.Background(), time.Now()); err == nil {
		t.Fatalf("expected error from active count")
	}
	if _, err := provider.ListUserIDs(context.Background()); err == nil {
		t.Fatalf("expected error from id listing")
	}
}

type stubUserQueryCollection struct {
	count      int64
	ids        []int64
	err        error
	countCalls int
	lastFilter interface{}
}

func (s *stubUserQueryCollection) CountDocuments(_ context.Context, filter interface{}, _ ...*options.CountOptions) (int64, error) {
	s.countCalls++
	s.lastFilter = filter
	return s.count, s.err
}

func (s *stubUserQueryCollection) Find(_ context.Context, _ interface{}, _ ...*options.FindOptions) (*mongo.Cursor, error) {
	if s.err != nil {
		return nil, s.err
	}

	docs := make([]interface{}, 0, len(s.ids))
	for _, id := range s.ids {
		docs = append(docs, bson.D{{Key: "user_id", Value: id}})
	}
	return mongo.NewCursorFromDocuments(docs, nil, nil)
}
