package roles

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"numinfo_bot/internal/domain"
)

const testOwnerID = int64(777)

func newTestResolver(t *testing.T) (*Resolver, *fakeUserCollection) {
	t.Helper()
	hookLogger, _ := logtest.NewNullLogger()
	coll := &fakeUserCollection{users: make(map[int64]*domain.User)}
	return NewResolver(coll, testOwnerID, logrus.NewEntry(hookLogger)), coll
}

func TestResolveOwnerWithoutStorage(t *testing.T) {
	resolver, coll := newTestResolver(t)

	role := resolver.Resolve(context.Background(), testOwnerID)
	if role != domain.RoleOwner {
		t.Fatalf("expected owner role, got %q", role)
	}
	if coll.findCalls != 0 {
		t.Fatalf("owner resolution must not touch storage, got %d lookups", coll.findCalls)
	}
}

func TestResolveAdminFlag(t *testing.T) {
	resolver, coll := newTestResolver(t)
	coll.users[50] = &domain.User{UserID: 50, IsAdmin: true}
	coll.users[51] = &domain.User{UserID: 51}

	if role := resolver.Resolve(context.Background(), 50); role != domain.RoleAdmin {
		t.Fatalf("expected admin role, got %q", role)
	}
	if role := resolver.Resolve(context.Background(), 51); role != domain.RoleUser {
		t.Fatalf("expected user role, got %q", role)
	}
}

func TestResolveUnknownUserIsPlainUser(t *testing.T) {
	resolver, _ := newTestResolver(t)

	if role := resolver.Resolve(context.Background(), 999); role != domain.RoleUser {
		t.Fatalf("expected user role for unknown id, got %q", role)
	}
}

func TestResolveDegradesOnStorageError(t *testing.T) {
	resolver, coll := newTestResolver(t)
	coll.findErr = errors.New("connection reset")

	if role := resolver.Resolve(context.Background(), 50); role != domain.RoleUser {
		t.Fatalf("expected degraded user role on storage error, got %q", role)
	}
}

func TestSetAdminTogglesFlag(t *testing.T) {
	resolver, coll := newTestResolver(t)
	coll.users[50] = &domain.User{UserID: 50}
	ctx := context.Background()

	if err := resolver.SetAdmin(ctx, 50, true); err != nil {
		t.Fatalf("SetAdmin returned error: %v", err)
	}
	if !coll.users[50].IsAdmin {
		t.Fatalf("expected admin flag set")
	}
	if role := resolver.Resolve(ctx, 50); role != domain.RoleAdmin {
		t.Fatalf("expected admin role after promotion, got %q", role)
	}

	if err := resolver.SetAdmin(ctx, 50, false); err != nil {
		t.Fatalf("SetAdmin returned error: %v", err)
	}
	if coll.users[50].IsAdmin {
		t.Fatalf("expected admin flag cleared")
	}
}

func TestSetAdminUnknownUserFails(t *testing.T) {
	resolver, _ := newTestResolver(t)

	if err := resolver.SetAdmin(context.Background(), 999, true); err == nil {
		t.Fatalf("expected error for unknown user")
	}
}

type fakeUserCollection struct {
	users     map[int64]*domain.User
	findCalls int
	findErr   error
}

func (f *fakeUserCollection) FindOne(_ context.Context, filter interface{}, _ ...*options.FindOneOptions) *mongo.SingleResult {
	f.findCalls++
	if f.findErr != nil {
		return mongo.NewSingleResultFromDocument(bson.D{}, f.findErr, nil)
	}

	userID := filterUserID(filter)
	user, ok := f.users[userID]
	if !ok {
		return mongo.NewSingleResultFromDocument(bson.D{}, mongo.ErrNoDocuments, nil)
	}
	return mongo.NewSingleResultFromDocument(*user, nil, nil)
}

func (f *fakeUserCollection) UpdateOne(_ context.Context, filter interface{}, update interface{}, _ ...*options.UpdateOptions) (*mongo.UpdateResult, error) {
	userID := filterUserID(filter)
	user, ok := f.users[userID]
	if !ok {
		return &mongo.UpdateResult{}, nil
	}

	if set, ok := update.(bson.M)["$set"].(bson.M); ok {
		if isAdmin, ok := set["is_admin"].(bool); ok {
			user.IsAdmin = isAdmin
		}
	}

	return &mongo.UpdateResult{MatchedCount: 1, ModifiedCount: 1}, nil
}

func filterUserID(filter interface{}) int64 {
	doc, ok := filter.(bson.M)
	if !ok {
		return 0
	}
	if id, ok := doc["user_id"].(int64); ok {
		return id
	}
	return 0
}
