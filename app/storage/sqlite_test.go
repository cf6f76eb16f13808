package storage

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	e "nuclight.org/feedback-tg-bot/pkg/entities"
)

func newTestSQLite(t *testing.T) *SQLite {
	t.Helper()

	ctx := context.Background()
	db, err := NewSQLite(ctx, filepath.Join(t.TempDir(), "db", "relay.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.Migrate(ctx))

	return db
}

var testLink = e.MessageLink{
	SubscriberUserID:    1001,
	SubscriberChatID:    1001,
	SubscriberMessageID: 7,
	AdminChatID:         -100500,
	AdminMessageID:      42,
}

func TestSQLite_MigrateTwice(t *testing.T) {
	db := newTestSQLite(t)
	assert.NoError(t, db.Migrate(context.Background()))
}

func TestSQLite_FindLinkBothDirections(t *testing.T) {
	ctx := context.Background()
	db := newTestSQLite(t)

	require.NoError(t, db.CreateLink(ctx, testLink))

	link, ok, err := db.FindLink(ctx, e.Anchor{ChatID: -100500, MessageID: 42}, e.DirectionAdmin)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, testLink, link)

	link, ok, err = db.FindLink(ctx, e.Anchor{ChatID: 1001, MessageID: 7}, e.DirectionSubscriber)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, testLink, link)
}

func TestSQLite_FindLinkMissing(t *testing.T) {
	ctx := context.Background()
	db := newTestSQLite(t)

	require.NoError(t, db.CreateLink(ctx, testLink))

	t.Run("unknown anchor", func(t *testing.T) {
		_, ok, err := db.FindLink(ctx, e.Anchor{ChatID: -100500, MessageID: 43}, e.DirectionAdmin)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("anchor of the other side", func(t *testing.T) {
		_, ok, err := db.FindLink(ctx, e.Anchor{ChatID: -100500, MessageID: 42}, e.DirectionSubscriber)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("unknown direction", func(t *testing.T) {
		_, _, err := db.FindLink(ctx, e.Anchor{ChatID: -100500, MessageID: 42}, e.Direction("both"))
		assert.Error(t, err)
	})
}

func TestSQLite_CreateLinkConflicts(t *testing.T) {
	ctx := context.Background()
	db := newTestSQLite(t)

	require.NoError(t, db.CreateLink(ctx, testLink))

	sameAdmin := testLink
	sameAdmin.SubscriberMessageID = 8
	err := db.CreateLink(ctx, sameAdmin)
	assert.ErrorIs(t, err, e.ErrAlreadyExists)

	sameSubscriber := testLink
	sameSubscriber.AdminMessageID = 43
	err = db.CreateLink(ctx, sameSubscriber)
	assert.ErrorIs(t, err, e.ErrAlreadyExists)

	other := testLink
	other.SubscriberMessageID = 8
	other.AdminMessageID = 43
	assert.NoError(t, db.CreateLink(ctx, other))
}

func TestSQLite_ConcurrentCreateLink(t *testing.T) {
	ctx := context.Background()
	db := newTestSQLite(t)

	const n = 8
	errs := make([]error, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			link := testLink
			link.SubscriberMessageID = 100 + i
			errs[i] = db.CreateLink(ctx, link)
		}(i)
	}
	wg.Wait()

	var succeeded, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, e.ErrAlreadyExists):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, n-1, conflicts)
}

func TestSQLite_Users(t *testing.T) {
	ctx := context.Background()
	db := newTestSQLite(t)

	blocked, err := db.IsBlocked(ctx, 1)
	require.NoError(t, err)
	assert.False(t, blocked, "unknown user is not blocked")

	require.NoError(t, db.SaveUser(ctx, e.User{ID: 1, FirstName: "Ann", Username: "ann"}))
	require.NoError(t, db.SaveUser(ctx, e.User{ID: 2, FirstName: "Bob"}))

	require.NoError(t, db.SetBlocked(ctx, 1, true))
	require.NoError(t, db.SetBlocked(ctx, 3, true))

	blocked, err = db.IsBlocked(ctx, 1)
	require.NoError(t, err)
	assert.True(t, blocked)

	// user info updates keep the block flag
	require.NoError(t, db.SaveUser(ctx, e.User{ID: 1, FirstName: "Anna", Username: "ann"}))
	blocked, err = db.IsBlocked(ctx, 1)
	require.NoError(t, err)
	assert.True(t, blocked)

	all, err := db.ListUsers(ctx, e.UserBlockFilterAll)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{1, 2, 3}, userIDs(all))

	onlyBlocked, err := db.ListUsers(ctx, e.UserBlockFilterBlocked)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{1, 3}, userIDs(onlyBlocked))
	for _, u := range onlyBlocked {
		if u.ID == 1 {
			assert.Equal(t, "Anna", u.FirstName)
		}
	}

	require.NoError(t, db.SetBlocked(ctx, 1, false))
	unblocked, err := db.ListUsers(ctx, e.UserBlockFilterUnblocked)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{1, 2}, userIDs(unblocked))
}

func TestOpen_SQLitePrefix(t *testing.T) {
	ctx := context.Background()
	store, err := Open(ctx, "sqlite://"+filepath.Join(t.TempDir(), "relay.sqlite"))
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	_, ok := store.(*SQLite)
	assert.True(t, ok)
	assert.NoError(t, store.Migrate(ctx))

	_, err = Open(ctx, "  ")
	assert.Error(t, err)
}

func userIDs(users []e.User) []int64 {
	ids := make([]int64, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	return ids
}
