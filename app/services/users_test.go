package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	e "nuclight.org/feedback-tg-bot/pkg/entities"
)

type fakeUserStore struct {
	users   map[int64]e.User
	err     error
	lookups int

	// afterLookup runs between reading the status and returning it
	afterLookup func()
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: map[int64]e.User{}}
}

func (s *fakeUserStore) SaveUser(_ context.Context, user e.User) error {
	if s.err != nil {
		return s.err
	}
	user.IsBlocked = s.users[user.ID].IsBlocked
	s.users[user.ID] = user
	return nil
}

func (s *fakeUserStore) IsBlocked(_ context.Context, userID int64) (bool, error) {
	s.lookups++
	if s.err != nil {
		return false, s.err
	}
	blocked := s.users[userID].IsBlocked
	if s.afterLookup != nil {
		s.afterLookup()
	}
	return blocked, nil
}

func (s *fakeUserStore) SetBlocked(_ context.Context, userID int64, blocked bool) error {
	if s.err != nil {
		return s.err
	}
	u := s.users[userID]
	u.ID = userID
	u.IsBlocked = blocked
	s.users[userID] = u
	return nil
}

func (s *fakeUserStore) ListUsers(_ context.Context, filter e.UserBlockFilter) ([]e.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	var res []e.User
	for _, u := range s.users {
		if filter.Match(u.IsBlocked) {
			res = append(res, u)
		}
	}
	return res, nil
}

type fakeBlockCache struct {
	values map[int64]bool
	err    error
}

func (c *fakeBlockCache) GetBlocked(_ context.Context, userID int64) (bool, bool, error) {
	if c.err != nil {
		return false, false, c.err
	}
	v, ok := c.values[userID]
	return v, ok, nil
}

func (c *fakeBlockCache) SetBlocked(_ context.Context, userID int64, blocked bool) error {
	if c.err != nil {
		return c.err
	}
	c.values[userID] = blocked
	return nil
}

func (c *fakeBlockCache) SetBlockedIfAbsent(_ context.Context, userID int64, blocked bool) error {
	if c.err != nil {
		return c.err
	}
	if _, ok := c.values[userID]; !ok {
		c.values[userID] = blocked
	}
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestUserService_BlockUnblock(t *testing.T) {
	ctx := context.Background()
	store := newFakeUserStore()
	srv := &UserService{Log: discardLogger(), Store: store}

	blocked, err := srv.IsBlocked(ctx, 1)
	require.NoError(t, err)
	assert.False(t, blocked)

	require.NoError(t, srv.Block(ctx, 1))
	blocked, err = srv.IsBlocked(ctx, 1)
	require.NoError(t, err)
	assert.True(t, blocked)

	require.NoError(t, srv.Unblock(ctx, 1))
	blocked, err = srv.IsBlocked(ctx, 1)
	require.NoError(t, err)
	assert.False(t, blocked)
}

func TestUserService_Cache(t *testing.T) {
	ctx := context.Background()
	store := newFakeUserStore()
	cache := &fakeBlockCache{values: map[int64]bool{}}
	srv := &UserService{Log: discardLogger(), Store: store, Cache: cache}

	require.NoError(t, srv.Block(ctx, 1))

	blocked, err := srv.IsBlocked(ctx, 1)
	require.NoError(t, err)
	assert.True(t, blocked)
	assert.Equal(t, 1, store.lookups)

	blocked, err = srv.IsBlocked(ctx, 1)
	require.NoError(t, err)
	assert.True(t, blocked)
	assert.Equal(t, 1, store.lookups, "second read is served by the cache")

	require.NoError(t, srv.Unblock(ctx, 1))
	assert.Equal(t, map[int64]bool{1: false}, cache.values, "unblock overwrites the cache")

	blocked, err = srv.IsBlocked(ctx, 1)
	require.NoError(t, err)
	assert.False(t, blocked)
	assert.Equal(t, 1, store.lookups)
}

func TestUserService_BlockDuringRead(t *testing.T) {
	ctx := context.Background()
	store := newFakeUserStore()
	cache := &fakeBlockCache{values: map[int64]bool{}}
	srv := &UserService{Log: discardLogger(), Store: store, Cache: cache}

	// /block lands after the read got "not blocked" from the store but
	// before that status reaches the cache
	store.afterLookup = func() {
		store.afterLookup = nil
		require.NoError(t, srv.Block(ctx, 7))
	}

	blocked, err := srv.IsBlocked(ctx, 7)
	require.NoError(t, err)
	assert.False(t, blocked)

	assert.Equal(t, map[int64]bool{7: true}, cache.values)

	blocked, err = srv.IsBlocked(ctx, 7)
	require.NoError(t, err)
	assert.True(t, blocked)
}

func TestUserService_CacheFailureFallsBackToStore(t *testing.T) {
	ctx := context.Background()
	store := newFakeUserStore()
	store.users[1] = e.User{ID: 1, IsBlocked: true}
	srv := &UserService{Log: discardLogger(), Store: store, Cache: &fakeBlockCache{err: errors.New("connection refused")}}

	blocked, err := srv.IsBlocked(ctx, 1)
	require.NoError(t, err)
	assert.True(t, blocked)
}

func TestUserService_StoreFailure(t *testing.T) {
	ctx := context.Background()
	store := newFakeUserStore()
	store.err = errors.New("database is locked")
	srv := &UserService{Log: discardLogger(), Store: store}

	_, err := srv.IsBlocked(ctx, 1)
	assert.ErrorIs(t, err, ErrUnavailable)

	assert.ErrorIs(t, srv.Block(ctx, 1), ErrUnavailable)
	assert.ErrorIs(t, srv.SaveUser(ctx, e.User{ID: 1}), ErrUnavailable)

	_, err = srv.ListUsers(ctx, e.UserBlockFilterAll)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestUserService_SaveAndList(t *testing.T) {
	ctx := context.Background()
	store := newFakeUserStore()
	srv := &UserService{Log: discardLogger(), Store: store}

	require.NoError(t, srv.SaveUser(ctx, e.User{ID: 1, FirstName: "Ann"}))
	require.NoError(t, srv.SaveUser(ctx, e.User{ID: 2, FirstName: "Bob"}))
	require.NoError(t, srv.Block(ctx, 2))

	users, err := srv.ListUsers(ctx, e.UserBlockFilterBlocked)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "Bob", users[0].FirstName)
}
