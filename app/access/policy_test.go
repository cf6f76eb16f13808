package access

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBlockChecker struct {
	blocked map[int64]bool
	err     error
	calls   int
}

func (f *fakeBlockChecker) IsBlocked(_ context.Context, userID int64) (bool, error) {
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	return f.blocked[userID], nil
}

func TestSubscriberPolicy_IsAllowed(t *testing.T) {
	ctx := context.Background()
	users := &fakeBlockChecker{blocked: map[int64]bool{13: true}}
	policy := &SubscriberPolicy{Users: users, AdminChatID: -100}

	t.Run("not blocked", func(t *testing.T) {
		allowed, err := policy.IsAllowed(ctx, 12)
		require.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("blocked", func(t *testing.T) {
		allowed, err := policy.IsAllowed(ctx, 13)
		require.NoError(t, err)
		assert.False(t, allowed)
	})

	t.Run("admin chat", func(t *testing.T) {
		calls := users.calls
		allowed, err := policy.IsAllowed(ctx, -100)
		require.NoError(t, err)
		assert.False(t, allowed)
		assert.Equal(t, calls, users.calls)
	})

	t.Run("group chat", func(t *testing.T) {
		allowed, err := policy.IsAllowed(ctx, -200)
		require.NoError(t, err)
		assert.False(t, allowed)
	})
}

func TestSubscriberPolicy_FailClosed(t *testing.T) {
	cause := errors.New("connection refused")
	policy := &SubscriberPolicy{Users: &fakeBlockChecker{err: cause}, AdminChatID: -100}

	allowed, err := policy.IsAllowed(context.Background(), 12)
	assert.False(t, allowed)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, cause)
}

func TestAdminPolicy(t *testing.T) {
	policy := NewAdminPolicy(-100)

	assert.True(t, policy.IsAllowed(-100))
	assert.False(t, policy.IsAllowed(-101))
	assert.False(t, policy.IsAllowed(12))
	assert.False(t, NewAdminPolicy().IsAllowed(0))
}
