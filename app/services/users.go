package services

import (
	"context"
	"fmt"

	e "nuclight.org/feedback-tg-bot/pkg/entities"
	"nuclight.org/feedback-tg-bot/pkg/logger"
)

// UserService keeps subscriber info and block statuses. Reads of the block
// status go through Cache when it is set, cache failures are logged and the
// store is asked instead.
//
// A read only fills a missing cache entry while block and unblock overwrite
// it, so a read that started before a block can't put the old status back.
type UserService struct {
	Log   logger.Logger
	Store UserStore
	Cache BlockCache
}

func (s *UserService) IsBlocked(ctx context.Context, userID int64) (bool, error) {
	if s.Cache != nil {
		blocked, found, err := s.Cache.GetBlocked(ctx, userID)
		if err != nil {
			s.Log.Warn("reading block cache", "user_id", userID, "error", err)
		} else if found {
			return blocked, nil
		}
	}

	blocked, err := s.Store.IsBlocked(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("getting block status of user %d: %w: %w", userID, ErrUnavailable, err)
	}

	if s.Cache != nil {
		if err := s.Cache.SetBlockedIfAbsent(ctx, userID, blocked); err != nil {
			s.Log.Warn("filling block cache", "user_id", userID, "error", err)
		}
	}

	return blocked, nil
}

func (s *UserService) Block(ctx context.Context, userID int64) error {
	return s.setBlocked(ctx, userID, true)
}

func (s *UserService) Unblock(ctx context.Context, userID int64) error {
	return s.setBlocked(ctx, userID, false)
}

func (s *UserService) setBlocked(ctx context.Context, userID int64, blocked bool) error {
	if err := s.Store.SetBlocked(ctx, userID, blocked); err != nil {
		return fmt.Errorf("setting block status of user %d: %w: %w", userID, ErrUnavailable, err)
	}

	if s.Cache != nil {
		if err := s.Cache.SetBlocked(ctx, userID, blocked); err != nil {
			s.Log.Error("writing block cache", "user_id", userID, "error", err)
		}
	}

	return nil
}

// SaveUser stores user info, the block status is left as is.
func (s *UserService) SaveUser(ctx context.Context, user e.User) error {
	if err := s.Store.SaveUser(ctx, user); err != nil {
		return fmt.Errorf("saving user %d: %w: %w", user.ID, ErrUnavailable, err)
	}
	return nil
}

func (s *UserService) ListUsers(ctx context.Context, filter e.UserBlockFilter) ([]e.User, error) {
	users, err := s.Store.ListUsers(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("listing %s users: %w: %w", filter, ErrUnavailable, err)
	}
	return users, nil
}

type UserStore interface {
	SaveUser(ctx context.Context, user e.User) error
	IsBlocked(ctx context.Context, userID int64) (bool, error)
	SetBlocked(ctx context.Context, userID int64, blocked bool) error
	ListUsers(ctx context.Context, filter e.UserBlockFilter) ([]e.User, error)
}

type BlockCache interface {
	GetBlocked(ctx context.Context, userID int64) (blocked, found bool, err error)
	SetBlocked(ctx context.Context, userID int64, blocked bool) error
	SetBlockedIfAbsent(ctx context.Context, userID int64, blocked bool) error
}
