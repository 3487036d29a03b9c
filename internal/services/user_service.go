// Package services – UserService
//
// This file implements UserService, which owns the user profile rows this
// core maintains: lazy creation on first authentication (with the public
// auto-join), and presence status updates. Identity itself is external; the
// authenticated id arrives from upstream and is trusted as-is.
package services

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/crewchat/go-team-chat/internal/domain"
	"github.com/crewchat/go-team-chat/internal/events"
	"github.com/crewchat/go-team-chat/internal/repo"
)

// UserService provides profile lifecycle and presence operations.
type UserService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Bus receives one change event per committed write.
	Bus *events.Bus
}

// NewUserService constructs a UserService.
func NewUserService(db *gorm.DB, bus *events.Bus) *UserService {
	return &UserService{DB: db, Bus: bus}
}

// EnsureUser creates the profile row for id on first sight and auto-joins
// the user into every currently-public channel. Idempotent: a known id is a
// cheap no-op, and re-running the auto-join skips existing pairs. Events are
// emitted only for rows actually created.
func (s *UserService) EnsureUser(ctx context.Context, id string) (*domain.User, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	u, fresh, err := repo.EnsureUser(ctx, s.DB, id)
	if err != nil {
		return nil, err
	}
	if !fresh {
		return u, nil
	}

	created, err := repo.AutoJoinPublicChannels(ctx, s.DB, id)
	if err != nil {
		return nil, err
	}

	s.Bus.Publish(domain.ProfileEvent(domain.OpInsert, u))
	for i := range created {
		s.Bus.Publish(domain.MembershipEvent(domain.OpInsert, &created[i]))
	}
	return u, nil
}

// SetStatus updates the caller's presence status and emits a profile update.
func (s *UserService) SetStatus(ctx context.Context, id, status string) (*domain.User, error) {
	switch status {
	case domain.StatusOnline, domain.StatusAway, domain.StatusOffline:
	default:
		return nil, ErrInvalidStatus
	}
	u, err := repo.UpdateUserStatus(ctx, s.DB, id, status)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	s.Bus.Publish(domain.ProfileEvent(domain.OpUpdate, u))
	return u, nil
}

// Get fetches a profile row by id.
func (s *UserService) Get(ctx context.Context, id string) (*domain.User, error) {
	u, err := repo.GetUser(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return u, nil
}
