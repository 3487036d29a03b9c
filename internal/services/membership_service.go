// Package services – MembershipService
//
// This file implements the MembershipService, the protected façade over the
// membership store. Joining is open for public channels; private channels
// are invitation-only, expressed here as an admin adding the member. Every
// committed membership change emits one change event.
//
// Listing a channel's members is gated by channel visibility and degrades to
// ErrNotFound rather than an authorization error — reads never disclose the
// existence of private data through error signals.
package services

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/crewchat/go-team-chat/internal/access"
	"github.com/crewchat/go-team-chat/internal/domain"
	"github.com/crewchat/go-team-chat/internal/events"
	"github.com/crewchat/go-team-chat/internal/repo"
)

// MembershipService provides join/leave/add/remove operations and
// visibility-gated member listings.
type MembershipService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Kernel evaluates channel visibility.
	Kernel *access.Kernel
	// Bus receives one change event per committed write.
	Bus *events.Bus
}

// NewMembershipService constructs a MembershipService.
func NewMembershipService(db *gorm.DB, kernel *access.Kernel, bus *events.Bus) *MembershipService {
	return &MembershipService{DB: db, Kernel: kernel, Bus: bus}
}

// Join adds user to a public channel as a regular member. Private channels
// reject self-joins with ErrNotFound when invisible to the caller — the
// invitation flow is Add, performed by an admin.
func (s *MembershipService) Join(ctx context.Context, user, channelID string) (*domain.Membership, error) {
	tr := otel.Tracer("services/MembershipService")
	ctx, span := tr.Start(ctx, "Join",
		trace.WithAttributes(
			attribute.String("user.id", user),
			attribute.String("channel.id", channelID),
		),
	)
	defer span.End()

	ch, err := repo.GetChannel(ctx, s.DB, channelID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if ch.IsPrivate {
		visible, err := s.Kernel.CanViewChannel(ctx, user, ch)
		if err != nil {
			return nil, err
		}
		if !visible {
			return nil, ErrNotFound
		}
		// Visible but private means the user is already a member.
		return nil, ErrDuplicateMembership
	}

	mb, err := repo.AddMember(ctx, s.DB, channelID, user, domain.RoleMember)
	if err != nil {
		if errors.Is(err, repo.ErrDuplicateMembership) {
			return nil, ErrDuplicateMembership
		}
		return nil, err
	}
	s.Bus.Publish(domain.MembershipEvent(domain.OpInsert, mb))
	return mb, nil
}

// Add inserts a membership for userID on behalf of actor, who must be the
// channel creator or an admin member. This is the invitation path into
// private channels.
func (s *MembershipService) Add(ctx context.Context, actor, channelID, userID, role string) (*domain.Membership, error) {
	tr := otel.Tracer("services/MembershipService")
	ctx, span := tr.Start(ctx, "Add",
		trace.WithAttributes(
			attribute.String("user.id", actor),
			attribute.String("member.id", userID),
			attribute.String("channel.id", channelID),
		),
	)
	defer span.End()

	if role == "" {
		role = domain.RoleMember
	}
	if role != domain.RoleAdmin && role != domain.RoleMember {
		return nil, ErrInvalidRole
	}

	ch, err := repo.GetChannel(ctx, s.DB, channelID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	visible, err := s.Kernel.CanViewChannel(ctx, actor, ch)
	if err != nil {
		return nil, err
	}
	if !visible {
		return nil, ErrNotFound
	}

	allowed := ch.CreatedBy == actor
	if !allowed {
		allowed, err = repo.IsAdmin(ctx, s.DB, channelID, actor)
		if err != nil {
			return nil, err
		}
	}
	if !allowed {
		return nil, ErrUnauthorized
	}

	mb, err := repo.AddMember(ctx, s.DB, channelID, userID, role)
	if err != nil {
		if errors.Is(err, repo.ErrDuplicateMembership) {
			return nil, ErrDuplicateMembership
		}
		return nil, err
	}
	s.Bus.Publish(domain.MembershipEvent(domain.OpInsert, mb))
	return mb, nil
}

// Remove deletes the membership of userID in channelID. A user may remove
// themself (leave); removing someone else requires the creator/admin rule.
func (s *MembershipService) Remove(ctx context.Context, actor, channelID, userID string) error {
	tr := otel.Tracer("services/MembershipService")
	ctx, span := tr.Start(ctx, "Remove",
		trace.WithAttributes(
			attribute.String("user.id", actor),
			attribute.String("member.id", userID),
			attribute.String("channel.id", channelID),
		),
	)
	defer span.End()

	if actor != userID {
		ch, err := repo.GetChannel(ctx, s.DB, channelID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrNotFound
			}
			return err
		}
		visible, err := s.Kernel.CanViewChannel(ctx, actor, ch)
		if err != nil {
			return err
		}
		if !visible {
			return ErrNotFound
		}
		allowed := ch.CreatedBy == actor
		if !allowed {
			allowed, err = repo.IsAdmin(ctx, s.DB, channelID, actor)
			if err != nil {
				return err
			}
		}
		if !allowed {
			return ErrUnauthorized
		}
	}

	mb, err := repo.RemoveMember(ctx, s.DB, channelID, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	s.Bus.Publish(domain.MembershipEvent(domain.OpDelete, mb))
	return nil
}

// ListMembers returns the memberships of a channel the viewer can see.
// An invisible channel yields ErrNotFound, identical to a missing one.
func (s *MembershipService) ListMembers(ctx context.Context, viewer, channelID string) ([]domain.Membership, error) {
	ch, err := repo.GetChannel(ctx, s.DB, channelID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	visible, err := s.Kernel.CanViewChannel(ctx, viewer, ch)
	if err != nil {
		return nil, err
	}
	if !visible {
		return nil, ErrNotFound
	}
	return repo.ListMembers(ctx, s.DB, channelID)
}

// ListMine returns every membership held by the caller. Always permitted:
// a user's own memberships are their own data.
func (s *MembershipService) ListMine(ctx context.Context, user string) ([]domain.Membership, error) {
	return repo.ListMembersFor(ctx, s.DB, user)
}
