// Package services – ChannelService
//
// This file implements the ChannelService, which manages the channel
// directory. It normalizes and validates names, enforces the creator/admin
// rule for metadata mutation, filters reads through the access kernel, and
// emits a change event for every committed write.
//
// Service-level errors (e.g., ErrDuplicateName, ErrUnauthorized) are
// returned for predictable cases so handlers can map them to HTTP results
// consistently.
package services

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/crewchat/go-team-chat/internal/access"
	"github.com/crewchat/go-team-chat/internal/domain"
	"github.com/crewchat/go-team-chat/internal/events"
	"github.com/crewchat/go-team-chat/internal/repo"
)

// ChannelService provides channel directory operations: create, update,
// lookup, and per-viewer listing. All writes emit change events after the
// store commit succeeds.
type ChannelService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Kernel evaluates visibility for reads and the admin rule inputs.
	Kernel *access.Kernel
	// Bus receives one change event per committed write.
	Bus *events.Bus

	// NameMaxLen caps stored channel names by rune length.
	NameMaxLen int
}

// NewChannelService constructs a ChannelService with sane defaults.
func NewChannelService(db *gorm.DB, kernel *access.Kernel, bus *events.Bus) *ChannelService {
	return &ChannelService{
		DB:         db,
		Kernel:     kernel,
		Bus:        bus,
		NameMaxLen: 80,
	}
}

// Create inserts a new channel owned by actor and a creator membership with
// the admin role, in one transaction. When the channel is public, membership
// rows are backfilled for every known user — the mirror image of the
// new-user auto-join, so public channels and memberships stay consistent
// from both directions.
func (s *ChannelService) Create(ctx context.Context, actor, name string, isPrivate bool) (*domain.Channel, error) {
	tr := otel.Tracer("services/ChannelService")
	ctx, span := tr.Start(ctx, "Create",
		trace.WithAttributes(
			attribute.String("user.id", actor),
			attribute.Bool("channel.private", isPrivate),
		),
	)
	defer span.End()

	name = foldChannelName(name)
	if name == "" {
		return nil, ErrEmptyName
	}
	name = s.clipName(name)

	var (
		ch          *domain.Channel
		memberships []domain.Membership
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		created, err := repo.CreateChannel(ctx, tx, name, isPrivate, actor)
		if err != nil {
			return err
		}
		ch = created

		creator, _, err := repo.EnsureMember(ctx, tx, ch.ID, actor, domain.RoleAdmin)
		if err != nil {
			return err
		}
		memberships = append(memberships, *creator)

		if !isPrivate {
			ids, err := repo.ListUserIDs(ctx, tx)
			if err != nil {
				return err
			}
			for _, uid := range ids {
				if uid == actor {
					continue
				}
				mb, fresh, err := repo.EnsureMember(ctx, tx, ch.ID, uid, domain.RoleMember)
				if err != nil {
					return err
				}
				if fresh {
					memberships = append(memberships, *mb)
				}
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, repo.ErrDuplicateName) {
			return nil, ErrDuplicateName
		}
		return nil, err
	}

	s.Bus.Publish(domain.ChannelEvent(domain.OpInsert, ch))
	for i := range memberships {
		s.Bus.Publish(domain.MembershipEvent(domain.OpInsert, &memberships[i]))
	}
	return ch, nil
}

// ChannelUpdate carries the mutable fields for Update. Nil fields are left
// untouched.
type ChannelUpdate struct {
	Name      *string
	IsPrivate *bool
}

// Update mutates channel metadata. Only the creator or an admin member may
// do so; everyone else receives ErrUnauthorized when they can see the
// channel, and ErrNotFound when they cannot (non-disclosure on reads
// extends to the existence probe inside a write).
func (s *ChannelService) Update(ctx context.Context, actor, channelID string, upd ChannelUpdate) (*domain.Channel, error) {
	tr := otel.Tracer("services/ChannelService")
	ctx, span := tr.Start(ctx, "Update",
		trace.WithAttributes(
			attribute.String("user.id", actor),
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

	ru := repo.ChannelUpdate{IsPrivate: upd.IsPrivate}
	if upd.Name != nil {
		folded := foldChannelName(*upd.Name)
		if folded == "" {
			return nil, ErrEmptyName
		}
		folded = s.clipName(folded)
		ru.Name = &folded
	}

	updated, err := repo.UpdateChannel(ctx, s.DB, channelID, ru)
	if err != nil {
		switch {
		case errors.Is(err, repo.ErrDuplicateName):
			return nil, ErrDuplicateName
		case errors.Is(err, repo.ErrNotFound):
			return nil, ErrNotFound
		}
		return nil, err
	}

	var backfilled []domain.Membership
	if upd.IsPrivate != nil && !*upd.IsPrivate && ch.IsPrivate {
		// Channel flipped public: backfill memberships like auto-join does.
		ids, err := repo.ListUserIDs(ctx, s.DB)
		if err != nil {
			return nil, err
		}
		for _, uid := range ids {
			mb, fresh, err := repo.EnsureMember(ctx, s.DB, channelID, uid, domain.RoleMember)
			if err != nil {
				return nil, err
			}
			if fresh {
				backfilled = append(backfilled, *mb)
			}
		}
	}

	s.Bus.Publish(domain.ChannelEvent(domain.OpUpdate, updated))
	for i := range backfilled {
		s.Bus.Publish(domain.MembershipEvent(domain.OpInsert, &backfilled[i]))
	}
	return updated, nil
}

// Get returns the channel when the viewer may see it, and ErrNotFound
// otherwise — a hidden channel and a missing one are indistinguishable.
func (s *ChannelService) Get(ctx context.Context, viewer, channelID string) (*domain.Channel, error) {
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
	return ch, nil
}

// ListVisible returns every channel the viewer may see: all public channels
// plus the private ones they belong to.
func (s *ChannelService) ListVisible(ctx context.Context, viewer string) ([]domain.Channel, error) {
	tr := otel.Tracer("services/ChannelService")
	ctx, span := tr.Start(ctx, "ListVisible",
		trace.WithAttributes(attribute.String("user.id", viewer)),
	)
	defer span.End()

	all, err := repo.ListChannels(ctx, s.DB)
	if err != nil {
		return nil, err
	}
	return s.Kernel.FilterChannels(ctx, viewer, all)
}

// clipName truncates a channel name to the configured maximum rune length.
func (s *ChannelService) clipName(name string) string {
	if s.NameMaxLen > 0 && utf8.RuneCountInString(name) > s.NameMaxLen {
		return string([]rune(name)[:s.NameMaxLen])
	}
	return name
}

// foldChannelName trims, collapses inner whitespace to single dashes, and
// case-folds the name so uniqueness is insensitive to case and spacing.
func foldChannelName(name string) string {
	name = strings.TrimSpace(name)
	name = nameSpaceRE.ReplaceAllString(name, "-")
	return nameFolder.String(name)
}

var (
	// nameSpaceRE collapses consecutive whitespace to a single dash.
	nameSpaceRE = regexp.MustCompile(`\s+`)
	// nameFolder lower-cases names with language-neutral case folding.
	nameFolder = cases.Lower(language.Und)
)
