// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Membership
// model.
//
// IsMember is the privileged primitive the access kernel's predicates are
// written against. It reads the membership table directly, with no policy
// evaluation of any kind — expressing "may I see the members of this
// channel" in terms of a policy-checked membership query would recurse into
// the very fact being computed.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/crewchat/go-team-chat/internal/domain"
)

// ErrDuplicateMembership indicates that the (channel, user) pair already has
// a membership row.
var ErrDuplicateMembership = errors.New("membership already exists")

// AddMember inserts a membership row for (channelID, userID) with the given
// role. The unique index on the pair makes the insert atomic: under two
// concurrent joins exactly one succeeds and the other receives
// ErrDuplicateMembership.
func AddMember(ctx context.Context, db *gorm.DB, channelID, userID, role string) (*domain.Membership, error) {
	mb := &domain.Membership{
		ID:        uuid.NewString(),
		ChannelID: channelID,
		UserID:    userID,
		Role:      role,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(mb).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateMembership
		}
		return nil, err
	}
	return mb, nil
}

// EnsureMember inserts a membership row if the pair is absent and is a no-op
// otherwise. Used by the auto-join paths, where re-running for an existing
// pair must not be an error. The returned bool reports whether a row was
// actually created (callers emit a change event only for real inserts).
func EnsureMember(ctx context.Context, db *gorm.DB, channelID, userID, role string) (*domain.Membership, bool, error) {
	mb := &domain.Membership{
		ID:        uuid.NewString(),
		ChannelID: channelID,
		UserID:    userID,
		Role:      role,
		CreatedAt: time.Now().UTC(),
	}
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "channel_id"}, {Name: "user_id"}},
			DoNothing: true,
		}).
		Create(mb)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected == 0 {
		existing, err := GetMembership(ctx, db, channelID, userID)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	return mb, true, nil
}

// RemoveMember deletes the membership row for (channelID, userID) and
// returns the removed row (the event bus needs the pre-image for delete
// events). Returns ErrNotFound if the pair has no row.
func RemoveMember(ctx context.Context, db *gorm.DB, channelID, userID string) (*domain.Membership, error) {
	mb, err := GetMembership(ctx, db, channelID, userID)
	if err != nil {
		return nil, err
	}
	res := db.WithContext(ctx).
		Where("channel_id = ? AND user_id = ?", channelID, userID).
		Delete(&domain.Membership{})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return mb, nil
}

// GetMembership fetches the membership row for (channelID, userID), or
// ErrNotFound. Raw read.
func GetMembership(ctx context.Context, db *gorm.DB, channelID, userID string) (*domain.Membership, error) {
	var mb domain.Membership
	err := db.WithContext(ctx).
		Where("channel_id = ? AND user_id = ?", channelID, userID).
		First(&mb).Error
	if err != nil {
		return nil, err
	}
	return &mb, nil
}

// IsMember reports whether userID has a membership row for channelID.
//
// This is the kernel's privileged evaluation primitive: a direct existence
// probe with no authorization applied. It must never be exposed through the
// HTTP surface.
func IsMember(ctx context.Context, db *gorm.DB, channelID, userID string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Membership{}).
		Where("channel_id = ? AND user_id = ?", channelID, userID).
		Count(&n).Error
	return n > 0, err
}

// IsAdmin reports whether userID holds the admin role in channelID. Raw read.
func IsAdmin(ctx context.Context, db *gorm.DB, channelID, userID string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Membership{}).
		Where("channel_id = ? AND user_id = ? AND role = ?", channelID, userID, domain.RoleAdmin).
		Count(&n).Error
	return n > 0, err
}

// ListMembers returns all membership rows of a channel ordered by join time.
// Raw read; the service layer gates it behind channel visibility.
func ListMembers(ctx context.Context, db *gorm.DB, channelID string) ([]domain.Membership, error) {
	var out []domain.Membership
	err := db.WithContext(ctx).
		Where("channel_id = ?", channelID).
		Order("created_at asc, id asc").
		Find(&out).Error
	return out, err
}

// ListMembersFor returns every membership row held by userID, ordered by
// join time. A user may always see their own memberships.
func ListMembersFor(ctx context.Context, db *gorm.DB, userID string) ([]domain.Membership, error) {
	var out []domain.Membership
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at asc, id asc").
		Find(&out).Error
	return out, err
}

// AutoJoinPublicChannels creates membership rows for userID in every
// currently-public channel. Idempotent: pairs that already exist are
// skipped. Returns the memberships that were actually created.
func AutoJoinPublicChannels(ctx context.Context, db *gorm.DB, userID string) ([]domain.Membership, error) {
	channels, err := ListPublicChannels(ctx, db)
	if err != nil {
		return nil, err
	}
	var created []domain.Membership
	for _, ch := range channels {
		mb, fresh, err := EnsureMember(ctx, db, ch.ID, userID, domain.RoleMember)
		if err != nil {
			return created, err
		}
		if fresh {
			created = append(created, *mb)
		}
	}
	return created, nil
}
