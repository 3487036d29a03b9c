// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Channel
// model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a channel is not found, functions return ErrNotFound.
//   - CreateChannel returns ErrDuplicateName when the unique name index
//     rejects the insert.
//   - On other DB errors, the raw gorm error is propagated.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/crewchat/go-team-chat/internal/domain"
)

// ErrDuplicateName indicates that a channel with the requested name already
// exists. Channel names are unique across the whole directory.
var ErrDuplicateName = errors.New("channel name already exists")

// CreateChannel inserts a new channel row. The id is a generated UUID and
// CreatedAt is set to UTC. Name uniqueness is enforced by the database; a
// violation surfaces as ErrDuplicateName so two racing creators resolve into
// exactly one row and one clean conflict.
func CreateChannel(ctx context.Context, db *gorm.DB, name string, isPrivate bool, createdBy string) (*domain.Channel, error) {
	ch := &domain.Channel{
		ID:        uuid.NewString(),
		Name:      name,
		IsPrivate: isPrivate,
		CreatedBy: createdBy,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(ch).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateName
		}
		return nil, err
	}
	return ch, nil
}

// GetChannel fetches a channel by id, or ErrNotFound. This is a raw read:
// it does not consider the caller's visibility. The access kernel and the
// service layer decide who may see the result.
func GetChannel(ctx context.Context, db *gorm.DB, id string) (*domain.Channel, error) {
	var ch domain.Channel
	if err := db.WithContext(ctx).Where("id = ?", id).First(&ch).Error; err != nil {
		return nil, err
	}
	return &ch, nil
}

// GetChannelByName fetches a channel by its unique name, or ErrNotFound.
func GetChannelByName(ctx context.Context, db *gorm.DB, name string) (*domain.Channel, error) {
	var ch domain.Channel
	if err := db.WithContext(ctx).Where("name = ?", name).First(&ch).Error; err != nil {
		return nil, err
	}
	return &ch, nil
}

// ListChannels returns every channel ordered by name. Raw read; callers
// filter through the access kernel before returning results to a viewer.
func ListChannels(ctx context.Context, db *gorm.DB) ([]domain.Channel, error) {
	var out []domain.Channel
	err := db.WithContext(ctx).Order("name asc").Find(&out).Error
	return out, err
}

// ListPublicChannels returns all channels whose privacy flag is unset,
// ordered by name. Used by the auto-join path for new users.
func ListPublicChannels(ctx context.Context, db *gorm.DB) ([]domain.Channel, error) {
	var out []domain.Channel
	err := db.WithContext(ctx).Where("is_private = ?", false).Order("name asc").Find(&out).Error
	return out, err
}

// ChannelUpdate carries the mutable channel fields for UpdateChannel.
// Nil fields are left untouched.
type ChannelUpdate struct {
	Name      *string
	IsPrivate *bool
}

// UpdateChannel applies the non-nil fields of upd to the channel row and
// returns the updated channel. Returns ErrNotFound if the channel does not
// exist and ErrDuplicateName if a rename collides with an existing name.
// Authorizing the caller (creator/admin only) is the service layer's job.
func UpdateChannel(ctx context.Context, db *gorm.DB, id string, upd ChannelUpdate) (*domain.Channel, error) {
	fields := map[string]any{}
	if upd.Name != nil {
		fields["name"] = *upd.Name
	}
	if upd.IsPrivate != nil {
		fields["is_private"] = *upd.IsPrivate
	}
	if len(fields) > 0 {
		res := db.WithContext(ctx).
			Model(&domain.Channel{}).
			Where("id = ?", id).
			Updates(fields)
		if res.Error != nil {
			if isUniqueViolation(res.Error) {
				return nil, ErrDuplicateName
			}
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			return nil, gorm.ErrRecordNotFound
		}
	}
	return GetChannel(ctx, db, id)
}

// CountChannels returns the total number of channels. Used by the health
// endpoint's aggregate counts.
func CountChannels(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.Channel{}).Count(&total).Error
	return total, err
}
