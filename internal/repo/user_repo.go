// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the User model.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/crewchat/go-team-chat/internal/domain"
)

// EnsureUser inserts a user row for id if it is absent and is a no-op
// otherwise. Identity issuance is external, so this runs on first
// authentication. The returned bool reports whether the row was actually
// created (the profile insert event fires only the first time).
func EnsureUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, bool, error) {
	u := &domain.User{
		ID:        id,
		Status:    domain.StatusOffline,
		CreatedAt: time.Now().UTC(),
	}
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoNothing: true,
		}).
		Create(u)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected == 0 {
		existing, err := GetUser(ctx, db, id)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	return u, true, nil
}

// GetUser fetches a user by id, or ErrNotFound.
func GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// UpdateUserStatus sets the presence status of a user and returns the
// updated row. Returns ErrNotFound if the user does not exist.
func UpdateUserStatus(ctx context.Context, db *gorm.DB, id, status string) (*domain.User, error) {
	res := db.WithContext(ctx).
		Model(&domain.User{}).
		Where("id = ?", id).
		Update("status", status)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return GetUser(ctx, db, id)
}

// ListUserIDs returns the ids of every known user. Used when a channel
// flips to (or is created) public and memberships are backfilled.
func ListUserIDs(ctx context.Context, db *gorm.DB) ([]string, error) {
	var ids []string
	err := db.WithContext(ctx).
		Model(&domain.User{}).
		Order("id asc").
		Pluck("id", &ids).Error
	return ids, err
}

// CountUsers returns the total number of users. Used by the health
// endpoint's aggregate counts.
func CountUsers(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.User{}).Count(&total).Error
	return total, err
}
