// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate/statistics queries used
// for conditional responses (ETag generation) in the HTTP layer and for the
// health endpoint's counts. Each function is context-aware and safe to call
// from services or handlers.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/crewchat/go-team-chat/internal/domain"
)

// ChannelMessagesStats returns aggregate metadata for the messages of a
// channel: the total number of rows and the maximum UpdatedAt timestamp
// among those rows. When the channel has no messages, the returned count is
// 0 and maxUpdatedAt is nil.
//
// Return values:
//   - count:        total messages addressed to channelID
//   - maxUpdatedAt: pointer to the greatest UpdatedAt, or nil if no rows
//   - err:          database error, if any
func ChannelMessagesStats(ctx context.Context, db *gorm.DB, channelID string) (count int64, maxUpdatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Message{}).Where("channel_id = ?", channelID)

	// Count
	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	if err = q.Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}

// StoreCounts bundles the aggregate row counts reported by the health
// endpoint.
type StoreCounts struct {
	Users    int64 `json:"users"`
	Channels int64 `json:"channels"`
	Messages int64 `json:"messages"`
}

// Counts returns the total number of users, channels, and messages.
func Counts(ctx context.Context, db *gorm.DB) (StoreCounts, error) {
	var out StoreCounts
	var err error
	if out.Users, err = CountUsers(ctx, db); err != nil {
		return out, err
	}
	if out.Channels, err = CountChannels(ctx, db); err != nil {
		return out, err
	}
	if out.Messages, err = CountMessages(ctx, db); err != nil {
		return out, err
	}
	return out, nil
}
