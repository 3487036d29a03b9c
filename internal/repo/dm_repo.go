// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// DMConversation model — the symmetric record of a direct-message thread
// between two users.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/crewchat/go-team-chat/internal/domain"
)

// CanonicalPair returns the order-independent key for an unordered user
// pair: (min(a,b), max(a,b)) under the ordinary string order on user ids.
// Every caller computing a key for the same two users converges to the same
// conversation row regardless of argument order.
func CanonicalPair(a, b string) (low, high string) {
	if a <= b {
		return a, b
	}
	return b, a
}

// UpsertConversation records a direct message between userA and userB sent
// at the given time. The operation is a single atomic insert-or-update keyed
// on the canonical pair:
//
//	INSERT ... ON CONFLICT(user_low, user_high)
//	DO UPDATE SET last_message_at = MAX(last_message_at, excluded.last_message_at)
//
// Two concurrent first messages for the same pair therefore resolve into
// exactly one surviving row with no error raised to either caller, and
// last_message_at only ever advances.
func UpsertConversation(ctx context.Context, db *gorm.DB, userA, userB string, at time.Time) error {
	low, high := CanonicalPair(userA, userB)
	conv := &domain.DMConversation{
		ID:            uuid.NewString(),
		UserLow:       low,
		UserHigh:      high,
		LastMessageAt: at.UTC(),
		CreatedAt:     time.Now().UTC(),
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_low"}, {Name: "user_high"}},
			DoUpdates: clause.Assignments(map[string]any{
				"last_message_at": gorm.Expr("MAX(last_message_at, excluded.last_message_at)"),
			}),
		}).
		Create(conv).Error
}

// GetConversation fetches the conversation row for the unordered pair
// (userA, userB), or ErrNotFound. Raw read.
func GetConversation(ctx context.Context, db *gorm.DB, userA, userB string) (*domain.DMConversation, error) {
	low, high := CanonicalPair(userA, userB)
	var conv domain.DMConversation
	err := db.WithContext(ctx).
		Where("user_low = ? AND user_high = ?", low, high).
		First(&conv).Error
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// ListConversationsFor returns every conversation userID participates in,
// most recently active first. A user may always list their own
// conversations; no further filtering is needed.
func ListConversationsFor(ctx context.Context, db *gorm.DB, userID string) ([]domain.DMConversation, error) {
	var out []domain.DMConversation
	err := db.WithContext(ctx).
		Where("user_low = ? OR user_high = ?", userID, userID).
		Order("last_message_at desc").
		Find(&out).Error
	return out, err
}
