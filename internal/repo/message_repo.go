// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Message
// model.
//
// Messages are append-only. Queries return rows in non-decreasing
// (created_at, id) order — the id is the tie-break for messages that share
// a timestamp, so the order is total and stable across repeated reads.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/crewchat/go-team-chat/internal/domain"
)

// ErrInvalidTarget indicates a message with zero or two targets: exactly one
// of channel id / recipient id must be set.
var ErrInvalidTarget = errors.New("message must target exactly one of channel or recipient")

// messageOrder is the total order every message query returns rows in.
const messageOrder = "created_at asc, id asc"

// AppendMessage inserts a message row. The XOR target invariant is
// re-checked here even though the service validates it first — the store is
// the last line of defense against a caller that bypassed validation.
// Authorization (CanPostMessage) must have been evaluated by the caller
// immediately before this commit.
func AppendMessage(ctx context.Context, db *gorm.DB, m *domain.Message) (*domain.Message, error) {
	if !m.ValidTarget() {
		return nil, ErrInvalidTarget
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if err := db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

// GetMessage fetches a message by id, or ErrNotFound. Raw read.
func GetMessage(ctx context.Context, db *gorm.DB, id string) (*domain.Message, error) {
	var m domain.Message
	if err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// ListChannelMessages returns a page of messages addressed to channelID in
// (created_at, id) order. Raw read; the service intersects the result with
// the viewer's visibility before returning it.
func ListChannelMessages(ctx context.Context, db *gorm.DB, channelID string, offset, limit int) ([]domain.Message, error) {
	var out []domain.Message
	q := db.WithContext(ctx).
		Where("channel_id = ?", channelID).
		Order(messageOrder).
		Offset(offset)
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// CountChannelMessages returns the number of messages addressed to channelID.
func CountChannelMessages(ctx context.Context, db *gorm.DB, channelID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("channel_id = ?", channelID).
		Count(&total).Error
	return total, err
}

// ListDirectMessages returns a page of direct messages exchanged between the
// two users (in either direction) in (created_at, id) order. Raw read.
func ListDirectMessages(ctx context.Context, db *gorm.DB, userA, userB string, offset, limit int) ([]domain.Message, error) {
	var out []domain.Message
	q := db.WithContext(ctx).
		Where("(author_id = ? AND recipient_id = ?) OR (author_id = ? AND recipient_id = ?)",
			userA, userB, userB, userA).
		Order(messageOrder).
		Offset(offset)
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// CountDirectMessages returns the number of direct messages exchanged
// between the two users in either direction.
func CountDirectMessages(ctx context.Context, db *gorm.DB, userA, userB string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("(author_id = ? AND recipient_id = ?) OR (author_id = ? AND recipient_id = ?)",
			userA, userB, userB, userA).
		Count(&total).Error
	return total, err
}

// UpdateMessageContent rewrites the content of a message authored by
// authorID. The author scoping makes the author-only edit rule atomic with
// the update itself. Returns ErrNotFound when no row matched (missing
// message or wrong author — the two are indistinguishable on purpose).
func UpdateMessageContent(ctx context.Context, db *gorm.DB, id, authorID, content string) error {
	res := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("id = ? AND author_id = ?", id, authorID).
		Update("content", content)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteMessage removes a message authored by authorID and returns the
// removed row for the delete event's pre-image. Returns ErrNotFound when no
// row matched.
func DeleteMessage(ctx context.Context, db *gorm.DB, id, authorID string) (*domain.Message, error) {
	m, err := GetMessage(ctx, db, id)
	if err != nil {
		return nil, err
	}
	res := db.WithContext(ctx).
		Where("id = ? AND author_id = ?", id, authorID).
		Delete(&domain.Message{})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return m, nil
}

// CountMessages returns the total number of stored messages. Used by the
// health endpoint's aggregate counts.
func CountMessages(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.Message{}).Count(&total).Error
	return total, err
}
