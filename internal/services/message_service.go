// Package services – MessageService
//
// This file implements MessageService, the application-level component that
// owns the message log. Sends validate the target and content, evaluate the
// kernel's CanPostMessage immediately before the commit (so authorization
// and write are effectively atomic — a concurrent membership removal cannot
// retroactively reject a committed message), append the row, and for direct
// messages upsert the conversation tracker in the same transaction. The
// change event is published only after the transaction commits.
//
// Reads intersect the store result with CanViewMessage per row even though
// the query is already target-scoped — defense in depth against an upstream
// caller that forgot to filter.
//
// Observability: public methods are OpenTelemetry-instrumented; spans
// include author/viewer identifiers and target attributes.
package services

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/crewchat/go-team-chat/internal/access"
	"github.com/crewchat/go-team-chat/internal/domain"
	"github.com/crewchat/go-team-chat/internal/events"
	"github.com/crewchat/go-team-chat/internal/repo"
)

// MessageTarget addresses a send or list operation: exactly one field set.
type MessageTarget struct {
	ChannelID   string
	RecipientID string
}

// valid reports whether exactly one addressing field is set.
func (t MessageTarget) valid() bool {
	return (t.ChannelID != "") != (t.RecipientID != "")
}

// MessageService coordinates message persistence, DM conversation tracking,
// and viewer-filtered retrieval.
type MessageService struct {
	DB     *gorm.DB
	Kernel *access.Kernel
	Bus    *events.Bus

	// MaxContentRunes caps message content length; 0 disables the cap.
	MaxContentRunes int
}

// NewMessageService constructs a MessageService with a sane content cap.
func NewMessageService(db *gorm.DB, kernel *access.Kernel, bus *events.Bus) *MessageService {
	return &MessageService{
		DB:              db,
		Kernel:          kernel,
		Bus:             bus,
		MaxContentRunes: 4000,
	}
}

// Send validates, authorizes, and commits one message from author to the
// given target. Unauthorized writes fail loudly with ErrUnauthorized —
// unlike reads, a rejected write is never silent.
func (s *MessageService) Send(ctx context.Context, author string, target MessageTarget, content string) (*domain.Message, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "Send",
		trace.WithAttributes(
			attribute.String("user.id", author),
			attribute.Bool("message.dm", target.RecipientID != ""),
		),
	)
	defer span.End()

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyContent
	}
	if s.MaxContentRunes > 0 && utf8.RuneCountInString(content) > s.MaxContentRunes {
		return nil, ErrTooLong
	}
	if !target.valid() {
		return nil, ErrInvalidTarget
	}

	msg := &domain.Message{
		Content:   content,
		AuthorID:  author,
		CreatedAt: time.Now().UTC(),
	}
	if target.ChannelID != "" {
		cid := target.ChannelID
		msg.ChannelID = &cid
	} else {
		rid := target.RecipientID
		msg.RecipientID = &rid
	}

	// Authorize and append inside one transaction so no membership change
	// can slip between the check and the commit.
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		kernel := &access.Kernel{DB: tx, AllowSelfDM: s.Kernel.AllowSelfDM}
		ok, err := kernel.CanPostMessage(ctx, author, msg)
		if err != nil {
			return err
		}
		if !ok {
			return ErrUnauthorized
		}
		if _, err := repo.AppendMessage(ctx, tx, msg); err != nil {
			return err
		}
		if msg.HasRecipientTarget() {
			return repo.UpsertConversation(ctx, tx, author, *msg.RecipientID, msg.CreatedAt)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, repo.ErrInvalidTarget) {
			return nil, ErrInvalidTarget
		}
		return nil, err
	}

	s.Bus.Publish(domain.MessageEvent(domain.OpInsert, msg))
	return msg, nil
}

// List returns a page of messages for the target, in non-decreasing
// (created_at, id) order, intersected with the viewer's visibility. An
// unauthorized viewer receives an empty page, never an error.
func (s *MessageService) List(ctx context.Context, viewer string, target MessageTarget, page, pageSize int) ([]domain.Message, int64, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "List",
		trace.WithAttributes(
			attribute.String("user.id", viewer),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if !target.valid() {
		return nil, 0, ErrInvalidTarget
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 50
	}
	offset := (page - 1) * pageSize

	var (
		items []domain.Message
		total int64
		err   error
	)
	if target.ChannelID != "" {
		// Cheap pre-check keeps unauthorized viewers from paging through
		// row counts; the per-row filter below still runs.
		visible, err := s.Kernel.CanViewChannelID(ctx, viewer, target.ChannelID)
		if err != nil {
			return nil, 0, err
		}
		if !visible {
			return []domain.Message{}, 0, nil
		}
		total, err = repo.CountChannelMessages(ctx, s.DB, target.ChannelID)
		if err != nil {
			return nil, 0, err
		}
		items, err = repo.ListChannelMessages(ctx, s.DB, target.ChannelID, offset, pageSize)
		if err != nil {
			return nil, 0, err
		}
	} else {
		total, err = repo.CountDirectMessages(ctx, s.DB, viewer, target.RecipientID)
		if err != nil {
			return nil, 0, err
		}
		items, err = repo.ListDirectMessages(ctx, s.DB, viewer, target.RecipientID, offset, pageSize)
		if err != nil {
			return nil, 0, err
		}
	}

	items, err = s.Kernel.FilterMessages(ctx, viewer, items)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// Edit rewrites the content of a message. Author-only: anyone else receives
// ErrUnauthorized when they can see the message and ErrNotFound when they
// cannot.
func (s *MessageService) Edit(ctx context.Context, actor, messageID, content string) (*domain.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyContent
	}
	if s.MaxContentRunes > 0 && utf8.RuneCountInString(content) > s.MaxContentRunes {
		return nil, ErrTooLong
	}

	msg, err := s.visibleMessage(ctx, actor, messageID)
	if err != nil {
		return nil, err
	}
	if msg.AuthorID != actor {
		return nil, ErrUnauthorized
	}

	if err := repo.UpdateMessageContent(ctx, s.DB, messageID, actor, content); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	msg.Content = content

	s.Bus.Publish(domain.MessageEvent(domain.OpUpdate, msg))
	return msg, nil
}

// Delete removes a message. Author-only, same denial shape as Edit. The
// delete event carries the pre-mutation row.
func (s *MessageService) Delete(ctx context.Context, actor, messageID string) error {
	msg, err := s.visibleMessage(ctx, actor, messageID)
	if err != nil {
		return err
	}
	if msg.AuthorID != actor {
		return ErrUnauthorized
	}

	removed, err := repo.DeleteMessage(ctx, s.DB, messageID, actor)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}

	s.Bus.Publish(domain.MessageEvent(domain.OpDelete, removed))
	return nil
}

// ListConversations returns the caller's DM conversations, most recently
// active first.
func (s *MessageService) ListConversations(ctx context.Context, user string) ([]domain.DMConversation, error) {
	return repo.ListConversationsFor(ctx, s.DB, user)
}

// visibleMessage fetches a message and applies the viewer's visibility;
// missing and invisible are both ErrNotFound.
func (s *MessageService) visibleMessage(ctx context.Context, viewer, messageID string) (*domain.Message, error) {
	msg, err := repo.GetMessage(ctx, s.DB, messageID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	visible, err := s.Kernel.CanViewMessage(ctx, viewer, msg)
	if err != nil {
		return nil, err
	}
	if !visible {
		return nil, ErrNotFound
	}
	return msg, nil
}
