// Package handlers provides HTTP handler implementations for the public API.
//
// This file defines the service contracts the transport layer depends on,
// the Handlers aggregate that groups all endpoints, and small shared helpers
// (authenticated-user extraction, pagination envelope). Handlers are
// transport-thin: they validate input, call application services, and
// translate results into HTTP responses.
package handlers

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/crewchat/go-team-chat/internal/domain"
	"github.com/crewchat/go-team-chat/internal/services"
	"github.com/crewchat/go-team-chat/internal/subs"
)

//
// Service contracts (context-aware)
//

// ChannelService defines channel directory operations consumed by HTTP
// handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type ChannelService interface {
	// Create starts a new channel owned by actor.
	Create(ctx context.Context, actor, name string, isPrivate bool) (*domain.Channel, error)
	// Update mutates channel metadata (creator/admin only).
	Update(ctx context.Context, actor, channelID string, upd services.ChannelUpdate) (*domain.Channel, error)
	// Get returns one channel when visible to the viewer.
	Get(ctx context.Context, viewer, channelID string) (*domain.Channel, error)
	// ListVisible returns every channel the viewer may see.
	ListVisible(ctx context.Context, viewer string) ([]domain.Channel, error)
}

// MembershipService defines membership operations consumed by HTTP handlers.
type MembershipService interface {
	// Join adds the caller to a public channel.
	Join(ctx context.Context, user, channelID string) (*domain.Membership, error)
	// Add inserts a membership on behalf of a channel admin.
	Add(ctx context.Context, actor, channelID, userID, role string) (*domain.Membership, error)
	// Remove deletes a membership (self-leave, or admin removal).
	Remove(ctx context.Context, actor, channelID, userID string) error
	// ListMembers returns the members of a channel visible to the viewer.
	ListMembers(ctx context.Context, viewer, channelID string) ([]domain.Membership, error)
	// ListMine returns the caller's own memberships.
	ListMine(ctx context.Context, user string) ([]domain.Membership, error)
}

// MessageService defines message operations consumed by HTTP handlers.
type MessageService interface {
	// Send validates, authorizes, and commits one message.
	Send(ctx context.Context, author string, target services.MessageTarget, content string) (*domain.Message, error)
	// List returns a page of messages for a target, viewer-filtered.
	List(ctx context.Context, viewer string, target services.MessageTarget, page, pageSize int) ([]domain.Message, int64, error)
	// Edit rewrites message content (author only).
	Edit(ctx context.Context, actor, messageID, content string) (*domain.Message, error)
	// Delete removes a message (author only).
	Delete(ctx context.Context, actor, messageID string) error
	// ListConversations returns the caller's DM conversations.
	ListConversations(ctx context.Context, user string) ([]domain.DMConversation, error)
}

// UserService defines profile/presence operations consumed by HTTP handlers.
type UserService interface {
	// EnsureUser lazily creates the profile row on first authentication.
	EnsureUser(ctx context.Context, id string) (*domain.User, error)
	// SetStatus updates the caller's presence status.
	SetStatus(ctx context.Context, id, status string) (*domain.User, error)
}

// Subscriber registers live subscriptions on behalf of stream clients.
type Subscriber interface {
	// Subscribe opens a fresh subscription for userID on topic.
	Subscribe(userID string, topic subs.Topic) (*subs.Subscription, error)
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for channels, memberships, messages,
// profiles, and the live event stream. It depends on abstract service
// interfaces to keep transport concerns separate from business logic.
type Handlers struct {
	chSvc  ChannelService
	mbSvc  MembershipService
	msgSvc MessageService
	usrSvc UserService
	subMgr Subscriber
}

// New constructs and returns a Handlers instance bound to the given services.
func New(chSvc ChannelService, mbSvc MembershipService, msgSvc MessageService, usrSvc UserService, subMgr Subscriber) *Handlers {
	return &Handlers{chSvc: chSvc, mbSvc: mbSvc, msgSvc: msgSvc, usrSvc: usrSvc, subMgr: subMgr}
}

// userID extracts the authenticated user id from Gin context (set by upstream
// middleware). If absent, it falls back to "X-User-ID" header (tests use it),
// and finally to "". Identity issuance is external; this layer trusts the id
// handed down to it.
func userID(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader("X-User-ID")); h != "" {
			return h
		}
	}
	return ""
}

// requireUser extracts the authenticated user id or fails the request with
// 401 when no identity reached this layer.
func requireUser(c *gin.Context) (string, bool) {
	uid := userID(c)
	if uid == "" {
		fail(c, 401, ErrCodeUnauthorized, "missing user identity")
		return "", false
	}
	return uid, true
}

// Pagination is the standard page metadata envelope returned by list
// endpoints.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// newPagination derives the metadata envelope from a total row count.
func newPagination(page, pageSize int, total int64) Pagination {
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}
