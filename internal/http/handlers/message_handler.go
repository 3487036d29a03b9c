// Message HTTP handlers.
//
// This file exposes REST endpoints for the message log:
//   - POST   /messages                   (send to a channel or a recipient)
//   - PATCH  /messages/{id}              (author-only content edit)
//   - DELETE /messages/{id}              (author-only delete)
//   - GET    /channels/{id}/messages     (paginated channel history)
//   - GET    /dm/{peer}/messages         (paginated DM history with one peer)
//   - GET    /dm                         (the caller's DM conversations)
//
// Handlers are transport-thin:
//   - validate & normalize inputs (including newline and length constraints)
//   - delegate to application services (MessageService)
//   - implement conditional responses (ETag) and idempotency semantics
//
// Idempotency:
// If the client supplies an Idempotency-Key header and a previous successful
// result exists for (user, target scope, key), the handler returns that
// recorded message and sets `Idempotency-Replayed: true`.
package handlers

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/crewchat/go-team-chat/internal/domain"
	"github.com/crewchat/go-team-chat/internal/http/middleware"
	"github.com/crewchat/go-team-chat/internal/repo"
	"github.com/crewchat/go-team-chat/internal/services"
	"github.com/crewchat/go-team-chat/internal/utils"
)

//
// DTOs
//

// SendMessageRequest is the JSON payload for sending a message. Exactly one
// of ChannelID/RecipientID must be set.
type SendMessageRequest struct {
	// Content is the message text. It must be non-empty.
	Content string `json:"content" binding:"required,min=1" example:"shipping the new build today"`
	// ChannelID targets a channel.
	ChannelID string `json:"channel_id,omitempty" format:"uuid"`
	// RecipientID targets a single user.
	RecipientID string `json:"recipient_id,omitempty" example:"u-bob"`
}

// EditMessageRequest is the JSON payload for an author-only content edit.
type EditMessageRequest struct {
	Content string `json:"content" binding:"required,min=1"`
}

// MessageResponse is the JSON envelope for a single message.
type MessageResponse struct {
	Message *domain.Message `json:"message"`
}

// ListMessagesResponse contains a page of messages and pagination metadata.
type ListMessagesResponse struct {
	Messages   []domain.Message `json:"messages"`
	Pagination Pagination       `json:"pagination"`
}

// ListConversationsResponse contains the caller's DM conversations.
type ListConversationsResponse struct {
	Conversations []domain.DMConversation `json:"conversations"`
}

//
// Helpers
//

// clampMsgPagination parses page/page_size from query parameters, applies sane
// defaults and caps, and returns the validated (page, pageSize).
func clampMsgPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 50
		maxPageSize     = 200
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

// nlCollapseRE collapses runs of 3+ newlines to two, preserving paragraphs.
var nlCollapseRE = regexp.MustCompile(`\n{3,}`)

// sanitizeContent normalizes user text for consistent downstream behavior:
//   - converts CRLF/CR to LF,
//   - collapses runs of 3+ LFs to exactly two (paragraph separation),
//   - trims surrounding whitespace.
func sanitizeContent(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = nlCollapseRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// discoverMaxContentRunes inspects the concrete MessageService for a
// configured content-length limit. If unavailable, it returns a conservative
// fallback.
func discoverMaxContentRunes(msgSvc MessageService) int {
	const fallback = 4000
	if ms, ok := msgSvc.(*services.MessageService); ok {
		if ms.MaxContentRunes > 0 {
			return ms.MaxContentRunes
		}
	}
	return fallback
}

// idempotencyScope names the message target for the dedupe key.
func idempotencyScope(t services.MessageTarget) string {
	if t.ChannelID != "" {
		return "channel:" + t.ChannelID
	}
	return "dm:" + t.RecipientID
}

// middlewareGetIdempotencyKey extracts an idempotency key validated by the
// IdempotencyValidator middleware, falling back to the raw header when the
// middleware is not mounted (e.g. in handler-level tests).
func middlewareGetIdempotencyKey(c *gin.Context) (string, bool) {
	if k, okKey := middleware.GetIdempotencyKey(c); okKey {
		return k, true
	}
	if v := strings.TrimSpace(c.GetHeader(middleware.HeaderIdempotencyKey)); v != "" {
		return v, true
	}
	return "", false
}

//
// Handlers
//

// SendMessage godoc
// @ID          sendMessage
// @Summary     Send a message
// @Description Commits one message to a channel or a direct recipient.
// @Description Authorization is checked atomically with the append; an
// @Description unauthorized send is an explicit 403, never silent.
// @Description Supports idempotency via the Idempotency-Key header.
// @Tags        Messages
// @Accept      json
// @Produce     json
// @Param       X-User-ID        header  string  true   "Authenticated user id"
// @Param       Idempotency-Key  header  string  false  "Idempotency key for safe retries"
// @Param       body             body    handlers.SendMessageRequest  true  "Message payload"
// @Success     201  {object}  handlers.MessageResponse
// @Failure     400  {object}  handlers.ErrorResponse "Bad request / invalid target"
// @Failure     403  {object}  handlers.ErrorResponse "Not authorized to post"
// @Router      /messages [post]
func (h *Handlers) SendMessage(c *gin.Context) {
	ctx := c.Request.Context()
	uid, okUser := requireUser(c)
	if !okUser {
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content required")
		return
	}
	target := services.MessageTarget{ChannelID: req.ChannelID, RecipientID: req.RecipientID}
	if (req.ChannelID != "") == (req.RecipientID != "") {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "exactly one of channel_id or recipient_id must be set")
		return
	}

	// Sanitize + early size cap to fail fast at the edge.
	content := sanitizeContent(req.Content)
	maxRunes := discoverMaxContentRunes(h.msgSvc)
	if maxRunes > 0 && utf8.RuneCountInString(content) > maxRunes {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, fmt.Sprintf("content too long: max %d runes", maxRunes))
		return
	}
	if content == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content required")
		return
	}

	// Idempotency (replay path) – read validated key if present.
	scope := idempotencyScope(target)
	idemKey, _ := middlewareGetIdempotencyKey(c)
	if idemKey != "" {
		if svc, okSvc := h.msgSvc.(*services.MessageService); okSvc && svc.DB != nil {
			if rec, err := repo.GetIdempotency(ctx, svc.DB, uid, scope, idemKey, time.Now().UTC()); err == nil && rec != nil {
				if prev, err2 := repo.GetMessage(ctx, svc.DB, rec.MessageID); err2 == nil {
					c.Header("Idempotency-Replayed", "true")
					ok(c, http.StatusCreated, MessageResponse{Message: prev})
					return
				}
			}
		}
	}

	m, err := h.msgSvc.Send(ctx, uid, target, content)
	if err != nil {
		switch err {
		case services.ErrUnauthorized:
			fail(c, http.StatusForbidden, ErrCodeForbidden, "not authorized to post to this target")
		case services.ErrInvalidTarget:
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "exactly one of channel_id or recipient_id must be set")
		case services.ErrEmptyContent:
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content required")
		case services.ErrTooLong:
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, fmt.Sprintf("content too long: max %d runes", maxRunes))
		default:
			fail(c, http.StatusInternalServerError, ErrCodeSendFailed, err.Error())
		}
		return
	}

	// Idempotency (store path) – best effort.
	if idemKey != "" {
		if svc, okSvc := h.msgSvc.(*services.MessageService); okSvc && svc.DB != nil {
			ttl := 24 * time.Hour
			_, _ = repo.CreateIdempotency(ctx, svc.DB, uid, scope, idemKey, m.ID, http.StatusCreated, ttl)
		}
	}

	ok(c, http.StatusCreated, MessageResponse{Message: m})
}

// ListChannelMessages godoc
// @ID          listChannelMessages
// @Summary     List messages in a channel
// @Description Returns a paginated, viewer-filtered page of channel messages
// @Description in (created_at, id) order. A caller without visibility
// @Description receives an empty page, not an error.
// @Tags        Messages
// @Produce     json
// @Param       X-User-ID  header  string  true   "Authenticated user id"
// @Param       id         path    string  true   "Channel ID (UUID)"  format(uuid)
// @Param       page       query   int     false  "Page number"        minimum(1) default(1)
// @Param       page_size  query   int     false  "Items per page"     minimum(1) maximum(200) default(50)
// @Success     200  {object}  handlers.ListMessagesResponse
// @Router      /channels/{id}/messages [get]
func (h *Handlers) ListChannelMessages(c *gin.Context) {
	ctx := c.Request.Context()
	uid, okUser := requireUser(c)
	if !okUser {
		return
	}
	channelID := c.Param("id")
	if _, err := uuid.Parse(channelID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "channel id must be a UUID")
		return
	}

	// ETag pre-check (best effort). Gated on visibility so the tag never
	// discloses message counts of channels the caller cannot see.
	var db *gorm.DB
	if svc, okSvc := h.msgSvc.(*services.MessageService); okSvc && svc.Kernel != nil {
		if visible, err := svc.Kernel.CanViewChannelID(ctx, uid, channelID); err == nil && visible {
			db = svc.DB
		}
	}
	if db != nil {
		count, maxTS, err := repo.ChannelMessagesStats(ctx, db, channelID)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			etag := fmt.Sprintf(`W/"messages:%s:%d:%d"`, channelID, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	page, pageSize := clampMsgPagination(c)
	items, total, err := h.msgSvc.List(ctx, uid, services.MessageTarget{ChannelID: channelID}, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	if items == nil {
		items = []domain.Message{}
	}
	ok(c, http.StatusOK, ListMessagesResponse{
		Messages:   items,
		Pagination: newPagination(page, pageSize, total),
	})
}

// ListDirectMessages godoc
// @ID          listDirectMessages
// @Summary     List direct messages with one peer
// @Description Returns the caller's DM history with the peer, both
// @Description directions, in (created_at, id) order.
// @Tags        Messages
// @Produce     json
// @Param       X-User-ID  header  string  true   "Authenticated user id"
// @Param       peer       path    string  true   "Peer user id"
// @Param       page       query   int     false  "Page number"     minimum(1) default(1)
// @Param       page_size  query   int     false  "Items per page"  minimum(1) maximum(200) default(50)
// @Success     200  {object}  handlers.ListMessagesResponse
// @Router      /dm/{peer}/messages [get]
func (h *Handlers) ListDirectMessages(c *gin.Context) {
	ctx := c.Request.Context()
	uid, okUser := requireUser(c)
	if !okUser {
		return
	}
	peer := c.Param("peer")
	if peer == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "peer user id required")
		return
	}

	page, pageSize := clampMsgPagination(c)
	items, total, err := h.msgSvc.List(ctx, uid, services.MessageTarget{RecipientID: peer}, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	if items == nil {
		items = []domain.Message{}
	}
	ok(c, http.StatusOK, ListMessagesResponse{
		Messages:   items,
		Pagination: newPagination(page, pageSize, total),
	})
}

// ListConversations godoc
// @ID          listConversations
// @Summary     List the caller's DM conversations
// @Tags        Messages
// @Produce     json
// @Param       X-User-ID  header  string  true  "Authenticated user id"
// @Success     200  {object}  handlers.ListConversationsResponse
// @Router      /dm [get]
func (h *Handlers) ListConversations(c *gin.Context) {
	ctx := c.Request.Context()
	uid, okUser := requireUser(c)
	if !okUser {
		return
	}

	convs, err := h.msgSvc.ListConversations(ctx, uid)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	if convs == nil {
		convs = []domain.DMConversation{}
	}
	ok(c, http.StatusOK, ListConversationsResponse{Conversations: convs})
}

// EditMessage godoc
// @ID          editMessage
// @Summary     Edit a message (author only)
// @Tags        Messages
// @Accept      json
// @Produce     json
// @Param       X-User-ID  header  string  true  "Authenticated user id"
// @Param       id         path    string  true  "Message ID (UUID)"  format(uuid)
// @Param       body       body    handlers.EditMessageRequest  true  "New content"
// @Success     200  {object}  handlers.MessageResponse
// @Failure     403  {object}  handlers.ErrorResponse "Not the author"
// @Failure     404  {object}  handlers.ErrorResponse "Not found (or not visible)"
// @Router      /messages/{id} [patch]
func (h *Handlers) EditMessage(c *gin.Context) {
	ctx := c.Request.Context()
	uid, okUser := requireUser(c)
	if !okUser {
		return
	}
	messageID := c.Param("id")
	if _, err := uuid.Parse(messageID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message id must be a UUID")
		return
	}

	var req EditMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content required")
		return
	}
	content := sanitizeContent(req.Content)
	if content == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content required")
		return
	}

	m, err := h.msgSvc.Edit(ctx, uid, messageID, content)
	if err != nil {
		switch err {
		case services.ErrNotFound:
			fail(c, http.StatusNotFound, ErrCodeNotFound, "message not found")
		case services.ErrUnauthorized:
			fail(c, http.StatusForbidden, ErrCodeForbidden, "only the author may edit a message")
		case services.ErrTooLong:
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content too long")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	ok(c, http.StatusOK, MessageResponse{Message: m})
}

// DeleteMessage godoc
// @ID          deleteMessage
// @Summary     Delete a message (author only)
// @Tags        Messages
// @Produce     json
// @Param       X-User-ID  header  string  true  "Authenticated user id"
// @Param       id         path    string  true  "Message ID (UUID)"  format(uuid)
// @Success     204
// @Failure     403  {object}  handlers.ErrorResponse "Not the author"
// @Failure     404  {object}  handlers.ErrorResponse "Not found (or not visible)"
// @Router      /messages/{id} [delete]
func (h *Handlers) DeleteMessage(c *gin.Context) {
	ctx := c.Request.Context()
	uid, okUser := requireUser(c)
	if !okUser {
		return
	}
	messageID := c.Param("id")
	if _, err := uuid.Parse(messageID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message id must be a UUID")
		return
	}

	if err := h.msgSvc.Delete(ctx, uid, messageID); err != nil {
		switch err {
		case services.ErrNotFound:
			fail(c, http.StatusNotFound, ErrCodeNotFound, "message not found")
		case services.ErrUnauthorized:
			fail(c, http.StatusForbidden, ErrCodeForbidden, "only the author may delete a message")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	noContent(c)
}
