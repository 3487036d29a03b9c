// Channel HTTP handlers.
//
// This file exposes REST endpoints for the channel directory:
//   - POST   /channels          (create)
//   - GET    /channels          (list channels visible to the caller)
//   - GET    /channels/{id}     (fetch one visible channel)
//   - PATCH  /channels/{id}     (update metadata; creator/admin only)
//
// Handlers are transport-thin: they validate input, call application
// services, and translate results into HTTP responses. Invisible channels
// are reported as 404, identical to missing ones.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/crewchat/go-team-chat/internal/domain"
	"github.com/crewchat/go-team-chat/internal/services"
)

//
// DTOs
//

// CreateChannelRequest is the JSON payload for creating a channel.
type CreateChannelRequest struct {
	// Name is the channel name; unique after case folding.
	Name string `json:"name" binding:"required,min=1" example:"design"`
	// IsPrivate hides the channel from non-members when true.
	IsPrivate bool `json:"is_private" example:"false"`
}

// UpdateChannelRequest is the JSON payload for updating channel metadata.
// Absent fields are left untouched.
type UpdateChannelRequest struct {
	Name      *string `json:"name,omitempty"`
	IsPrivate *bool   `json:"is_private,omitempty"`
}

// ChannelResponse is the JSON envelope for a single channel.
type ChannelResponse struct {
	Channel *domain.Channel `json:"channel"`
}

// ListChannelsResponse contains all channels visible to the caller.
type ListChannelsResponse struct {
	Channels []domain.Channel `json:"channels"`
}

//
// Handlers
//

// CreateChannel godoc
// @ID          createChannel
// @Summary     Create a channel
// @Description Creates a channel owned by the caller, who becomes its first
// @Description admin member. Public channels are auto-joined by all users.
// @Tags        Channels
// @Accept      json
// @Produce     json
// @Param       X-User-ID  header  string  true  "Authenticated user id"
// @Param       body       body    handlers.CreateChannelRequest  true  "Channel payload"
// @Success     201  {object}  handlers.ChannelResponse
// @Failure     400  {object}  handlers.ErrorResponse "Bad request"
// @Failure     409  {object}  handlers.ErrorResponse "Name already exists"
// @Router      /channels [post]
func (h *Handlers) CreateChannel(c *gin.Context) {
	ctx := c.Request.Context()
	uid, okUser := requireUser(c)
	if !okUser {
		return
	}

	var req CreateChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "name required")
		return
	}

	ch, err := h.chSvc.Create(ctx, uid, req.Name, req.IsPrivate)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrEmptyName):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "name required")
		case errors.Is(err, services.ErrDuplicateName):
			fail(c, http.StatusConflict, ErrCodeConflict, "channel name already exists")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
		}
		return
	}
	ok(c, http.StatusCreated, ChannelResponse{Channel: ch})
}

// ListChannels godoc
// @ID          listChannels
// @Summary     List visible channels
// @Description Returns all public channels plus private channels the caller
// @Description belongs to.
// @Tags        Channels
// @Produce     json
// @Param       X-User-ID  header  string  true  "Authenticated user id"
// @Success     200  {object}  handlers.ListChannelsResponse
// @Router      /channels [get]
func (h *Handlers) ListChannels(c *gin.Context) {
	ctx := c.Request.Context()
	uid, okUser := requireUser(c)
	if !okUser {
		return
	}

	channels, err := h.chSvc.ListVisible(ctx, uid)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	if channels == nil {
		channels = []domain.Channel{}
	}
	ok(c, http.StatusOK, ListChannelsResponse{Channels: channels})
}

// GetChannel godoc
// @ID          getChannel
// @Summary     Fetch one channel
// @Tags        Channels
// @Produce     json
// @Param       X-User-ID  header  string  true  "Authenticated user id"
// @Param       id         path    string  true  "Channel ID (UUID)"  format(uuid)
// @Success     200  {object}  handlers.ChannelResponse
// @Failure     404  {object}  handlers.ErrorResponse "Not found (or not visible)"
// @Router      /channels/{id} [get]
func (h *Handlers) GetChannel(c *gin.Context) {
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

	ch, err := h.chSvc.Get(ctx, uid, channelID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "channel not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, ChannelResponse{Channel: ch})
}

// UpdateChannel godoc
// @ID          updateChannel
// @Summary     Update channel metadata
// @Description Renames a channel or flips its privacy flag. Restricted to
// @Description the creator or an admin member.
// @Tags        Channels
// @Accept      json
// @Produce     json
// @Param       X-User-ID  header  string  true  "Authenticated user id"
// @Param       id         path    string  true  "Channel ID (UUID)"  format(uuid)
// @Param       body       body    handlers.UpdateChannelRequest  true  "Fields to update"
// @Success     200  {object}  handlers.ChannelResponse
// @Failure     403  {object}  handlers.ErrorResponse "Not creator/admin"
// @Failure     404  {object}  handlers.ErrorResponse "Not found (or not visible)"
// @Failure     409  {object}  handlers.ErrorResponse "Name already exists"
// @Router      /channels/{id} [patch]
func (h *Handlers) UpdateChannel(c *gin.Context) {
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

	var req UpdateChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid payload")
		return
	}
	if req.Name == nil && req.IsPrivate == nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "no fields to update")
		return
	}

	ch, err := h.chSvc.Update(ctx, uid, channelID, services.ChannelUpdate{
		Name:      req.Name,
		IsPrivate: req.IsPrivate,
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "channel not found")
		case errors.Is(err, services.ErrUnauthorized):
			fail(c, http.StatusForbidden, ErrCodeForbidden, "only the creator or an admin may update a channel")
		case errors.Is(err, services.ErrEmptyName):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "name required")
		case errors.Is(err, services.ErrDuplicateName):
			fail(c, http.StatusConflict, ErrCodeConflict, "channel name already exists")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	ok(c, http.StatusOK, ChannelResponse{Channel: ch})
}
