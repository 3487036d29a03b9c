// User HTTP handlers.
//
// This file exposes the self-service user endpoints:
//   - POST /users/me           (register / ensure the caller's profile exists)
//   - PUT  /users/me/status    (presence update: online, away, offline)
//
// Registration is idempotent: repeating POST /users/me for an existing user
// returns the stored profile. First-time registration also auto-joins the
// caller to every public channel.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/crewchat/go-team-chat/internal/domain"
	"github.com/crewchat/go-team-chat/internal/services"
)

// UpdateStatusRequest is the JSON payload for a presence update.
type UpdateStatusRequest struct {
	// Status must be one of: online, away, offline.
	Status string `json:"status" binding:"required" example:"away"`
}

// UserResponse is the JSON envelope for a single user profile.
type UserResponse struct {
	User *domain.User `json:"user"`
}

// RegisterMe godoc
// @ID          registerMe
// @Summary     Register (or ensure) the caller's profile
// @Description Creates the caller's profile if it does not exist yet and
// @Description auto-joins them to all public channels. Safe to repeat.
// @Tags        Users
// @Produce     json
// @Param       X-User-ID  header  string  true  "Authenticated user id"
// @Success     200  {object}  handlers.UserResponse
// @Failure     401  {object}  handlers.ErrorResponse
// @Router      /users/me [post]
func (h *Handlers) RegisterMe(c *gin.Context) {
	ctx := c.Request.Context()
	uid, okUser := requireUser(c)
	if !okUser {
		return
	}

	u, err := h.usrSvc.EnsureUser(ctx, uid)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, UserResponse{User: u})
}

// UpdateStatus godoc
// @ID          updateStatus
// @Summary     Update the caller's presence status
// @Description Sets the caller's status to one of online, away, offline and
// @Description fans the change out to interested subscribers.
// @Tags        Users
// @Accept      json
// @Produce     json
// @Param       X-User-ID  header  string  true  "Authenticated user id"
// @Param       body       body    handlers.UpdateStatusRequest  true  "New status"
// @Success     200  {object}  handlers.UserResponse
// @Failure     400  {object}  handlers.ErrorResponse "Unknown status value"
// @Failure     401  {object}  handlers.ErrorResponse
// @Router      /users/me/status [put]
func (h *Handlers) UpdateStatus(c *gin.Context) {
	ctx := c.Request.Context()
	uid, okUser := requireUser(c)
	if !okUser {
		return
	}

	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "status required")
		return
	}

	u, err := h.usrSvc.SetStatus(ctx, uid, req.Status)
	if err != nil {
		switch err {
		case services.ErrInvalidStatus:
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "status must be one of: online, away, offline")
		case services.ErrNotFound:
			fail(c, http.StatusNotFound, ErrCodeNotFound, "user not found")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	ok(c, http.StatusOK, UserResponse{User: u})
}
