// Membership HTTP handlers.
//
// This file exposes REST endpoints for channel memberships:
//   - POST   /channels/{id}/members            (join self, or admin-add another user)
//   - DELETE /channels/{id}/members/{userID}   (leave, or admin-remove)
//   - GET    /channels/{id}/members            (list members of a visible channel)
//   - GET    /memberships                      (list the caller's memberships)
//
// Join semantics: omitting user_id (or passing the caller's own id) joins the
// caller; public channels accept anyone, private channels only admin-adds.
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

// AddMemberRequest is the JSON payload for joining or adding a member.
type AddMemberRequest struct {
	// UserID names the user to add; empty means the caller joins themself.
	UserID string `json:"user_id,omitempty" example:"u-bob"`
	// Role is "admin" or "member"; defaults to "member".
	Role string `json:"role,omitempty" example:"member"`
}

// MembershipResponse is the JSON envelope for a single membership.
type MembershipResponse struct {
	Membership *domain.Membership `json:"membership"`
}

// ListMembershipsResponse contains membership rows.
type ListMembershipsResponse struct {
	Memberships []domain.Membership `json:"memberships"`
}

//
// Handlers
//

// AddMember godoc
// @ID          addMember
// @Summary     Join a channel or add a member
// @Description With no user_id (or the caller's own), joins the caller into a
// @Description public channel. With another user_id, adds that user — the
// @Description caller must be the channel creator or an admin member.
// @Tags        Memberships
// @Accept      json
// @Produce     json
// @Param       X-User-ID  header  string  true  "Authenticated user id"
// @Param       id         path    string  true  "Channel ID (UUID)"  format(uuid)
// @Param       body       body    handlers.AddMemberRequest  false  "Member payload"
// @Success     201  {object}  handlers.MembershipResponse
// @Failure     403  {object}  handlers.ErrorResponse "Not creator/admin"
// @Failure     404  {object}  handlers.ErrorResponse "Channel not found (or not visible)"
// @Failure     409  {object}  handlers.ErrorResponse "Already a member"
// @Router      /channels/{id}/members [post]
func (h *Handlers) AddMember(c *gin.Context) {
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

	var req AddMemberRequest
	_ = c.ShouldBindJSON(&req) // empty body means self-join

	var (
		mb  *domain.Membership
		err error
	)
	if req.UserID == "" || req.UserID == uid {
		mb, err = h.mbSvc.Join(ctx, uid, channelID)
	} else {
		mb, err = h.mbSvc.Add(ctx, uid, channelID, req.UserID, req.Role)
	}
	if err != nil {
		switch {
		case errors.Is(err, services.ErrNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "channel not found")
		case errors.Is(err, services.ErrUnauthorized):
			fail(c, http.StatusForbidden, ErrCodeForbidden, "only the creator or an admin may add members")
		case errors.Is(err, services.ErrDuplicateMembership):
			fail(c, http.StatusConflict, ErrCodeConflict, "membership already exists")
		case errors.Is(err, services.ErrInvalidRole):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "role must be admin or member")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
		}
		return
	}
	ok(c, http.StatusCreated, MembershipResponse{Membership: mb})
}

// RemoveMember godoc
// @ID          removeMember
// @Summary     Leave a channel or remove a member
// @Description Removing your own id leaves the channel. Removing another
// @Description user requires the creator/admin rule.
// @Tags        Memberships
// @Produce     json
// @Param       X-User-ID  header  string  true  "Authenticated user id"
// @Param       id         path    string  true  "Channel ID (UUID)"     format(uuid)
// @Param       userID     path    string  true  "User id to remove"
// @Success     204
// @Failure     403  {object}  handlers.ErrorResponse "Not creator/admin"
// @Failure     404  {object}  handlers.ErrorResponse "No such membership"
// @Router      /channels/{id}/members/{userID} [delete]
func (h *Handlers) RemoveMember(c *gin.Context) {
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
	target := c.Param("userID")
	if target == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "user id required")
		return
	}

	if err := h.mbSvc.Remove(ctx, uid, channelID, target); err != nil {
		switch {
		case errors.Is(err, services.ErrNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "membership not found")
		case errors.Is(err, services.ErrUnauthorized):
			fail(c, http.StatusForbidden, ErrCodeForbidden, "only the creator or an admin may remove members")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	noContent(c)
}

// ListMembers godoc
// @ID          listMembers
// @Summary     List members of a channel
// @Description Returns the membership rows of a channel the caller can see.
// @Tags        Memberships
// @Produce     json
// @Param       X-User-ID  header  string  true  "Authenticated user id"
// @Param       id         path    string  true  "Channel ID (UUID)"  format(uuid)
// @Success     200  {object}  handlers.ListMembershipsResponse
// @Failure     404  {object}  handlers.ErrorResponse "Channel not found (or not visible)"
// @Router      /channels/{id}/members [get]
func (h *Handlers) ListMembers(c *gin.Context) {
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

	members, err := h.mbSvc.ListMembers(ctx, uid, channelID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "channel not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	if members == nil {
		members = []domain.Membership{}
	}
	ok(c, http.StatusOK, ListMembershipsResponse{Memberships: members})
}

// ListMyMemberships godoc
// @ID          listMyMemberships
// @Summary     List the caller's memberships
// @Tags        Memberships
// @Produce     json
// @Param       X-User-ID  header  string  true  "Authenticated user id"
// @Success     200  {object}  handlers.ListMembershipsResponse
// @Router      /memberships [get]
func (h *Handlers) ListMyMemberships(c *gin.Context) {
	ctx := c.Request.Context()
	uid, okUser := requireUser(c)
	if !okUser {
		return
	}

	members, err := h.mbSvc.ListMine(ctx, uid)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	if members == nil {
		members = []domain.Membership{}
	}
	ok(c, http.StatusOK, ListMembershipsResponse{Memberships: members})
}
