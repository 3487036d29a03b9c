// Server-Sent Events streaming endpoint.
//
// GET /stream?topic=<topic> opens one subscription for the caller and relays
// change events as SSE frames until the client disconnects, the subscription
// is force-closed (slow consumer), or the server shuts down.
//
// Topic syntax (see the subs package):
//   channel:<channelID>
//   dm:<userA>:<userB>
//   memberships:<userID>
//   public-channels
//
// Authorization is layered: DM and membership topics are checked once at
// subscribe time (participation), while per-event entitlement is re-evaluated
// at delivery time by the subscription manager, so a member who is removed
// mid-stream stops receiving channel events immediately.
package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/crewchat/go-team-chat/internal/subs"
)

// streamEvent is the SSE payload envelope. The topic echo lets multiplexing
// clients route frames without re-parsing the URL they subscribed with.
type streamEvent struct {
	Topic string `json:"topic"`
	Event any    `json:"event"`
}

// Stream godoc
// @ID          stream
// @Summary     Subscribe to a live event topic (SSE)
// @Description Opens a Server-Sent Events stream for one topic. Each frame is
// @Description a JSON ChangeEvent; a "closed" frame is emitted if the server
// @Description drops the subscription (e.g. slow consumer).
// @Tags        Stream
// @Produce     text/event-stream
// @Param       X-User-ID  header  string  true  "Authenticated user id"
// @Param       topic      query   string  true  "Topic, e.g. channel:<id>, dm:<a>:<b>, memberships:<user>, public-channels"
// @Success     200  {string}  string "SSE stream"
// @Failure     400  {object}  handlers.ErrorResponse "Malformed topic"
// @Failure     403  {object}  handlers.ErrorResponse "Not a participant of the topic"
// @Router      /stream [get]
func (h *Handlers) Stream(c *gin.Context) {
	uid, okUser := requireUser(c)
	if !okUser {
		return
	}

	topic, err := subs.ParseTopic(c.Query("topic"))
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "topic must be one of channel:<id>, dm:<a>:<b>, memberships:<user>, public-channels")
		return
	}

	sub, err := h.subMgr.Subscribe(uid, topic)
	if err != nil {
		if errors.Is(err, subs.ErrNotParticipant) {
			fail(c, http.StatusForbidden, ErrCodeForbidden, "not a participant of this topic")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeStreamFailed, err.Error())
		return
	}
	defer sub.Close()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	topicStr := topic.String()
	clientGone := c.Request.Context().Done()

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, open := <-sub.C():
			if !open {
				// Force-closed by the manager (slow consumer) or shutdown.
				c.SSEvent("closed", gin.H{"topic": topicStr})
				return false
			}
			c.SSEvent("change", streamEvent{Topic: topicStr, Event: ev})
			return true
		case <-clientGone:
			return false
		}
	})
}
