// Package subs implements the subscription manager: per-client topic
// subscriptions over the live change event stream, with authorization
// re-evaluated against the access kernel at delivery time.
//
// This file defines the topic vocabulary. A topic names the slice of the
// event stream a subscription wants: one channel, one DM pair, the
// subscriber's own memberships, or the metadata of all public channels.
package subs

import (
	"errors"
	"fmt"
	"strings"

	"github.com/crewchat/go-team-chat/internal/repo"
)

// topicKind discriminates the supported topic shapes.
type topicKind string

const (
	topicChannel     topicKind = "channel"
	topicDM          topicKind = "dm"
	topicMemberships topicKind = "memberships"
	topicPublic      topicKind = "public-channels"
)

// ErrBadTopic is returned by ParseTopic for an unrecognized topic string.
var ErrBadTopic = errors.New("unrecognized topic")

// Topic identifies the slice of the event stream a subscription receives.
// Construct with the Topic* helpers or ParseTopic; the zero value is invalid.
type Topic struct {
	kind topicKind
	a    string // channel id, dm low user, or memberships owner
	b    string // dm high user
}

// TopicChannel subscribes to every event of one channel: its messages, its
// membership changes, and its metadata updates.
func TopicChannel(channelID string) Topic {
	return Topic{kind: topicChannel, a: channelID}
}

// TopicDM subscribes to one direct-message conversation. The pair is stored
// canonically, so TopicDM(a,b) and TopicDM(b,a) are the same topic.
func TopicDM(userA, userB string) Topic {
	low, high := repo.CanonicalPair(userA, userB)
	return Topic{kind: topicDM, a: low, b: high}
}

// TopicMemberships subscribes to membership changes affecting userID.
func TopicMemberships(userID string) Topic {
	return Topic{kind: topicMemberships, a: userID}
}

// TopicPublicChannels subscribes to metadata changes of all public channels.
func TopicPublicChannels() Topic {
	return Topic{kind: topicPublic}
}

// String returns the canonical wire form of the topic, e.g.
// "channel:c1", "dm:alice:bob", "memberships:alice", "public-channels".
func (t Topic) String() string {
	switch t.kind {
	case topicChannel, topicMemberships:
		return fmt.Sprintf("%s:%s", t.kind, t.a)
	case topicDM:
		return fmt.Sprintf("%s:%s:%s", t.kind, t.a, t.b)
	case topicPublic:
		return string(t.kind)
	default:
		return ""
	}
}

// ParseTopic parses the wire form produced by String. The dm form accepts
// the pair in either order and canonicalizes it.
func ParseTopic(s string) (Topic, error) {
	if s == string(topicPublic) {
		return TopicPublicChannels(), nil
	}
	parts := strings.Split(s, ":")
	switch {
	case len(parts) == 2 && parts[0] == string(topicChannel) && parts[1] != "":
		return TopicChannel(parts[1]), nil
	case len(parts) == 2 && parts[0] == string(topicMemberships) && parts[1] != "":
		return TopicMemberships(parts[1]), nil
	case len(parts) == 3 && parts[0] == string(topicDM) && parts[1] != "" && parts[2] != "":
		return TopicDM(parts[1], parts[2]), nil
	default:
		return Topic{}, fmt.Errorf("%w: %q", ErrBadTopic, s)
	}
}
