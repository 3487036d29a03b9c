// Package domain defines the persistence models and change-event types.
//
// This file defines ChangeEvent, the immutable record of one committed
// mutation. Events are bus payloads only — they are never persisted. The
// payload carries the post-mutation entity for inserts and updates and the
// pre-mutation entity for deletes, so subscribers always see the image that
// authorization must be evaluated against.
package domain

import "time"

// EntityKind identifies which aggregate a ChangeEvent describes.
type EntityKind string

// Entity kinds emitted by the write paths.
const (
	KindMessage    EntityKind = "message"
	KindMembership EntityKind = "membership"
	KindChannel    EntityKind = "channel"
	KindProfile    EntityKind = "profile"
)

// Operation identifies the mutation a ChangeEvent records.
type Operation string

// Operations emitted by the write paths.
const (
	OpInsert Operation = "insert"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// ChangeEvent records one committed mutation. Exactly one of the typed
// payload fields is non-nil, matching Kind.
//
// For OpInsert/OpUpdate the payload is the post-mutation entity; for
// OpDelete it is the pre-mutation entity (the row that was removed).
type ChangeEvent struct {
	Kind       EntityKind `json:"kind"`
	Op         Operation  `json:"op"`
	OccurredAt time.Time  `json:"occurred_at"`

	Message    *Message    `json:"message,omitempty"`
	Membership *Membership `json:"membership,omitempty"`
	Channel    *Channel    `json:"channel,omitempty"`
	Profile    *User       `json:"profile,omitempty"`
}

// MessageEvent builds a message ChangeEvent.
func MessageEvent(op Operation, m *Message) ChangeEvent {
	return ChangeEvent{Kind: KindMessage, Op: op, OccurredAt: time.Now().UTC(), Message: m}
}

// MembershipEvent builds a membership ChangeEvent.
func MembershipEvent(op Operation, mb *Membership) ChangeEvent {
	return ChangeEvent{Kind: KindMembership, Op: op, OccurredAt: time.Now().UTC(), Membership: mb}
}

// ChannelEvent builds a channel ChangeEvent.
func ChannelEvent(op Operation, ch *Channel) ChangeEvent {
	return ChangeEvent{Kind: KindChannel, Op: op, OccurredAt: time.Now().UTC(), Channel: ch}
}

// ProfileEvent builds a profile ChangeEvent.
func ProfileEvent(op Operation, u *User) ChangeEvent {
	return ChangeEvent{Kind: KindProfile, Op: op, OccurredAt: time.Now().UTC(), Profile: u}
}
