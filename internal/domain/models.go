// Package domain defines the persistence models for users, channels,
// memberships, messages, and direct-message conversations. These types are
// mapped with GORM and form the core data layer of the messaging backend.
package domain

import (
	"time"
)

// Presence status values carried by User.Status.
const (
	StatusOnline  = "online"
	StatusAway    = "away"
	StatusOffline = "offline"
)

// Membership role values carried by Membership.Role.
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// User represents an authenticated account. The identifier is opaque and
// issued by the upstream identity provider; rows are created lazily on first
// authentication and never deleted by this service.
//
// Fields:
//   - ID: opaque identity-provider id (varchar(64) primary key).
//   - Status: presence enum ("online", "away", "offline").
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
type User struct {
	ID        string    `json:"id"         gorm:"type:varchar(64);primaryKey"`
	Status    string    `json:"status"     gorm:"type:varchar(16);not null;default:'offline';check:status IN ('online','away','offline')"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Channel represents a named, durable topic for group messaging. Names are
// unique across all channels (enforced by a unique index); the privacy flag
// decides whether visibility requires a membership row.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - Name: unique, case-folded channel name.
//   - IsPrivate: when true, visibility requires membership.
//   - CreatedBy: user id of the creator; only the creator or an admin member
//     may mutate channel metadata (enforced in the service layer).
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
type Channel struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	Name      string    `json:"name"       gorm:"type:varchar(80);not null;uniqueIndex:ux_channel_name"`
	IsPrivate bool      `json:"is_private" gorm:"not null;default:false"`
	CreatedBy string    `json:"created_by" gorm:"type:varchar(64);not null;index"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Channel.
func (Channel) TableName() string { return "channels" }

// Membership is the durable proof that a user belongs to a channel. At most
// one row exists per (channel, user) pair, enforced by a unique index; this
// is the row the access kernel probes when deciding private-channel
// visibility.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - ChannelID / UserID: the pair; unique together.
//   - Role: "admin" or "member".
//   - CreatedAt: join time.
type Membership struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	ChannelID string    `json:"channel_id" gorm:"type:char(36);not null;uniqueIndex:ux_membership_channel_user,priority:1;index:idx_membership_channel"`
	UserID    string    `json:"user_id"    gorm:"type:varchar(64);not null;uniqueIndex:ux_membership_channel_user,priority:2;index:idx_membership_user"`
	Role      string    `json:"role"       gorm:"type:varchar(16);not null;default:'member';check:role IN ('admin','member')"`
	CreatedAt time.Time `json:"created_at"`

	// Channel is the parent channel. Memberships are cascade-deleted if
	// their channel is removed.
	Channel Channel `json:"-" gorm:"foreignKey:ChannelID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Membership.
func (Membership) TableName() string { return "memberships" }

// Message is one utterance, addressed either to a channel or to a single
// recipient — exactly one of ChannelID/RecipientID is set (re-checked at
// insert time). Messages are append-only except for author-only content
// edits and deletes.
//
// Fields:
//   - ID: UUID primary key (char(36)); also the tie-break for messages that
//     share a timestamp, giving queries a total, stable order.
//   - Content: full text content.
//   - AuthorID: sender; must equal the authenticated caller on insert.
//   - ChannelID: set iff the message targets a channel.
//   - RecipientID: set iff the message targets a single user.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
type Message struct {
	ID          string    `json:"id"           gorm:"type:char(36);primaryKey"`
	Content     string    `json:"content"      gorm:"type:text;not null"`
	AuthorID    string    `json:"author_id"    gorm:"type:varchar(64);not null;index:idx_msg_author"`
	ChannelID   *string   `json:"channel_id,omitempty"   gorm:"type:char(36);index:idx_msg_channel_time,priority:1"`
	RecipientID *string   `json:"recipient_id,omitempty" gorm:"type:varchar(64);index:idx_msg_recipient"`
	CreatedAt   time.Time `json:"created_at"   gorm:"index:idx_msg_channel_time,priority:2"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// HasChannelTarget reports whether the message is addressed to a channel.
func (m *Message) HasChannelTarget() bool { return m.ChannelID != nil && *m.ChannelID != "" }

// HasRecipientTarget reports whether the message is addressed to a single user.
func (m *Message) HasRecipientTarget() bool { return m.RecipientID != nil && *m.RecipientID != "" }

// ValidTarget reports whether exactly one of ChannelID/RecipientID is set.
func (m *Message) ValidTarget() bool {
	return m.HasChannelTarget() != m.HasRecipientTarget()
}

// DMConversation is the symmetric record of a direct-message thread between
// two users. The pair is stored canonically: UserLow < UserHigh under the
// ordinary string order on user ids, so (A,B) and (B,A) resolve to the same
// row — at most one per unordered pair, enforced by a unique index.
// Upserted atomically on every direct message.
type DMConversation struct {
	ID            string    `json:"id"              gorm:"type:char(36);primaryKey"`
	UserLow       string    `json:"user_low"        gorm:"type:varchar(64);not null;uniqueIndex:ux_dm_pair,priority:1"`
	UserHigh      string    `json:"user_high"       gorm:"type:varchar(64);not null;uniqueIndex:ux_dm_pair,priority:2;index:idx_dm_high"`
	LastMessageAt time.Time `json:"last_message_at" gorm:"not null"`
	CreatedAt     time.Time `json:"created_at"`
}

// TableName returns the database table name for DMConversation.
func (DMConversation) TableName() string { return "dm_conversations" }
