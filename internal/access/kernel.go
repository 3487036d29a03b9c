// Package access implements the authorization kernel: the predicates that
// decide whether a user may see or write a channel, membership record, or
// message. The same predicates serve synchronous read/write checks in the
// service layer and asynchronous filtering of the live event stream in the
// subscription manager.
//
// The non-recursion invariant: every predicate here is evaluated over raw,
// unprotected repository reads (repo.IsMember, repo.GetChannel) and never by
// composing another authorization-checked operation. Visibility of a private
// channel's memberships is itself gated by channel visibility, which is
// decided by membership — expressing that rule through the protected read
// path would recurse into the very fact being computed. The privileged
// primitives stay inside this package and the service layer; they are never
// reachable from the HTTP surface.
//
// Failure semantics: a plain "not authorized" outcome is (false, nil), never
// an error. Errors are reserved for store failures. Callers decide whether a
// false becomes a user-visible denial (writes) or a silently filtered result
// (reads).
package access

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/crewchat/go-team-chat/internal/domain"
	"github.com/crewchat/go-team-chat/internal/repo"
)

// Kernel evaluates authorization predicates against raw store reads.
// It is safe for concurrent use.
type Kernel struct {
	// DB is the GORM handle used for privileged reads.
	DB *gorm.DB

	// AllowSelfDM permits a user to send a direct message to themself.
	// Left as a deployment choice; the kernel owns the check so the write
	// path and the stream path always agree.
	AllowSelfDM bool
}

// NewKernel constructs a Kernel over the given database handle.
func NewKernel(db *gorm.DB) *Kernel {
	return &Kernel{DB: db}
}

// CanViewChannel reports whether userID may see the channel. Public channels
// are visible to any authenticated user unconditionally; private channels
// require a membership row, probed through the raw primitive.
func (k *Kernel) CanViewChannel(ctx context.Context, userID string, ch *domain.Channel) (bool, error) {
	if ch == nil || userID == "" {
		return false, nil
	}
	if !ch.IsPrivate {
		return true, nil
	}
	return repo.IsMember(ctx, k.DB, ch.ID, userID)
}

// CanPostToChannel reports whether userID may post to the channel. Posting
// requires exactly the same visibility as viewing: a public channel, or
// membership in a private one.
func (k *Kernel) CanPostToChannel(ctx context.Context, userID string, ch *domain.Channel) (bool, error) {
	return k.CanViewChannel(ctx, userID, ch)
}

// CanViewChannelID resolves the channel raw and applies CanViewChannel.
// A missing channel is a plain "no", not an error — leaking existence
// through an error signal is itself a disclosure.
func (k *Kernel) CanViewChannelID(ctx context.Context, userID, channelID string) (bool, error) {
	ch, err := repo.GetChannel(ctx, k.DB, channelID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return k.CanViewChannel(ctx, userID, ch)
}

// CanViewMessage reports whether userID may see the message. A channel
// message delegates to channel visibility; a direct message is visible only
// to its author and its recipient.
func (k *Kernel) CanViewMessage(ctx context.Context, userID string, m *domain.Message) (bool, error) {
	if m == nil || userID == "" {
		return false, nil
	}
	switch {
	case m.HasChannelTarget():
		return k.CanViewChannelID(ctx, userID, *m.ChannelID)
	case m.HasRecipientTarget():
		return userID == m.AuthorID || userID == *m.RecipientID, nil
	default:
		return false, nil
	}
}

// CanPostMessage reports whether userID may commit the message. The author
// must be the caller; then the targeting rule of CanViewMessage applies.
// Self-addressed direct messages are permitted only when AllowSelfDM is set.
func (k *Kernel) CanPostMessage(ctx context.Context, userID string, m *domain.Message) (bool, error) {
	if m == nil || userID == "" || m.AuthorID != userID {
		return false, nil
	}
	if m.HasRecipientTarget() && *m.RecipientID == userID && !k.AllowSelfDM {
		return false, nil
	}
	return k.CanViewMessage(ctx, userID, m)
}

// FilterChannels returns the subset of channels visible to userID,
// preserving input order. Used by the channel list read path.
func (k *Kernel) FilterChannels(ctx context.Context, userID string, channels []domain.Channel) ([]domain.Channel, error) {
	out := make([]domain.Channel, 0, len(channels))
	for i := range channels {
		ok, err := k.CanViewChannel(ctx, userID, &channels[i])
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, channels[i])
		}
	}
	return out, nil
}

// FilterMessages returns the subset of messages visible to userID,
// preserving the store's (created_at, id) order. The message list read path
// applies this even when the whole result set shares one target — defense
// in depth against an upstream caller that forgot to filter.
func (k *Kernel) FilterMessages(ctx context.Context, userID string, msgs []domain.Message) ([]domain.Message, error) {
	out := make([]domain.Message, 0, len(msgs))
	for i := range msgs {
		ok, err := k.CanViewMessage(ctx, userID, &msgs[i])
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, msgs[i])
		}
	}
	return out, nil
}
