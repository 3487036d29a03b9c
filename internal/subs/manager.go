// Package subs implements the subscription manager.
//
// This file holds the manager itself: topic indices, delivery, and the
// subscription lifecycle. One logical subscription exists per (client,
// topic); its state machine is Active → Closed with nothing in between.
// Re-subscribing after Closed creates a fresh subscription — entitlement is
// never carried over, because authorization is evaluated per event at
// delivery time, not snapshotted at subscribe time. Membership can change
// between subscribe and event, and the kernel predicate run at delivery is
// what keeps a just-removed member from receiving post-removal events.
//
// Delivery: the event bus dispatcher is the sole producer into each
// subscription's buffered channel, and the client-facing consumer (the SSE
// handler) is the sole reader. Sends are non-blocking; a subscriber whose
// buffer is full is force-closed and the incident logged and counted — a
// leaked, unserviced subscription is a resource fault, not something to
// swallow silently.
package subs

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/crewchat/go-team-chat/internal/access"
	"github.com/crewchat/go-team-chat/internal/domain"
)

var (
	// subsActive gauges currently open subscriptions.
	subsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "subscriptions_active",
			Help: "Current number of active subscriptions.",
		},
	)

	// subsDelivered counts events delivered to entitled subscriptions.
	subsDelivered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscriptions_events_delivered_total",
			Help: "Total number of events delivered to subscriptions.",
		},
		[]string{"kind"},
	)

	// subsSkipped counts deliveries skipped because the subscription's user
	// was not entitled to the event at delivery time. Expected behavior, not
	// a fault.
	subsSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "subscriptions_events_skipped_total",
			Help: "Total number of deliveries skipped after a failed authorization check.",
		},
	)

	// subsForcedClosed counts subscriptions force-closed on buffer overflow.
	subsForcedClosed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "subscriptions_forced_closed_total",
			Help: "Total number of subscriptions closed because their buffer overflowed.",
		},
	)
)

func init() {
	prometheus.MustRegister(subsActive, subsDelivered, subsSkipped, subsForcedClosed)
}

// ErrNotParticipant is returned when a client subscribes to a DM pair it is
// not part of, or to another user's membership feed. DM participation is
// immutable, so this is the one check that can run at subscribe time.
var ErrNotParticipant = errors.New("subscriber is not a participant of this topic")

// Subscription is one live (client, topic) registration. Events arrive on C
// in bus publish order. Close is idempotent and detaches the subscription
// from every manager index; after Close, C is closed and drains.
type Subscription struct {
	ID     string
	UserID string
	Topic  Topic

	ch      chan domain.ChangeEvent
	mgr     *Manager
	closeMu sync.Mutex
	closed  bool
}

// C returns the receive side of the subscription's event channel.
func (s *Subscription) C() <-chan domain.ChangeEvent { return s.ch }

// Close detaches the subscription from the manager and closes its channel.
// Safe to call multiple times and from any goroutine.
func (s *Subscription) Close() {
	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		return
	}
	s.closed = true
	s.closeMu.Unlock()

	s.mgr.remove(s)
	close(s.ch)
	subsActive.Dec()
}

// Manager owns all live subscriptions, indexed by topic, and applies the
// access kernel to every candidate delivery. Safe for concurrent use.
type Manager struct {
	kernel *access.Kernel

	// Buffer is the per-subscription channel depth; overflow force-closes.
	buffer int

	mu       sync.RWMutex
	byTopic  map[string]map[string]*Subscription // topic key → sub id → sub
	byDMUser map[string]map[string]*Subscription // user id → dm sub id → sub
}

// NewManager constructs a Manager over the given kernel. buffer is the
// per-subscription event channel depth (values below 1 are clamped to 16).
func NewManager(kernel *access.Kernel, buffer int) *Manager {
	if buffer < 1 {
		buffer = 16
	}
	return &Manager{
		kernel:   kernel,
		buffer:   buffer,
		byTopic:  make(map[string]map[string]*Subscription),
		byDMUser: make(map[string]map[string]*Subscription),
	}
}

// Subscribe registers a fresh Active subscription for userID on topic.
//
// Subscribe performs no channel-visibility check: entitlement to channel
// events is decided per event at delivery time. Only structurally-immutable
// participation is validated here (own DM pair, own membership feed).
func (m *Manager) Subscribe(userID string, topic Topic) (*Subscription, error) {
	switch topic.kind {
	case topicDM:
		if userID != topic.a && userID != topic.b {
			return nil, ErrNotParticipant
		}
	case topicMemberships:
		if userID != topic.a {
			return nil, ErrNotParticipant
		}
	case topicChannel, topicPublic:
		// delivery-time authorization only
	default:
		return nil, ErrBadTopic
	}

	sub := &Subscription{
		ID:     uuid.NewString(),
		UserID: userID,
		Topic:  topic,
		ch:     make(chan domain.ChangeEvent, m.buffer),
		mgr:    m,
	}

	m.mu.Lock()
	key := topic.String()
	if m.byTopic[key] == nil {
		m.byTopic[key] = make(map[string]*Subscription)
	}
	m.byTopic[key][sub.ID] = sub
	if topic.kind == topicDM {
		for _, u := range []string{topic.a, topic.b} {
			if m.byDMUser[u] == nil {
				m.byDMUser[u] = make(map[string]*Subscription)
			}
			m.byDMUser[u][sub.ID] = sub
		}
	}
	m.mu.Unlock()

	subsActive.Inc()
	return sub, nil
}

// remove detaches sub from every index. Called only from Subscription.Close.
func (m *Manager) remove(sub *Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := sub.Topic.String()
	if set := m.byTopic[key]; set != nil {
		delete(set, sub.ID)
		if len(set) == 0 {
			delete(m.byTopic, key)
		}
	}
	if sub.Topic.kind == topicDM {
		for _, u := range []string{sub.Topic.a, sub.Topic.b} {
			if set := m.byDMUser[u]; set != nil {
				delete(set, sub.ID)
				if len(set) == 0 {
					delete(m.byDMUser, u)
				}
			}
		}
	}
}

// Active returns the number of live subscriptions. Intended for tests and
// the health payload.
func (m *Manager) Active() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, set := range m.byTopic {
		n += len(set)
	}
	return n
}

// CloseAll force-closes every live subscription. Used during shutdown.
func (m *Manager) CloseAll() {
	m.mu.RLock()
	var all []*Subscription
	for _, set := range m.byTopic {
		for _, s := range set {
			all = append(all, s)
		}
	}
	m.mu.RUnlock()
	for _, s := range all {
		s.Close()
	}
}

// Dispatch routes one change event: it collects the candidate subscriptions
// whose topic matches the event's entity, re-runs the relevant kernel
// predicate for each candidate's user, delivers to the entitled ones, and
// silently skips the rest. Registered with the event bus as its handler;
// runs on the bus dispatcher goroutine, so per-topic delivery order is bus
// publish order.
func (m *Manager) Dispatch(ev domain.ChangeEvent) {
	ctx := context.Background()
	for _, sub := range m.candidates(ev) {
		ok, err := m.entitled(ctx, sub, ev)
		if err != nil {
			log.Error().Err(err).
				Str("subscription_id", sub.ID).
				Str("topic", sub.Topic.String()).
				Msg("authorization check failed during dispatch")
			continue
		}
		if !ok {
			subsSkipped.Inc()
			continue
		}
		m.deliver(sub, ev)
	}
}

// candidates returns the subscriptions whose topic matches the event's
// entity. The slice is a snapshot; entitlement is evaluated afterwards.
func (m *Manager) candidates(ev domain.ChangeEvent) []*Subscription {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Subscription
	collect := func(key string) {
		for _, s := range m.byTopic[key] {
			out = append(out, s)
		}
	}

	switch ev.Kind {
	case domain.KindMessage:
		if ev.Message == nil {
			return nil
		}
		switch {
		case ev.Message.HasChannelTarget():
			collect(TopicChannel(*ev.Message.ChannelID).String())
		case ev.Message.HasRecipientTarget():
			collect(TopicDM(ev.Message.AuthorID, *ev.Message.RecipientID).String())
		}
	case domain.KindMembership:
		if ev.Membership == nil {
			return nil
		}
		collect(TopicChannel(ev.Membership.ChannelID).String())
		collect(TopicMemberships(ev.Membership.UserID).String())
	case domain.KindChannel:
		if ev.Channel == nil {
			return nil
		}
		collect(TopicChannel(ev.Channel.ID).String())
		if !ev.Channel.IsPrivate {
			collect(TopicPublicChannels().String())
		}
	case domain.KindProfile:
		if ev.Profile == nil {
			return nil
		}
		// Presence reaches the peers currently watching a DM conversation
		// with that user.
		for _, s := range m.byDMUser[ev.Profile.ID] {
			out = append(out, s)
		}
	}
	return out
}

// entitled re-runs the relevant kernel predicate for the subscription's user
// against the event payload. Delivery-time evaluation is deliberate:
// membership can change between subscribe and event.
func (m *Manager) entitled(ctx context.Context, sub *Subscription, ev domain.ChangeEvent) (bool, error) {
	switch ev.Kind {
	case domain.KindMessage:
		return m.kernel.CanViewMessage(ctx, sub.UserID, ev.Message)
	case domain.KindMembership:
		// A user always sees changes to their own memberships; everyone
		// else needs current visibility of the channel.
		if sub.UserID == ev.Membership.UserID {
			return true, nil
		}
		return m.kernel.CanViewChannelID(ctx, sub.UserID, ev.Membership.ChannelID)
	case domain.KindChannel:
		return m.kernel.CanViewChannel(ctx, sub.UserID, ev.Channel)
	case domain.KindProfile:
		// Candidates are already restricted to DM topics the subscriber
		// participates in; presence carries no further restriction.
		return true, nil
	default:
		return false, nil
	}
}

// deliver performs the non-blocking send. Overflow force-closes the
// subscription so a stalled consumer cannot wedge the dispatcher.
func (m *Manager) deliver(sub *Subscription, ev domain.ChangeEvent) {
	sub.closeMu.Lock()
	if sub.closed {
		sub.closeMu.Unlock()
		return
	}
	select {
	case sub.ch <- ev:
		sub.closeMu.Unlock()
		subsDelivered.WithLabelValues(string(ev.Kind)).Inc()
	default:
		sub.closeMu.Unlock()
		subsForcedClosed.Inc()
		log.Warn().
			Str("subscription_id", sub.ID).
			Str("user_id", sub.UserID).
			Str("topic", sub.Topic.String()).
			Msg("subscription buffer overflow, closing subscription")
		sub.Close()
	}
}
