package services

import (
	"context"
	"errors"
	"testing"

	"gorm.io/gorm"

	"github.com/crewchat/go-team-chat/internal/domain"
	"github.com/crewchat/go-team-chat/internal/repo"
)

// seedChannel creates a channel row and a creator membership directly in the
// store, bypassing the service layer so tests control exactly which rows
// exist.
func seedChannel(t *testing.T, db *gorm.DB, name, creator string, private bool) *domain.Channel {
	t.Helper()
	ctx := context.Background()
	ch, err := repo.CreateChannel(ctx, db, name, private, creator)
	if err != nil {
		t.Fatalf("seed channel %s: %v", name, err)
	}
	if _, _, err := repo.EnsureMember(ctx, db, ch.ID, creator, domain.RoleAdmin); err != nil {
		t.Fatalf("seed creator membership: %v", err)
	}
	return ch
}

func TestMembershipServiceJoin_PublicChannel(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	svc := NewMembershipService(f.db, f.kernel, f.bus)
	ch := seedChannel(t, f.db, "town-square", "alice", false)

	mb, err := svc.Join(ctx, "bob", ch.ID)
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if mb.Role != domain.RoleMember || mb.UserID != "bob" || mb.ChannelID != ch.ID {
		t.Fatalf("membership = %+v", mb)
	}

	if _, err := svc.Join(ctx, "bob", ch.ID); !errors.Is(err, ErrDuplicateMembership) {
		t.Fatalf("second Join err = %v, want ErrDuplicateMembership", err)
	}
	if _, err := svc.Join(ctx, "bob", "no-such-channel"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing channel err = %v, want ErrNotFound", err)
	}

	f.drain()
	evs := f.rec.events()
	if len(evs) != 1 || evs[0].Kind != domain.KindMembership || evs[0].Op != domain.OpInsert {
		t.Fatalf("events = %+v, want one membership insert", evs)
	}
}

func TestMembershipServiceJoin_PrivateChannel(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	svc := NewMembershipService(f.db, f.kernel, f.bus)
	ch := seedChannel(t, f.db, "war-room", "alice", true)

	// A stranger gets the missing-channel answer, not a denial.
	if _, err := svc.Join(ctx, "bob", ch.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("stranger err = %v, want ErrNotFound", err)
	}
	// A user who can see a private channel is necessarily already in it.
	if _, err := svc.Join(ctx, "alice", ch.ID); !errors.Is(err, ErrDuplicateMembership) {
		t.Fatalf("member err = %v, want ErrDuplicateMembership", err)
	}
}

func TestMembershipServiceAdd(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	svc := NewMembershipService(f.db, f.kernel, f.bus)
	ch := seedChannel(t, f.db, "war-room", "alice", true)
	if _, err := repo.AddMember(ctx, f.db, ch.ID, "mallory", domain.RoleMember); err != nil {
		t.Fatalf("AddMember: %v", err)
	}

	if _, err := svc.Add(ctx, "alice", ch.ID, "bob", "owner"); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("bad role err = %v, want ErrInvalidRole", err)
	}
	if _, err := svc.Add(ctx, "stranger", ch.ID, "bob", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("stranger actor err = %v, want ErrNotFound", err)
	}
	if _, err := svc.Add(ctx, "mallory", ch.ID, "bob", ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("plain member actor err = %v, want ErrUnauthorized", err)
	}

	// Empty role defaults to member.
	mb, err := svc.Add(ctx, "alice", ch.ID, "bob", "")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if mb.Role != domain.RoleMember {
		t.Fatalf("Role = %q, want member", mb.Role)
	}
	if _, err := svc.Add(ctx, "alice", ch.ID, "bob", domain.RoleAdmin); !errors.Is(err, ErrDuplicateMembership) {
		t.Fatalf("duplicate err = %v, want ErrDuplicateMembership", err)
	}

	// The invited user can now see the channel.
	ok, err := f.kernel.CanViewChannelID(ctx, "bob", ch.ID)
	if err != nil || !ok {
		t.Fatalf("CanViewChannelID = (%v, %v), want (true, nil)", ok, err)
	}
}

func TestMembershipServiceRemove(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	svc := NewMembershipService(f.db, f.kernel, f.bus)
	ch := seedChannel(t, f.db, "war-room", "alice", true)
	for _, uid := range []string{"bob", "mallory"} {
		if _, err := repo.AddMember(ctx, f.db, ch.ID, uid, domain.RoleMember); err != nil {
			t.Fatalf("AddMember(%s): %v", uid, err)
		}
	}

	// A plain member cannot remove others; a stranger cannot see the channel.
	if err := svc.Remove(ctx, "mallory", ch.ID, "bob"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("plain member err = %v, want ErrUnauthorized", err)
	}
	if err := svc.Remove(ctx, "stranger", ch.ID, "bob"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("stranger err = %v, want ErrNotFound", err)
	}

	// Leaving needs no privileges.
	if err := svc.Remove(ctx, "mallory", ch.ID, "mallory"); err != nil {
		t.Fatalf("self-leave: %v", err)
	}
	// The creator removes by the admin rule.
	if err := svc.Remove(ctx, "alice", ch.ID, "bob"); err != nil {
		t.Fatalf("admin remove: %v", err)
	}
	if err := svc.Remove(ctx, "alice", ch.ID, "bob"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("remove absent member err = %v, want ErrNotFound", err)
	}

	f.drain()
	var deletes []string
	for _, ev := range f.rec.events() {
		if ev.Kind == domain.KindMembership && ev.Op == domain.OpDelete {
			deletes = append(deletes, ev.Membership.UserID)
		}
	}
	if len(deletes) != 2 || deletes[0] != "mallory" || deletes[1] != "bob" {
		t.Fatalf("delete events for %v, want [mallory bob]", deletes)
	}
}

func TestMembershipServiceListMembers_VisibilityGated(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	svc := NewMembershipService(f.db, f.kernel, f.bus)
	ch := seedChannel(t, f.db, "war-room", "alice", true)
	if _, err := repo.AddMember(ctx, f.db, ch.ID, "bob", domain.RoleMember); err != nil {
		t.Fatalf("AddMember: %v", err)
	}

	got, err := svc.ListMembers(ctx, "bob", ch.ID)
	if err != nil {
		t.Fatalf("ListMembers: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d members, want 2", len(got))
	}

	if _, err := svc.ListMembers(ctx, "stranger", ch.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("stranger err = %v, want ErrNotFound", err)
	}
	if _, err := svc.ListMembers(ctx, "alice", "no-such-channel"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing channel err = %v, want ErrNotFound", err)
	}
}

func TestMembershipServiceListMine_AlwaysPermitted(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	svc := NewMembershipService(f.db, f.kernel, f.bus)
	a := seedChannel(t, f.db, "alpha", "alice", true)
	seedChannel(t, f.db, "beta", "carol", true)
	if _, err := repo.AddMember(ctx, f.db, a.ID, "bob", domain.RoleMember); err != nil {
		t.Fatalf("AddMember: %v", err)
	}

	got, err := svc.ListMine(ctx, "bob")
	if err != nil {
		t.Fatalf("ListMine: %v", err)
	}
	if len(got) != 1 || got[0].ChannelID != a.ID {
		t.Fatalf("memberships = %+v, want only alpha", got)
	}
	if empty, err := svc.ListMine(ctx, "nobody"); err != nil || len(empty) != 0 {
		t.Fatalf("ListMine(nobody) = (%v, %v), want empty", empty, err)
	}
}
