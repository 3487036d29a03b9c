package repo

import (
	"context"
	"errors"
	"testing"

	"github.com/crewchat/go-team-chat/internal/domain"
)

func TestEnsureUser_FreshAndExisting(t *testing.T) {
	db := newTestDB(t, &domain.User{})

	u, fresh, err := EnsureUser(context.Background(), db, "u1")
	if err != nil || !fresh {
		t.Fatalf("first EnsureUser: fresh=%v err=%v", fresh, err)
	}
	if u.ID != "u1" || u.Status != domain.StatusOffline {
		t.Fatalf("unexpected user: %+v", u)
	}

	again, fresh, err := EnsureUser(context.Background(), db, "u1")
	if err != nil {
		t.Fatalf("second EnsureUser: %v", err)
	}
	if fresh {
		t.Fatalf("expected fresh=false for existing user")
	}
	if again.ID != "u1" {
		t.Fatalf("unexpected user on re-ensure: %+v", again)
	}
}

func TestUpdateUserStatus(t *testing.T) {
	db := newTestDB(t, &domain.User{})

	if _, _, err := EnsureUser(context.Background(), db, "u1"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	u, err := UpdateUserStatus(context.Background(), db, "u1", domain.StatusAway)
	if err != nil {
		t.Fatalf("UpdateUserStatus: %v", err)
	}
	if u.Status != domain.StatusAway {
		t.Fatalf("expected away, got %q", u.Status)
	}

	if _, err := UpdateUserStatus(context.Background(), db, "ghost", domain.StatusOnline); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing user, got %v", err)
	}
}

func TestListUserIDs_Ordered(t *testing.T) {
	db := newTestDB(t, &domain.User{})

	for _, id := range []string{"charlie", "alice", "bob"} {
		if _, _, err := EnsureUser(context.Background(), db, id); err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
	}
	ids, err := ListUserIDs(context.Background(), db)
	if err != nil {
		t.Fatalf("ListUserIDs: %v", err)
	}
	if len(ids) != 3 || ids[0] != "alice" || ids[1] != "bob" || ids[2] != "charlie" {
		t.Fatalf("unexpected ids: %v", ids)
	}
}
