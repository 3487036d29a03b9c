package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/crewchat/go-team-chat/internal/domain"
)

func TestCreateChannel_Success_PersistsAndSetsFields(t *testing.T) {
	db := newTestDB(t, &domain.Channel{})

	start := time.Now().UTC().Add(-time.Minute)
	ch, err := CreateChannel(context.Background(), db, "general", false, "u1")
	if err != nil {
		t.Fatalf("CreateChannel: %v", err)
	}
	if ch.ID == "" || ch.Name != "general" || ch.IsPrivate || ch.CreatedBy != "u1" {
		t.Fatalf("unexpected Channel fields: %+v", ch)
	}
	if ch.CreatedAt.Before(start) {
		t.Fatalf("CreatedAt seems unset/really old: %v", ch.CreatedAt)
	}
	// round-trip
	got, err := GetChannel(context.Background(), db, ch.ID)
	if err != nil {
		t.Fatalf("load created channel: %v", err)
	}
	if got.Name != "general" || got.CreatedBy != "u1" {
		t.Fatalf("round-trip mismatch: %+v", got)
	}
}

func TestCreateChannel_DuplicateName(t *testing.T) {
	db := newTestDB(t, &domain.Channel{})

	if _, err := CreateChannel(context.Background(), db, "general", false, "u1"); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err := CreateChannel(context.Background(), db, "general", true, "u2")
	if !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("expected ErrDuplicateName, got %v", err)
	}
}

func TestCreateChannel_Error_NoTable(t *testing.T) {
	db := newTestDB(t /* no migrations */)
	if ch, err := CreateChannel(context.Background(), db, "x", false, "u1"); err == nil || ch != nil {
		t.Fatalf("expected error creating without table, got ch=%v err=%v", ch, err)
	}
}

func TestGetChannel_NotFound(t *testing.T) {
	db := newTestDB(t, &domain.Channel{})
	if _, err := GetChannel(context.Background(), db, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetChannelByName(t *testing.T) {
	db := newTestDB(t, &domain.Channel{})
	ch, err := CreateChannel(context.Background(), db, "design", true, "u1")
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	got, err := GetChannelByName(context.Background(), db, "design")
	if err != nil {
		t.Fatalf("GetChannelByName: %v", err)
	}
	if got.ID != ch.ID {
		t.Fatalf("wrong channel: %+v", got)
	}
	if _, err := GetChannelByName(context.Background(), db, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing name, got %v", err)
	}
}

func TestListChannels_OrderedByName(t *testing.T) {
	db := newTestDB(t, &domain.Channel{})
	for _, name := range []string{"zeta", "alpha", "mid"} {
		if _, err := CreateChannel(context.Background(), db, name, false, "u1"); err != nil {
			t.Fatalf("seed %s: %v", name, err)
		}
	}
	list, err := ListChannels(context.Background(), db)
	if err != nil {
		t.Fatalf("ListChannels: %v", err)
	}
	if len(list) != 3 || list[0].Name != "alpha" || list[1].Name != "mid" || list[2].Name != "zeta" {
		t.Fatalf("unexpected order: %+v", list)
	}
}

func TestListPublicChannels_FiltersPrivate(t *testing.T) {
	db := newTestDB(t, &domain.Channel{})
	if _, err := CreateChannel(context.Background(), db, "town-square", false, "u1"); err != nil {
		t.Fatalf("seed public: %v", err)
	}
	if _, err := CreateChannel(context.Background(), db, "secret", true, "u1"); err != nil {
		t.Fatalf("seed private: %v", err)
	}
	list, err := ListPublicChannels(context.Background(), db)
	if err != nil {
		t.Fatalf("ListPublicChannels: %v", err)
	}
	if len(list) != 1 || list[0].Name != "town-square" {
		t.Fatalf("expected only the public channel, got %+v", list)
	}
}

func TestUpdateChannel_PartialFields(t *testing.T) {
	db := newTestDB(t, &domain.Channel{})
	ch, err := CreateChannel(context.Background(), db, "old-name", true, "u1")
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	// Rename only; privacy untouched.
	newName := "new-name"
	got, err := UpdateChannel(context.Background(), db, ch.ID, ChannelUpdate{Name: &newName})
	if err != nil {
		t.Fatalf("UpdateChannel rename: %v", err)
	}
	if got.Name != "new-name" || !got.IsPrivate {
		t.Fatalf("unexpected after rename: %+v", got)
	}

	// Flip privacy only; name untouched.
	public := false
	got, err = UpdateChannel(context.Background(), db, ch.ID, ChannelUpdate{IsPrivate: &public})
	if err != nil {
		t.Fatalf("UpdateChannel privacy: %v", err)
	}
	if got.Name != "new-name" || got.IsPrivate {
		t.Fatalf("unexpected after privacy flip: %+v", got)
	}

	// Empty update is a plain read.
	got, err = UpdateChannel(context.Background(), db, ch.ID, ChannelUpdate{})
	if err != nil || got.Name != "new-name" {
		t.Fatalf("empty update: got=%+v err=%v", got, err)
	}
}

func TestUpdateChannel_NotFoundAndNameCollision(t *testing.T) {
	db := newTestDB(t, &domain.Channel{})
	if _, err := CreateChannel(context.Background(), db, "taken", false, "u1"); err != nil {
		t.Fatalf("seed taken: %v", err)
	}
	ch, err := CreateChannel(context.Background(), db, "mine", false, "u1")
	if err != nil {
		t.Fatalf("seed mine: %v", err)
	}

	name := "whatever"
	if _, err := UpdateChannel(context.Background(), db, "missing", ChannelUpdate{Name: &name}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing id, got %v", err)
	}

	collide := "taken"
	if _, err := UpdateChannel(context.Background(), db, ch.ID, ChannelUpdate{Name: &collide}); !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("expected ErrDuplicateName on rename collision, got %v", err)
	}
}

func TestCountChannels(t *testing.T) {
	db := newTestDB(t, &domain.Channel{})
	for _, name := range []string{"a", "b"} {
		if _, err := CreateChannel(context.Background(), db, name, false, "u1"); err != nil {
			t.Fatalf("seed %s: %v", name, err)
		}
	}
	n, err := CountChannels(context.Background(), db)
	if err != nil || n != 2 {
		t.Fatalf("CountChannels: n=%d err=%v", n, err)
	}
}
