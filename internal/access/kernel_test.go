package access

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/crewchat/go-team-chat/internal/domain"
	"github.com/crewchat/go-team-chat/internal/repo"
)

func strPtr(s string) *string { return &s }

// newKernelDB opens a throwaway store migrated with the models the kernel's
// predicates read, and seeds one public channel, one private channel, and a
// membership for "member" in the private one.
func newKernelDB(t *testing.T) (*gorm.DB, *domain.Channel, *domain.Channel) {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("kernel_test_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := db.AutoMigrate(&domain.Channel{}, &domain.Membership{}, &domain.Message{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	pub, err := repo.CreateChannel(context.Background(), db, "town-square", false, "owner")
	if err != nil {
		t.Fatalf("seed public channel: %v", err)
	}
	priv, err := repo.CreateChannel(context.Background(), db, "war-room", true, "owner")
	if err != nil {
		t.Fatalf("seed private channel: %v", err)
	}
	if _, err := repo.AddMember(context.Background(), db, priv.ID, "member", domain.RoleMember); err != nil {
		t.Fatalf("seed membership: %v", err)
	}
	return db, pub, priv
}

func TestCanViewChannel_TruthTable(t *testing.T) {
	db, pub, priv := newKernelDB(t)
	k := NewKernel(db)

	cases := []struct {
		name string
		user string
		ch   *domain.Channel
		want bool
	}{
		{"public visible to anyone", "stranger", pub, true},
		{"private visible to member", "member", priv, true},
		{"private hidden from non-member", "stranger", priv, false},
		{"nil channel", "member", nil, false},
		{"empty user", "", pub, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := k.CanViewChannel(context.Background(), tc.user, tc.ch)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestCanPostToChannel_MatchesVisibility(t *testing.T) {
	db, pub, priv := newKernelDB(t)
	k := NewKernel(db)

	for _, tc := range []struct {
		user string
		ch   *domain.Channel
		want bool
	}{
		{"stranger", pub, true},
		{"member", priv, true},
		{"stranger", priv, false},
	} {
		got, err := k.CanPostToChannel(context.Background(), tc.user, tc.ch)
		if err != nil || got != tc.want {
			t.Errorf("CanPostToChannel(%s, %s) = %v, %v; want %v", tc.user, tc.ch.Name, got, err, tc.want)
		}
	}
}

func TestCanViewChannelID_MissingIsPlainNo(t *testing.T) {
	db, _, priv := newKernelDB(t)
	k := NewKernel(db)

	ok, err := k.CanViewChannelID(context.Background(), "member", "no-such-channel")
	if err != nil {
		t.Fatalf("missing channel must not surface an error, got %v", err)
	}
	if ok {
		t.Fatalf("missing channel must not be visible")
	}

	ok, err = k.CanViewChannelID(context.Background(), "member", priv.ID)
	if err != nil || !ok {
		t.Fatalf("member must see the private channel by id: %v %v", ok, err)
	}
}

func TestCanViewMessage_ChannelAndDirect(t *testing.T) {
	db, pub, priv := newKernelDB(t)
	k := NewKernel(db)

	pubMsg := &domain.Message{AuthorID: "author", ChannelID: &pub.ID}
	privMsg := &domain.Message{AuthorID: "member", ChannelID: &priv.ID}
	dm := &domain.Message{AuthorID: "alice", RecipientID: strPtr("bob")}

	cases := []struct {
		name string
		user string
		m    *domain.Message
		want bool
	}{
		{"public channel message, anyone", "stranger", pubMsg, true},
		{"private channel message, member", "member", privMsg, true},
		{"private channel message, stranger", "stranger", privMsg, false},
		{"dm, author", "alice", dm, true},
		{"dm, recipient", "bob", dm, true},
		{"dm, third party", "carol", dm, false},
		{"nil message", "alice", nil, false},
		{"no target", "alice", &domain.Message{AuthorID: "alice"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := k.CanViewMessage(context.Background(), tc.user, tc.m)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestCanPostMessage_AuthorAndSelfDMRules(t *testing.T) {
	db, pub, priv := newKernelDB(t)
	k := NewKernel(db)

	// Author mismatch is always a no, even for a visible target.
	forged := &domain.Message{AuthorID: "someone-else", ChannelID: &pub.ID}
	if ok, err := k.CanPostMessage(context.Background(), "stranger", forged); ok || err != nil {
		t.Fatalf("author mismatch must be denied: %v %v", ok, err)
	}

	// Non-member cannot post into a private channel.
	intrusion := &domain.Message{AuthorID: "stranger", ChannelID: &priv.ID}
	if ok, err := k.CanPostMessage(context.Background(), "stranger", intrusion); ok || err != nil {
		t.Fatalf("private channel post by non-member must be denied: %v %v", ok, err)
	}

	// Member may post into the private channel.
	post := &domain.Message{AuthorID: "member", ChannelID: &priv.ID}
	if ok, err := k.CanPostMessage(context.Background(), "member", post); !ok || err != nil {
		t.Fatalf("member post must be allowed: %v %v", ok, err)
	}

	// DM to another user is allowed.
	dm := &domain.Message{AuthorID: "alice", RecipientID: strPtr("bob")}
	if ok, err := k.CanPostMessage(context.Background(), "alice", dm); !ok || err != nil {
		t.Fatalf("dm must be allowed: %v %v", ok, err)
	}

	// Self-DM is gated by AllowSelfDM.
	selfDM := &domain.Message{AuthorID: "alice", RecipientID: strPtr("alice")}
	if ok, _ := k.CanPostMessage(context.Background(), "alice", selfDM); ok {
		t.Fatalf("self-dm must be denied by default")
	}
	k.AllowSelfDM = true
	if ok, err := k.CanPostMessage(context.Background(), "alice", selfDM); !ok || err != nil {
		t.Fatalf("self-dm must be allowed when enabled: %v %v", ok, err)
	}
}

func TestFilterChannels_PreservesOrder(t *testing.T) {
	db, pub, priv := newKernelDB(t)
	k := NewKernel(db)

	all := []domain.Channel{*priv, *pub}

	visible, err := k.FilterChannels(context.Background(), "stranger", all)
	if err != nil {
		t.Fatalf("FilterChannels: %v", err)
	}
	if len(visible) != 1 || visible[0].ID != pub.ID {
		t.Fatalf("stranger should see only the public channel: %+v", visible)
	}

	visible, err = k.FilterChannels(context.Background(), "member", all)
	if err != nil {
		t.Fatalf("FilterChannels: %v", err)
	}
	if len(visible) != 2 || visible[0].ID != priv.ID || visible[1].ID != pub.ID {
		t.Fatalf("member should see both, input order preserved: %+v", visible)
	}
}

func TestFilterMessages_DropsInvisible(t *testing.T) {
	db, pub, priv := newKernelDB(t)
	k := NewKernel(db)

	msgs := []domain.Message{
		{ID: "1", AuthorID: "a", ChannelID: &pub.ID},
		{ID: "2", AuthorID: "a", ChannelID: &priv.ID},
		{ID: "3", AuthorID: "a", RecipientID: strPtr("stranger")},
	}

	visible, err := k.FilterMessages(context.Background(), "stranger", msgs)
	if err != nil {
		t.Fatalf("FilterMessages: %v", err)
	}
	if len(visible) != 2 || visible[0].ID != "1" || visible[1].ID != "3" {
		t.Fatalf("expected public + own dm, got %+v", visible)
	}
}
