package events

import (
	"sync"
	"testing"
	"time"

	"github.com/crewchat/go-team-chat/internal/domain"
)

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func TestBus_DeliversInPublishOrder(t *testing.T) {
	b := NewBus(64)
	defer b.Close()

	var mu sync.Mutex
	var got []string
	b.SubscribeFunc(func(ev domain.ChangeEvent) {
		mu.Lock()
		got = append(got, ev.Message.ID)
		mu.Unlock()
	})

	want := []string{"m1", "m2", "m3", "m4"}
	for _, id := range want {
		b.Publish(domain.MessageEvent(domain.OpInsert, &domain.Message{ID: id}))
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == len(want)
	})
	mu.Lock()
	defer mu.Unlock()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order broken at %d: got %v, want %v", i, got, want)
		}
	}
}

func TestBus_FansOutToAllHandlers(t *testing.T) {
	b := NewBus(8)
	defer b.Close()

	var mu sync.Mutex
	counts := map[int]int{}
	for i := 0; i < 3; i++ {
		i := i
		b.SubscribeFunc(func(domain.ChangeEvent) {
			mu.Lock()
			counts[i]++
			mu.Unlock()
		})
	}

	b.Publish(domain.MessageEvent(domain.OpInsert, &domain.Message{ID: "m"}))

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return counts[0] == 1 && counts[1] == 1 && counts[2] == 1
	})
}

func TestBus_PublishNeverBlocksWhenFull(t *testing.T) {
	b := NewBus(1)
	defer b.Close()

	// A handler that parks until released keeps the dispatcher busy so the
	// buffer stays full.
	release := make(chan struct{})
	b.SubscribeFunc(func(domain.ChangeEvent) { <-release })

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			b.Publish(domain.MessageEvent(domain.OpInsert, &domain.Message{ID: "m"}))
		}
	}()

	select {
	case <-done:
		// All publishes returned promptly; overflow was dropped, not queued.
	case <-time.After(2 * time.Second):
		t.Fatalf("Publish blocked on a full buffer")
	}
	close(release)
}

func TestBus_CloseDrainsAndStops(t *testing.T) {
	b := NewBus(16)

	var mu sync.Mutex
	var n int
	b.SubscribeFunc(func(domain.ChangeEvent) {
		mu.Lock()
		n++
		mu.Unlock()
	})

	for i := 0; i < 5; i++ {
		b.Publish(domain.MessageEvent(domain.OpInsert, &domain.Message{ID: "m"}))
	}
	b.Close() // waits for the dispatcher to drain

	mu.Lock()
	drained := n
	mu.Unlock()
	if drained != 5 {
		t.Fatalf("expected 5 drained events, got %d", drained)
	}

	// Publishing after close is a no-op, and Close is idempotent.
	b.Publish(domain.MessageEvent(domain.OpInsert, &domain.Message{ID: "late"}))
	b.Close()
}

func TestBus_PublishRacingCloseDoesNotPanic(t *testing.T) {
	// Publishers hammering the bus while Close runs must either enqueue
	// before the shutdown or silently no-op after it; a send on the closed
	// channel would panic here (and trip the race detector).
	for i := 0; i < 200; i++ {
		b := NewBus(4)

		var wg sync.WaitGroup
		start := make(chan struct{})
		for p := 0; p < 8; p++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				for j := 0; j < 20; j++ {
					b.Publish(domain.MessageEvent(domain.OpInsert, &domain.Message{ID: "m"}))
				}
			}()
		}

		close(start)
		b.Close()
		wg.Wait()
	}
}
