package feed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/Niskigvan/couchdb/internal/shardsync"
)

type received struct {
	name string
	kind shardsync.EventKind
}

func newTestListener(sink *[]received) *Listener {
	return newListener(nil, "couch.db.updates", time.Second, func(name string, kind shardsync.EventKind) {
		*sink = append(*sink, received{name: name, kind: kind})
	})
}

type fakeSub struct {
	mu           sync.Mutex
	valid        bool
	unsubscribed bool
}

func (s *fakeSub) IsValid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.valid
}

func (s *fakeSub) Unsubscribe() error {
	s.mu.Lock()
	s.valid = false
	s.unsubscribed = true
	s.mu.Unlock()
	return nil
}

func (s *fakeSub) invalidate() {
	s.mu.Lock()
	s.valid = false
	s.mu.Unlock()
}

func (s *fakeSub) released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unsubscribed
}

type fakeBus struct {
	mu       sync.Mutex
	failures int // Subscribe errors to return before succeeding
	attempts int
	subs     []*fakeSub
}

func (b *fakeBus) Subscribe(subject string, handler nats.MsgHandler) (subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attempts++
	if b.failures > 0 {
		b.failures--
		return nil, errors.New("connection closed")
	}
	s := &fakeSub{valid: true}
	b.subs = append(b.subs, s)
	return s, nil
}

func (b *fakeBus) stats() (attempts, subs int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts, len(b.subs)
}

func (b *fakeBus) lastSub() *fakeSub {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.subs) == 0 {
		return nil
	}
	return b.subs[len(b.subs)-1]
}

func waitUntil(t *testing.T, d time.Duration, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for condition")
}

func TestDispatch_DecodesUpdateAndDelete(t *testing.T) {
	var got []received
	l := newTestListener(&got)

	l.dispatch(&nats.Msg{Data: []byte(`{"name":"shards/00-1f/db1","kind":"updated"}`)})
	l.dispatch(&nats.Msg{Data: []byte(`{"name":"shards/00-1f/db1","kind":"deleted"}`)})

	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %v", got)
	}
	if got[0] != (received{name: "shards/00-1f/db1", kind: shardsync.Updated}) {
		t.Fatalf("unexpected first event %+v", got[0])
	}
	if got[1] != (received{name: "shards/00-1f/db1", kind: shardsync.Deleted}) {
		t.Fatalf("unexpected second event %+v", got[1])
	}
}

func TestDispatch_DropsMalformedAndUnknown(t *testing.T) {
	var got []received
	l := newTestListener(&got)

	l.dispatch(&nats.Msg{Data: []byte(`not json`)})
	l.dispatch(&nats.Msg{Data: []byte(`{"name":"db1","kind":"compacted"}`)})

	if len(got) != 0 {
		t.Fatalf("malformed or unknown events must be dropped, got %v", got)
	}
}

func TestListener_RetriesFailedAndLostSubscription(t *testing.T) {
	bus := &fakeBus{failures: 1}
	l := newListener(bus, "couch.db.updates", 5*time.Millisecond, func(string, shardsync.EventKind) {})
	l.Start(context.Background())
	defer l.Stop()

	// The failed first attempt is retried after the backoff.
	waitUntil(t, 2*time.Second, func() bool {
		_, subs := bus.stats()
		return subs == 1
	})
	// An invalidated subscription is dropped and replaced.
	bus.lastSub().invalidate()
	waitUntil(t, 2*time.Second, func() bool {
		_, subs := bus.stats()
		return subs == 2
	})
	attempts, _ := bus.stats()
	if attempts != 3 {
		t.Fatalf("expected 3 subscribe attempts (one failed, two live), got %d", attempts)
	}
}

func TestListener_StopEndsLoop(t *testing.T) {
	bus := &fakeBus{}
	l := newListener(bus, "couch.db.updates", 5*time.Millisecond, func(string, shardsync.EventKind) {})
	done := make(chan struct{})
	go func() {
		l.run(context.Background())
		close(done)
	}()
	waitUntil(t, 2*time.Second, func() bool {
		_, subs := bus.stats()
		return subs == 1
	})
	l.Stop()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("listener loop did not exit after Stop")
	}
	if !bus.lastSub().released() {
		t.Fatalf("listener must release its subscription on Stop")
	}
}

func TestListener_ContextCancelEndsLoop(t *testing.T) {
	bus := &fakeBus{}
	l := newListener(bus, "couch.db.updates", 5*time.Millisecond, func(string, shardsync.EventKind) {})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.run(ctx)
		close(done)
	}()
	waitUntil(t, 2*time.Second, func() bool {
		_, subs := bus.stats()
		return subs == 1
	})
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("listener loop did not exit after context cancellation")
	}
}
