package events

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func newTestRedisBus(t *testing.T) (*RedisBus, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	bus := NewRedisBus(rdb)
	t.Cleanup(func() { _ = bus.Close() })
	return bus, rdb
}

func receive(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case ev, ok := <-sub.C:
		if !ok {
			t.Fatalf("subscription closed unexpectedly")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("no event received")
	}
	return Event{}
}

func TestRedisBusDeliversToAddressedUserOnly(t *testing.T) {
	bus, _ := newTestRedisBus(t)
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()

	aSub, err := bus.Subscribe(ctx, alice)
	if err != nil {
		t.Fatalf("subscribe alice: %v", err)
	}
	defer aSub.Close()
	bSub, err := bus.Subscribe(ctx, bob)
	if err != nil {
		t.Fatalf("subscribe bob: %v", err)
	}
	defer bSub.Close()

	conv, msg := uuid.New(), uuid.New()
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	if err := bus.Publish(ctx, bob, Event{Type: MessageCreated, ConversationID: conv, MessageID: &msg, ActorID: alice, At: at}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	ev := receive(t, bSub)
	if ev.Type != MessageCreated || ev.ConversationID != conv || ev.ActorID != alice {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if ev.MessageID == nil || *ev.MessageID != msg || !ev.At.Equal(at) {
		t.Fatalf("event fields lost in transit: %+v", ev)
	}

	select {
	case ev := <-aSub.C:
		t.Fatalf("alice received bob's event: %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRedisBusSkipsMalformedPayloads(t *testing.T) {
	bus, rdb := newTestRedisBus(t)
	ctx := context.Background()
	user := uuid.New()

	sub, err := bus.Subscribe(ctx, user)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	if err := rdb.Publish(ctx, ChannelFor(user), "not json").Err(); err != nil {
		t.Fatalf("raw publish: %v", err)
	}
	if err := bus.Publish(ctx, user, Event{Type: MessagesSeen, Count: 3}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	ev := receive(t, sub)
	if ev.Type != MessagesSeen || ev.Count != 3 {
		t.Fatalf("expected the well-formed event after the malformed one, got %+v", ev)
	}
}

func TestRedisBusDoesNotBlockOnFullSubscriber(t *testing.T) {
	bus, _ := newTestRedisBus(t)
	ctx := context.Background()
	user := uuid.New()

	sub, err := bus.Subscribe(ctx, user)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	for i := 0; i < subscriberBuffer+8; i++ {
		if err := bus.Publish(ctx, user, Event{Type: MessageCreated, Count: int64(i)}); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}
	deadline := time.Now().Add(2 * time.Second)
	for len(sub.C) < subscriberBuffer {
		if time.Now().After(deadline) {
			t.Fatalf("buffer never filled, len=%d", len(sub.C))
		}
		time.Sleep(5 * time.Millisecond)
	}
	for i := 0; i < subscriberBuffer; i++ {
		if ev := receive(t, sub); ev.Count != int64(i) {
			t.Fatalf("event %d out of order: %+v", i, ev)
		}
	}

	// The feed keeps working after overflow.
	if err := bus.Publish(ctx, user, Event{Type: MessagesSeen, Count: 999}); err != nil {
		t.Fatalf("publish marker: %v", err)
	}
	for {
		ev := receive(t, sub)
		if ev.Count == 999 {
			break
		}
		if ev.Count < subscriberBuffer {
			t.Fatalf("event %d delivered twice", ev.Count)
		}
	}
}

func TestRedisBusCloseEndsFeed(t *testing.T) {
	bus, _ := newTestRedisBus(t)
	ctx := context.Background()

	sub, err := bus.Subscribe(ctx, uuid.New())
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	sub.Close()
	sub.Close()

	select {
	case _, ok := <-sub.C:
		if ok {
			t.Fatalf("expected closed channel")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("subscription channel not closed")
	}
}

func TestNewRedisBusFromURLRejectsBadURL(t *testing.T) {
	if _, err := NewRedisBusFromURL(context.Background(), "::not a url"); err == nil {
		t.Fatalf("expected parse error")
	}
}
