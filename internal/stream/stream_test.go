package stream

import (
	"context"
	"testing"
	"time"
)

func recv(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case evt := <-ch:
		return evt
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestGroupEventsReachMembersOnly(t *testing.T) {
	s := New(WithMembership(func(groupID, userID string) bool {
		return groupID == "g1" && (userID == "u1" || userID == "u2")
	}))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := s.Subscribe(ctx, "u1")
	b := s.Subscribe(ctx, "u2")
	outsider := s.Subscribe(ctx, "not-a-member")

	s.Publish(Event{Type: EventMemberJoined, GroupID: "g1", ActorID: "u2"})

	if evt := recv(t, a); evt.Type != EventMemberJoined {
		t.Fatalf("unexpected event %+v", evt)
	}
	if evt := recv(t, b); evt.GroupID != "g1" {
		t.Fatalf("unexpected event %+v", evt)
	}
	select {
	case evt := <-outsider:
		t.Fatalf("non-member received group event: %+v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestGroupEventsDroppedWithoutMembershipCheck(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := s.Subscribe(ctx, "u1")
	s.Publish(Event{Type: EventMemberJoined, GroupID: "g1"})

	select {
	case evt := <-ch:
		t.Fatalf("group event delivered without a membership check: %+v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTargetedDelivery(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	target := s.Subscribe(ctx, "u1")
	other := s.Subscribe(ctx, "u2")

	s.Publish(Event{Type: EventJoinRequestReviewed, TargetUserID: "u1"})

	if evt := recv(t, target); evt.Type != EventJoinRequestReviewed {
		t.Fatalf("unexpected event %+v", evt)
	}
	select {
	case evt := <-other:
		t.Fatalf("targeted event leaked to another user: %+v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribeOnContextCancel(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	ch := s.Subscribe(ctx, "u1")
	cancel()

	deadline := time.After(time.Second)
	for s.SubscriberCount() != 0 {
		select {
		case <-deadline:
			t.Fatal("subscriber was not removed after cancel")
		case <-time.After(5 * time.Millisecond):
		}
	}
	if _, open := <-ch; open {
		t.Fatal("channel should be closed after cancel")
	}
}

func TestPublishSetsTimestamp(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := s.Subscribe(ctx, "u1")

	s.Publish(Event{Type: EventMemberLeft})
	if evt := recv(t, ch); evt.Timestamp.IsZero() {
		t.Fatal("publish should stamp events")
	}
}
