// Package stream fan-outs in-process notification events to SSE clients.
package stream

import (
	"context"
	"sync"
	"time"
)

// Event types published by the group and invitation services.
const (
	EventJoinRequestCreated  = "join_request.created"
	EventJoinRequestReviewed = "join_request.reviewed"
	EventMemberJoined        = "member.joined"
	EventMemberRemoved       = "member.removed"
	EventMemberLeft          = "member.left"
)

// Event is a notification delivered to connected clients. TargetUserID
// selects a single recipient; when empty the event goes to subscribers
// who are members of the event's group.
type Event struct {
	Type         string         `json:"type"`
	GroupID      string         `json:"group_id,omitempty"`
	TargetUserID string         `json:"-"`
	ActorID      string         `json:"actor_id,omitempty"`
	Payload      map[string]any `json:"payload,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
}

type subscriber struct {
	userID string
	ch     chan Event
}

// MembershipFunc reports whether a user belongs to a group. It decides
// who receives untargeted group events.
type MembershipFunc func(groupID, userID string) bool

// Stream fan-outs events to matching subscribers. Slow subscribers drop
// events instead of blocking publishers.
type Stream struct {
	mu       sync.RWMutex
	subs     map[int]subscriber
	next     int
	isMember MembershipFunc
}

// Option configures a Stream.
type Option func(*Stream)

// WithMembership installs the membership check used to fan out
// untargeted group events.
func WithMembership(fn MembershipFunc) Option {
	return func(s *Stream) { s.isMember = fn }
}

// New initialises an empty stream.
func New(opts ...Option) *Stream {
	s := &Stream{subs: make(map[int]subscriber)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe registers a subscriber for the given user and returns a channel
// which will receive events. The channel is closed when the provided
// context ends.
func (s *Stream) Subscribe(ctx context.Context, userID string) <-chan Event {
	ch := make(chan Event, 16)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = subscriber{userID: userID, ch: ch}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Publish delivers the event to matching subscribers. Events with a target
// user go only to that user's connections; untargeted group events go only
// to group members. A group event with no membership check is dropped
// rather than leaked.
func (s *Stream) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sub := range s.subs {
		if !s.receives(sub.userID, evt) {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
}

func (s *Stream) receives(userID string, evt Event) bool {
	if evt.TargetUserID != "" {
		return userID == evt.TargetUserID
	}
	if evt.GroupID != "" {
		return s.isMember != nil && s.isMember(evt.GroupID, userID)
	}
	return true
}

// SubscriberCount reports the number of open subscriptions.
func (s *Stream) SubscriberCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}
