package mail

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"procur.org/internal/auth"
	"procur.org/internal/group"
)

type capture struct {
	mu   sync.Mutex
	msgs []Message
}

func (c *capture) send(ctx context.Context, msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
	return nil
}

func enabledMailer(c *capture) *Mailer {
	return New(Config{Enabled: true, From: "noreply@procur.org", FromName: "Procur"},
		WithTransport(c.send))
}

func TestSendDisabledSkips(t *testing.T) {
	c := &capture{}
	m := New(Config{Enabled: false}, WithTransport(c.send))

	res := m.Send(context.Background(), Message{To: "a@example.com", Subject: "x", Body: "y"})
	if !res.Skipped || res.Sent || res.Err != nil {
		t.Fatalf("disabled mailer should skip: %+v", res)
	}
	if len(c.msgs) != 0 {
		t.Fatal("no delivery expected while disabled")
	}
}

func TestSend(t *testing.T) {
	c := &capture{}
	m := enabledMailer(c)

	res := m.Send(context.Background(), Message{To: " a@example.com ", Subject: "Hello", Body: "body"})
	if !res.Sent || res.To != "a@example.com" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(c.msgs) != 1 || c.msgs[0].Subject != "Hello" {
		t.Fatalf("unexpected delivery: %+v", c.msgs)
	}

	if res := m.Send(context.Background(), Message{To: "  "}); res.Err == nil {
		t.Fatal("empty recipient should fail")
	}
}

func TestSendTransportFailure(t *testing.T) {
	m := New(Config{Enabled: true}, WithTransport(func(ctx context.Context, msg Message) error {
		return errors.New("connection refused")
	}))
	res := m.Send(context.Background(), Message{To: "a@example.com"})
	if res.Sent || res.Err == nil {
		t.Fatalf("transport failure should surface: %+v", res)
	}
}

func TestSendBulkPreservesOrder(t *testing.T) {
	c := &capture{}
	m := enabledMailer(c)

	addrs := []string{"a@example.com", "b@example.com", "c@example.com", "", "e@example.com"}
	results := m.SendBulk(context.Background(), addrs, "subj", "body")
	if len(results) != len(addrs) {
		t.Fatalf("expected %d results, got %d", len(addrs), len(results))
	}
	for i, want := range addrs {
		if want == "" {
			if results[i].Err == nil {
				t.Fatalf("empty address at %d should error", i)
			}
			continue
		}
		if results[i].To != want || !results[i].Sent {
			t.Fatalf("result %d = %+v, want delivery to %s", i, results[i], want)
		}
	}
	if len(c.msgs) != 4 {
		t.Fatalf("expected 4 deliveries, got %d", len(c.msgs))
	}
}

func TestWelcomeTemplate(t *testing.T) {
	c := &capture{}
	m := enabledMailer(c)

	m.SendWelcome(context.Background(), "a@example.com", "Ada")
	if len(c.msgs) != 1 {
		t.Fatal("expected one delivery")
	}
	if !strings.Contains(c.msgs[0].Body, "Hi Ada,") {
		t.Fatalf("welcome body missing greeting: %q", c.msgs[0].Body)
	}
}

func TestNotifyJoinRequest(t *testing.T) {
	c := &capture{}
	m := enabledMailer(c)
	g := &group.Group{ID: "g1", Name: "Steel Buyers"}

	m.NotifyJoinRequest(context.Background(), g, auth.User{DisplayName: "Ada"}, "admin@example.com")
	if len(c.msgs) != 1 || c.msgs[0].To != "admin@example.com" {
		t.Fatalf("unexpected delivery: %+v", c.msgs)
	}
	if !strings.Contains(c.msgs[0].Body, "Ada") || !strings.Contains(c.msgs[0].Body, "Steel Buyers") {
		t.Fatalf("join request body incomplete: %q", c.msgs[0].Body)
	}
}

func TestNotifyJoinReviewed(t *testing.T) {
	c := &capture{}
	m := enabledMailer(c)
	g := &group.Group{ID: "g1", Name: "Steel Buyers"}

	m.NotifyJoinReviewed(context.Background(), g, "u@example.com", true)
	m.NotifyJoinReviewed(context.Background(), g, "u@example.com", false)
	if len(c.msgs) != 2 {
		t.Fatalf("expected two deliveries, got %d", len(c.msgs))
	}
	if !strings.Contains(c.msgs[0].Body, "approved") || !strings.Contains(c.msgs[1].Body, "rejected") {
		t.Fatalf("review bodies wrong: %q / %q", c.msgs[0].Body, c.msgs[1].Body)
	}
}

func TestSendInvitations(t *testing.T) {
	c := &capture{}
	m := enabledMailer(c)

	m.SendInvitations(context.Background(), "Steel Buyers", "https://app.procur.org/join/tok", []string{"a@example.com", "b@example.com"})
	if len(c.msgs) != 2 {
		t.Fatalf("expected two deliveries, got %d", len(c.msgs))
	}
	if !strings.Contains(c.msgs[0].Body, "https://app.procur.org/join/tok") {
		t.Fatalf("invitation body missing link: %q", c.msgs[0].Body)
	}
}
