// Package mail sends transactional notification email over SMTP.
package mail

import (
	"bytes"
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"sync"
	"text/template"
	"time"

	"procur.org/internal/obs"
)

const bulkWorkers = 4

// Config holds SMTP connection and sender identity settings. Enabled=false
// turns every send into a recorded no-op, which keeps the notification
// call sites unconditional.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	Enabled  bool
}

// Result is the outcome of one send attempt.
type Result struct {
	To      string
	Sent    bool
	Skipped bool
	Err     error
}

// Message is a rendered email ready for transport.
type Message struct {
	To      string
	Subject string
	Body    string
}

// sendFunc delivers one message; swapped out in tests.
type sendFunc func(ctx context.Context, msg Message) error

// Mailer renders templates and delivers them over SMTP.
type Mailer struct {
	cfg  Config
	send sendFunc
}

// Option configures Mailer behavior.
type Option func(*Mailer)

// WithTransport replaces the SMTP delivery function (useful for tests).
func WithTransport(fn sendFunc) Option {
	return func(m *Mailer) {
		if fn != nil {
			m.send = fn
		}
	}
}

// New constructs a Mailer.
func New(cfg Config, opts ...Option) *Mailer {
	m := &Mailer{cfg: cfg}
	m.send = m.smtpSend
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Enabled reports whether deliveries actually go out.
func (m *Mailer) Enabled() bool { return m.cfg.Enabled }

func (m *Mailer) smtpSend(ctx context.Context, msg Message) error {
	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s <%s>\r\n", m.cfg.FromName, m.cfg.From)
	fmt.Fprintf(&buf, "To: %s\r\n", msg.To)
	fmt.Fprintf(&buf, "Subject: %s\r\n", msg.Subject)
	fmt.Fprintf(&buf, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	buf.WriteString(msg.Body)

	done := make(chan error, 1)
	go func() {
		// smtp.SendMail upgrades to STARTTLS when the server offers it
		done <- smtp.SendMail(addr, auth, m.cfg.From, []string{msg.To}, buf.Bytes())
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

// Send renders and delivers one message.
func (m *Mailer) Send(ctx context.Context, msg Message) Result {
	msg.To = strings.TrimSpace(msg.To)
	if msg.To == "" {
		return Result{Err: fmt.Errorf("mail: empty recipient")}
	}
	if !m.cfg.Enabled {
		obs.CountEmail("skipped")
		return Result{To: msg.To, Skipped: true}
	}
	if err := m.send(ctx, msg); err != nil {
		obs.CountEmail("failed")
		obs.Error("email delivery failed", map[string]any{"to": msg.To, "error": err.Error()})
		return Result{To: msg.To, Err: err}
	}
	obs.CountEmail("sent")
	return Result{To: msg.To, Sent: true}
}

// SendBulk delivers the message to every address through a bounded worker
// pool, preserving input order in the results.
func (m *Mailer) SendBulk(ctx context.Context, addrs []string, subject, body string) []Result {
	results := make([]Result, len(addrs))
	sem := make(chan struct{}, bulkWorkers)
	var wg sync.WaitGroup
	for i, to := range addrs {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, to string) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = m.Send(ctx, Message{To: to, Subject: subject, Body: body})
		}(i, to)
	}
	wg.Wait()
	return results
}

func render(tmpl *template.Template, data any) string {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		obs.Error("email template render failed", map[string]any{"template": tmpl.Name(), "error": err.Error()})
		return ""
	}
	return buf.String()
}
