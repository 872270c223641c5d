package mail

import (
	"context"
	"text/template"

	"procur.org/internal/auth"
	"procur.org/internal/group"
)

var (
	welcomeTmpl = template.Must(template.New("welcome").Parse(
		`Hi {{.Name}},

Welcome to Procur. Your account is ready: browse purchasing groups, join
the ones that match your industry, and start pooling orders.

The Procur team
`))

	joinRequestTmpl = template.Must(template.New("join_request").Parse(
		`Hi,

{{.Requester}} has asked to join your group "{{.Group}}".
Review the request from your group dashboard.

The Procur team
`))

	joinReviewedTmpl = template.Must(template.New("join_reviewed").Parse(
		`Hi,

Your request to join "{{.Group}}" was {{.Outcome}}.
{{if .Approved}}You can now take part in the group's orders.{{end}}

The Procur team
`))

	invitationTmpl = template.Must(template.New("invitation").Parse(
		`Hi,

You have been invited to join the purchasing group "{{.Group}}" on Procur.
Use this link to join: {{.URL}}

The Procur team
`))
)

// SendWelcome greets a freshly registered user.
func (m *Mailer) SendWelcome(ctx context.Context, to, name string) Result {
	body := render(welcomeTmpl, struct{ Name string }{Name: name})
	return m.Send(ctx, Message{To: to, Subject: "Welcome to Procur", Body: body})
}

// NotifyJoinRequest implements group.Notifier.
func (m *Mailer) NotifyJoinRequest(ctx context.Context, g *group.Group, requester auth.User, adminEmail string) {
	name := requester.DisplayName
	if name == "" {
		name = requester.Email
	}
	body := render(joinRequestTmpl, struct{ Requester, Group string }{Requester: name, Group: g.Name})
	m.Send(ctx, Message{To: adminEmail, Subject: "New join request for " + g.Name, Body: body})
}

// NotifyJoinReviewed implements group.Notifier.
func (m *Mailer) NotifyJoinReviewed(ctx context.Context, g *group.Group, requesterEmail string, approved bool) {
	outcome := "rejected"
	if approved {
		outcome = "approved"
	}
	body := render(joinReviewedTmpl, struct {
		Group, Outcome string
		Approved       bool
	}{Group: g.Name, Outcome: outcome, Approved: approved})
	m.Send(ctx, Message{To: requesterEmail, Subject: "Your join request was " + outcome, Body: body})
}

// SendInvitations implements invite.Mailer.
func (m *Mailer) SendInvitations(ctx context.Context, groupName, inviteURL string, emails []string) {
	body := render(invitationTmpl, struct{ Group, URL string }{Group: groupName, URL: inviteURL})
	m.SendBulk(ctx, emails, "Invitation to join "+groupName, body)
}
