package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"procur.org/internal/auth"
	"procur.org/internal/group"
	"procur.org/internal/idp"
	"procur.org/internal/invite"
)

// memBackend is an in-memory stand-in for the postgres store. It backs
// the gate, the resolver, the identity provider, and both domain
// services so handler tests exercise the full request path.
type memBackend struct {
	mu       sync.Mutex
	users    map[string]auth.User
	accounts map[string]idp.Account
	groups   map[string]group.Group
	members  map[string]auth.Membership // groupID+"/"+userID
	requests map[string]group.JoinRequest
	invites  map[string]invite.Invitation
}

func newMemBackend() *memBackend {
	return &memBackend{
		users:    map[string]auth.User{},
		accounts: map[string]idp.Account{},
		groups:   map[string]group.Group{},
		members:  map[string]auth.Membership{},
		requests: map[string]group.JoinRequest{},
		invites:  map[string]invite.Invitation{},
	}
}

func (b *memBackend) Find(ctx context.Context, userID string) (*auth.User, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	u, ok := b.users[userID]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return &u, nil
}

func (b *memBackend) FindUserByEmail(ctx context.Context, email string) (*auth.User, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, u := range b.users {
		if u.Email == email {
			u := u
			return &u, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (b *memBackend) CreateUser(ctx context.Context, u *auth.User) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.users[u.ID]; ok {
		return auth.ErrConflict
	}
	b.users[u.ID] = *u
	return nil
}

func (b *memBackend) UpdateUser(ctx context.Context, u *auth.User) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.users[u.ID]; !ok {
		return auth.ErrNotFound
	}
	b.users[u.ID] = *u
	return nil
}

func (b *memBackend) SetUserActive(ctx context.Context, userID string, active bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	u, ok := b.users[userID]
	if !ok {
		return auth.ErrNotFound
	}
	u.Active = active
	b.users[userID] = u
	return nil
}

func (b *memBackend) FindAccount(ctx context.Context, subjectID string) (*idp.Account, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	acc, ok := b.accounts[subjectID]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return &acc, nil
}

func (b *memBackend) FindAccountByEmail(ctx context.Context, email string) (*idp.Account, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, acc := range b.accounts {
		if acc.Email == email {
			acc := acc
			return &acc, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (b *memBackend) CreateAccount(ctx context.Context, acc *idp.Account) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, existing := range b.accounts {
		if existing.Email == acc.Email {
			return auth.ErrConflict
		}
	}
	b.accounts[acc.SubjectID] = *acc
	return nil
}

func (b *memBackend) SetTokensValidAfter(ctx context.Context, subjectID string, t time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	acc, ok := b.accounts[subjectID]
	if !ok {
		return auth.ErrNotFound
	}
	acc.TokensValidAfter = t
	b.accounts[subjectID] = acc
	return nil
}

func (b *memBackend) SetAccountDisabled(ctx context.Context, subjectID string, disabled bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	acc, ok := b.accounts[subjectID]
	if !ok {
		return auth.ErrNotFound
	}
	acc.Disabled = disabled
	b.accounts[subjectID] = acc
	return nil
}

func memberKeyOf(groupID, userID string) string { return groupID + "/" + userID }

func (b *memBackend) FindMember(ctx context.Context, groupID, userID string) (*auth.Membership, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.members[memberKeyOf(groupID, userID)]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return &m, nil
}

func (b *memBackend) ListUserMemberships(ctx context.Context, userID string) ([]auth.Membership, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []auth.Membership
	for _, m := range b.members {
		if m.UserID == userID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (b *memBackend) PrivacyOf(ctx context.Context, groupID string) (auth.Privacy, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	g, ok := b.groups[groupID]
	if !ok {
		return "", auth.ErrNotFound
	}
	return g.Privacy, nil
}

func (b *memBackend) GroupActive(ctx context.Context, groupID string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	g, ok := b.groups[groupID]
	if !ok {
		return false, auth.ErrNotFound
	}
	return g.Active, nil
}

func (b *memBackend) CreateGroup(ctx context.Context, g *group.Group) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.groups[g.ID] = *g
	return nil
}

func (b *memBackend) GetGroup(ctx context.Context, id string) (*group.Group, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	g, ok := b.groups[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return &g, nil
}

func (b *memBackend) ListGroups(ctx context.Context, filter group.ListFilter) ([]group.Group, int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []group.Group
	for _, g := range b.groups {
		if !g.Active {
			continue
		}
		if filter.PublicOnly && g.Privacy != auth.PrivacyPublic {
			continue
		}
		if filter.Industry != "" && g.Industry != filter.Industry {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(g.Name), strings.ToLower(filter.Search)) {
			continue
		}
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (b *memBackend) UpdateGroup(ctx context.Context, g *group.Group) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.groups[g.ID]; !ok {
		return auth.ErrNotFound
	}
	b.groups[g.ID] = *g
	return nil
}

func (b *memBackend) SetGroupActive(ctx context.Context, id string, active bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	g, ok := b.groups[id]
	if !ok {
		return auth.ErrNotFound
	}
	g.Active = active
	b.groups[id] = g
	return nil
}

func (b *memBackend) AdjustMemberCount(ctx context.Context, groupID string, delta int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	g, ok := b.groups[groupID]
	if !ok {
		return auth.ErrNotFound
	}
	g.MemberCount += delta
	b.groups[groupID] = g
	return nil
}

func (b *memBackend) AddMember(ctx context.Context, m auth.Membership) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := memberKeyOf(m.GroupID, m.UserID)
	if _, ok := b.members[key]; ok {
		return auth.ErrConflict
	}
	b.members[key] = m
	return nil
}

func (b *memBackend) RemoveMember(ctx context.Context, groupID, userID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := memberKeyOf(groupID, userID)
	if _, ok := b.members[key]; !ok {
		return auth.ErrNotFound
	}
	delete(b.members, key)
	return nil
}

func (b *memBackend) ListMembers(ctx context.Context, groupID string) ([]group.Member, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []group.Member
	for _, m := range b.members {
		if m.GroupID != groupID {
			continue
		}
		u := b.users[m.UserID]
		out = append(out, group.Member{
			UserID:      m.UserID,
			DisplayName: u.DisplayName,
			Email:       u.Email,
			Role:        m.Role,
			JoinedAt:    m.JoinedAt,
		})
	}
	return out, nil
}

func (b *memBackend) CountAdmins(ctx context.Context, groupID string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, m := range b.members {
		if m.GroupID == groupID && m.Role == auth.RoleAdmin {
			n++
		}
	}
	return n, nil
}

func (b *memBackend) ListUserGroups(ctx context.Context, userID string) ([]group.Group, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []group.Group
	for _, m := range b.members {
		if m.UserID == userID {
			out = append(out, b.groups[m.GroupID])
		}
	}
	return out, nil
}

func (b *memBackend) CreateJoinRequest(ctx context.Context, req *group.JoinRequest) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests[req.ID] = *req
	return nil
}

func (b *memBackend) GetJoinRequest(ctx context.Context, id string) (*group.JoinRequest, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	req, ok := b.requests[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return &req, nil
}

func (b *memBackend) FindPendingJoinRequest(ctx context.Context, groupID, userID string) (*group.JoinRequest, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, req := range b.requests {
		if req.GroupID == groupID && req.UserID == userID && req.Status == group.StatusPending {
			req := req
			return &req, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (b *memBackend) ListJoinRequests(ctx context.Context, groupID string, status group.JoinRequestStatus) ([]group.JoinRequest, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []group.JoinRequest
	for _, req := range b.requests {
		if req.GroupID != groupID {
			continue
		}
		if status != "" && req.Status != status {
			continue
		}
		out = append(out, req)
	}
	return out, nil
}

func (b *memBackend) UpdateJoinRequest(ctx context.Context, req *group.JoinRequest) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.requests[req.ID]; !ok {
		return auth.ErrNotFound
	}
	b.requests[req.ID] = *req
	return nil
}

func (b *memBackend) CreateInvitation(ctx context.Context, inv *invite.Invitation) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.invites[inv.ID] = *inv
	return nil
}

func (b *memBackend) GetInvitation(ctx context.Context, id string) (*invite.Invitation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	inv, ok := b.invites[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return &inv, nil
}

func (b *memBackend) GetInvitationByToken(ctx context.Context, token string) (*invite.Invitation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, inv := range b.invites {
		if inv.Token == token {
			inv := inv
			return &inv, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (b *memBackend) ListGroupInvitations(ctx context.Context, groupID string) ([]invite.Invitation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []invite.Invitation
	for _, inv := range b.invites {
		if inv.GroupID == groupID {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (b *memBackend) ListInvitationsByCreator(ctx context.Context, userID string) ([]invite.Invitation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []invite.Invitation
	for _, inv := range b.invites {
		if inv.CreatedBy == userID {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (b *memBackend) UpdateInvitation(ctx context.Context, inv *invite.Invitation) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.invites[inv.ID]; !ok {
		return auth.ErrNotFound
	}
	b.invites[inv.ID] = *inv
	return nil
}

type apiClient struct {
	baseURL string
	client  *http.Client
	t       *testing.T
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()

	backend := newMemBackend()
	provider, err := idp.New(backend, "test-secret")
	if err != nil {
		t.Fatalf("provider: %v", err)
	}
	validator, err := auth.NewValidator(provider, auth.NewBlacklist(), auth.NewRateWindow())
	if err != nil {
		t.Fatalf("validator: %v", err)
	}
	resolver, err := auth.NewResolver(backend)
	if err != nil {
		t.Fatalf("resolver: %v", err)
	}
	gate, err := auth.NewGate(backend, backend)
	if err != nil {
		t.Fatalf("gate: %v", err)
	}
	groups, err := group.NewService(backend, gate, backend)
	if err != nil {
		t.Fatalf("group service: %v", err)
	}
	invites, err := invite.NewService(backend, backend, gate, "http://localhost:3000")
	if err != nil {
		t.Fatalf("invite service: %v", err)
	}

	api, err := New(Options{
		Version:    "test",
		Validator:  validator,
		Resolver:   resolver,
		Gate:       gate,
		Provider:   provider,
		Users:      backend,
		Groups:     groups,
		Invites:    invites,
		RateBurst:  1000,
		RatePerSec: 1000,
	})
	if err != nil {
		t.Fatalf("new api: %v", err)
	}

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{baseURL: srv.URL, client: srv.Client(), t: t}
}

func (c *apiClient) do(method, path string, body any, token string) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) get(path string, params url.Values, token string) *http.Response {
	c.t.Helper()
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		c.t.Fatalf("parse url: %v", err)
	}
	if params != nil {
		u.RawQuery = params.Encode()
	}
	req, err := http.NewRequest(http.MethodGet, u.String(), nil)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("get request: %v", err)
	}
	return resp
}

func decode[T any](t *testing.T, r *http.Response) T {
	t.Helper()
	defer r.Body.Close()
	var env struct {
		Success bool            `json:"success"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	var v T
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &v); err != nil {
			t.Fatalf("decode data: %v", err)
		}
	}
	return v
}

func (c *apiClient) register(email, name string) (string, string) {
	c.t.Helper()
	resp := c.do(http.MethodPost, "/api/users/register", map[string]any{
		"email":        email,
		"password":     "correct-horse",
		"display_name": name,
	}, "")
	if resp.StatusCode != http.StatusCreated {
		c.t.Fatalf("register %s: status %d", email, resp.StatusCode)
	}
	session := decode[sessionResponse](c.t, resp)
	if session.Token == "" {
		c.t.Fatal("empty token on register")
	}
	return session.Token, session.User.ID
}

func TestRegisterSignInAndMe(t *testing.T) {
	api := newTestAPI(t)
	token, userID := api.register("alice@example.com", "Alice")

	resp := api.get("/api/auth/me", nil, token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("me: status %d", resp.StatusCode)
	}
	me := decode[auth.User](t, resp)
	if me.ID != userID || me.Email != "alice@example.com" {
		t.Fatalf("unexpected profile: %+v", me)
	}

	// Fresh sign-in issues a working credential.
	resp = api.do(http.MethodPost, "/api/auth/token", map[string]any{
		"email":    "alice@example.com",
		"password": "correct-horse",
	}, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("sign-in: status %d", resp.StatusCode)
	}
	session := decode[sessionResponse](t, resp)
	if session.User.ID != userID {
		t.Fatalf("sign-in resolved wrong user: %+v", session.User)
	}

	// Wrong password is a 401.
	resp = api.do(http.MethodPost, "/api/auth/token", map[string]any{
		"email":    "alice@example.com",
		"password": "wrong",
	}, "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestLogoutRevokesCredential(t *testing.T) {
	api := newTestAPI(t)
	token, _ := api.register("bob@example.com", "Bob")

	resp := api.do(http.MethodPost, "/api/auth/logout", nil, token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout: status %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = api.get("/api/auth/me", nil, token)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", resp.StatusCode)
	}
}

func TestVerifyTokenRateLimited(t *testing.T) {
	api := newTestAPI(t)

	bogus := "bogus-credential-value"
	var last *http.Response
	for i := 0; i < 6; i++ {
		if last != nil {
			last.Body.Close()
		}
		last = api.do(http.MethodPost, "/api/auth/verify-token", map[string]any{"token": bogus}, "")
	}
	defer last.Body.Close()
	if last.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429 on sixth attempt, got %d", last.StatusCode)
	}
	if last.Header.Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
}

func TestGroupLifecycleOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	adminToken, _ := api.register("carol@example.com", "Carol")
	memberToken, memberID := api.register("dave@example.com", "Dave")

	resp := api.do(http.MethodPost, "/api/groups", map[string]any{
		"name":    "Packaging Co-op",
		"privacy": "private",
	}, adminToken)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create group: status %d", resp.StatusCode)
	}
	g := decode[group.Group](t, resp)

	// Anonymous listings exclude the private group.
	resp = api.get("/api/groups", nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("anonymous list: status %d", resp.StatusCode)
	}
	listed := decode[[]group.Group](t, resp)
	if len(listed) != 0 {
		t.Fatalf("anonymous caller saw %d private groups", len(listed))
	}

	// A non-member cannot read the private group.
	resp = api.get("/api/groups/"+g.ID, nil, memberToken)
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for non-member, got %d", resp.StatusCode)
	}

	// Join request and approval.
	resp = api.do(http.MethodPost, "/api/groups/"+g.ID+"/join", map[string]any{
		"message": "we buy the same cartons",
	}, memberToken)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("join request: status %d", resp.StatusCode)
	}
	jr := decode[group.JoinRequest](t, resp)

	resp = api.do(http.MethodPut, "/api/groups/"+g.ID+"/join-requests/"+jr.ID, map[string]any{
		"approve": true,
	}, adminToken)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("review: status %d", resp.StatusCode)
	}
	reviewed := decode[group.JoinRequest](t, resp)
	if reviewed.Status != group.StatusApproved {
		t.Fatalf("unexpected status %q", reviewed.Status)
	}

	// The member can now read the group and appears on the roster.
	resp = api.get("/api/groups/"+g.ID, nil, memberToken)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("member read: status %d", resp.StatusCode)
	}
	got := decode[group.Group](t, resp)
	if got.MemberCount != 2 {
		t.Fatalf("expected member count 2, got %d", got.MemberCount)
	}

	resp = api.get("/api/groups/"+g.ID+"/members", nil, memberToken)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("members: status %d", resp.StatusCode)
	}
	roster := decode[[]group.Member](t, resp)
	found := false
	for _, m := range roster {
		if m.UserID == memberID {
			found = true
		}
	}
	if !found {
		t.Fatalf("member %s missing from roster", memberID)
	}

	// Leaving works for a regular member.
	resp = api.do(http.MethodPost, "/api/groups/"+g.ID+"/leave", nil, memberToken)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("leave: status %d", resp.StatusCode)
	}
}

func TestInvitationFlowOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	adminToken, _ := api.register("erin@example.com", "Erin")
	guestToken, _ := api.register("frank@example.com", "Frank")

	resp := api.do(http.MethodPost, "/api/groups", map[string]any{
		"name":    "Freight Pool",
		"privacy": "invite_only",
	}, adminToken)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create group: status %d", resp.StatusCode)
	}
	g := decode[group.Group](t, resp)

	resp = api.do(http.MethodPost, "/api/invitations", map[string]any{
		"group_id": g.ID,
	}, adminToken)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create invitation: status %d", resp.StatusCode)
	}
	inv := decode[invitationView](t, resp)
	if inv.Token == "" || inv.URL == "" {
		t.Fatalf("incomplete invitation: %+v", inv)
	}

	// Validation is public.
	resp = api.get("/api/invitations/validate/"+inv.Token, nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("validate: status %d", resp.StatusCode)
	}
	verdict := decode[invite.Validation](t, resp)
	if !verdict.Valid || verdict.GroupID != g.ID {
		t.Fatalf("unexpected verdict: %+v", verdict)
	}

	// A signed-in guest joins through the link.
	resp = api.do(http.MethodPost, "/api/invitations/join/"+inv.Token, nil, guestToken)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("join by invitation: status %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = api.get("/api/groups/"+g.ID, nil, guestToken)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("read after join: status %d", resp.StatusCode)
	}
	joined := decode[group.Group](t, resp)
	if joined.MemberCount != 2 {
		t.Fatalf("expected member count 2, got %d", joined.MemberCount)
	}

	// Deactivation kills the link for the next guest.
	resp = api.do(http.MethodDelete, "/api/invitations/"+inv.ID, nil, adminToken)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("deactivate: status %d", resp.StatusCode)
	}
	resp = api.get("/api/invitations/validate/"+inv.Token, nil, "")
	verdict = decode[invite.Validation](t, resp)
	if verdict.Valid {
		t.Fatal("expected deactivated invitation to be invalid")
	}
}

func TestProfileUpdate(t *testing.T) {
	api := newTestAPI(t)
	token, _ := api.register("grace@example.com", "Grace")

	resp := api.do(http.MethodPut, "/api/users/profile", map[string]any{
		"company_name": "Grace Logistics",
		"bio":          "bulk freight buyer",
	}, token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update profile: status %d", resp.StatusCode)
	}
	updated := decode[auth.User](t, resp)
	if updated.CompanyName != "Grace Logistics" {
		t.Fatalf("company name not applied: %+v", updated)
	}

	resp = api.get("/api/auth/me", nil, token)
	me := decode[auth.User](t, resp)
	if me.Bio != "bulk freight buyer" {
		t.Fatalf("bio not persisted: %+v", me)
	}
}

func TestHealthAndReady(t *testing.T) {
	api := newTestAPI(t)

	resp := api.get("/healthz", nil, "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz: status %d", resp.StatusCode)
	}

	resp2 := api.get("/readyz", nil, "")
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("readyz: status %d", resp2.StatusCode)
	}
}

func TestProtectedEndpointRejectsAnonymous(t *testing.T) {
	api := newTestAPI(t)

	resp := api.get("/api/auth/me", nil, "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if env.Success || env.Message == "" {
		t.Fatalf("expected error envelope, got %+v", env)
	}
	if env.RequestID == "" {
		t.Fatal("expected request_id in error envelope")
	}
}

func TestAuthCheckServesAnonymous(t *testing.T) {
	api := newTestAPI(t)

	resp := api.get("/api/auth/check", nil, "")
	status := decode[map[string]any](t, resp)
	if status["authenticated"] != false {
		t.Fatalf("expected anonymous check, got %+v", status)
	}

	token, userID := api.register("henry@example.com", "Henry")
	resp = api.get("/api/auth/check", nil, token)
	status = decode[map[string]any](t, resp)
	if status["authenticated"] != true || status["user_id"] != userID {
		t.Fatalf("expected authenticated check, got %+v", status)
	}
}

func TestReviewJoinRequestByID(t *testing.T) {
	api := newTestAPI(t)
	adminToken, _ := api.register("ivy@example.com", "Ivy")
	memberToken, _ := api.register("jack@example.com", "Jack")

	resp := api.do(http.MethodPost, "/api/groups", map[string]any{
		"name": "Pallet Pool",
	}, adminToken)
	g := decode[group.Group](t, resp)

	resp = api.do(http.MethodPost, "/api/groups/"+g.ID+"/join", nil, memberToken)
	jr := decode[group.JoinRequest](t, resp)

	// Reviews address the request directly, without the group segment.
	resp = api.do(http.MethodPatch, "/api/groups/join-requests/"+jr.ID, map[string]any{
		"approve": false,
		"message": "group is full",
	}, adminToken)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("review: status %d", resp.StatusCode)
	}
	reviewed := decode[group.JoinRequest](t, resp)
	if reviewed.Status != group.StatusRejected || reviewed.AdminMessage != "group is full" {
		t.Fatalf("unexpected review result: %+v", reviewed)
	}
}

func TestNotificationsListPendingJoinRequests(t *testing.T) {
	api := newTestAPI(t)
	adminToken, _ := api.register("kate@example.com", "Kate")
	memberToken, _ := api.register("liam@example.com", "Liam")

	resp := api.do(http.MethodPost, "/api/groups", map[string]any{
		"name": "Chemical Buyers",
	}, adminToken)
	g := decode[group.Group](t, resp)

	resp = api.do(http.MethodPost, "/api/groups/"+g.ID+"/join", nil, memberToken)
	jr := decode[group.JoinRequest](t, resp)

	resp = api.get("/api/users/notifications", nil, adminToken)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("notifications: status %d", resp.StatusCode)
	}
	type notificationPage struct {
		Notifications []notification `json:"notifications"`
		UnreadCount   int            `json:"unread_count"`
	}
	payload := decode[notificationPage](t, resp)
	if payload.UnreadCount != 1 || len(payload.Notifications) != 1 {
		t.Fatalf("expected one notification, got %+v", payload)
	}
	n := payload.Notifications[0]
	if n.Type != "join_request" || n.ID != jr.ID || n.Data["group_id"] != g.ID {
		t.Fatalf("unexpected notification: %+v", n)
	}

	// The requester has nothing pending on their side.
	resp = api.get("/api/users/notifications", nil, memberToken)
	payload = decode[notificationPage](t, resp)
	if payload.UnreadCount != 0 {
		t.Fatalf("expected no notifications for requester, got %+v", payload)
	}
}

func TestDeleteOwnAccount(t *testing.T) {
	api := newTestAPI(t)
	adminToken, _ := api.register("mona@example.com", "Mona")

	resp := api.do(http.MethodPost, "/api/groups", map[string]any{
		"name": "Steel Collective",
	}, adminToken)
	resp.Body.Close()

	// Group owners must transfer administration first.
	resp = api.do(http.MethodDelete, "/api/users/profile", nil, adminToken)
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for group owner, got %d", resp.StatusCode)
	}

	memberToken, _ := api.register("nate@example.com", "Nate")
	resp = api.do(http.MethodDelete, "/api/users/profile", nil, memberToken)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete account: status %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = api.get("/api/auth/me", nil, memberToken)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 after account deletion, got %d", resp.StatusCode)
	}
}
