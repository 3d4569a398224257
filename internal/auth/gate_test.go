package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/event-gate/internal/model"
	"github.com/iliyamo/event-gate/internal/revocation"
	"github.com/iliyamo/event-gate/internal/testutil"
	"github.com/iliyamo/event-gate/internal/token"
)

const secret = "0123456789abcdef0123456789abcdef"

var issuedAt = time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

var ana = model.User{ID: 7, Email: "ana@example.com", Role: model.RoleStaff, IsActive: true}

type mockDirectory struct{ mock.Mock }

func (m *mockDirectory) Lookup(ctx context.Context, id uint64) (model.User, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(model.User), args.Error(1)
}

type recordingAuditor struct {
	mu      sync.Mutex
	entries []model.AuditEntry
}

func (a *recordingAuditor) Record(_ context.Context, e model.AuditEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
	return nil
}

type failingChecker struct{}

func (failingChecker) IsRevoked(context.Context, string) (bool, error) {
	return false, errors.New("redis: connection refused")
}

type fixture struct {
	codec    *token.Codec
	registry *revocation.Registry
	users    *mockDirectory
	auditor  *recordingAuditor
	gate     *Gate
	clock    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{users: &mockDirectory{}, auditor: &recordingAuditor{}, clock: issuedAt}
	now := func() time.Time { return f.clock }
	f.codec = token.NewCodec(secret, 24*time.Hour, token.WithClock(now))
	f.registry = revocation.NewRegistry(revocation.NewMemoryStore(), testutil.NoopLogger()).WithClock(now)
	f.gate = NewGate(f.codec, f.registry, f.users, f.auditor, testutil.NoopLogger()).WithClock(now)
	return f
}

func (f *fixture) issue(t *testing.T, u model.User) token.Issued {
	t.Helper()
	iss, err := f.codec.Issue(u.Email, u.ID, u.Role)
	require.NoError(t, err)
	return iss
}

func TestGate_AcceptsValidToken(t *testing.T) {
	f := newFixture(t)
	f.users.On("Lookup", mock.Anything, ana.ID).Return(ana, nil).Once()
	iss := f.issue(t, ana)

	res := f.gate.Authenticate(context.Background(), iss.Token, "10.0.0.1")

	require.True(t, res.Authenticated())
	assert.Equal(t, ReasonOK, res.Reason)
	assert.Equal(t, ana.ID, res.Principal.UserID)
	assert.Equal(t, []string{"ROLE_STAFF"}, res.Principal.Authorities)
	assert.Equal(t, iss.ID, res.Principal.TokenID)
	assert.True(t, iss.ExpiresAt.Equal(res.Principal.ExpiresAt))
	assert.Empty(t, f.auditor.entries, "acceptance is not audited")
	f.users.AssertExpectations(t)
}

func TestGate_EmptyTokenIsAnonymous(t *testing.T) {
	f := newFixture(t)
	res := f.gate.Authenticate(context.Background(), "", "10.0.0.1")
	assert.False(t, res.Authenticated())
	assert.Equal(t, ReasonAnonymous, res.Reason)
	assert.Empty(t, f.auditor.entries)
}

func TestGate_RevokedRightAfterIssue(t *testing.T) {
	f := newFixture(t)
	iss := f.issue(t, ana)
	require.NoError(t, f.registry.Revoke(context.Background(), iss.ID, ana.Email, iss.ExpiresAt, model.RevokeLogout))

	f.clock = issuedAt.Add(time.Minute)
	res := f.gate.Authenticate(context.Background(), iss.Token, "10.0.0.9")

	assert.False(t, res.Authenticated())
	assert.Equal(t, ReasonRevoked, res.Reason)
	require.Len(t, f.auditor.entries, 1)
	e := f.auditor.entries[0]
	assert.Equal(t, model.AuditAuth, e.Category)
	assert.Equal(t, "revoked", e.Outcome)
	assert.Equal(t, ana.Email, e.Subject)
	assert.Equal(t, "10.0.0.9", e.ClientAddr)
	f.users.AssertNotCalled(t, "Lookup", mock.Anything, mock.Anything)
}

func TestGate_ExpiredBeforeRevocationCheck(t *testing.T) {
	f := newFixture(t)
	iss := f.issue(t, ana)
	require.NoError(t, f.registry.Revoke(context.Background(), iss.ID, ana.Email, iss.ExpiresAt, model.RevokeLogout))

	f.clock = issuedAt.Add(25 * time.Hour)
	res := f.gate.Authenticate(context.Background(), iss.Token, "10.0.0.9")
	assert.Equal(t, ReasonExpiredSignature, res.Reason)
}

func TestGate_Malformed(t *testing.T) {
	f := newFixture(t)
	other := token.NewCodec("another-secret-another-secret-xx", time.Hour, token.WithClock(func() time.Time { return issuedAt }))
	forged, err := other.Issue(ana.Email, ana.ID, ana.Role)
	require.NoError(t, err)

	for name, raw := range map[string]string{
		"garbage": "not.a.jwt",
		"forged":  forged.Token,
	} {
		t.Run(name, func(t *testing.T) {
			res := f.gate.Authenticate(context.Background(), raw, "10.0.0.1")
			assert.Equal(t, ReasonMalformed, res.Reason)
		})
	}
	assert.Len(t, f.auditor.entries, 2)
}

func TestGate_UnknownSubject(t *testing.T) {
	cases := map[string]struct {
		user model.User
		err  error
	}{
		"missing":       {err: model.ErrUserNotFound},
		"inactive":      {user: model.User{ID: 7, Email: ana.Email, Role: ana.Role}},
		"role changed":  {user: model.User{ID: 7, Email: ana.Email, Role: model.RoleCustomer, IsActive: true}},
		"email changed": {user: model.User{ID: 7, Email: "other@example.com", Role: ana.Role, IsActive: true}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			f.users.On("Lookup", mock.Anything, uint64(7)).Return(tc.user, tc.err)
			res := f.gate.Authenticate(context.Background(), f.issue(t, ana).Token, "10.0.0.1")
			assert.Equal(t, ReasonUnknownSubject, res.Reason)
			assert.Len(t, f.auditor.entries, 1)
		})
	}
}

func TestGate_StoreFailuresFailClosed(t *testing.T) {
	t.Run("revocation", func(t *testing.T) {
		f := newFixture(t)
		gate := NewGate(f.codec, failingChecker{}, f.users, f.auditor, testutil.NoopLogger())
		res := gate.Authenticate(context.Background(), f.issue(t, ana).Token, "10.0.0.1")
		assert.Equal(t, ReasonUnavailable, res.Reason)
		assert.Nil(t, res.Principal)
	})

	t.Run("directory", func(t *testing.T) {
		f := newFixture(t)
		f.users.On("Lookup", mock.Anything, ana.ID).Return(model.User{}, errors.New("too many connections"))
		res := f.gate.Authenticate(context.Background(), f.issue(t, ana).Token, "10.0.0.1")
		assert.Equal(t, ReasonUnavailable, res.Reason)
	})
}
