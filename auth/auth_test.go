package auth_test

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/jrsteele09/ops-portal/auth"
	"github.com/jrsteele09/ops-portal/provider"
	"github.com/jrsteele09/ops-portal/provider/fakeprovider"
	"github.com/jrsteele09/ops-portal/sessionstore"
	"github.com/stretchr/testify/require"
)

const (
	testUserID   = "user-1"
	testEmail    = "ann.auditor@example.com"
	testPassword = "password123"
	testScope    = "scope-1"
	testSiteURL  = "https://ops.example.com/"
)

// testFixture holds all test dependencies
type testFixture struct {
	authority   *fakeprovider.Authority
	store       *sessionstore.InMemoryStore
	factory     provider.Factory
	establisher *auth.Establisher
	rehydrator  *auth.Rehydrator
	gate        *auth.Gate
	accounts    *auth.Accounts
	recorder    *countingRecorder
}

type countingRecorder struct {
	decisions map[string]int
	errors    map[string]int
	purged    int
}

func (c *countingRecorder) IncrementGateDecision(state string)  { c.decisions[state]++ }
func (c *countingRecorder) IncrementAuthError(kind string)      { c.errors[kind]++ }
func (c *countingRecorder) IncrementSessionEstablished(string)  {}
func (c *countingRecorder) IncrementSessionPurged()             { c.purged++ }

// setupTestFixture creates a new test fixture with all dependencies
func setupTestFixture(t *testing.T, opts ...auth.Option) *testFixture {
	t.Helper()
	f := &testFixture{
		authority: fakeprovider.New(),
		store:     sessionstore.NewInMemoryStore(0),
		recorder:  &countingRecorder{decisions: map[string]int{}, errors: map[string]int{}},
	}
	f.authority.AddUser(testUserID, testEmail, testPassword)
	f.authority.SetProfile(provider.Profile{ID: testUserID, FullName: "Ann Auditor", Role: "AUDITOR", Active: true})
	f.factory = f.authority.Factory()
	f.build(t, opts...)
	return f
}

func (f *testFixture) build(t *testing.T, opts ...auth.Option) {
	t.Helper()
	opts = append([]auth.Option{
		auth.WithTimeout(time.Second),
		auth.WithRecorder(f.recorder),
		auth.WithSiteURL(testSiteURL),
	}, opts...)

	var err error
	f.establisher = auth.NewEstablisher(opts...)
	f.rehydrator, err = auth.NewRehydrator(f.factory, opts...)
	require.NoError(t, err)
	f.gate, err = auth.NewGate(f.establisher, f.rehydrator, opts...)
	require.NoError(t, err)
	f.accounts, err = auth.NewAccounts(f.establisher, f.rehydrator, opts...)
	require.NoError(t, err)
}

// rerun simulates one pass of the view with a brand-new handle.
func (f *testFixture) rerun(t *testing.T, rawURL string) *auth.Rerun {
	t.Helper()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	return auth.NewRerun(u, f.store.Scope(testScope), f.factory())
}

func (f *testFixture) stored(t *testing.T) *auth.Session {
	t.Helper()
	sess, err := auth.LoadSession(context.Background(), f.store.Scope(testScope))
	require.NoError(t, err)
	return sess
}

func implicitURL(pair provider.TokenPair, flow string) string {
	q := url.Values{}
	q.Set("auth_pending", "1")
	q.Set("access_token", pair.AccessToken)
	q.Set("refresh_token", pair.RefreshToken)
	if flow != "" {
		q.Set("type", flow)
	}
	q.Set("page", "shifts")
	return "https://ops.example.com/?" + q.Encode()
}

// establish signs the test user in through an implicit redirect.
func (f *testFixture) establish(t *testing.T) *auth.Session {
	t.Helper()
	d := f.gate.Evaluate(context.Background(), f.rerun(t, implicitURL(f.authority.IssueSession(testUserID), "magiclink")))
	require.Equal(t, auth.StateAuthenticated, d.State)
	return d.Session
}

func requireAuthError(t *testing.T, err error, kind auth.Kind) *auth.Error {
	t.Helper()
	require.Error(t, err)
	ae := auth.Classify(err)
	require.Equal(t, kind, ae.Kind, "cause: %v", ae.Cause)
	return ae
}
