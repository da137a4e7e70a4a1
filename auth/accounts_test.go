package auth_test

import (
	"context"
	"net/http"
	"net/url"
	"testing"

	"github.com/jrsteele09/ops-portal/auth"
	apperrors "github.com/jrsteele09/ops-portal/internal/errors"
	"github.com/jrsteele09/ops-portal/provider"
	"github.com/jrsteele09/ops-portal/provider/fakeprovider"
	"github.com/jrsteele09/ops-portal/sessionstore"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// tokenWriteFailScope fails every write that carries session tokens.
type tokenWriteFailScope struct {
	sessionstore.Scope
}

func (s tokenWriteFailScope) Set(ctx context.Context, key string, value any) error {
	return s.Update(ctx, map[string]any{key: value})
}

func (s tokenWriteFailScope) Update(ctx context.Context, set map[string]any, del ...string) error {
	if _, ok := set[sessionstore.KeySession]; ok {
		return apperrors.Wrapf(apperrors.ErrStoreUnavailable, "update")
	}
	return s.Scope.Update(ctx, set, del...)
}

func TestAccounts_Login(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		f := setupTestFixture(t)
		rr := f.rerun(t, "https://ops.example.com/")

		sess, err := f.accounts.Login(ctx, rr, "  "+testEmail+" ", testPassword)
		require.NoError(t, err)
		require.Equal(t, testUserID, sess.UserID)
		require.Equal(t, auth.PurposeNormal, sess.Purpose)
		require.Equal(t, "Ann Auditor", sess.DisplayName())
		require.Zero(t, f.authority.Calls(fakeprovider.OpSetSession), "sign-in already installed the session")
		require.Equal(t, 1, f.authority.Calls(fakeprovider.OpGetUser))

		d := f.gate.Evaluate(ctx, f.rerun(t, "https://ops.example.com/"))
		require.Equal(t, auth.StateAuthenticated, d.State)
		require.Equal(t, testUserID, d.Session.UserID)
	})

	t.Run("wrong password", func(t *testing.T) {
		f := setupTestFixture(t)
		_, err := f.accounts.Login(ctx, f.rerun(t, "https://ops.example.com/"), testEmail, "nope")
		requireAuthError(t, err, auth.KindInvalidCredentials)
		require.Nil(t, f.stored(t))
		require.Equal(t, 1, f.recorder.errors[string(auth.KindInvalidCredentials)])
	})

	t.Run("missing input", func(t *testing.T) {
		f := setupTestFixture(t)
		for _, in := range [][2]string{{"", testPassword}, {"   ", testPassword}, {testEmail, ""}} {
			_, err := f.accounts.Login(ctx, f.rerun(t, "https://ops.example.com/"), in[0], in[1])
			require.ErrorIs(t, err, apperrors.ErrMissingCredentials)
		}
		require.Zero(t, f.authority.Calls(fakeprovider.OpSignIn))
	})

	t.Run("failed save keeps previous session", func(t *testing.T) {
		f := setupTestFixture(t)
		f.authority.AddUser("user-2", "bo.builder@example.com", "password456")
		first := f.establish(t)

		u, err := url.Parse("https://ops.example.com/")
		require.NoError(t, err)
		rr := auth.NewRerun(u, tokenWriteFailScope{f.store.Scope(testScope)}, f.factory())
		_, err = f.accounts.Login(ctx, rr, "bo.builder@example.com", "password456")
		require.Error(t, err)

		stored := f.stored(t)
		require.NotNil(t, stored)
		require.Equal(t, testUserID, stored.UserID)
		require.Equal(t, testEmail, stored.Email)
		require.Equal(t, first.AccessToken, stored.AccessToken)
	})

	t.Run("authority unavailable", func(t *testing.T) {
		f := setupTestFixture(t)
		f.authority.FailNext(fakeprovider.OpSignIn, &provider.Error{Status: http.StatusServiceUnavailable})
		_, err := f.accounts.Login(ctx, f.rerun(t, "https://ops.example.com/"), testEmail, testPassword)
		ae := requireAuthError(t, err, auth.KindNetwork)
		require.True(t, ae.Retryable())
	})
}

func TestAccounts_Logout(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	sess := f.establish(t)

	rr := f.rerun(t, "https://ops.example.com/")
	require.NoError(t, f.accounts.Logout(ctx, rr))
	require.Nil(t, rr.Handle.CurrentSession())
	require.Nil(t, f.stored(t))
	require.Equal(t, 1, f.authority.Calls(fakeprovider.OpSignOut))

	// The revoked tokens cannot be replayed.
	_, err := f.factory().SetSession(ctx, sess.AccessToken, sess.RefreshToken)
	require.Error(t, err)

	d := f.gate.Evaluate(ctx, f.rerun(t, "https://ops.example.com/"))
	require.Equal(t, auth.StateUnauthenticated, d.State)
}

func TestAccounts_LogoutClearsEvenWhenAuthorityFails(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	f.establish(t)
	f.authority.FailNext(fakeprovider.OpSignOut, &provider.Error{Status: http.StatusBadGateway})

	require.NoError(t, f.accounts.Logout(ctx, f.rerun(t, "https://ops.example.com/")))
	require.Nil(t, f.stored(t))
}

func TestAccounts_LogoutWithoutSession(t *testing.T) {
	f := setupTestFixture(t)
	require.NoError(t, f.accounts.Logout(context.Background(), f.rerun(t, "https://ops.example.com/")))
	require.Zero(t, f.authority.Calls(fakeprovider.OpSignOut))
}

func TestAccounts_RequestPasswordReset(t *testing.T) {
	ctx := context.Background()

	t.Run("sends a PKCE challenge for the stored verifier", func(t *testing.T) {
		f := setupTestFixture(t)
		require.NoError(t, f.accounts.RequestPasswordReset(ctx, f.rerun(t, "https://ops.example.com/"), testEmail))

		resets := f.authority.Resets()
		require.Len(t, resets, 1)
		require.Equal(t, testEmail, resets[0].Email)
		require.Equal(t, testSiteURL, resets[0].Opts.RedirectTo)
		require.Equal(t, "s256", resets[0].Opts.CodeChallengeMethod)

		var pending map[string]string
		ok, err := f.store.Scope(testScope).Get(ctx, sessionstore.KeyCodeVerifier, &pending)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "recovery", pending["flow_type"])
		require.Equal(t, oauth2.S256ChallengeFromVerifier(pending["verifier"]), resets[0].Opts.CodeChallenge)
	})

	t.Run("missing email", func(t *testing.T) {
		f := setupTestFixture(t)
		err := f.accounts.RequestPasswordReset(ctx, f.rerun(t, "https://ops.example.com/"), " ")
		require.ErrorIs(t, err, apperrors.ErrMissingEmail)
		require.Empty(t, f.authority.Resets())
	})

	t.Run("rate limited", func(t *testing.T) {
		f := setupTestFixture(t)
		f.authority.FailNext(fakeprovider.OpReset, &provider.Error{Status: http.StatusTooManyRequests, Code: "over_email_send_rate_limit"})
		err := f.accounts.RequestPasswordReset(ctx, f.rerun(t, "https://ops.example.com/"), testEmail)
		requireAuthError(t, err, auth.KindNetwork)
	})
}

func TestAccounts_CompleteRecovery(t *testing.T) {
	ctx := context.Background()

	recovering := func(t *testing.T) *testFixture {
		t.Helper()
		f := setupTestFixture(t)
		d := f.gate.Evaluate(ctx, f.rerun(t, implicitURL(f.authority.IssueSession(testUserID), "recovery")))
		require.True(t, d.Session.IsRecovery())
		return f
	}

	t.Run("success clears the recovery mark", func(t *testing.T) {
		f := recovering(t)
		sess, err := f.accounts.CompleteRecovery(ctx, f.rerun(t, "https://ops.example.com/"), "new-password", "new-password")
		require.NoError(t, err)
		require.False(t, sess.IsRecovery())
		require.False(t, f.stored(t).IsRecovery())
		require.Equal(t, "new-password", f.authority.Password(testEmail))
	})

	t.Run("validation", func(t *testing.T) {
		tests := []struct {
			name     string
			password string
			confirm  string
			want     error
		}{
			{name: "too short", password: "abc", confirm: "abc", want: apperrors.ErrPasswordTooShort},
			{name: "mismatch", password: "new-password", confirm: "new-passw0rd", want: apperrors.ErrPasswordMismatch},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				f := recovering(t)
				_, err := f.accounts.CompleteRecovery(ctx, f.rerun(t, "https://ops.example.com/"), tt.password, tt.confirm)
				require.ErrorIs(t, err, tt.want)
				require.Zero(t, f.authority.Calls(fakeprovider.OpUpdateUser))
				require.True(t, f.stored(t).IsRecovery())
			})
		}
	})

	t.Run("same password", func(t *testing.T) {
		f := recovering(t)
		_, err := f.accounts.CompleteRecovery(ctx, f.rerun(t, "https://ops.example.com/"), testPassword, testPassword)
		ae := requireAuthError(t, err, auth.KindInvalidCredentials)
		require.Contains(t, ae.Message, "different")
		require.True(t, f.stored(t).IsRecovery())
	})

	t.Run("requires a recovery session", func(t *testing.T) {
		f := setupTestFixture(t)
		_, err := f.accounts.CompleteRecovery(ctx, f.rerun(t, "https://ops.example.com/"), "new-password", "new-password")
		require.ErrorIs(t, err, apperrors.ErrRecoveryRequired)

		f.establish(t)
		_, err = f.accounts.CompleteRecovery(ctx, f.rerun(t, "https://ops.example.com/"), "new-password", "new-password")
		require.ErrorIs(t, err, apperrors.ErrRecoveryRequired)
		require.Zero(t, f.authority.Calls(fakeprovider.OpUpdateUser))
	})
}

func TestNewAccounts_RequiresCollaborators(t *testing.T) {
	f := setupTestFixture(t)
	_, err := auth.NewAccounts(nil, f.rehydrator)
	require.ErrorContains(t, err, "[NewAccounts]")
	_, err = auth.NewAccounts(f.establisher, nil)
	require.ErrorContains(t, err, "[NewAccounts]")
}
