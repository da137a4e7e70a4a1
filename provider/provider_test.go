package provider_test

import (
	"context"
	"testing"

	"github.com/jrsteele09/ops-portal/provider"
	"github.com/jrsteele09/ops-portal/provider/fakeprovider"
	"github.com/stretchr/testify/require"
)

// pairOnlySetter exposes only the composite-object session-set shape.
type pairOnlySetter struct {
	got provider.TokenPair
}

func (p *pairOnlySetter) SetSessionPair(_ context.Context, pair provider.TokenPair) (*provider.AuthResponse, error) {
	p.got = pair
	return &provider.AuthResponse{Tokens: pair, User: provider.User{ID: "u-1"}}, nil
}

func TestApplySession(t *testing.T) {
	ctx := context.Background()

	t.Run("discrete shape", func(t *testing.T) {
		authority := fakeprovider.New()
		authority.AddUser("u-1", "ann@example.com", "pw")
		pair := authority.IssueSession("u-1")

		handle := authority.Client()
		resp, err := provider.ApplySession(ctx, handle, pair)
		require.NoError(t, err)
		require.Equal(t, "u-1", resp.User.ID)
		require.True(t, handle.CurrentSession().Matches(pair))
		require.Equal(t, 1, authority.Calls(fakeprovider.OpSetSession))
	})

	t.Run("composite shape", func(t *testing.T) {
		setter := &pairOnlySetter{}
		pair := provider.TokenPair{AccessToken: "a", RefreshToken: "r"}
		resp, err := provider.ApplySession(ctx, setter, pair)
		require.NoError(t, err)
		require.Equal(t, pair, setter.got)
		require.Equal(t, "u-1", resp.User.ID)
	})

	t.Run("incomplete pair", func(t *testing.T) {
		_, err := provider.ApplySession(ctx, &pairOnlySetter{}, provider.TokenPair{AccessToken: "a"})
		require.ErrorIs(t, err, provider.ErrMissingTokens)
	})

	t.Run("unsupported handle", func(t *testing.T) {
		_, err := provider.ApplySession(ctx, struct{}{}, provider.TokenPair{AccessToken: "a", RefreshToken: "r"})
		require.ErrorIs(t, err, provider.ErrUnsupported)
	})
}

func TestParseError(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   provider.Error
	}{
		{
			name:   "status from body",
			status: 0,
			body:   `{"code":403,"error_code":"otp_expired","msg":"Email link is invalid or has expired"}`,
			want:   provider.Error{Op: "op", Status: 403, Code: "otp_expired", Message: "Email link is invalid or has expired"},
		},
		{
			name:   "oauth shape",
			status: 400,
			body:   `{"error":"invalid_grant","error_description":"Invalid login credentials"}`,
			want:   provider.Error{Op: "op", Status: 400, Code: "invalid_grant", Message: "Invalid login credentials"},
		},
		{
			name:   "string code",
			status: 400,
			body:   `{"code":"flow_state_not_found","message":"invalid flow state"}`,
			want:   provider.Error{Op: "op", Status: 400, Code: "flow_state_not_found", Message: "invalid flow state"},
		},
		{
			name:   "not json",
			status: 400,
			body:   "upstream connect error",
			want:   provider.Error{Op: "op", Status: 400, Message: "upstream connect error"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := provider.ParseError("op", tt.status, []byte(tt.body))
			require.Equal(t, tt.want, *got)
		})
	}
}

func TestError_Error(t *testing.T) {
	err := &provider.Error{Op: "get_user", Status: 403, Code: "bad_jwt", Message: "token is expired"}
	require.Equal(t, "get_user: authority error (status 403) bad_jwt: token is expired", err.Error())

	wrapped := error(err)
	pe, ok := provider.AsError(wrapped)
	require.True(t, ok)
	require.Equal(t, "bad_jwt", pe.Code)
}
