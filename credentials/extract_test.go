package credentials_test

import (
	"net/url"
	"testing"

	"github.com/jrsteele09/ops-portal/credentials"
	"github.com/stretchr/testify/require"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]string
		want   credentials.Bundle
	}{
		{
			name:   "empty",
			params: map[string]string{},
			want:   credentials.None(),
		},
		{
			name:   "authority error",
			params: map[string]string{"error": "access_denied", "error_description": "Invalid link"},
			want: credentials.Bundle{
				Kind:             credentials.KindError,
				Error:            "access_denied",
				ErrorCode:        "access_denied",
				ErrorDescription: "Invalid link",
			},
		},
		{
			name:   "description alone is an error",
			params: map[string]string{"error_description": "Email link is invalid or has expired"},
			want: credentials.Bundle{
				Kind:             credentials.KindError,
				ErrorCode:        credentials.ErrorCodeUnknown,
				ErrorDescription: "Email link is invalid or has expired",
			},
		},
		{
			name:   "error code wins over generic error",
			params: map[string]string{"error": "access_denied", "error_code": "otp_expired"},
			want: credentials.Bundle{
				Kind:      credentials.KindError,
				Error:     "access_denied",
				ErrorCode: "otp_expired",
			},
		},
		{
			name:   "error takes priority over tokens",
			params: map[string]string{"error": "server_error", "access_token": "a", "refresh_token": "r", "code": "c"},
			want: credentials.Bundle{
				Kind:      credentials.KindError,
				Error:     "server_error",
				ErrorCode: "server_error",
			},
		},
		{
			name:   "code",
			params: map[string]string{"code": "abc123"},
			want:   credentials.Bundle{Kind: credentials.KindCode, Code: "abc123"},
		},
		{
			name:   "code takes priority over tokens",
			params: map[string]string{"code": "abc123", "access_token": "a", "refresh_token": "r"},
			want:   credentials.Bundle{Kind: credentials.KindCode, Code: "abc123"},
		},
		{
			name:   "implicit magic link",
			params: map[string]string{"access_token": "a", "refresh_token": "r", "type": "magiclink"},
			want: credentials.Bundle{
				Kind:         credentials.KindImplicit,
				AccessToken:  "a",
				RefreshToken: "r",
				FlowType:     credentials.FlowMagicLink,
			},
		},
		{
			name:   "implicit recovery stays implicit",
			params: map[string]string{"access_token": "a", "refresh_token": "r", "type": "recovery"},
			want: credentials.Bundle{
				Kind:         credentials.KindImplicit,
				AccessToken:  "a",
				RefreshToken: "r",
				FlowType:     credentials.FlowRecovery,
			},
		},
		{
			name:   "access token only",
			params: map[string]string{"access_token": "a", "auth_pending": "1"},
			want:   credentials.None(),
		},
		{
			name:   "refresh token only",
			params: map[string]string{"refresh_token": "r"},
			want:   credentials.None(),
		},
		{
			name:   "blank values are absent",
			params: map[string]string{"access_token": " ", "refresh_token": "r", "code": ""},
			want:   credentials.None(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := credentials.ExtractMap(tt.params)
			require.Equal(t, tt.want, got)
			require.NoError(t, got.Validate())
		})
	}
}

func TestExtract_TokenPairAlwaysImplicit(t *testing.T) {
	extras := []map[string]string{
		{},
		{"type": "invite"},
		{"type": "recovery"},
		{"auth_pending": "1"},
		{"expires_in": "3600", "token_type": "bearer"},
		{"type": "something-new", "other": "x"},
	}
	for _, extra := range extras {
		both := map[string]string{"access_token": "a", "refresh_token": "r"}
		for k, v := range extra {
			both[k] = v
		}
		require.Equal(t, credentials.KindImplicit, credentials.ExtractMap(both).Kind, "params: %v", both)

		for _, only := range []string{"access_token", "refresh_token"} {
			one := map[string]string{only: "x"}
			for k, v := range extra {
				one[k] = v
			}
			require.Equal(t, credentials.KindNone, credentials.ExtractMap(one).Kind, "params: %v", one)
		}
	}
}

func TestBundle_AsRecovery(t *testing.T) {
	implicit := credentials.ExtractMap(map[string]string{"access_token": "a", "refresh_token": "r", "type": "recovery"})
	require.Equal(t, credentials.KindRecovery, implicit.AsRecovery().Kind)
	require.NoError(t, implicit.AsRecovery().Validate())

	code := credentials.ExtractMap(map[string]string{"code": "c", "type": "recovery"})
	require.Equal(t, credentials.KindRecovery, code.AsRecovery().Kind)

	magic := credentials.ExtractMap(map[string]string{"access_token": "a", "refresh_token": "r", "type": "magiclink"})
	require.Equal(t, credentials.KindImplicit, magic.AsRecovery().Kind)

	errBundle := credentials.ExtractMap(map[string]string{"error": "access_denied", "type": "recovery"})
	require.Equal(t, credentials.KindError, errBundle.AsRecovery().Kind)
}

func TestBundle_Validate(t *testing.T) {
	require.ErrorIs(t, credentials.Bundle{Kind: credentials.KindImplicit, AccessToken: "a"}.Validate(), credentials.ErrMissingTokens)
	require.ErrorIs(t, credentials.Bundle{Kind: credentials.KindCode}.Validate(), credentials.ErrMissingCode)
	require.ErrorIs(t, credentials.Bundle{Kind: credentials.KindCode, Code: "c", AccessToken: "a"}.Validate(), credentials.ErrMixedCode)
	require.ErrorIs(t, credentials.Bundle{Kind: credentials.KindError}.Validate(), credentials.ErrMissingError)
	require.NoError(t, credentials.None().Validate())
}

func TestStripAuthParams(t *testing.T) {
	u, err := url.Parse("https://portal.example.com/?auth_pending=1&access_token=a&refresh_token=r&type=recovery&page=shifts#access_token=a")
	require.NoError(t, err)
	require.Equal(t, "/?page=shifts", credentials.StripAuthParams(*u))

	u, err = url.Parse("/?error=access_denied&error_description=Invalid+link&auth_pending=1")
	require.NoError(t, err)
	require.Equal(t, "/", credentials.StripAuthParams(*u))
}

func TestIsPending(t *testing.T) {
	require.True(t, credentials.IsPending(url.Values{"auth_pending": {"1"}}))
	require.False(t, credentials.IsPending(url.Values{"auth_pending": {"0"}}))
	require.False(t, credentials.IsPending(url.Values{}))
}
