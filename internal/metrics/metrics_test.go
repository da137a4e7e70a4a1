package metrics_test

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jrsteele09/ops-portal/internal/metrics"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *metrics.Metrics) (int, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	return rec.Code, rec.Body.String()
}

func TestMetrics(t *testing.T) {
	m := metrics.New()

	m.IncrementGateDecision("loading")
	m.IncrementGateDecision("loading")
	m.IncrementGateDecision("authenticated")
	m.IncrementAuthError("InvalidCredentials")
	m.IncrementSessionEstablished("implicit")
	m.IncrementSessionPurged()
	m.ObserveAuthorityCall("get_user", 20*time.Millisecond, nil)
	m.ObserveAuthorityCall("get_user", 30*time.Millisecond, errors.New("boom"))

	code, body := scrape(t, m)
	require.Equal(t, 200, code)
	require.Contains(t, body, `ops_portal_gate_decisions_total{state="loading"} 2`)
	require.Contains(t, body, `ops_portal_gate_decisions_total{state="authenticated"} 1`)
	require.Contains(t, body, `ops_portal_auth_errors_total{kind="InvalidCredentials"} 1`)
	require.Contains(t, body, `ops_portal_sessions_established_total{kind="implicit"} 1`)
	require.Contains(t, body, `ops_portal_sessions_purged_total 1`)
	require.Contains(t, body, `ops_portal_authority_call_duration_seconds_count{op="get_user",outcome="ok"} 1`)
	require.Contains(t, body, `ops_portal_authority_call_duration_seconds_count{op="get_user",outcome="error"} 1`)
	require.Contains(t, body, "go_goroutines")
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *metrics.Metrics
	m.IncrementGateDecision("loading")
	m.IncrementAuthError("Unknown")
	m.IncrementSessionEstablished("code")
	m.IncrementSessionPurged()
	m.ObserveAuthorityCall("get_user", time.Millisecond, nil)

	code, _ := scrape(t, m)
	require.Equal(t, 404, code)
}
