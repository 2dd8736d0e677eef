package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func passing(context.Context) error { return nil }

func failing(msg string) func(context.Context) error {
	return func(context.Context) error { return errors.New(msg) }
}

func serve(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHandler_AggregatesWorstStatus(t *testing.T) {
	cases := []struct {
		name       string
		checkers   map[string]Checker
		wantStatus Status
		wantCode   int
		wantReady  int
	}{
		{
			name:       "all healthy",
			checkers:   map[string]Checker{"storage": NewSimpleChecker("storage", passing)},
			wantStatus: StatusHealthy,
			wantCode:   http.StatusOK,
			wantReady:  http.StatusOK,
		},
		{
			name: "gateway degraded",
			checkers: map[string]Checker{
				"storage":         NewSimpleChecker("storage", passing),
				"payment_gateway": NewDegradableChecker("payment_gateway", failing("circuit breaker is open")),
			},
			wantStatus: StatusDegraded,
			wantCode:   http.StatusOK,
			wantReady:  http.StatusOK,
		},
		{
			name: "storage down wins over degraded",
			checkers: map[string]Checker{
				"storage":         NewSimpleChecker("storage", failing("connection refused")),
				"payment_gateway": NewDegradableChecker("payment_gateway", failing("timeout")),
			},
			wantStatus: StatusUnhealthy,
			wantCode:   http.StatusServiceUnavailable,
			wantReady:  http.StatusServiceUnavailable,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHandler("v1.2.3")
			for name, checker := range tc.checkers {
				h.RegisterChecker(name, checker)
			}

			rec := serve(t, h, "/healthz")
			require.Equal(t, tc.wantCode, rec.Code)
			require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var body Response
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			require.Equal(t, tc.wantStatus, body.Status)
			require.Equal(t, "v1.2.3", body.Version)
			require.Len(t, body.Checks, len(tc.checkers))

			ready := httptest.NewRecorder()
			h.ReadinessHandler(ready, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			require.Equal(t, tc.wantReady, ready.Code)
		})
	}
}

func TestHandler_FailureMessageAndName(t *testing.T) {
	h := NewHandler("dev")
	h.RegisterChecker("storage", NewSimpleChecker("", failing("connection refused")))

	resp := h.Run(context.Background())
	check := resp.Checks["storage"]
	require.Equal(t, "storage", check.Name)
	require.Equal(t, StatusUnhealthy, check.Status)
	require.Equal(t, "connection refused", check.Message)
	require.False(t, resp.Ready())
}

func TestHandler_RunsChecksConcurrently(t *testing.T) {
	h := NewHandler("dev")

	var inFlight, peak atomic.Int32
	slow := func(context.Context) error {
		n := inFlight.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		inFlight.Add(-1)
		return nil
	}
	for _, name := range []string{"a", "b", "c"} {
		h.RegisterChecker(name, NewSimpleChecker(name, slow))
	}

	resp := h.Run(context.Background())
	require.Equal(t, StatusHealthy, resp.Status)
	require.Greater(t, peak.Load(), int32(1))
}

func TestHandler_ChecksReceiveDeadline(t *testing.T) {
	h := NewHandler("dev")
	h.RegisterChecker("slow", NewSimpleChecker("slow", func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			return errors.New("no deadline")
		}
		time.Sleep(5 * time.Millisecond)
		return nil
	}))

	check := h.Run(context.Background()).Checks["slow"]
	require.Equal(t, StatusHealthy, check.Status, check.Message)
	require.GreaterOrEqual(t, check.DurationMs, int64(5))
}

func TestHandler_RegisterReplaces(t *testing.T) {
	h := NewHandler("dev")
	h.RegisterChecker("storage", NewSimpleChecker("storage", failing("down")))
	h.RegisterChecker("storage", NewSimpleChecker("storage", passing))

	require.Equal(t, StatusHealthy, h.Run(context.Background()).Status)
}

func TestLivenessHandler(t *testing.T) {
	rec := serve(t, http.HandlerFunc(LivenessHandler), "/livez")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())
}

func TestReadinessHandler_Body(t *testing.T) {
	h := NewHandler("dev")
	h.RegisterChecker("storage", NewSimpleChecker("storage", failing("not ready")))

	rec := serve(t, http.HandlerFunc(h.ReadinessHandler), "/readyz")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, "not ready", rec.Body.String())
}
