package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hendrywilliam/sirengate/src/gateway"
	"github.com/hendrywilliam/sirengate/src/ratelimit"
	"github.com/hendrywilliam/sirengate/src/rest"
	"github.com/hendrywilliam/sirengate/src/stats"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGateway struct{ status gateway.Status }

func (f fakeGateway) Status() gateway.Status { return f.status }

type fakeLimits struct{ snap rest.Snapshot }

func (f fakeLimits) Snapshot() rest.Snapshot { return f.snap }

type brokenStats struct{}

func (brokenStats) Totals(context.Context) (stats.Counters, error) {
	return stats.Counters{}, errors.New("redis down")
}

func newTestServer(src stats.Source) *Server {
	seq := int64(42)
	gw := fakeGateway{status: gateway.Status{
		State:             gateway.StateActive,
		ConnID:            "conn-1",
		HasSession:        true,
		Sequence:          &seq,
		HeartbeatInterval: 41250 * time.Millisecond,
		HeartbeatAcked:    true,
	}}
	limits := fakeLimits{snap: rest.Snapshot{
		Global:  ratelimit.GlobalSnapshot{Capacity: 50, Remaining: 49},
		Buckets: []ratelimit.BucketSnapshot{{ID: "abc", Limit: 5, Remaining: 4}},
		Routes:  map[string]string{"GET /channels/1": "abc"},
	}}
	return NewServer(gw, limits, src, zerolog.Nop())
}

func get(t *testing.T, s *Server, path string, header ...string) (*http.Response, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if len(header) == 2 {
		req.Header.Set(header[0], header[1])
	}
	res, err := s.App().Test(req)
	require.NoError(t, err)
	defer res.Body.Close()
	b, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	body := map[string]any{}
	require.NoError(t, json.Unmarshal(b, &body))
	return res, body
}

func TestHealth(t *testing.T) {
	res, body := get(t, newTestServer(nil), "/health")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, res.Header.Get(HeaderRequestID))
}

func TestRequestIDIsKept(t *testing.T) {
	res, _ := get(t, newTestServer(nil), "/health", HeaderRequestID, "req-1")
	assert.Equal(t, "req-1", res.Header.Get(HeaderRequestID))
}

func TestStatus(t *testing.T) {
	res, body := get(t, newTestServer(nil), "/status")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "active", body["state"])
	assert.Equal(t, "conn-1", body["conn_id"])
	assert.Equal(t, true, body["has_session"])
	assert.EqualValues(t, 42, body["sequence"])
}

func TestRateLimits(t *testing.T) {
	mem := stats.NewMemory()
	require.NoError(t, mem.Record(context.Background(), stats.Event{Method: "GET", Route: "/x", Outcome: stats.OutcomeOK}))

	res, body := get(t, newTestServer(mem), "/ratelimits")
	assert.Equal(t, http.StatusOK, res.StatusCode)

	global := body["global"].(map[string]any)
	assert.EqualValues(t, 50, global["capacity"])
	assert.EqualValues(t, 49, global["remaining"])
	assert.Equal(t, map[string]any{"GET /channels/1": "abc"}, body["routes"])
	buckets := body["buckets"].([]any)
	require.Len(t, buckets, 1)
	assert.Equal(t, "abc", buckets[0].(map[string]any)["id"])
	assert.EqualValues(t, 1, body["stats"].(map[string]any)["ok"])
}

func TestRateLimitsWithoutStats(t *testing.T) {
	_, body := get(t, newTestServer(nil), "/ratelimits")
	assert.NotContains(t, body, "stats")
}

func TestRateLimitsStatsFailure(t *testing.T) {
	res, body := get(t, newTestServer(brokenStats{}), "/ratelimits")
	assert.Equal(t, http.StatusServiceUnavailable, res.StatusCode)
	assert.Equal(t, "stats unavailable", body["error"])
}
