package health

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedReport(shards ...ShardStatus) ReportFunc {
	return func(context.Context) Report {
		return Report{
			Shards:   shards,
			Counters: map[string]int64{"frames": 12},
			CPU:      3.5,
			Host:     FormatStatus(nil),
			Cache:    "`Not Configured`",
		}
	}
}

func TestStatusEndpointRendersReport(t *testing.T) {
	ss := NewStatusServer("127.0.0.1:0", "1.2.3", fixedReport(
		ShardStatus{ID: 0, Status: "ready", Latency: 42 * time.Millisecond},
	), nil)

	rec := httptest.NewRecorder()
	ss.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body statusJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "operational", body.Status)
	assert.Equal(t, "1.2.3", body.Version)
	require.Len(t, body.Shards, 1)
	assert.EqualValues(t, 42, body.Shards[0].LatencyMS)
	assert.EqualValues(t, 12, body.Counters["frames"])
	assert.InDelta(t, 3.5, body.Host.CPU, 0.001)
	assert.Positive(t, body.Host.Goroutines)
}

func TestHealthEndpointFollowsShardReadiness(t *testing.T) {
	tests := []struct {
		name   string
		shards []ShardStatus
		code   int
	}{
		{"all ready", []ShardStatus{{ID: 0, Status: "ready"}, {ID: 1, Status: "ready"}}, http.StatusOK},
		{"one reconnecting", []ShardStatus{{ID: 0, Status: "ready"}, {ID: 1, Status: "reconnecting"}}, http.StatusServiceUnavailable},
		{"no shards", nil, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ss := NewStatusServer("127.0.0.1:0", "dev", fixedReport(tt.shards...), nil)
			rec := httptest.NewRecorder()
			ss.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
			assert.Equal(t, tt.code, rec.Code)
		})
	}
}

func TestStatusServerListensAndShutsDown(t *testing.T) {
	ss := NewStatusServer("127.0.0.1:0", "dev", fixedReport(ShardStatus{ID: 0, Status: "ready"}), nil)
	require.NoError(t, ss.Start())

	resp, err := http.Get("http://" + ss.Addr() + "/health")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status": "ok"}`, string(body))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, ss.Shutdown(ctx))
}
