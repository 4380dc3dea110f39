package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestsObserveRecordsOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRequests(reg)

	r.Observe("AS_REQ", time.Now(), nil)
	r.Observe("AS_REQ", time.Now(), errors.New("boom"))

	assert.Equal(t, float64(1), testutil.ToFloat64(r.total.WithLabelValues("AS_REQ", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.total.WithLabelValues("AS_REQ", "err")))
}

func TestServerServesHealthzAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewRequests(reg)
	s := NewServer("127.0.0.1:0", reg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	waitForAddr(t, s)

	resp, err := http.Get("http://" + s.Addr().String() + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))

	metricsResp, err := http.Get("http://" + s.Addr().String() + "/metrics")
	require.NoError(t, err)
	defer metricsResp.Body.Close()
	assert.Equal(t, http.StatusOK, metricsResp.StatusCode)

	cancel()
	require.NoError(t, <-done)
}

func waitForAddr(t *testing.T, s *Server) {
	t.Helper()
	for i := 0; i < 100; i++ {
		if s.Addr() != nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("server never started listening")
}
