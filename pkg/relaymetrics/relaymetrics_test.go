package relaymetrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopSatisfiesSink(t *testing.T) {
	var s Sink = Noop{}
	s.IncConnections()
	s.DecConnections()
	s.IncSubscriptions()
	s.DecSubscriptions()
	s.ObserveBufferFlush(3, time.Millisecond)
	s.ObservePublish(true, time.Millisecond)
}

func TestPrometheusHandlerExposesCounters(t *testing.T) {
	p := NewPrometheus()
	p.IncConnections()
	p.IncConnections()
	p.DecConnections()
	p.IncSubscriptions()
	p.ObserveBufferFlush(4, 10*time.Millisecond)
	p.ObservePublish(true, time.Millisecond)
	p.ObservePublish(false, time.Millisecond)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	p.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "relaycore_connections 1")
	assert.Contains(t, body, "relaycore_subscriptions 1")
	assert.Contains(t, body, "relaycore_buffer_flushes_total 1")
	assert.True(t, strings.Contains(body, `relaycore_publish_total{accepted="true"} 1`))
	assert.True(t, strings.Contains(body, `relaycore_publish_total{accepted="false"} 1`))
}

func TestTwoPrometheusInstancesDoNotCollide(t *testing.T) {
	p1 := NewPrometheus()
	p2 := NewPrometheus()
	p1.IncConnections()

	rec := httptest.NewRecorder()
	p2.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "relaycore_connections 0")
}
