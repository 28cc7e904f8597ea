package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilSafe(t *testing.T) {
	var m *Metrics
	m.ObserveDial(true)
	m.ObserveReconnect()
	m.ObserveEvent("typing")
	m.ObserveDroppedSend()
	m.SetConnected(true)
	m.ObserveDispatch("SelectTeam")
	m.ObserveAPIRequest("GET", 200, time.Millisecond)
	if m.Registry() != nil {
		t.Error("nil Metrics should have nil registry")
	}
}

func TestCounters(t *testing.T) {
	m := New()
	m.ObserveDial(true)
	m.ObserveDial(false)
	m.ObserveDial(false)
	m.ObserveEvent("new_message")
	m.SetConnected(true)

	if got := testutil.ToFloat64(m.Dials.WithLabelValues("error")); got != 2 {
		t.Errorf("dial errors = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.Events.WithLabelValues("new_message")); got != 1 {
		t.Errorf("new_message events = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Connected); got != 1 {
		t.Errorf("connected = %v, want 1", got)
	}
	m.SetConnected(false)
	if got := testutil.ToFloat64(m.Connected); got != 0 {
		t.Errorf("connected = %v, want 0", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.ObserveReconnect()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "teamchat_realtime_reconnect_attempts_total 1") {
		t.Errorf("metrics output missing reconnect counter:\n%s", body)
	}
}
