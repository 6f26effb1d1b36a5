package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveRPC("state_getStorage", time.Now(), nil)
	m.ConnectionOpened()
	m.Submitted("stake", true)
	m.Blocked("stake")
}

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveRPC("state_getStorage", time.Now(), nil)
	m.ObserveRPC("state_getStorage", time.Now(), errors.New("boom"))
	m.Submitted("stake", false)
	m.Blocked("unstake")
	m.ConnectionOpened()

	if got := testutil.ToFloat64(m.RPCCalls.WithLabelValues("state_getStorage", "error")); got != 1 {
		t.Fatalf("rpc error count = %v", got)
	}
	if got := testutil.ToFloat64(m.Submissions.WithLabelValues("stake", "failure")); got != 1 {
		t.Fatalf("submission count = %v", got)
	}
	if got := testutil.ToFloat64(m.SlippageBlocked.WithLabelValues("unstake")); got != 1 {
		t.Fatalf("blocked count = %v", got)
	}
	if got := testutil.ToFloat64(m.Reconnects); got != 1 {
		t.Fatalf("reconnect count = %v", got)
	}
}
