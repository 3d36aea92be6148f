package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusRecorder(reg)
	if err != nil {
		t.Fatalf("NewPrometheusRecorder: %v", err)
	}

	rec.IncCounter(EventSettled, Labels("algorand-testnet", ""))
	rec.IncCounter(EventSettled, Labels("algorand-testnet", ""))
	rec.IncCounter(EventVerifyInvalid, Labels("algorand", "invalid_payment"))
	rec.ObserveLatency(OpVerify, 20*time.Millisecond, Labels("algorand", ""))

	if got := testutil.ToFloat64(rec.counters.WithLabelValues(EventSettled, "algorand-testnet", "")); got != 2 {
		t.Errorf("settled = %v, want 2", got)
	}
	if got := testutil.ToFloat64(rec.counters.WithLabelValues(EventVerifyInvalid, "algorand", "invalid_payment")); got != 1 {
		t.Errorf("verify_invalid = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(rec.histogram); n != 1 {
		t.Errorf("histogram series = %d, want 1", n)
	}

	if _, err := NewPrometheusRecorder(reg); err == nil {
		t.Error("registering twice should fail")
	}
}

func TestOrNoop(t *testing.T) {
	if _, ok := OrNoop(nil).(NoopRecorder); !ok {
		t.Error("nil recorder should become NoopRecorder")
	}
	rec := &PrometheusRecorder{}
	if OrNoop(rec) != Recorder(rec) {
		t.Error("non-nil recorder should be returned unchanged")
	}
}
