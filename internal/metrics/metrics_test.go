package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"quickestimate/internal/extract"
)

func TestMetricsCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.EmailHandled("processed")
	m.EmailHandled("processed")
	m.EmailHandled("failed")
	m.ObserveExtraction("image", 120*time.Millisecond, nil)
	m.ObserveExtraction("image", time.Second, &extract.ExtractionError{Kind: extract.KindTimeout, Op: "gemini", Err: errors.New("slow")})
	m.ObserveExtraction("xlsx", time.Millisecond, errors.New("plain"))
	m.Poll(nil)

	if got := testutil.ToFloat64(m.emails.WithLabelValues("processed")); got != 2 {
		t.Fatalf("processed=%v", got)
	}
	if got := testutil.ToFloat64(m.extractions.WithLabelValues("image", "timeout")); got != 1 {
		t.Fatalf("timeouts=%v", got)
	}
	if got := testutil.ToFloat64(m.extractions.WithLabelValues("xlsx", "other")); got != 1 {
		t.Fatalf("other=%v", got)
	}
	if got := testutil.CollectAndCount(m.extractLatency); got != 2 {
		t.Fatalf("latency series=%d", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.EmailHandled("processed")
	m.ObserveExtraction("image", time.Second, nil)
	m.Poll(errors.New("x"))
}
