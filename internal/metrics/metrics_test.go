package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	m := New("stocks")
	m.IntentDone("ok")
	m.IntentDone("ok")
	m.IntentDone("submit_error")
	m.JobDone("done")
	m.SubmitFailed(true)
	m.OrderSubmitted("buy", "limit")
	m.SetBuyingPower(2500.5)
	m.Polled(time.Unix(1700000000, 0))

	if got := testutil.ToFloat64(m.intents.WithLabelValues("ok")); got != 2 {
		t.Fatalf("intents ok=%v want 2", got)
	}
	if got := testutil.ToFloat64(m.intents.WithLabelValues("submit_error")); got != 1 {
		t.Fatalf("intents submit_error=%v want 1", got)
	}
	if got := testutil.ToFloat64(m.submitErrors.WithLabelValues("true")); got != 1 {
		t.Fatalf("submit errors=%v want 1", got)
	}
	if got := testutil.ToFloat64(m.buyingPower); got != 2500.5 {
		t.Fatalf("buying power=%v", got)
	}
	if got := testutil.ToFloat64(m.lastPoll); got != 1700000000 {
		t.Fatalf("last poll=%v", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.IntentDone("ok")
	m.JobDone("done")
	m.OrderSubmitted("buy", "market")
	m.SubmitFailed(false)
	m.ClaimError("job")
	m.SetBuyingPower(1)
	m.Polled(time.Now())
}
