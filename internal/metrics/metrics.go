// Package metrics holds the executor's Prometheus collectors.
//
//   - executor_intents_total{reason}      intents finished, by result reason
//   - executor_jobs_total{status}         dispatch jobs finished (done|error|skipped)
//   - executor_orders_total{side,type}    orders accepted by the broker
//   - executor_submit_errors_total{retryable}
//   - executor_claim_errors_total{kind}   datastore faults while claiming (job|intent)
//   - executor_buying_power_usd           last account heartbeat reading
//   - executor_last_poll_timestamp_seconds
//
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

type Metrics struct {
	Registry *prometheus.Registry

	intents      *prometheus.CounterVec
	jobs         *prometheus.CounterVec
	orders       *prometheus.CounterVec
	submitErrors *prometheus.CounterVec
	claimErrors  *prometheus.CounterVec
	buyingPower  prometheus.Gauge
	lastPoll     prometheus.Gauge
}

// New registers every collector on a fresh registry, plus the Go and process
// collectors, labelled with the worker name.
func New(worker string) *Metrics {
	reg := prometheus.NewRegistry()
	constLabels := prometheus.Labels{"worker": worker}

	m := &Metrics{
		Registry: reg,
		intents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "executor_intents_total",
			Help:        "Intents processed, by result reason.",
			ConstLabels: constLabels,
		}, []string{"reason"}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "executor_jobs_total",
			Help:        "Dispatch jobs finished, by terminal status.",
			ConstLabels: constLabels,
		}, []string{"status"}),
		orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "executor_orders_total",
			Help:        "Orders accepted by the brokerage.",
			ConstLabels: constLabels,
		}, []string{"side", "type"}),
		submitErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "executor_submit_errors_total",
			Help:        "Order submissions rejected or failed.",
			ConstLabels: constLabels,
		}, []string{"retryable"}),
		claimErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "executor_claim_errors_total",
			Help:        "Datastore errors while claiming work.",
			ConstLabels: constLabels,
		}, []string{"kind"}),
		buyingPower: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "executor_buying_power_usd",
			Help:        "Account buying power at the last heartbeat.",
			ConstLabels: constLabels,
		}),
		lastPoll: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "executor_last_poll_timestamp_seconds",
			Help:        "Unix time of the last dispatch poll.",
			ConstLabels: constLabels,
		}),
	}

	reg.MustRegister(
		m.intents,
		m.jobs,
		m.orders,
		m.submitErrors,
		m.claimErrors,
		m.buyingPower,
		m.lastPoll,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) IntentDone(reason string) {
	if m == nil {
		return
	}
	m.intents.WithLabelValues(reason).Inc()
}

func (m *Metrics) JobDone(status string) {
	if m == nil {
		return
	}
	m.jobs.WithLabelValues(status).Inc()
}

func (m *Metrics) OrderSubmitted(side, orderType string) {
	if m == nil {
		return
	}
	m.orders.WithLabelValues(side, orderType).Inc()
}

func (m *Metrics) SubmitFailed(retryable bool) {
	if m == nil {
		return
	}
	m.submitErrors.WithLabelValues(strconv.FormatBool(retryable)).Inc()
}

func (m *Metrics) ClaimError(kind string) {
	if m == nil {
		return
	}
	m.claimErrors.WithLabelValues(kind).Inc()
}

func (m *Metrics) SetBuyingPower(usd float64) {
	if m == nil {
		return
	}
	m.buyingPower.Set(usd)
}

func (m *Metrics) Polled(at time.Time) {
	if m == nil {
		return
	}
	m.lastPoll.Set(float64(at.Unix()))
}
