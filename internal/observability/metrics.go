package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	stageRunTotal    *prometheus.CounterVec
	stageRunDuration *prometheus.HistogramVec
	stageErrorsTotal *prometheus.CounterVec

	plansActive    prometheus.Gauge
	planRunTotal   *prometheus.CounterVec
	planRetryTotal prometheus.Counter

	providerCallTotal    *prometheus.CounterVec
	providerCallDuration *prometheus.HistogramVec

	storeJobsCreatedTotal prometheus.Counter
	stalePlansSweptTotal  prometheus.Counter
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			stageRunTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "workflow_stage_run_total",
					Help: "Total workflow stage executions by stage and status.",
				},
				[]string{"stage", "status"},
			),
			stageRunDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "workflow_stage_duration_seconds",
					Help:    "Workflow stage duration in seconds by stage.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"stage"},
			),
			stageErrorsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "workflow_stage_errors_total",
					Help: "Total workflow stage errors by stage and kind.",
				},
				[]string{"stage", "kind"},
			),
			plansActive: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "plans_active",
					Help: "Current number of in-flight plans.",
				},
			),
			planRunTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "plan_run_total",
					Help: "Total plan runs by final status.",
				},
				[]string{"status"},
			),
			planRetryTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "plan_retry_total",
					Help: "Total full-pipeline retries.",
				},
			),
			providerCallTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "provider_call_total",
					Help: "Total LLM provider calls by provider and status.",
				},
				[]string{"provider", "status"},
			),
			providerCallDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "provider_call_duration_seconds",
					Help:    "LLM provider call duration in seconds by provider.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"provider"},
			),
			storeJobsCreatedTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "hardware_store_jobs_created_total",
					Help: "Total hardware store run jobs created.",
				},
			),
			stalePlansSweptTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "stale_plans_swept_total",
					Help: "Total stale plans marked timed out by the janitor.",
				},
			),
		}

		prometheus.MustRegister(
			m.stageRunTotal,
			m.stageRunDuration,
			m.stageErrorsTotal,
			m.plansActive,
			m.planRunTotal,
			m.planRetryTotal,
			m.providerCallTotal,
			m.providerCallDuration,
			m.storeJobsCreatedTotal,
			m.stalePlansSweptTotal,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

// MetricsHandler returns the HTTP handler serving the metrics endpoint.
func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

// ObserveStageRun records one stage execution.
func ObserveStageRun(stage, status string, d time.Duration) {
	m := getMetrics()
	m.stageRunTotal.WithLabelValues(stage, status).Inc()
	m.stageRunDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// ObserveStageError records a stage error by taxonomy kind.
func ObserveStageError(stage, kind string) {
	getMetrics().stageErrorsTotal.WithLabelValues(stage, kind).Inc()
}

// PlanStarted increments the in-flight plan gauge.
func PlanStarted() {
	getMetrics().plansActive.Inc()
}

// PlanFinished decrements the in-flight plan gauge and records the final status.
func PlanFinished(status string) {
	m := getMetrics()
	m.plansActive.Dec()
	m.planRunTotal.WithLabelValues(status).Inc()
}

// PlanRetried records a full-pipeline retry.
func PlanRetried() {
	getMetrics().planRetryTotal.Inc()
}

// ObserveProviderCall records one LLM call.
func ObserveProviderCall(provider, status string, d time.Duration) {
	m := getMetrics()
	m.providerCallTotal.WithLabelValues(provider, status).Inc()
	m.providerCallDuration.WithLabelValues(provider).Observe(d.Seconds())
}

// StoreJobCreated records a created hardware store run job.
func StoreJobCreated() {
	getMetrics().storeJobsCreatedTotal.Inc()
}

// StalePlanSwept records one janitor sweep victim.
func StalePlanSwept() {
	getMetrics().stalePlansSweptTotal.Inc()
}
