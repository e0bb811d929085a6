package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	TriggerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "zapmark_trigger_requests_total", Help: "Trigger endpoint requests"},
		[]string{"endpoint", "status"},
	)
	JobsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "zapmark_jobs_processed_total", Help: "Dispatched jobs by final status"},
		[]string{"action", "status"},
	)
	GroupActions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "zapmark_group_actions_total", Help: "Per-group gateway action outcomes"},
		[]string{"action", "result"},
	)
	GatewayLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "zapmark_gateway_latency_seconds", Help: "Gateway call latency"},
	)
	AutomationRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "zapmark_automation_runs_total", Help: "Automation run outcomes"},
		[]string{"mode", "result"},
	)
	Dispatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "zapmark_dispatches_total", Help: "Dispatch log entries by status"},
		[]string{"store", "status"},
	)
	DedupSkips = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "zapmark_dedup_skips_total", Help: "Offers skipped by the 24h duplicate window"},
	)
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(TriggerRequests, JobsProcessed, GroupActions, GatewayLatency, AutomationRuns, Dispatches, DedupSkips)
}
