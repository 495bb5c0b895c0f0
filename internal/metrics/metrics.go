// Package metrics holds the broker's domain Prometheus collectors: queue
// depth, registered invokers, submission throughput, and upstream link
// state. Registered once at package init so promhttp.Handler (wired in
// internal/control) serves them alongside the default Go/process metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "invoker_manager_queue_depth",
		Help: "Submissions currently waiting in the broker's dispatch queue",
	})
	InvokersConnected = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "invoker_manager_invokers_connected",
		Help: "Invoker sessions currently registered with the broker",
	})
	SubmissionsDispatched = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "invoker_manager_submissions_dispatched_total",
		Help: "Submissions handed to an idle invoker",
	})
	SubmissionsFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "invoker_manager_submissions_failed_total",
		Help: "Submissions that ended in a synthesised TE failure verdict",
	})
	UpstreamConnected = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "invoker_manager_upstream_connected",
		Help: "Whether the testing-system upstream link is currently connected (0/1)",
	})
)

func init() {
	prometheus.MustRegister(
		QueueDepth, InvokersConnected, SubmissionsDispatched,
		SubmissionsFailed, UpstreamConnected,
	)
}
