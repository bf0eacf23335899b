// Package metrics exposes Prometheus counters for the message pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	JobsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "codeloft_jobs_started_total",
		Help: "Workflow jobs picked up by a worker.",
	})
	JobsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "codeloft_jobs_completed_total",
		Help: "Workflow jobs that finished successfully.",
	})
	JobsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "codeloft_jobs_failed_total",
		Help: "Workflow jobs that ended in the failure handler.",
	})
	JobsCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "codeloft_jobs_cancelled_total",
		Help: "Workflow jobs cancelled before finishing.",
	})
	AgentTurns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "codeloft_agent_turns_total",
		Help: "Model round trips made by the agent loop.",
	})
	ToolCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "codeloft_tool_calls_total",
		Help: "Tool invocations by tool name.",
	}, []string{"tool"})
	ScrapeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "codeloft_scrape_failures_total",
		Help: "URL scrapes that returned no content.",
	})
)

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
