package notifications

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tourdesk"

var (
	notificationQueueSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "queue_size",
			Help:      "Number of notification jobs in queue by bucket",
		},
		[]string{"status"},
	)

	notificationJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "jobs_total",
			Help:      "Total notification job attempts by outcome",
		},
		[]string{"channel_type", "status"},
	)

	notificationSendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "send_duration_seconds",
			Help:      "Time to process a notification job",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"channel_type"},
	)

	notificationsDispatched = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "jobs_dispatched_total",
			Help:      "Total jobs handed to a worker. Sum of jobs_total should match this.",
		},
	)

	notificationsRequested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "requests_total",
			Help:      "Total send requests by template and result",
		},
		[]string{"template_id", "result"},
	)
)

// recordJobOutcome records the result of one job attempt.
func recordJobOutcome(channelType, status string) {
	notificationJobs.WithLabelValues(channelType, status).Inc()
}

// recordJobDuration records job processing duration.
func recordJobDuration(channelType string, duration time.Duration) {
	notificationSendDuration.WithLabelValues(channelType).Observe(duration.Seconds())
}

// recordJobDispatched records a job handed to a worker.
func recordJobDispatched() {
	notificationsDispatched.Inc()
}

// recordSendRequest records the synchronous outcome of a send request.
func recordSendRequest(templateID, result string) {
	notificationsRequested.WithLabelValues(templateID, result).Inc()
}

// RecordQueueStats updates queue size metrics.
func RecordQueueStats(stats QueueStats) {
	notificationQueueSize.WithLabelValues("pending").Set(float64(stats.Pending))
	notificationQueueSize.WithLabelValues("processing").Set(float64(stats.Processing))
	notificationQueueSize.WithLabelValues("completed").Set(float64(stats.Completed))
	notificationQueueSize.WithLabelValues("failed").Set(float64(stats.Failed))
}
