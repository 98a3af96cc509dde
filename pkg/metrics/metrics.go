package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "esplus"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	upstreamRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Total requests made to the portal by endpoint and result",
		},
		[]string{"endpoint", "result"},
	)
	upstreamLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      "Latency of requests made to the portal",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)
	logins = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Total login attempts by login type and result",
		},
		[]string{"login_type", "result"},
	)
	refreshTasks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_tasks_total",
			Help:      "Total refresh tasks by entity kind and result",
		},
		[]string{"kind", "result"},
	)
	coalescedCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coalesced_calls_total",
			Help:      "Calls through the refresh coalescer by data kind and whether the result was shared",
		},
		[]string{"kind", "shared"},
	)
	submissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "indication_submissions_total",
			Help:      "Total meter reading submissions by result",
		},
		[]string{"result"},
	)
	entities = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "entities",
			Help:      "Number of registered entities by platform",
		},
		[]string{"platform"},
	)
)

// Register registers every collector with reg. It is safe to call more than
// once; only the first call has an effect.
func Register(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		reg.MustRegister(
			upstreamRequests,
			upstreamLatency,
			logins,
			refreshTasks,
			coalescedCalls,
			submissions,
			entities,
		)
	})
}

func result(err error) string {
	if err != nil {
		return resultError
	}
	return resultSuccess
}

// ObserveRequest records a request to the portal.
func ObserveRequest(endpoint string, err error, d time.Duration) {
	upstreamRequests.WithLabelValues(endpoint, result(err)).Inc()
	upstreamLatency.WithLabelValues(endpoint).Observe(d.Seconds())
}

// ObserveLogin records a login attempt.
func ObserveLogin(loginType string, err error) {
	logins.WithLabelValues(loginType, result(err)).Inc()
}

// ObserveRefreshTask records the outcome of one refresh task.
func ObserveRefreshTask(kind string, err error) {
	refreshTasks.WithLabelValues(kind, result(err)).Inc()
}

// ObserveCoalesced records a call through the coalescer.
func ObserveCoalesced(kind string, shared bool) {
	s := "false"
	if shared {
		s = "true"
	}
	coalescedCalls.WithLabelValues(kind, s).Inc()
}

// ObserveSubmission records a meter reading submission.
func ObserveSubmission(err error) {
	submissions.WithLabelValues(result(err)).Inc()
}

// SetEntities sets the number of entities registered for a platform.
func SetEntities(platform string, n int) {
	entities.WithLabelValues(platform).Set(float64(n))
}
