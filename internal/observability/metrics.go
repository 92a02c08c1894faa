package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeOK        = "ok"
	OutcomeFailed    = "failed"
	OutcomeUnhandled = "unhandled"
	OutcomeMalformed = "malformed"

	DropCapacity = "capacity"
	DropCounter  = "counter"
	DropValue    = "value"
)

var (
	registerOnce sync.Once

	channelDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "simlink",
			Subsystem: "channel",
			Name:      "dropped_writes_total",
			Help:      "Writes dropped because the channel could not accept them.",
		},
		[]string{"reason"},
	)
	channelGrowth = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "simlink",
			Subsystem: "channel",
			Name:      "grow_total",
			Help:      "Backing store reallocations.",
		},
	)
	dispatchFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "simlink",
			Subsystem: "dispatch",
			Name:      "frames_total",
			Help:      "Frames executed by operator family and outcome.",
		},
		[]string{"operator", "outcome"},
	)
	dispatchDesync = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "simlink",
			Subsystem: "dispatch",
			Name:      "desync_total",
			Help:      "Drains stopped by a structural decode failure.",
		},
	)
	backendTicks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "simlink",
			Subsystem: "backend",
			Name:      "ticks_total",
			Help:      "Simulation ticks run by the backend.",
		},
	)
	backendReports = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "simlink",
			Subsystem: "backend",
			Name:      "reports_total",
			Help:      "Report frames written back to the host by command.",
		},
		[]string{"command"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "simlink",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests served by the admin endpoint.",
		},
		[]string{"component", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "simlink",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"component", "method", "path", "status"},
	)
	drainDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "simlink",
			Subsystem: "dispatch",
			Name:      "drain_duration_seconds",
			Help:      "Time spent draining one buffer.",
			Buckets:   []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05},
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(channelDropped, channelGrowth, dispatchFrames, dispatchDesync, backendTicks, backendReports,
			httpRequests, httpDuration, drainDuration)
	})
}

func RecordDroppedWrite(reason string) {
	RegisterMetrics()
	channelDropped.WithLabelValues(reason).Inc()
}

func RecordGrowth() {
	RegisterMetrics()
	channelGrowth.Inc()
}

func RecordFrame(operator, outcome string) {
	RegisterMetrics()
	dispatchFrames.WithLabelValues(operator, outcome).Inc()
}

func RecordDesync() {
	RegisterMetrics()
	dispatchDesync.Inc()
}

func RecordDrain(d time.Duration) {
	RegisterMetrics()
	drainDuration.Observe(d.Seconds())
}

func RecordTick() {
	RegisterMetrics()
	backendTicks.Inc()
}

func RecordReport(command string) {
	RegisterMetrics()
	backendReports.WithLabelValues(command).Inc()
}

func RecordHTTPRequest(component, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(component, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(component, method, path, statusLabel).Observe(duration.Seconds())
}
