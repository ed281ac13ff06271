package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Исходы stage для label outcome.
const (
	OutcomeSuccess         = "success"
	OutcomeTimeout         = "timeout"
	OutcomeExitCode        = "exit_code"
	OutcomeMissingArtifact = "missing_artifact"
	OutcomeStartFailed     = "start_failed"
)

var (
	// StageDuration — длительность stage по имени и исходу.
	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mlpipe_stage_duration_seconds",
		Help:    "Duration of pipeline stage workers",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"stage", "outcome"})

	// RunsTotal — количество завершённых runs по результату.
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mlpipe_runs_total",
		Help: "Pipeline runs by final status",
	}, []string{"status"})

	// RunsRejected — trigger отклонён, потому что run уже выполняется.
	RunsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mlpipe_runs_rejected_total",
		Help: "Pipeline triggers rejected while another run was active",
	})

	// PredictRequests — запросы predict proxy по исходу.
	PredictRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mlpipe_predict_requests_total",
		Help: "Predict proxy requests by outcome",
	}, []string{"outcome"})

	// HTTPRequests — HTTP запросы API.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mlpipe_http_requests_total",
		Help: "HTTP requests handled by the API",
	}, []string{"method", "status"})

	// StatusSubscribers — активные подписчики на статус pipeline.
	StatusSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mlpipe_status_subscribers",
		Help: "Active pipeline status subscribers",
	})

	// DroppedEvents — события, не доставленные медленным подписчикам.
	DroppedEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mlpipe_status_events_dropped_total",
		Help: "Status events dropped because a subscriber buffer was full",
	})
)
