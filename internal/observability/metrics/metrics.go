package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

type Outcome string

const (
	Success Outcome = "success"
	Error   Outcome = "error"
)

func (O Outcome) String() string {
	return string(O)
}

var defaultHistogramBucketsSeconds = []float64{0.1, 0.5, 1, 2.5, 5, 10, 30}

var (
	once          sync.Once
	metricsRouter *chi.Mux
	metricsServer *http.Server

	// Collectors exist before Init so that code paths exercised in tests
	// never hit a nil collector. Init registers them.
	httpRequestDurationHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of http request durations in seconds.",
			Buckets: defaultHistogramBucketsSeconds,
		},
		[]string{"endpoint", "status"},
	)
	jobDurationHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "job_duration_seconds",
			Help:    "Histogram of periodic job durations in seconds.",
			Buckets: defaultHistogramBucketsSeconds,
		},
		[]string{"job", "status"},
	)
	ingestedLedgersCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ingested_ledgers_total",
			Help: "Total number of ledgers persisted by the ingestion loop.",
		},
	)
	ingestionErrorsCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingestion_errors_total",
			Help: "Total number of ingestion errors by kind.",
		},
		[]string{"kind"},
	)
	cursorGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ingestion_cursor_sequence",
			Help: "Last ledger sequence acknowledged by the cursor store.",
		},
	)
	loopStateGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ingestion_loop_state",
			Help: "Current state of the ingestion loop.",
		},
	)
	liveConnectionsGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "stream_live_connections",
			Help: "Number of open push connections.",
		},
	)
	publishedMessagesCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stream_published_messages_total",
			Help: "Total number of messages enqueued to connections by type.",
		},
		[]string{"type"},
	)
	evictedSubscribersCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stream_evicted_subscribers_total",
			Help: "Total number of connections closed by the server by reason.",
		},
		[]string{"reason"},
	)
	webhookDeliveriesCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_deliveries_total",
			Help: "Total number of webhook deliveries by event and outcome.",
		},
		[]string{"event", "status"},
	)
	shutdownPhaseDurationHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shutdown_phase_duration_seconds",
			Help:    "Duration of each shutdown phase in seconds.",
			Buckets: defaultHistogramBucketsSeconds,
		},
		[]string{"phase"},
	)
	forcedShutdownPhasesCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shutdown_forced_phases_total",
			Help: "Total number of shutdown phases that hit their timeout.",
		},
		[]string{"phase"},
	)
)

// Init initializes the metrics package.
func Init(metricsPort int) {
	once.Do(func() {
		initMetricsRouter(metricsPort)
		registerMetrics()
	})
}

// initMetricsRouter initializes the metrics router.
func initMetricsRouter(metricsPort int) {
	metricsRouter = chi.NewRouter()
	metricsRouter.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	metricsAddr := fmt.Sprintf(":%d", metricsPort)
	metricsServer = &http.Server{
		Addr:    metricsAddr,
		Handler: metricsRouter,
	}
	go func() {
		err := metricsServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msgf("error starting metrics server on %s", metricsAddr)
		}
	}()
}

// registerMetrics registers the Prometheus metrics.
func registerMetrics() {
	prometheus.MustRegister(
		httpRequestDurationHistogram,
		jobDurationHistogram,
		ingestedLedgersCounter,
		ingestionErrorsCounter,
		cursorGauge,
		loopStateGauge,
		liveConnectionsGauge,
		publishedMessagesCounter,
		evictedSubscribersCounter,
		webhookDeliveriesCounter,
		shutdownPhaseDurationHistogram,
		forcedShutdownPhasesCounter,
	)
}

// Shutdown stops the metrics server. It is a no-op when Init was never called.
func Shutdown(ctx context.Context) error {
	if metricsServer == nil {
		return nil
	}
	return metricsServer.Shutdown(ctx)
}

// StartHttpRequestDurationTimer starts a timer to measure http request handling duration.
func StartHttpRequestDurationTimer(endpoint string) func(statusCode int) {
	startTime := time.Now()
	return func(statusCode int) {
		duration := time.Since(startTime).Seconds()
		httpRequestDurationHistogram.WithLabelValues(endpoint, fmt.Sprintf("%d", statusCode)).Observe(duration)
	}
}

// StartJobDurationTimer starts a timer to measure a periodic job run.
func StartJobDurationTimer(job string) func(err error) {
	startTime := time.Now()
	return func(err error) {
		outcome := Success
		if err != nil {
			outcome = Error
		}
		duration := time.Since(startTime).Seconds()
		jobDurationHistogram.WithLabelValues(job, outcome.String()).Observe(duration)
	}
}

func RecordLedgerIngested(sequence uint32) {
	ingestedLedgersCounter.Inc()
	cursorGauge.Set(float64(sequence))
}

func RecordIngestionError(kind string) {
	if kind == "" {
		kind = "unknown"
	}
	ingestionErrorsCounter.WithLabelValues(kind).Inc()
}

func SetLoopState(state int) {
	loopStateGauge.Set(float64(state))
}

func SetLiveConnections(count int) {
	liveConnectionsGauge.Set(float64(count))
}

func RecordPublishedMessage(messageType string) {
	publishedMessagesCounter.WithLabelValues(messageType).Inc()
}

func RecordEvictedSubscriber(reason string) {
	evictedSubscribersCounter.WithLabelValues(reason).Inc()
}

func RecordWebhookDelivery(event string, outcome Outcome) {
	webhookDeliveriesCounter.WithLabelValues(event, outcome.String()).Inc()
}

func RecordShutdownPhase(phase string, duration time.Duration, forced bool) {
	shutdownPhaseDurationHistogram.WithLabelValues(phase).Observe(duration.Seconds())
	if forced {
		forcedShutdownPhasesCounter.WithLabelValues(phase).Inc()
	}
}
