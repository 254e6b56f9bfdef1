package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	messagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "discord_bot_messages_received_total",
		Help: "Total number of messages received",
	}, []string{"channel_type"})

	messagesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "discord_bot_messages_processed_total",
		Help: "Total number of messages processed",
	}, []string{"status"})

	commandsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "discord_bot_commands_executed_total",
		Help: "Total number of slash commands executed",
	}, []string{"command"})

	completionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "discord_bot_completion_duration_seconds",
		Help:    "Duration of completion API requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"model", "status"})

	completionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "discord_bot_completions_total",
		Help: "Total number of completion API requests",
	}, []string{"model", "status"})

	completionRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "discord_bot_completion_retries_total",
		Help: "Total number of completion request retries",
	})

	rateLimitRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "discord_bot_rate_limit_rejections_total",
		Help: "Total number of rate limit rejections",
	}, []string{"gate"})

	storageOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "discord_bot_storage_operations_total",
		Help: "Total number of storage operations",
	}, []string{"operation", "status"})
)

// Metrics provides methods to record metrics
type Metrics struct{}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordMessageReceived records a received message
func (m *Metrics) RecordMessageReceived(channelType string) {
	messagesReceived.WithLabelValues(channelType).Inc()
}

// RecordMessageProcessed records a processed message
func (m *Metrics) RecordMessageProcessed(status string) {
	messagesProcessed.WithLabelValues(status).Inc()
}

// RecordCommandExecuted records an executed slash command
func (m *Metrics) RecordCommandExecuted(command string) {
	commandsExecuted.WithLabelValues(command).Inc()
}

// RecordCompletion records a completion API request
func (m *Metrics) RecordCompletion(model, status string, duration time.Duration) {
	completionDuration.WithLabelValues(model, status).Observe(duration.Seconds())
	completionsTotal.WithLabelValues(model, status).Inc()
}

// RecordCompletionRetry records a retried completion request
func (m *Metrics) RecordCompletionRetry() {
	completionRetries.Inc()
}

// RecordRateLimitRejection records a rate limit rejection.
// Gate is "window", "cooldown" or "inflight".
func (m *Metrics) RecordRateLimitRejection(gate string) {
	rateLimitRejections.WithLabelValues(gate).Inc()
}

// RecordStorageOperation records a storage operation
func (m *Metrics) RecordStorageOperation(operation, status string) {
	storageOperations.WithLabelValues(operation, status).Inc()
}

// StartMetricsServer starts the metrics HTTP server
func StartMetricsServer(port int, path string) error {
	router := mux.NewRouter()
	router.Handle(path, promhttp.Handler())

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return server.ListenAndServe()
}
