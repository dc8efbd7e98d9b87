package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"orderbot-client/internal/domain"
	"orderbot-client/internal/orderbot"
	"orderbot-client/internal/retry"
)

// Submission outcomes.
const (
	OutcomeOK        = "ok"
	OutcomeEncoding  = "encoding_error"
	OutcomeTransport = "transport_error"
	OutcomeProtocol  = "protocol_error"
	OutcomeOther     = "other_error"
)

// Metrics contains the Prometheus metrics for order bot submissions
type Metrics struct {
	// Submission metrics
	Submissions        *prometheus.CounterVec
	SubmissionDuration *prometheus.HistogramVec

	// Retry metrics
	Retries    *prometheus.CounterVec
	RetryDelay prometheus.Histogram

	gatherer prometheus.Gatherer
}

// New creates the metrics and registers them with reg. A nil reg uses a fresh
// registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	return &Metrics{
		Submissions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "orderbot_submissions_total",
			Help: "Total number of submissions by input type and outcome",
		}, []string{"input_type", "outcome"}),
		SubmissionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "orderbot_submission_duration_seconds",
			Help:    "Duration of submissions including retries",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~50s
		}, []string{"input_type"}),
		Retries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "orderbot_retries_total",
			Help: "Total number of retries by failure class",
		}, []string{"class"}),
		RetryDelay: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "orderbot_retry_delay_seconds",
			Help:    "Backoff delay before each retry",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 8), // 250ms to 32s
		}),
		gatherer: reg,
	}
}

// RecordRetry counts a retry event. It has the signature of a retry observer.
func (m *Metrics) RecordRetry(e retry.Event) {
	m.Retries.WithLabelValues(e.ErrorClass).Inc()
	m.RetryDelay.Observe(e.Delay.Seconds())
}

// RecordSubmission records one finished submission.
func (m *Metrics) RecordSubmission(inputType string, err error, duration time.Duration) {
	m.Submissions.WithLabelValues(inputType, Outcome(err)).Inc()
	m.SubmissionDuration.WithLabelValues(inputType).Observe(duration.Seconds())
}

// Handler serves the registered metrics in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Outcome labels a submission result.
func Outcome(err error) string {
	if err == nil {
		return OutcomeOK
	}
	var encErr *orderbot.EncodingError
	var trErr *orderbot.TransportError
	var protoErr *orderbot.ProtocolError
	switch {
	case errors.As(err, &encErr):
		return OutcomeEncoding
	case errors.As(err, &trErr):
		return OutcomeTransport
	case errors.As(err, &protoErr):
		return OutcomeProtocol
	default:
		return OutcomeOther
	}
}

// Submitter is the client call being measured.
type Submitter interface {
	Submit(ctx context.Context, payload orderbot.Payload, thread string) (*domain.ServiceResponse, error)
}

type instrumented struct {
	next    Submitter
	metrics *Metrics
	now     func() time.Time
}

// Instrument wraps s so every submission is recorded.
func (m *Metrics) Instrument(s Submitter) Submitter {
	return &instrumented{next: s, metrics: m, now: time.Now}
}

func (i *instrumented) Submit(ctx context.Context, payload orderbot.Payload, thread string) (*domain.ServiceResponse, error) {
	inputType := "unknown"
	if payload != nil {
		inputType = payload.InputType()
	}
	started := i.now()
	resp, err := i.next.Submit(ctx, payload, thread)
	i.metrics.RecordSubmission(inputType, err, i.now().Sub(started))
	return resp, err
}
