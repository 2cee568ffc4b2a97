// Package metrics exposes rate control events as Prometheus metrics.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	tfrc "github.com/tfrc-go/tfrc-go"
)

const metricNamespace = "tfrcgo"

var (
	feedbackSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricNamespace,
			Name:      "feedback_packets_sent_total",
			Help:      "Feedback reports emitted by the receiving side",
		},
	)
	feedbackReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricNamespace,
			Name:      "feedback_packets_received_total",
			Help:      "Feedback packets applied to the sending side",
		},
		[]string{"data_limited"},
	)
	noFeedbackTimeouts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricNamespace,
			Name:      "no_feedback_timeouts_total",
			Help:      "Times the sender ran a full RTO without feedback",
		},
	)
	sendRate = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metricNamespace,
			Name:      "allowed_send_rate_bytes",
			Help:      "Allowed sending rate in bytes per second",
		},
	)
	smoothedRTT = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metricNamespace,
			Name:      "averaged_rtt_seconds",
			Help:      "Smoothed round-trip time",
		},
	)
)

// NewTracer creates a new tracer using the default Prometheus registerer.
func NewTracer() *tfrc.Tracer {
	return NewTracerWithRegisterer(prometheus.DefaultRegisterer)
}

// NewTracerWithRegisterer creates a new tracer using a given Prometheus
// registerer.
func NewTracerWithRegisterer(registerer prometheus.Registerer) *tfrc.Tracer {
	for _, c := range [...]prometheus.Collector{
		feedbackSent,
		feedbackReceived,
		noFeedbackTimeouts,
		sendRate,
		smoothedRTT,
	} {
		if err := registerer.Register(c); err != nil {
			if ok := errors.As(err, &prometheus.AlreadyRegisteredError{}); !ok {
				panic(err)
			}
		}
	}

	return &tfrc.Tracer{
		UpdatedSendRate: func(rate tfrc.Bandwidth) {
			sendRate.Set(float64(rate))
		},
		UpdatedRTT: func(rtt time.Duration) {
			smoothedRTT.Set(rtt.Seconds())
		},
		SentFeedback: func(tfrc.FeedbackReport) {
			feedbackSent.Inc()
		},
		ReceivedFeedback: func(_ time.Duration, _ tfrc.FeedbackReport, dataLimited bool) {
			label := "false"
			if dataLimited {
				label = "true"
			}
			feedbackReceived.WithLabelValues(label).Inc()
		},
		NoFeedbackTimerExpired: func() {
			noFeedbackTimeouts.Inc()
		},
	}
}
