package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	tfrc "github.com/tfrc-go/tfrc-go"
)

func TestTracerUpdatesMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	tracer := NewTracerWithRegisterer(registry)

	tracer.UpdatedSendRate(43800)
	tracer.UpdatedRTT(100 * time.Millisecond)
	tracer.SentFeedback(tfrc.FeedbackReport{ReceiveRate: 120_000})
	tracer.SentFeedback(tfrc.FeedbackReport{ReceiveRate: 100_000})
	tracer.ReceivedFeedback(80*time.Millisecond, tfrc.FeedbackReport{}, false)
	tracer.ReceivedFeedback(80*time.Millisecond, tfrc.FeedbackReport{}, true)
	tracer.ReceivedFeedback(80*time.Millisecond, tfrc.FeedbackReport{}, true)
	tracer.NoFeedbackTimerExpired()

	require.Equal(t, 43800., testutil.ToFloat64(sendRate))
	require.Equal(t, 0.1, testutil.ToFloat64(smoothedRTT))
	require.Equal(t, 2., testutil.ToFloat64(feedbackSent))
	require.Equal(t, 1., testutil.ToFloat64(feedbackReceived.WithLabelValues("false")))
	require.Equal(t, 2., testutil.ToFloat64(feedbackReceived.WithLabelValues("true")))
	require.Equal(t, 1., testutil.ToFloat64(noFeedbackTimeouts))

	tracer.UpdatedSendRate(87600)
	require.Equal(t, 87600., testutil.ToFloat64(sendRate))
}

func TestTracerRegistersOnlyOnce(t *testing.T) {
	registry := prometheus.NewRegistry()
	require.NotPanics(t, func() {
		NewTracerWithRegisterer(registry)
		NewTracerWithRegisterer(registry)
	})

	metrics, err := registry.Gather()
	require.NoError(t, err)
	var names []string
	for _, m := range metrics {
		names = append(names, m.GetName())
	}
	require.Contains(t, names, "tfrcgo_allowed_send_rate_bytes")
	require.Contains(t, names, "tfrcgo_feedback_packets_sent_total")
}
