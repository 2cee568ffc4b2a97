// Package tfrc implements TCP-Friendly Rate Control (RFC 5348) for RTP-style
// media flows, including the Small-Packet variant (RFC 4828) and the
// data-limited interval heuristic (RFC 5348 section 8.2.1).
//
// A Flow pairs the TFRC sender and receiver state machines for one remote
// peer. The host feeds it incoming packets and feedback reports and reads
// back the allowed sending rate; packet I/O, RTCP serialization and codec
// concerns stay with the host.
package tfrc

import (
	"time"

	"github.com/tfrc-go/tfrc-go/internal/congestion"
	"github.com/tfrc-go/tfrc-go/internal/monotime"
	"github.com/tfrc-go/tfrc-go/internal/protocol"
)

// A ByteCount is a size in bytes.
type ByteCount = protocol.ByteCount

// A Bandwidth is a rate in bytes per second.
type Bandwidth = congestion.Bandwidth

// A Time is a monotonic instant with microsecond resolution.
type Time = monotime.Time

// Now returns the current monotonic time.
func Now() Time { return monotime.Now() }

// DefaultSegmentSize is the segment size assumed when the Config doesn't
// set one.
const DefaultSegmentSize = protocol.DefaultMSS

// A FeedbackReport is the payload of one receiver feedback packet: the
// weighted loss-event rate in [0, 1] and the rate at which data arrived over
// roughly the last round trip.
type FeedbackReport struct {
	LossEventRate float64
	ReceiveRate   Bandwidth
}

// A FeedbackSender carries feedback reports back to the remote sender,
// typically inside an RTCP feedback message.
type FeedbackSender interface {
	SendFeedback(FeedbackReport)
}

// A Tracer observes the rate control events of a Flow. Any of the callbacks
// may be nil. Callbacks are called with the Flow lock held and must not call
// back into the Flow.
type Tracer struct {
	// UpdatedSendRate is called whenever the allowed sending rate changed.
	UpdatedSendRate func(rate Bandwidth)
	// UpdatedRTT reports a new smoothed RTT estimate.
	UpdatedRTT func(rtt time.Duration)
	// SentFeedback is called for every feedback report handed to the host.
	SentFeedback func(report FeedbackReport)
	// ReceivedFeedback is called for every feedback packet applied to the
	// sending side.
	ReceivedFeedback func(rtt time.Duration, report FeedbackReport, dataLimited bool)
	// NoFeedbackTimerExpired is called when the sender ran a full RTO
	// without feedback.
	NoFeedbackTimerExpired func()
	// Close is called when the flow is closed.
	Close func()
}
