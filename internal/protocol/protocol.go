package protocol

import "time"

// A ByteCount is a count of payload bytes.
type ByteCount int64

// A SequenceNumber is a packet sequence number, rebased to 64 bits.
// RTP carries 16-bit sequence numbers on the wire; the flow layer tracks
// wrap-around cycles so the congestion core never sees a wrap.
type SequenceNumber uint64

// DefaultMSS is the default maximum segment size, taken from the Linux TCP
// implementation.
const DefaultMSS ByteCount = 1460

// SmallPacketHeaderSize is the per-packet header overhead assumed by the
// Small-Packet variant (RFC 4828 section 3, second bullet).
const SmallPacketHeaderSize ByteCount = 40

// MaxBackoffInterval is T_MBI from RFC 5348. segmentSize / MaxBackoffInterval
// is the absolute floor on the allowed sending rate.
const MaxBackoffInterval = 64 * time.Second

// MinNoFeedbackTimer bounds the no-feedback timeout from below.
const MinNoFeedbackTimer = 20 * time.Millisecond

// MaxRTT is the largest round-trip time accepted on a feedback packet.
// Anything above this is a contract violation by the host.
const MaxRTT = 10 * time.Second

// NDupAck is the number of packets that must be received beyond a gap before
// the gap is confirmed as a loss event.
const NDupAck = 3

const (
	// LossEventsMax is the size of the loss event ring kept while deriving
	// the loss-event rate.
	LossEventsMax = 9
	// LossIntervalsMax is the number of loss intervals fed into the
	// weighted average (RFC 5348 section 5.4).
	LossIntervalsMax = 8
	// MaxReceiveHistorySize bounds the receiver's interval queue.
	MaxReceiveHistorySize = 2 * LossEventsMax
	// MinReceiveHistoryRTTs: the interval queue is never trimmed while it
	// spans less than this many sender RTTs.
	MinReceiveHistoryRTTs = 10
)

// ReceiveRateHistorySize is the number of receiver-reported rates the sender
// keeps (RFC 5348 X_recv_set).
const ReceiveRateHistorySize = 4

// MinPacingDelay is the smallest pause the pacer will schedule. Scheduling
// shorter pauses than this is not worth the timer churn.
const MinPacingDelay = 500 * time.Microsecond

// TimerGranularity is the assumed granularity of the host's timers.
const TimerGranularity = time.Millisecond
