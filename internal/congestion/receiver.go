package congestion

import (
	"fmt"
	"time"

	"github.com/tfrc-go/tfrc-go/internal/monotime"
	"github.com/tfrc-go/tfrc-go/internal/protocol"
	"github.com/tfrc-go/tfrc-go/internal/utils"
	"github.com/tfrc-go/tfrc-go/internal/utils/ringbuffer"
)

// A receivedInterval is a maximal run of contiguous sequence numbers that
// all arrived. Two adjacent intervals in the history are always separated
// by a gap of at least one lost packet; contiguous neighbours get merged on
// insert.
type receivedInterval struct {
	firstTimestamp monotime.Time // sender-stamped
	firstSeq       protocol.SequenceNumber
	firstRecvTime  monotime.Time

	lastTimestamp monotime.Time
	lastSeq       protocol.SequenceNumber
	lastRecvTime  monotime.Time
}

// A Receiver is the receiving half of a TFRC flow (RFC 5348 sections 5 and
// 6). It keeps the packet history as an ordered queue of received intervals,
// derives loss events and the weighted loss-event rate from the gaps, and
// decides when feedback must be emitted.
//
// Like the Sender, it is not safe for unserialized concurrent use.
type Receiver struct {
	intervals ringbuffer.RingBuffer[receivedInterval]

	sp bool

	senderRTT   time.Duration // smoothed RTT advertised by the sender
	receiveRate Bandwidth

	maxReceiveRate            Bandwidth
	maxReceiveRateSegmentSize protocol.ByteCount

	feedbackTimerExpiry monotime.Time

	// firstLossInterval caches the synthetic loss interval derived by
	// bisection (RFC 5348 section 6.3.1) once the first real loss happened.
	firstLossInterval uint64

	lossEventRate float64

	feedbackSentOnLastTimer bool

	receivedBytes              protocol.ByteCount
	prevReceivedBytes          protocol.ByteCount
	receivedBytesResetTime     monotime.Time
	prevReceivedBytesResetTime monotime.Time
	receivedPackets            uint64
	prevReceivedPackets        uint64
	senderRTTOnLastFeedback    time.Duration

	logger utils.Logger
}

// NewReceiver creates a TFRC receiver.
func NewReceiver(now monotime.Time) *Receiver {
	r := &Receiver{
		receivedBytesResetTime:     now,
		prevReceivedBytesResetTime: now,
		logger:                     utils.DefaultLogger.WithPrefix("TFRC-R"),
	}
	r.intervals.Init(protocol.MaxReceiveHistorySize + 1)
	return r
}

// NewReceiverSP creates a receiver in Small-Packet mode (RFC 4828): short
// loss events get scaled by their packet count when computing the
// loss-event rate.
func NewReceiverSP(now monotime.Time) *Receiver {
	r := NewReceiver(now)
	r.sp = true
	return r
}

// GotPacket records one incoming packet (RFC 5348 section 6.1). timestamp is
// the sender-stamped send time, senderRTT the RTT currently advertised by
// the sender (zero only while the sender has none yet). It returns true if
// the host should emit a feedback packet right away.
func (r *Receiver) GotPacket(timestamp, now monotime.Time, seq protocol.SequenceNumber, senderRTT time.Duration, packetSize protocol.ByteCount) bool {
	var sendFeedback bool

	r.receivedBytes += packetSize
	r.receivedPackets++

	if senderRTT == 0 && r.senderRTT != 0 {
		panic("congestion: sender stopped advertising its RTT")
	}

	if r.senderRTT != 0 {
		r.senderRTT = time.Duration(0.9*float64(r.senderRTT)) + senderRTT/10
	} else {
		r.senderRTT = senderRTT
	}

	// RFC 5348 section 6.3: first packet received, or no RTT known yet:
	// request feedback immediately.
	if r.intervals.Empty() || r.senderRTT == 0 {
		if r.senderRTT != 0 {
			r.feedbackTimerExpiry = now.Add(r.senderRTT)
		}
		sendFeedback = true
	}

	// Step 1: add the packet to the history, scanning from the newest
	// interval backwards.
	inserted := false
	curIdx := -1
scan:
	for i := r.intervals.Len() - 1; i >= 0; i-- {
		cur := r.intervals.At(i)
		var prev *receivedInterval
		if i > 0 {
			prev = r.intervals.At(i - 1)
		}

		switch {
		case seq == cur.lastSeq+1:
			// Extend the current interval forward.
			cur.lastSeq = seq
			cur.lastTimestamp = timestamp
			cur.lastRecvTime = now
		case seq >= cur.firstSeq && seq <= cur.lastSeq:
			// Inside the current interval, must be a duplicate: ignore.
		case seq > cur.lastSeq+1:
			// There was a loss, open a new interval after this one.
			r.intervals.InsertAt(i+1, receivedInterval{
				firstTimestamp: timestamp, lastTimestamp: timestamp,
				firstSeq: seq, lastSeq: seq,
				firstRecvTime: now, lastRecvTime: now,
			})
			curIdx = i + 1
			inserted = true
			break scan
		case seq == cur.firstSeq-1:
			// Extend the current interval backwards.
			cur.firstSeq = seq
			cur.firstTimestamp = timestamp
			cur.firstRecvTime = now
		// NB: the next guard compares a sequence number against a
		// timestamp. Timestamps are microsecond counts and dwarf any
		// sequence number, so the comparison is almost always true once
		// the earlier cases have been ruled out; changing it to firstSeq
		// would alter how pre-gap reordering is accounted.
		case uint64(seq) < uint64(cur.firstTimestamp) && (prev == nil || seq > prev.lastSeq+1):
			// The packet falls into the middle of a gap: open a new
			// interval before the current one.
			r.intervals.InsertAt(i, receivedInterval{
				firstTimestamp: timestamp, lastTimestamp: timestamp,
				firstSeq: seq, lastSeq: seq,
				firstRecvTime: now, lastRecvTime: now,
			})
			curIdx = i
			inserted = true
			break scan
		default:
			continue scan
		}

		curIdx = i
		inserted = true
		break scan
	}

	// Keep the whole history while it spans less than
	// MinReceiveHistoryRTTs of sender RTT.
	historyTooShort := senderRTT == 0
	if !historyTooShort {
		if r.intervals.Empty() {
			historyTooShort = true
		} else {
			newest := r.intervals.At(r.intervals.Len() - 1)
			oldest := r.intervals.At(0)
			historyTooShort = newest.lastTimestamp.Sub(oldest.firstTimestamp) <
				protocol.MinReceiveHistoryRTTs*r.senderRTT
		}
	}

	// An exhausted scan on a non-empty history means the quirk guard above
	// rejected the packet at the oldest interval; it is not recorded.
	if !inserted && r.intervals.Empty() {
		r.intervals.InsertAt(0, receivedInterval{
			firstTimestamp: timestamp, lastTimestamp: timestamp,
			firstSeq: seq, lastSeq: seq,
			firstRecvTime: now, lastRecvTime: now,
		})
		curIdx = 0
	}

	// A packet inserted at the head of an already full history gets trimmed
	// right away, leaving curIdx negative.
	if !historyTooShort && r.intervals.Len() > protocol.MaxReceiveHistorySize {
		r.intervals.PopFront()
		curIdx--
	}

	recalculateLossRate := false

	if curIdx > 0 {
		cur := r.intervals.At(curIdx)
		if cur.lastSeq-cur.firstSeq == protocol.NDupAck {
			recalculateLossRate = true
		}

		prev := r.intervals.At(curIdx - 1)
		if prev.lastSeq+1 == cur.firstSeq {
			// The gap closed: merge with the previous interval.
			cur.firstSeq = prev.firstSeq
			cur.firstTimestamp = prev.firstTimestamp
			cur.firstRecvTime = prev.firstRecvTime
			r.intervals.RemoveAt(curIdx - 1)

			recalculateLossRate = true
		}
	}

	// Steps 2-4: recalculate the loss event rate if needed, and decide
	// whether to expedite feedback.
	if r.senderRTT != 0 && (recalculateLossRate || !r.feedbackSentOnLastTimer) {
		newLossEventRate := r.calculateLossEventRate(now)

		if newLossEventRate > r.lossEventRate || !r.feedbackSentOnLastTimer {
			sendFeedback = r.OnFeedbackTimerExpired(now) || sendFeedback
		}
	}

	return sendFeedback
}

// OnFeedbackTimerExpired must be called when the feedback timer fires. It
// returns true if feedback should actually be emitted now; if nothing was
// received since the last report, the timer is simply re-armed one RTT out.
func (r *Receiver) OnFeedbackTimerExpired(now monotime.Time) bool {
	if r.receivedBytes == 0 || r.prevReceivedBytesResetTime.Equal(now) {
		if r.senderRTT == 0 {
			panic("congestion: feedback timer armed without an RTT")
		}
		r.feedbackTimerExpiry = now.Add(r.senderRTT)
		r.feedbackSentOnLastTimer = false
		return false
	}
	return true
}

// SendFeedback computes the contents of an outgoing feedback packet: the
// loss event rate and the receive rate over roughly the last RTT. It
// returns ok == false when called twice at the same instant.
func (r *Receiver) SendFeedback(now monotime.Time) (lossEventRate float64, receiveRate Bandwidth, ok bool) {
	if now.Equal(r.prevReceivedBytesResetTime) {
		return 0, 0, false
	}

	var receivedBytes protocol.ByteCount
	var receivedPackets uint64
	var receivedBytesResetTime monotime.Time

	if now.Sub(r.receivedBytesResetTime) > r.senderRTTOnLastFeedback {
		// The accumulation window is old enough: rotate it.
		r.prevReceivedBytesResetTime = r.receivedBytesResetTime
		r.prevReceivedBytes = r.receivedBytes
		r.prevReceivedPackets = r.receivedPackets
		receivedBytes = r.receivedBytes
		receivedPackets = r.receivedPackets
		receivedBytesResetTime = r.receivedBytesResetTime
	} else {
		// Too fresh: coalesce it into the previous window.
		r.prevReceivedBytes += r.receivedBytes
		r.prevReceivedPackets += r.receivedPackets
		receivedBytes = r.prevReceivedBytes
		receivedPackets = r.prevReceivedPackets
		receivedBytesResetTime = r.prevReceivedBytesResetTime
	}

	r.receivedBytesResetTime = now
	r.receivedBytes = 0
	r.receivedPackets = 0

	r.receiveRate = BandwidthFromDelta(receivedBytes, now.Sub(receivedBytesResetTime))

	if r.senderRTTOnLastFeedback != 0 && r.receiveRate > r.maxReceiveRate {
		r.maxReceiveRate = r.receiveRate
		r.maxReceiveRateSegmentSize = receivedBytes / protocol.ByteCount(receivedPackets)
	}

	r.lossEventRate = r.calculateLossEventRate(now)

	if r.senderRTT != 0 {
		r.feedbackTimerExpiry = now.Add(r.senderRTT)
	}
	r.senderRTTOnLastFeedback = r.senderRTT
	r.feedbackSentOnLastTimer = true

	r.logger.Debugf("p: %f recv_rate: %d", r.lossEventRate, r.receiveRate)

	return r.lossEventRate, r.receiveRate, true
}

// FeedbackTimerExpiry returns the deadline the host must arm the feedback
// timer for. It is zero until an RTT is known.
func (r *Receiver) FeedbackTimerExpiry() monotime.Time {
	if r.senderRTT == 0 && !r.feedbackTimerExpiry.IsZero() {
		panic(fmt.Sprintf("congestion: feedback timer %d armed without an RTT", r.feedbackTimerExpiry))
	}
	return r.feedbackTimerExpiry
}
