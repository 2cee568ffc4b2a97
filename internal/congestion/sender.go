package congestion

import (
	"fmt"
	"math"
	"time"

	"github.com/tfrc-go/tfrc-go/internal/monotime"
	"github.com/tfrc-go/tfrc-go/internal/protocol"
	"github.com/tfrc-go/tfrc-go/internal/utils"
)

// A Sender is the sending half of a TFRC flow (RFC 5348 section 4, with the
// Small-Packet variant of RFC 4828). It is driven by the host: feedback
// packets go in through OnFeedbackPacket, the no-feedback timeout through
// OnNoFeedbackTimerExpired, and the allowed byte rate comes out of SendRate.
//
// All methods must be called from the same goroutine, or be serialized by
// the caller.
type Sender struct {
	sp          bool
	useInstRate bool // use instRate instead of rate

	mss protocol.ByteCount
	// averagePacketSize is kept multiplied by 16 so that the exponential
	// smoothing in SendingPacket keeps a fractional bit in integer math.
	averagePacketSize protocol.ByteCount

	rate         Bandwidth // maximum allowed sending rate
	computedRate Bandwidth // the rate from the TCP throughput equation
	instRate     Bandwidth // rate corrected for the latest RTT sample

	averagedRTT time.Duration
	sqmeanRTT   float64 // smoothed sqrt of the RTT, in sqrt(µs)
	lastSqrtRTT float64
	tld         monotime.Time // Time Last Doubled during slow start

	retransmissionTimeout time.Duration
	noFeedbackTimerExpiry monotime.Time

	receiveRateHistory receiveRateHistory

	lastLossEventRate float64
	sentPacket        bool

	logger utils.Logger
}

// NewSender creates a TFRC sender, initialized as described in RFC 5348
// section 4.2. A zero initialRate defaults to one segment per second.
func NewSender(segmentSize protocol.ByteCount, now monotime.Time, initialRate Bandwidth) *Sender {
	s := &Sender{
		useInstRate:       true,
		mss:               protocol.DefaultMSS,
		averagePacketSize: segmentSize << 4,
		logger:            utils.DefaultLogger.WithPrefix("TFRC-S"),
	}
	if initialRate != 0 {
		s.rate = initialRate
	} else {
		s.rate = Bandwidth(segmentSize)
	}

	s.retransmissionTimeout = 2 * time.Second
	s.noFeedbackTimerExpiry = now.Add(s.retransmissionTimeout)
	return s
}

// NewSenderSP creates a sender in Small-Packet mode (RFC 4828): rates are
// computed as if all packets were MSS-sized, and SendRate compensates for
// the fixed per-packet header overhead.
func NewSenderSP(now monotime.Time, initialAveragePacketSize protocol.ByteCount) *Sender {
	s := NewSender(protocol.DefaultMSS, now, 0)

	s.sp = true
	s.averagePacketSize = initialAveragePacketSize << 4

	return s
}

// SetUseInstRate selects between the instantaneous corrected rate and the
// plain allowed rate as the value reported by SendRate.
func (s *Sender) SetUseInstRate(use bool) {
	s.useInstRate = use
}

func (s *Sender) segmentSize() protocol.ByteCount {
	if s.sp {
		return s.mss
	}
	return s.averagePacketSize >> 4
}

// OnFirstRTT must be called when the host has its first RTT sample, before
// any feedback-derived rate exists. It marks the receive rate limit as
// still unknown.
func (s *Sender) OnFirstRTT(now monotime.Time) {
	s.receiveRateHistory.seedUnlimited(now)
}

// initialRate computes the RFC 3390 style initial sending rate.
func initialRate(mss protocol.ByteCount, rtt time.Duration) Bandwidth {
	if rtt == 0 {
		return 0
	}

	window := min(4*uint64(mss), max(2*uint64(mss), 4380))
	return Bandwidth(1e6 * window / uint64(rtt.Microseconds()))
}

func (s *Sender) minimumRate() Bandwidth {
	return Bandwidth(uint64(s.segmentSize()) / uint64(protocol.MaxBackoffInterval/time.Second))
}

// recomputeSendingRate is the second part of RFC 5348 section 4.3 step 4.
func (s *Sender) recomputeSendingRate(recvLimit Bandwidth, lossEventRate float64, now monotime.Time) {
	if lossEventRate > 0 {
		// congestion avoidance phase
		s.computedRate = Bandwidth(calculateBitrate(float64(s.segmentSize()), s.averagedRTT, lossEventRate))
		s.rate = max(min(s.computedRate, recvLimit), s.minimumRate())
		s.logger.Debugf("congestion avoidance: %d (computed: %d ss: %d)",
			s.rate, s.computedRate, s.segmentSize())
	} else if now.Sub(s.tld) >= s.averagedRTT {
		// initial slow start
		s.rate = max(min(2*s.rate, recvLimit), initialRate(s.mss, s.averagedRTT))
		s.tld = now
		s.logger.Debugf("initial slow start: %d", s.rate)
	}
}

// updateInstRate recomputes X_inst following RFC 5348 section 4.5.
func (s *Sender) updateInstRate() {
	if s.lastSqrtRTT == 0 {
		return
	}

	if s.sqmeanRTT != 0 {
		s.sqmeanRTT = 0.9*s.sqmeanRTT + s.lastSqrtRTT/10
	} else {
		s.sqmeanRTT = s.lastSqrtRTT
	}

	s.instRate = Bandwidth(float64(s.rate) * s.sqmeanRTT / s.lastSqrtRTT)
	if s.instRate < s.minimumRate() {
		s.instRate = s.minimumRate()
	}
}

// OnFeedbackPacket applies the steps of RFC 5348 section 4.3 for one
// incoming feedback packet. The RTT must have been derived by the host
// already (step 1) and must be in (0, 10s]; isDataLimited says whether the
// interval covered by this feedback was a data-limited one.
func (s *Sender) OnFeedbackPacket(now monotime.Time, rtt time.Duration, receiveRate Bandwidth, lossEventRate float64, isDataLimited bool) {
	if rtt <= 0 || rtt > protocol.MaxRTT {
		panic(fmt.Sprintf("congestion: feedback with impossible RTT: %s", rtt))
	}
	// The rate math below works on whole microseconds.
	if rtt < time.Microsecond {
		rtt = time.Microsecond
	}

	// On the first feedback packet, set the rate based on the MSS and RTT.
	if s.tld.IsZero() {
		s.rate = initialRate(s.mss, rtt)
		s.tld = now
		s.logger.Debugf("fb: initial rate: %d", s.rate)
	}

	// Step 2: Update the RTT.
	if s.averagedRTT == 0 {
		s.averagedRTT = rtt
	} else {
		s.averagedRTT = (9*s.averagedRTT + rtt) / 10
	}

	// Step 3: Update the timeout interval.
	s.retransmissionTimeout = s.computeRTO()

	// Step 4: Update the allowed sending rate.
	var recvLimit Bandwidth // the limit computed from X_recv_set
	if isDataLimited {
		// The entire interval covered by the feedback packet was a
		// data-limited interval.
		if lossEventRate > s.lastLossEventRate {
			// The feedback packet reports a new loss event or an increase in
			// the loss event rate.
			s.receiveRateHistory.halve()
			receiveRate = Bandwidth(0.85 * float64(receiveRate))
			recvLimit = s.receiveRateHistory.maximize(receiveRate, now)
			s.logger.Debugf("fb: data limited, new loss event %f > %f, recv_limit: %d",
				lossEventRate, s.lastLossEventRate, recvLimit)
		} else {
			recvLimit = 2 * s.receiveRateHistory.maximize(receiveRate, now)
			s.logger.Debugf("fb: data limited, no new loss event %f <= %f, recv_limit: %d",
				lossEventRate, s.lastLossEventRate, recvLimit)
		}
	} else {
		// typical behavior
		s.receiveRateHistory.update(receiveRate, now, s.averagedRTT)
		recvLimit = s.receiveRateHistory.maxRate(false)
		if recvLimit < infBandwidth/2 {
			recvLimit *= 2
		} else {
			recvLimit = infBandwidth
		}
		s.logger.Debugf("fb: not data limited, recv_limit: %d", recvLimit)
	}

	s.recomputeSendingRate(recvLimit, lossEventRate, now)

	// Step 5: Update the instantaneous transmit rate (section 4.5).
	s.lastSqrtRTT = math.Sqrt(float64(rtt.Microseconds()))
	s.updateInstRate()

	// Step 6: Reset the no-feedback timer to expire after RTO.
	s.noFeedbackTimerExpiry = now.Add(s.retransmissionTimeout)
	s.sentPacket = false

	s.lastLossEventRate = lossEventRate
}

func (s *Sender) computeRTO() time.Duration {
	return max(4*s.averagedRTT,
		2*time.Duration(s.segmentSize())*time.Second/time.Duration(s.rate),
		protocol.MinNoFeedbackTimer)
}

// updateLimits restarts the receive rate history at half the given limit and
// recomputes the sending rate against it.
func (s *Sender) updateLimits(timerLimit Bandwidth, now monotime.Time) {
	if timerLimit < s.minimumRate() {
		timerLimit = s.minimumRate()
	}

	s.receiveRateHistory.reset(timerLimit/2, now)

	s.recomputeSendingRate(timerLimit, s.lastLossEventRate, now)
}

// OnNoFeedbackTimerExpired applies RFC 5348 section 4.4: no feedback arrived
// for a full RTO, so the allowed rate is (usually) halved.
func (s *Sender) OnNoFeedbackTimerExpired(now monotime.Time) {
	receiveRate := s.receiveRateHistory.maxRate(false)
	recoverRate := initialRate(s.mss, s.averagedRTT)

	switch {
	case s.averagedRTT == 0 && s.sentPacket:
		// We do not have X_Bps or recover_rate yet.
		// Halve the allowed sending rate.
		s.rate = max(s.rate/2, s.minimumRate())
		s.logger.Debugf("no_fb: no p, initial, halve rate: %d", s.rate)
		s.updateInstRate()
	case ((s.lastLossEventRate > 0 && receiveRate < recoverRate) ||
		(s.lastLossEventRate == 0 && s.rate < 2*recoverRate)) && !s.sentPacket:
		// The sender has been idle; don't halve the allowed sending rate.
		s.logger.Debugf("no_fb: idle, do nothing recv: %d recover: %d",
			receiveRate, recoverRate)
	case s.lastLossEventRate == 0:
		// We do not have X_Bps yet. Halve the allowed sending rate.
		s.rate = max(s.rate/2, s.minimumRate())
		s.logger.Debugf("no_fb: no p, halve rate: %d recover: %d, sent: %t",
			s.rate, recoverRate, s.sentPacket)
		s.updateInstRate()
	case s.computedRate/2 > receiveRate:
		// 2 * X_recv was already limiting the sending rate.
		// Halve the allowed sending rate.
		s.logger.Debugf("no_fb: computed rate %d > 2 * recv_rate %d",
			s.computedRate, receiveRate)
		s.updateLimits(receiveRate, now)
	default:
		s.logger.Debugf("no_fb: halve computed: %d", s.computedRate)
		s.updateLimits(s.computedRate/2, now)
	}

	if s.rate == 0 {
		panic("congestion: sending rate dropped to zero")
	}

	s.noFeedbackTimerExpiry = now.Add(s.computeRTO())
	s.sentPacket = false
}

// SendingPacket records an actually transmitted packet. The average packet
// size follows avg = size + avg*15/16.
func (s *Sender) SendingPacket(size protocol.ByteCount) {
	s.averagePacketSize = size + ((15 * s.averagePacketSize) >> 4)

	s.sentPacket = true
}

// SendRate returns the currently allowed sending rate in bytes per second.
// It may be called on a nil Sender (before the flow has any RTT sample), in
// which case it reports one default-MSS segment per second.
func (s *Sender) SendRate() Bandwidth {
	if s == nil {
		return Bandwidth(protocol.DefaultMSS)
	}

	var rate Bandwidth
	if s.useInstRate && s.instRate != 0 {
		rate = s.instRate
	} else {
		rate = s.rate
	}

	if s.sp {
		// Small-Packet senders pay a fixed per-packet header tax
		// (RFC 4828 section 3).
		avg := s.averagePacketSize >> 4
		return rate * Bandwidth(avg) / Bandwidth(avg+protocol.SmallPacketHeaderSize)
	}
	return rate
}

// NoFeedbackTimerExpiry returns the deadline the host must arm the
// no-feedback timer for.
func (s *Sender) NoFeedbackTimerExpiry() monotime.Time {
	return s.noFeedbackTimerExpiry
}

// AveragedRTT returns the smoothed RTT, or 0 before the first feedback.
func (s *Sender) AveragedRTT() time.Duration {
	return s.averagedRTT
}
