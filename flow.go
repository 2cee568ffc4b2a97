package tfrc

import (
	"errors"
	"sync"
	"time"

	"github.com/tfrc-go/tfrc-go/internal/congestion"
	"github.com/tfrc-go/tfrc-go/internal/monotime"
	"github.com/tfrc-go/tfrc-go/internal/protocol"
	"github.com/tfrc-go/tfrc-go/internal/utils"
)

// oneTimestampCycle is one wrap of the 32-bit microsecond send timestamp
// carried in the packet header extension, roughly 71 minutes.
const oneTimestampCycle = uint64(1) << 32

// tsReorderingThreshold: a send timestamp this far in the past (5 minutes)
// is declared a wrap rather than reordering.
const tsReorderingThreshold = 5 * 60 * 1000 * 1000

// seqReorderingThreshold is the equivalent for 16-bit sequence numbers.
const seqReorderingThreshold = 3000

// ErrStaleFeedback is returned for feedback packets whose echoed timestamp
// is older than one already processed: they were reordered in the network
// and would poison the RTT estimate.
var ErrStaleFeedback = errors.New("feedback packet is older than one already received")

// ErrImpossibleRTT is returned when the echoed timestamp and delay of a
// feedback packet yield a nonsensical round-trip time.
var ErrImpossibleRTT = errors.New("feedback packet yields an impossible RTT")

// A Flow runs TCP-Friendly Rate Control for one pair of media endpoints: it
// owns the TFRC sender driving our outgoing rate and the TFRC receiver
// watching the packets arriving from the peer.
//
// The host remains responsible for all packet I/O. For every outgoing
// packet it stamps the header with PacketStamp and accounts it with
// SentPacket; for every incoming packet it calls ReceivedPacket, and for
// every incoming feedback message ReceivedFeedback. The allowed rate is read
// from SendRate, or enforced with Budget/TimeUntilSend.
//
// All methods are safe for concurrent use.
type Flow struct {
	mutex sync.Mutex

	config *Config

	sender      *congestion.Sender
	receiver    *congestion.Receiver
	dataLimited *congestion.DataLimited
	pacer       *congestion.Pacer

	// Outgoing packets carry a 32-bit microsecond timestamp relative to
	// sendTsBase. The feedback path tracks its own view of the wrap count,
	// one cycle behind at most.
	sendTsBase   monotime.Time
	sendTsCycles uint64
	fbLastTS     uint32
	fbTsCycles   uint64

	// Incoming 16-bit sequence numbers and 32-bit timestamps are rebased
	// into 64 bits before the congestion core sees them.
	lastSeq   uint16
	seqCycles uint64
	lastTS    uint32
	tsCycles  uint64
	lastRTT   time.Duration

	feedbackTimer   *utils.Timer
	noFeedbackTimer *utils.Timer
	timersChanged   chan struct{}
	closeChan       chan struct{}
	closeOnce       sync.Once

	logger utils.Logger
}

// NewFlow creates a flow and starts its timer goroutine. The config may be
// nil for defaults. Close must be called to stop the goroutine.
func NewFlow(config *Config) *Flow {
	config = populateConfig(config)
	now := monotime.Now()

	f := &Flow{
		config:          config,
		dataLimited:     congestion.NewDataLimited(now),
		sendTsBase:      now,
		feedbackTimer:   utils.NewTimer(),
		noFeedbackTimer: utils.NewTimer(),
		timersChanged:   make(chan struct{}, 1),
		closeChan:       make(chan struct{}),
		logger:          utils.DefaultLogger.WithPrefix("flow"),
	}
	if config.SmallPacket {
		f.sender = congestion.NewSenderSP(now, config.SegmentSize)
	} else {
		f.sender = congestion.NewSender(config.SegmentSize, now, config.InitialRate)
	}
	f.pacer = congestion.NewPacer(f.sender.SendRate, config.SegmentSize)

	go f.run()
	return f
}

func (f *Flow) run() {
	for {
		f.mutex.Lock()
		if f.receiver != nil {
			f.feedbackTimer.Reset(f.receiver.FeedbackTimerExpiry())
		}
		f.noFeedbackTimer.Reset(f.sender.NoFeedbackTimerExpiry())
		f.mutex.Unlock()

		select {
		case <-f.closeChan:
			return
		case <-f.timersChanged:
		case <-f.feedbackTimer.Chan():
			f.feedbackTimer.SetRead()
			f.onFeedbackTimer()
		case <-f.noFeedbackTimer.Chan():
			f.noFeedbackTimer.SetRead()
			f.onNoFeedbackTimer()
		}
	}
}

func (f *Flow) onFeedbackTimer() {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if f.receiver == nil {
		return
	}
	now := monotime.Now()
	if f.receiver.OnFeedbackTimerExpired(now) {
		f.sendFeedback(now)
	}
}

func (f *Flow) onNoFeedbackTimer() {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	now := monotime.Now()
	f.sender.OnNoFeedbackTimerExpired(now)
	if t := f.config.Tracer; t != nil {
		if t.NoFeedbackTimerExpired != nil {
			t.NoFeedbackTimerExpired()
		}
		if t.UpdatedSendRate != nil {
			t.UpdatedSendRate(f.sender.SendRate())
		}
	}
}

// sendFeedback computes a feedback report and hands it to the host.
// Must be called with the mutex held.
func (f *Flow) sendFeedback(now monotime.Time) {
	lossEventRate, receiveRate, ok := f.receiver.SendFeedback(now)
	if !ok {
		return
	}
	report := FeedbackReport{LossEventRate: lossEventRate, ReceiveRate: receiveRate}
	if t := f.config.Tracer; t != nil && t.SentFeedback != nil {
		t.SentFeedback(report)
	}
	if f.config.FeedbackSender != nil {
		f.config.FeedbackSender.SendFeedback(report)
	}
}

func (f *Flow) signalTimersChanged() {
	select {
	case f.timersChanged <- struct{}{}:
	default:
	}
}

// ReceivedPacket records one incoming media packet. timestamp is the 32-bit
// microsecond send time stamped by the peer, seq the 16-bit RTP sequence
// number, senderRTT the round-trip time the peer advertised in the same
// header (zero while it has none yet) and size the full packet size.
func (f *Flow) ReceivedPacket(now Time, timestamp uint32, seq uint16, senderRTT time.Duration, size ByteCount) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if f.receiver == nil {
		f.newReceiver(now)
	} else if senderRTT == 0 && f.lastRTT != 0 {
		// The peer stopped advertising an RTT: it restarted. Start over.
		f.logger.Debugf("sender restart detected, resetting receiver")
		f.newReceiver(now)
	}

	if seq < f.lastSeq && int32(seq)-int32(f.lastSeq) < -seqReorderingThreshold {
		f.seqCycles += 1 << 16
	}
	f.lastSeq = seq
	seq64 := protocol.SequenceNumber(uint64(seq) + f.seqCycles)

	if timestamp < f.lastTS && int64(timestamp)-int64(f.lastTS) < -tsReorderingThreshold {
		f.tsCycles += oneTimestampCycle
	}
	f.lastTS = timestamp
	ts := monotime.Time(uint64(timestamp) + f.tsCycles)

	f.lastRTT = senderRTT

	if f.receiver.GotPacket(ts, now, seq64, senderRTT, size) {
		f.sendFeedback(now)
	}
	f.signalTimersChanged()
}

func (f *Flow) newReceiver(now monotime.Time) {
	if f.config.SmallPacket {
		f.receiver = congestion.NewReceiverSP(now)
	} else {
		f.receiver = congestion.NewReceiver(now)
	}
	f.seqCycles = 0
	f.lastSeq = 0
	f.tsCycles = 0
	f.lastTS = 0
	f.lastRTT = 0
}

// ReceivedFeedback applies one feedback message from the peer.
// echoedTimestamp is the send timestamp the peer copied from our last
// packet, delay the time it held on to it before sending the feedback.
func (f *Flow) ReceivedFeedback(now Time, echoedTimestamp uint32, delay time.Duration, report FeedbackReport) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	// Only use the RTT from the most recent packets from the remote side,
	// ignore anything that got delayed in between.
	if echoedTimestamp < f.fbLastTS {
		if f.fbTsCycles+oneTimestampCycle == f.sendTsCycles {
			f.fbTsCycles = f.sendTsCycles
		} else {
			return ErrStaleFeedback
		}
	}
	f.fbLastTS = echoedTimestamp
	ts := f.sendTsBase + monotime.Time(uint64(echoedTimestamp)+f.fbTsCycles)

	if ts.After(now) || now.Sub(ts) < delay {
		return ErrImpossibleRTT
	}
	rtt := now.Sub(ts) - delay
	if rtt < time.Microsecond {
		rtt = time.Microsecond
	}
	if rtt > protocol.MaxRTT {
		return ErrImpossibleRTT
	}

	if f.sender.AveragedRTT() == 0 {
		f.sender.OnFirstRTT(now)
	}

	isDataLimited := f.dataLimited.ReceivedFeedback(now, ts, f.sender.AveragedRTT())

	f.sender.OnFeedbackPacket(now, rtt, report.ReceiveRate, report.LossEventRate, isDataLimited)

	if t := f.config.Tracer; t != nil {
		if t.ReceivedFeedback != nil {
			t.ReceivedFeedback(rtt, report, isDataLimited)
		}
		if t.UpdatedRTT != nil {
			t.UpdatedRTT(f.sender.AveragedRTT())
		}
		if t.UpdatedSendRate != nil {
			t.UpdatedSendRate(f.sender.SendRate())
		}
	}

	f.signalTimersChanged()
	return nil
}

// PacketStamp returns the values to place in an outgoing packet's header
// extension: the sender's current averaged RTT and the 32-bit microsecond
// send timestamp the peer will echo back in its feedback.
func (f *Flow) PacketStamp(now Time) (rtt time.Duration, timestamp uint32) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	ts := uint64(now - f.sendTsBase)
	if ts > f.sendTsCycles+oneTimestampCycle {
		f.sendTsCycles += oneTimestampCycle
	}
	return f.sender.AveragedRTT(), uint32(ts)
}

// SentPacket accounts one actually transmitted packet of the given size.
// hadMoreData says whether more application data was waiting when the
// packet was sent; it feeds the data-limited interval detection.
func (f *Flow) SentPacket(now Time, size ByteCount, hadMoreData bool) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if hadMoreData {
		f.dataLimited.NotLimitedNow(now)
	}
	f.sender.SendingPacket(size)
	f.pacer.SentPacket(now, size)
}

// SendRate returns the currently allowed sending rate.
func (f *Flow) SendRate() Bandwidth {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.sender.SendRate()
}

// AveragedRTT returns the smoothed RTT, or 0 before the first feedback.
func (f *Flow) AveragedRTT() time.Duration {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.sender.AveragedRTT()
}

// Budget returns how many bytes may be sent at once right now without
// exceeding the paced rate.
func (f *Flow) Budget(now Time) ByteCount {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.pacer.Budget(now)
}

// TimeUntilSend returns when the next packet should be sent, or zero if one
// may be sent immediately.
func (f *Flow) TimeUntilSend() Time {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.pacer.TimeUntilSend()
}

// Close stops the flow's timers. The flow must not be used afterwards.
func (f *Flow) Close() error {
	f.closeOnce.Do(func() {
		close(f.closeChan)
		f.feedbackTimer.Stop()
		f.noFeedbackTimer.Stop()
		if t := f.config.Tracer; t != nil && t.Close != nil {
			t.Close()
		}
	})
	return nil
}
