package congestion

import (
	"math"
	"time"

	"github.com/tfrc-go/tfrc-go/internal/monotime"
	"github.com/tfrc-go/tfrc-go/internal/protocol"
)

const maxBurstSizePackets = 10

// The Pacer implements a token bucket pacing algorithm on top of the TFRC
// allowed rate, so that the host doesn't blast a whole RTT's worth of bytes
// back to back.
type Pacer struct {
	budgetAtLastSent protocol.ByteCount
	segmentSize      protocol.ByteCount
	lastSentTime     monotime.Time
	getRate          func() Bandwidth // in bytes/s
}

// NewPacer creates a pacer drawing its rate from getRate, typically the
// sender's SendRate.
func NewPacer(getRate func() Bandwidth, segmentSize protocol.ByteCount) *Pacer {
	p := &Pacer{
		segmentSize: segmentSize,
		getRate:     getRate,
	}
	p.budgetAtLastSent = p.maxBurstSize()
	return p
}

// SentPacket spends budget for one sent packet.
func (p *Pacer) SentPacket(sendTime monotime.Time, size protocol.ByteCount) {
	budget := p.Budget(sendTime)
	if size > budget {
		p.budgetAtLastSent = 0
	} else {
		p.budgetAtLastSent = budget - size
	}
	p.lastSentTime = sendTime
}

// Budget returns the number of bytes that may be sent at once right now.
func (p *Pacer) Budget(now monotime.Time) protocol.ByteCount {
	if p.lastSentTime.IsZero() {
		return p.maxBurstSize()
	}
	budget := p.budgetAtLastSent +
		protocol.ByteCount(p.getRate())*protocol.ByteCount(now.Sub(p.lastSentTime).Microseconds())/1e6
	return min(p.maxBurstSize(), budget)
}

func (p *Pacer) maxBurstSize() protocol.ByteCount {
	return max(
		protocol.ByteCount(uint64((protocol.MinPacingDelay+protocol.TimerGranularity).Microseconds())*uint64(p.getRate()))/1e6,
		maxBurstSizePackets*p.segmentSize,
	)
}

// TimeUntilSend returns when the next packet should be sent.
// It returns the zero value if a packet can be sent immediately.
func (p *Pacer) TimeUntilSend() monotime.Time {
	if p.budgetAtLastSent >= p.segmentSize {
		return 0
	}
	diff := 1e6 * float64(p.segmentSize-p.budgetAtLastSent)
	return p.lastSentTime.Add(max(
		protocol.MinPacingDelay,
		time.Duration(math.Ceil(diff/float64(p.getRate())))*time.Microsecond,
	))
}
