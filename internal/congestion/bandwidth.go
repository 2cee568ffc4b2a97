package congestion

import (
	"math"
	"time"

	"github.com/tfrc-go/tfrc-go/internal/protocol"
	"github.com/tfrc-go/tfrc-go/internal/utils"
)

// A Bandwidth is a sending or receiving rate, in bytes per second.
// The TFRC throughput equation and the receiver feedback reports both work
// in byte rates, so unlike TCP-style controllers there is no bit-rate form.
type Bandwidth uint64

// infBandwidth is the "no limit learned yet" sentinel used in the receive
// rate history before the first real report arrives.
const infBandwidth Bandwidth = math.MaxUint64

// BandwidthFromDelta calculates the bandwidth from a number of bytes and a
// time delta, rounded to the nearest byte per second.
func BandwidthFromDelta(bytes protocol.ByteCount, delta time.Duration) Bandwidth {
	return Bandwidth(utils.ScaleRound(uint64(time.Second/time.Microsecond), uint64(bytes), uint64(delta.Microseconds())))
}
