package congestion

import (
	"math"
	"time"
)

// calculateBitrate evaluates the TCP throughput equation (RFC 5348 section
// 3.1) for a segment size s in bytes, a round-trip time and a loss event
// rate p in (0, 1]:
//
//	                             s
//	X_Bps = -----------------------------------------------
//	        R * (sqrt(2*p/3) + 12*sqrt(3*p/8)*p*(1+32*p^2))
//
// The result is in bytes per second.
func calculateBitrate(s float64, rtt time.Duration, p float64) float64 {
	f := math.Sqrt(2*p/3) + 12*math.Sqrt(3*p/8)*p*(1+32*p*p)

	return (1e6 * s) / (float64(rtt.Microseconds()) * f)
}

// maxBisectionSteps bounds the search below. The interval halves on every
// step, so 64 steps exhaust the precision of a float64 mantissa; a target
// rate outside the equation's range would otherwise never converge.
const maxBisectionSteps = 64

// firstLossInterval finds, by bisection on the throughput equation, the 1/p
// that would produce the given sending rate (RFC 5348 section 6.3.1). The
// search stops once the equation rate is within 5% of the target.
func firstLossInterval(s float64, rtt time.Duration, rate float64) float64 {
	var pMin, pMax float64 = 0, 1
	var p, computedRate float64

	for i := 0; i < maxBisectionSteps; i++ {
		p = (pMin + pMax) / 2
		computedRate = calculateBitrate(s, rtt, p)

		if computedRate < rate {
			pMax = p
		} else {
			pMin = p
		}

		if computedRate >= 0.95*rate && computedRate <= 1.05*rate {
			break
		}
	}

	return 1 / p
}
