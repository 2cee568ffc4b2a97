package congestion

import (
	"time"

	"github.com/tfrc-go/tfrc-go/internal/monotime"
	"github.com/tfrc-go/tfrc-go/internal/protocol"
)

type receiveRateItem struct {
	timestamp monotime.Time
	rate      Bandwidth
}

// receiveRateHistory is X_recv_set from RFC 5348 section 4.3: the most
// recent receiver-reported rates, newest in slot 0.
type receiveRateHistory struct {
	items [protocol.ReceiveRateHistorySize]receiveRateItem
}

// seedUnlimited marks the history as "no limit learned yet". Done once the
// first RTT sample exists, before any feedback has reported a real rate.
func (h *receiveRateHistory) seedUnlimited(now monotime.Time) {
	h.items[0].rate = infBandwidth
	h.items[0].timestamp = now
}

// maxRate returns the largest rate in the history. If the unlimited sentinel
// is encountered, the result is either the maximum seen up to that slot
// (ignoreUnlimited) or the sentinel itself.
func (h *receiveRateHistory) maxRate(ignoreUnlimited bool) Bandwidth {
	var maxRate Bandwidth

	for _, item := range h.items {
		if item.rate == infBandwidth {
			if ignoreUnlimited {
				return maxRate
			}
			return infBandwidth
		}
		maxRate = max(maxRate, item.rate)
	}

	return maxRate
}

func (h *receiveRateHistory) add(rate Bandwidth, now monotime.Time) {
	for i := len(h.items) - 1; i > 0; i-- {
		h.items[i] = h.items[i-1]
	}
	h.items[0] = receiveRateItem{rate: rate, timestamp: now}
}

// maximize collapses the history to a single slot holding its maximum after
// recording the given rate, and returns that maximum. Used at the end of a
// data-limited interval (RFC 5348 section 4.3 step 4 bullet 1).
func (h *receiveRateHistory) maximize(rate Bandwidth, now monotime.Time) Bandwidth {
	h.add(rate, now)
	maxRate := h.maxRate(true)

	*h = receiveRateHistory{}
	h.items[0] = receiveRateItem{rate: maxRate, timestamp: now}

	return maxRate
}

// update records the given rate and ages out entries older than two RTTs.
func (h *receiveRateHistory) update(rate Bandwidth, now monotime.Time, avgRTT time.Duration) {
	h.add(rate, now)

	for i := 1; i < len(h.items); i++ {
		if h.items[i].rate != 0 && h.items[i].timestamp.Before(now.Add(-2*avgRTT)) {
			h.items[i].rate = 0
		}
	}
}

// halve divides every entry in two. The sentinel stays effectively
// unlimited, which is fine: it only exists before the first loss event.
func (h *receiveRateHistory) halve() {
	for i := range h.items {
		h.items[i].rate /= 2
	}
}

// reset collapses the history to a single entry.
func (h *receiveRateHistory) reset(rate Bandwidth, now monotime.Time) {
	*h = receiveRateHistory{}
	h.items[0] = receiveRateItem{rate: rate, timestamp: now}
}
