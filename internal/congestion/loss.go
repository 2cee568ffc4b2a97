package congestion

import (
	"github.com/tfrc-go/tfrc-go/internal/monotime"
	"github.com/tfrc-go/tfrc-go/internal/protocol"
	"github.com/tfrc-go/tfrc-go/internal/utils"
)

// lossIntervalWeights are the weights of RFC 5348 section 5.4.
var lossIntervalWeights = [8]float64{1.0, 1.0, 1.0, 1.0, 0.8, 0.6, 0.4, 0.2}

// calculateLossEventRate implements RFC 5348 section 5: walk the gaps
// between received intervals, cluster the lost packets into loss events (all
// losses within one RTT of the start of an event belong to that event),
// derive the loss interval sizes and return their weighted average rate.
func (r *Receiver) calculateLossEventRate(now monotime.Time) float64 {
	var lossEventTimes [protocol.LossEventsMax]monotime.Time
	var lossEventSeqnums [protocol.LossEventsMax]protocol.SequenceNumber
	var lossEventPktCount [protocol.LossEventsMax]uint64
	var lossIntervals [protocol.LossEventsMax]uint64

	if r.senderRTT == 0 {
		return 0
	}
	if r.intervals.Len() < 2 {
		return 0
	}

	rtt := r.senderRTT

	maxIndex := -1
	var maxSeqnum protocol.SequenceNumber

	for i := 1; i < r.intervals.Len(); i++ {
		cur := r.intervals.At(i)
		prev := r.intervals.At(i - 1)
		var startTS monotime.Time
		var startSeqnum protocol.SequenceNumber

		maxSeqnum = cur.lastSeq

		// If this loss falls entirely within one RTT of the beginning of
		// the latest loss event, merge it in.
		if maxIndex >= 0 && cur.firstTimestamp.Before(
			lossEventTimes[maxIndex%protocol.LossEventsMax].Add(rtt)) {
			lossEventPktCount[maxIndex%protocol.LossEventsMax] +=
				uint64(cur.firstSeq - prev.lastSeq)
			continue
		}

		if maxIndex >= 0 && prev.lastTimestamp.Before(
			lossEventTimes[maxIndex%protocol.LossEventsMax].Add(rtt)) {
			// The latest loss event ends in the middle of this run of lost
			// packets: close it one RTT in, then start a new event there.
			startTS = lossEventTimes[maxIndex%protocol.LossEventsMax].Add(rtt)
			startSeqnum = prev.lastSeq + protocol.SequenceNumber(utils.ScaleRound(
				uint64(cur.firstSeq-prev.lastSeq),
				uint64(startTS-prev.lastTimestamp),
				1+uint64(cur.firstTimestamp-prev.lastTimestamp)))
			lossEventPktCount[maxIndex%protocol.LossEventsMax] +=
				uint64(startSeqnum - prev.lastSeq - 1)
		} else {
			// The packet loss starts an entirely new loss event.
			startTS = prev.lastTimestamp + monotime.Time(utils.ScaleRound(1,
				uint64(cur.firstTimestamp-prev.lastTimestamp),
				uint64(cur.firstSeq-prev.lastSeq)))
			startSeqnum = prev.lastSeq + 1
		}

		// One or more loss events start during this run of lost packets.
		// If there is more than one, all but the last are exactly one RTT
		// long.
		for !startTS.After(cur.firstTimestamp) {
			maxIndex++

			lossEventTimes[maxIndex%protocol.LossEventsMax] = startTS
			lossEventSeqnums[maxIndex%protocol.LossEventsMax] = startSeqnum
			if cur.firstTimestamp.Equal(prev.lastTimestamp) {
				// Interpolating the next start seqnum would divide by zero.
				lossEventPktCount[maxIndex%protocol.LossEventsMax] =
					uint64(cur.firstSeq - startSeqnum)
				break
			}

			startTS = startTS.Add(rtt)
			startSeqnum = prev.lastSeq + protocol.SequenceNumber(utils.ScaleRound(
				uint64(cur.firstSeq-prev.lastSeq),
				uint64(startTS-prev.lastTimestamp),
				uint64(cur.firstTimestamp-prev.lastTimestamp)))

			// Make sure the interval has at least one packet in it.
			if startSeqnum <= lossEventSeqnums[maxIndex%protocol.LossEventsMax] {
				startSeqnum = lossEventSeqnums[maxIndex%protocol.LossEventsMax] + 1
				startTS = prev.lastTimestamp + monotime.Time(utils.ScaleRound(
					uint64(cur.firstTimestamp-prev.lastTimestamp),
					uint64(startSeqnum-prev.lastSeq),
					uint64(cur.firstSeq-prev.lastSeq)))
			}

			if startSeqnum > cur.firstSeq {
				if !startTS.After(cur.firstTimestamp) {
					panic("congestion: loss event interpolation overshot the gap")
				}
				startSeqnum = cur.firstSeq
				// No need to touch startTS, the loop stops anyway.
			}
			lossEventPktCount[maxIndex%protocol.LossEventsMax] =
				uint64(startSeqnum - lossEventSeqnums[maxIndex%protocol.LossEventsMax])
		}
	}

	if maxIndex < 0 || (maxIndex < 1 && r.maxReceiveRate == 0) {
		return 0
	}

	// RFC 5348 section 5.3: the sizes of the loss intervals. Interval 0 is
	// the still-open one.
	lossIntervals[0] = uint64(maxSeqnum-lossEventSeqnums[maxIndex%protocol.LossEventsMax]) + 1
	maxInterval := 1
	for i := maxIndex - 1; maxInterval < protocol.LossIntervalsMax &&
		i >= 0 && i > maxIndex-protocol.LossEventsMax; i, maxInterval = i-1, maxInterval+1 {
		curI := i % protocol.LossEventsMax
		prevI := (i + 1) % protocol.LossEventsMax

		// In the Small-Packet variant, a loss event shorter than 2 RTTs has
		// its interval divided by the number of packets lost in the event
		// (RFC 4828 section 3, bullet 3).
		if r.sp && lossEventTimes[prevI].Sub(lossEventTimes[curI]) < 2*rtt {
			lossIntervals[maxInterval] = uint64(lossEventSeqnums[prevI]-
				lossEventSeqnums[curI]) / lossEventPktCount[curI]
		} else {
			lossIntervals[maxInterval] = uint64(lossEventSeqnums[prevI] -
				lossEventSeqnums[curI])
		}
	}

	// While the history holds fewer than LossIntervalsMax events, append the
	// synthetic first loss interval of RFC 5348 section 6.3.1, derived from
	// the maximum receive rate seen so far.
	if maxInterval < protocol.LossIntervalsMax {
		if r.firstLossInterval == 0 {
			r.firstLossInterval = uint64(firstLossInterval(
				float64(r.maxReceiveRateSegmentSize), rtt, float64(r.maxReceiveRate)))
			r.logger.Debugf("computed the first loss interval to %d (rtt: %s s: %d rate: %d)",
				r.firstLossInterval, rtt, r.maxReceiveRateSegmentSize, r.maxReceiveRate)
		}
		lossIntervals[maxInterval] = r.firstLossInterval
		maxInterval++
	}

	// Section 5.4: average loss interval.
	var iTot0, iTot1, wTot float64
	for i := 1; i < maxInterval; i++ {
		iTot1 += float64(lossIntervals[i]) * lossIntervalWeights[i-1]
		wTot += lossIntervalWeights[i-1]
	}

	var iTot float64
	if r.sp && now.Sub(lossEventTimes[0]) < 2*rtt {
		// RFC 4828 section 3, bullet 3: ignore the open interval while the
		// loss event is fresh.
		iTot = iTot1
	} else {
		for i := 0; i < maxInterval-1; i++ {
			iTot0 += float64(lossIntervals[i]) * lossIntervalWeights[i]
		}
		iTot = max(iTot0, iTot1)
	}

	return wTot / iTot
}
