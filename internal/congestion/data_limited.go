package congestion

import (
	"time"

	"github.com/tfrc-go/tfrc-go/internal/monotime"
)

// A DataLimited tracks whether the sender actually had data to send during
// the interval covered by each feedback packet, following the algorithm of
// RFC 5348 section 8.2.1. Feedback from a data-limited interval is
// interpreted more conservatively by the sender.
type DataLimited struct {
	notLimited1 monotime.Time
	notLimited2 monotime.Time
	tNew        monotime.Time // send time of the last packet covered by the latest feedback
	tNext       monotime.Time // arrival time of the latest feedback
}

// NewDataLimited creates a data-limited tracker. The now argument is kept
// for symmetry with the sender and receiver constructors; the algorithm
// starts from zeroed state.
func NewDataLimited(now monotime.Time) *DataLimited {
	return &DataLimited{}
}

// NotLimitedNow records that the sender was not data-limited at this
// instant, i.e. it had queued data ready to transmit.
func (d *DataLimited) NotLimitedNow(now monotime.Time) {
	if !d.notLimited1.After(d.tNew) {
		// Goal: NotLimited1 > t_new.
		d.notLimited1 = now
	} else if !d.notLimited2.After(d.tNext) {
		// Goal: NotLimited2 > t_next.
		d.notLimited2 = now
	}
}

// ReceivedFeedback registers an arriving feedback packet and reports
// whether the period it covers was a data-limited interval.
// lastPacketTimestamp is the send time of the last packet covered by the
// feedback, rtt the current round-trip time estimate.
func (d *DataLimited) ReceivedFeedback(now, lastPacketTimestamp monotime.Time, rtt time.Duration) bool {
	d.tNew = lastPacketTimestamp
	tOld := d.tNew.Add(-rtt)
	d.tNext = now

	// Not data-limited iff the sender had data queued at some instant in
	// (t_old, t_new].
	dataLimited := true
	if (tOld.Before(d.notLimited1) && !d.notLimited1.After(d.tNew)) ||
		(tOld.Before(d.notLimited2) && !d.notLimited2.After(d.tNew)) {
		dataLimited = false
	}

	if !d.notLimited1.After(d.tNew) && d.notLimited2.After(d.tNew) {
		d.notLimited1 = d.notLimited2
	}

	return dataLimited
}
