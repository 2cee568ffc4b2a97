package tfrc

import "time"

// NewMultiplexedTracer creates a new tracer that multiplexes events to
// several tracers. Nil tracers are dropped; a single tracer is returned
// unwrapped.
func NewMultiplexedTracer(tracers ...*Tracer) *Tracer {
	var ts []*Tracer
	for _, t := range tracers {
		if t != nil {
			ts = append(ts, t)
		}
	}
	if len(ts) == 0 {
		return nil
	}
	if len(ts) == 1 {
		return ts[0]
	}
	return &Tracer{
		UpdatedSendRate: func(rate Bandwidth) {
			for _, t := range ts {
				if t.UpdatedSendRate != nil {
					t.UpdatedSendRate(rate)
				}
			}
		},
		UpdatedRTT: func(rtt time.Duration) {
			for _, t := range ts {
				if t.UpdatedRTT != nil {
					t.UpdatedRTT(rtt)
				}
			}
		},
		SentFeedback: func(report FeedbackReport) {
			for _, t := range ts {
				if t.SentFeedback != nil {
					t.SentFeedback(report)
				}
			}
		},
		ReceivedFeedback: func(rtt time.Duration, report FeedbackReport, dataLimited bool) {
			for _, t := range ts {
				if t.ReceivedFeedback != nil {
					t.ReceivedFeedback(rtt, report, dataLimited)
				}
			}
		},
		NoFeedbackTimerExpired: func() {
			for _, t := range ts {
				if t.NoFeedbackTimerExpired != nil {
					t.NoFeedbackTimerExpired()
				}
			}
		},
		Close: func() {
			for _, t := range ts {
				if t.Close != nil {
					t.Close()
				}
			}
		},
	}
}
