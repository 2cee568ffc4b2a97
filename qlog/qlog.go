// Package qlog writes rate control events as newline-delimited JSON, one
// [time, category, event, data] tuple per line, for offline analysis of a
// flow's rate trajectory.
package qlog

import (
	"bufio"
	"io"
	"sync"
	"time"

	"github.com/francoispqt/gojay"

	tfrc "github.com/tfrc-go/tfrc-go"
	"github.com/tfrc-go/tfrc-go/internal/monotime"
	"github.com/tfrc-go/tfrc-go/internal/utils"
)

type writer struct {
	mutex sync.Mutex

	w   *bufio.Writer
	c   io.Closer
	enc *gojay.Encoder

	logger utils.Logger
}

func newWriter(wc io.WriteCloser) *writer {
	bw := bufio.NewWriter(wc)
	return &writer{
		w:      bw,
		c:      wc,
		enc:    gojay.NewEncoder(bw),
		logger: utils.DefaultLogger.WithPrefix("qlog"),
	}
}

func (w *writer) record(details eventDetails) {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if w.w == nil {
		return
	}
	if err := w.enc.EncodeArray(event{Time: monotime.Now(), eventDetails: details}); err != nil {
		w.logger.Errorf("failed to encode event: %s", err)
		return
	}
	if err := w.w.WriteByte('\n'); err != nil {
		w.logger.Errorf("failed to write event: %s", err)
	}
}

func (w *writer) close() {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if w.w == nil {
		return
	}
	if err := w.w.Flush(); err != nil {
		w.logger.Errorf("failed to flush qlog: %s", err)
	}
	if err := w.c.Close(); err != nil {
		w.logger.Errorf("failed to close qlog: %s", err)
	}
	w.w = nil
}

// NewTracer creates a tracer recording all rate control events of one flow
// to w. The writer is closed when the flow is closed.
func NewTracer(w io.WriteCloser) *tfrc.Tracer {
	qw := newWriter(w)
	return &tfrc.Tracer{
		UpdatedSendRate: func(rate tfrc.Bandwidth) {
			qw.record(eventSendRateUpdated{Rate: rate})
		},
		UpdatedRTT: func(rtt time.Duration) {
			qw.record(eventRTTUpdated{RTT: rtt})
		},
		SentFeedback: func(report tfrc.FeedbackReport) {
			qw.record(eventFeedbackSent{Report: report})
		},
		ReceivedFeedback: func(rtt time.Duration, report tfrc.FeedbackReport, dataLimited bool) {
			qw.record(eventFeedbackReceived{RTT: rtt, Report: report, DataLimited: dataLimited})
		},
		NoFeedbackTimerExpired: func() {
			qw.record(eventNoFeedbackTimeout{})
		},
		Close: qw.close,
	}
}
