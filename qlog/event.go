package qlog

import (
	"time"

	"github.com/francoispqt/gojay"

	tfrc "github.com/tfrc-go/tfrc-go"
	"github.com/tfrc-go/tfrc-go/internal/monotime"
)

const category = "rate_control"

type eventDetails interface {
	Name() string
	gojay.MarshalerJSONObject
}

// An event is serialized as the 4-tuple [time, category, event, data], one
// JSON array per line.
type event struct {
	Time monotime.Time
	eventDetails
}

var _ gojay.MarshalerJSONArray = event{}

func (e event) IsNil() bool { return false }
func (e event) MarshalJSONArray(enc *gojay.Encoder) {
	enc.Float64(float64(e.Time) / 1e3) // ms
	enc.String(category)
	enc.String(e.Name())
	enc.Object(e.eventDetails)
}

type eventSendRateUpdated struct {
	Rate tfrc.Bandwidth
}

var _ eventDetails = eventSendRateUpdated{}

func (e eventSendRateUpdated) Name() string { return "send_rate_updated" }
func (e eventSendRateUpdated) IsNil() bool  { return false }
func (e eventSendRateUpdated) MarshalJSONObject(enc *gojay.Encoder) {
	enc.Uint64Key("rate_bytes_per_second", uint64(e.Rate))
}

type eventRTTUpdated struct {
	RTT time.Duration
}

var _ eventDetails = eventRTTUpdated{}

func (e eventRTTUpdated) Name() string { return "rtt_updated" }
func (e eventRTTUpdated) IsNil() bool  { return false }
func (e eventRTTUpdated) MarshalJSONObject(enc *gojay.Encoder) {
	enc.Float64Key("rtt_ms", float64(e.RTT.Microseconds())/1e3)
}

type eventFeedbackSent struct {
	Report tfrc.FeedbackReport
}

var _ eventDetails = eventFeedbackSent{}

func (e eventFeedbackSent) Name() string { return "feedback_sent" }
func (e eventFeedbackSent) IsNil() bool  { return false }
func (e eventFeedbackSent) MarshalJSONObject(enc *gojay.Encoder) {
	enc.Float64Key("loss_event_rate", e.Report.LossEventRate)
	enc.Uint64Key("receive_rate_bytes_per_second", uint64(e.Report.ReceiveRate))
}

type eventFeedbackReceived struct {
	RTT         time.Duration
	Report      tfrc.FeedbackReport
	DataLimited bool
}

var _ eventDetails = eventFeedbackReceived{}

func (e eventFeedbackReceived) Name() string { return "feedback_received" }
func (e eventFeedbackReceived) IsNil() bool  { return false }
func (e eventFeedbackReceived) MarshalJSONObject(enc *gojay.Encoder) {
	enc.Float64Key("rtt_ms", float64(e.RTT.Microseconds())/1e3)
	enc.Float64Key("loss_event_rate", e.Report.LossEventRate)
	enc.Uint64Key("receive_rate_bytes_per_second", uint64(e.Report.ReceiveRate))
	enc.BoolKey("data_limited", e.DataLimited)
}

type eventNoFeedbackTimeout struct{}

var _ eventDetails = eventNoFeedbackTimeout{}

func (e eventNoFeedbackTimeout) Name() string { return "no_feedback_timeout" }
func (e eventNoFeedbackTimeout) IsNil() bool  { return false }
func (e eventNoFeedbackTimeout) MarshalJSONObject(*gojay.Encoder) {}
