package congestion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tfrc-go/tfrc-go/internal/monotime"
	"github.com/tfrc-go/tfrc-go/internal/protocol"
)

const senderTestRTT = 100 * time.Millisecond

// newTestSender runs a sender up to (and including) its first feedback
// packet: one RTT sample exists and the initial rate is set.
func newTestSender(t *testing.T, now monotime.Time, receiveRate Bandwidth) *Sender {
	t.Helper()
	s := NewSender(1460, now, 0)
	// The instantaneous rate correction moves with floating point smoothing;
	// these tests check the allowed rate itself.
	s.SetUseInstRate(false)
	s.OnFirstRTT(now)
	s.OnFeedbackPacket(now, senderTestRTT, receiveRate, 0, false)
	return s
}

func TestSenderInitialRate(t *testing.T) {
	t0 := monotime.Time(1_000_000)
	s := NewSender(1460, t0, 0)

	// before any feedback: one segment per second
	require.Equal(t, Bandwidth(1460), s.SendRate())
	require.Zero(t, s.AveragedRTT())
	// and the initial no-feedback timeout of two seconds
	require.Equal(t, t0.Add(2*time.Second), s.NoFeedbackTimerExpiry())

	s.OnFirstRTT(t0)
	s.OnFeedbackPacket(t0, senderTestRTT, 1_000_000, 0, false)

	// the first feedback sets the RFC 3390 initial rate:
	// min(4*MSS, max(2*MSS, 4380)) bytes per RTT
	require.Equal(t, Bandwidth(43800), s.SendRate())
	require.Equal(t, senderTestRTT, s.AveragedRTT())
	// RTO = max(4*R, 2*s/X) = 400ms
	require.Equal(t, t0.Add(400*time.Millisecond), s.NoFeedbackTimerExpiry())
}

func TestSenderExplicitInitialRate(t *testing.T) {
	s := NewSender(1460, monotime.Time(1_000_000), 20_000)
	require.Equal(t, Bandwidth(20_000), s.SendRate())
}

func TestSenderRejectsImpossibleRTTs(t *testing.T) {
	t0 := monotime.Time(1_000_000)
	s := NewSender(1460, t0, 0)
	require.Panics(t, func() { s.OnFeedbackPacket(t0, 0, 1000, 0, false) })
	require.Panics(t, func() { s.OnFeedbackPacket(t0, protocol.MaxRTT + time.Second, 1000, 0, false) })
}

func TestSenderRoundsUpSubMicrosecondRTTs(t *testing.T) {
	t0 := monotime.Time(1_000_000)
	s := NewSender(1460, t0, 0)
	s.SetUseInstRate(false)
	s.OnFirstRTT(t0)

	// An RTT below the rate math's microsecond resolution is rounded up
	// rather than rejected.
	require.NotPanics(t, func() {
		s.OnFeedbackPacket(t0, 500*time.Nanosecond, 200_000, 0, false)
	})
	require.Equal(t, time.Microsecond, s.AveragedRTT())
	// the RFC 3390 initial window over a 1µs RTT
	require.Equal(t, Bandwidth(4_380_000_000), s.SendRate())
}

func TestSenderSlowStartDoublesPerRTT(t *testing.T) {
	t0 := monotime.Time(1_000_000)
	s := newTestSender(t, t0, 1_000_000)
	require.Equal(t, Bandwidth(43800), s.SendRate())

	// feedback within the same RTT doesn't double again
	s.OnFeedbackPacket(t0.Add(senderTestRTT/2), senderTestRTT, 1_000_000, 0, false)
	require.Equal(t, Bandwidth(43800), s.SendRate())

	// a full RTT later it does
	s.OnFeedbackPacket(t0.Add(senderTestRTT), senderTestRTT, 1_000_000, 0, false)
	require.Equal(t, Bandwidth(87600), s.SendRate())

	s.OnFeedbackPacket(t0.Add(2*senderTestRTT), senderTestRTT, 1_000_000, 0, false)
	require.Equal(t, Bandwidth(175200), s.SendRate())
}

func TestSenderSlowStartCappedByReceiveRate(t *testing.T) {
	t0 := monotime.Time(1_000_000)
	s := newTestSender(t, t0, 43_800)
	s.OnFeedbackPacket(t0.Add(senderTestRTT), senderTestRTT, 43_800, 0, false)
	require.Equal(t, Bandwidth(87600), s.SendRate())

	// Once the unlimited marker has aged out of the receive rate history,
	// doubling is capped at twice the reported receive rate.
	s.OnFeedbackPacket(t0.Add(3*senderTestRTT), senderTestRTT, 50_000, 0, false)
	require.Equal(t, Bandwidth(100_000), s.SendRate())
}

func TestSenderCongestionAvoidance(t *testing.T) {
	t0 := monotime.Time(1_000_000)
	s := newTestSender(t, t0, 10_000_000)

	const p = 0.01
	s.OnFeedbackPacket(t0.Add(senderTestRTT), senderTestRTT, 10_000_000, p, false)

	want := Bandwidth(calculateBitrate(1460, senderTestRTT, p))
	require.Equal(t, want, s.SendRate())

	// a higher loss event rate gives a lower rate
	s.OnFeedbackPacket(t0.Add(2*senderTestRTT), senderTestRTT, 10_000_000, 0.05, false)
	require.Less(t, s.SendRate(), want)
}

func TestSenderRateFloor(t *testing.T) {
	t0 := monotime.Time(1_000_000)
	s := newTestSender(t, t0, 10_000_000)

	// p = 1 on a long RTT pushes the equation rate below one segment per
	// 64 seconds
	s.OnFeedbackPacket(t0.Add(senderTestRTT), protocol.MaxRTT, 10_000_000, 1, false)
	require.Equal(t, Bandwidth(1460/64), s.SendRate())
}

func TestSenderRTTSmoothing(t *testing.T) {
	t0 := monotime.Time(1_000_000)
	s := newTestSender(t, t0, 1_000_000)
	require.Equal(t, senderTestRTT, s.AveragedRTT())

	s.OnFeedbackPacket(t0.Add(senderTestRTT), 200*time.Millisecond, 1_000_000, 0, false)
	require.Equal(t, (9*senderTestRTT+200*time.Millisecond)/10, s.AveragedRTT())
}

func TestSenderNoFeedbackBeforeFirstRTT(t *testing.T) {
	t0 := monotime.Time(1_000_000)
	s := NewSender(1460, t0, 0)
	s.SendingPacket(1460)

	// without an RTT, the rate is simply halved
	s.OnNoFeedbackTimerExpired(t0.Add(2 * time.Second))
	require.Equal(t, Bandwidth(730), s.SendRate())
	s.SendingPacket(1460)
	s.OnNoFeedbackTimerExpired(t0.Add(4 * time.Second))
	require.Equal(t, Bandwidth(365), s.SendRate())
}

func TestSenderNoFeedbackWhileIdle(t *testing.T) {
	t0 := monotime.Time(1_000_000)
	s := newTestSender(t, t0, 1_000_000)
	rate := s.SendRate()

	// nothing was sent since the last feedback: don't back off
	s.OnNoFeedbackTimerExpired(t0.Add(400 * time.Millisecond))
	require.Equal(t, rate, s.SendRate())
}

func TestSenderNoFeedbackHalvesDuringSlowStart(t *testing.T) {
	t0 := monotime.Time(1_000_000)
	s := newTestSender(t, t0, 1_000_000)
	require.Equal(t, Bandwidth(43800), s.SendRate())

	s.SendingPacket(1460)
	s.OnNoFeedbackTimerExpired(t0.Add(400 * time.Millisecond))
	require.Equal(t, Bandwidth(21900), s.SendRate())
}

func TestSenderNoFeedbackWhenReceiveRateLimited(t *testing.T) {
	t0 := monotime.Time(1_000_000)
	s := newTestSender(t, t0, 1_000_000)

	// Age out the unlimited marker, then report a receive rate well below
	// the equation rate: X = 2*X_recv is the limiting factor.
	s.OnFeedbackPacket(t0.Add(senderTestRTT), senderTestRTT, 1_000_000, 0, false)
	s.OnFeedbackPacket(t0.Add(4*senderTestRTT), senderTestRTT, 20_000, 0.001, false)
	require.Equal(t, Bandwidth(40_000), s.SendRate())

	s.SendingPacket(1460)
	s.OnNoFeedbackTimerExpired(t0.Add(8 * senderTestRTT))
	require.Equal(t, Bandwidth(20_000), s.SendRate())
}

func TestSenderNoFeedbackHalvesEquationRate(t *testing.T) {
	t0 := monotime.Time(1_000_000)
	s := newTestSender(t, t0, 10_000_000)

	const p = 0.01
	s.OnFeedbackPacket(t0.Add(senderTestRTT), senderTestRTT, 10_000_000, p, false)
	computed := Bandwidth(calculateBitrate(1460, senderTestRTT, p))
	require.Equal(t, computed, s.SendRate())

	s.SendingPacket(1460)
	s.OnNoFeedbackTimerExpired(t0.Add(senderTestRTT + 400*time.Millisecond))
	require.Equal(t, computed/2, s.SendRate())
}

func TestSenderDataLimitedFeedback(t *testing.T) {
	t0 := monotime.Time(1_000_000)
	s := newTestSender(t, t0, 50_000)

	// Data-limited without a new loss event: the limit is twice the largest
	// rate seen, not twice the (undersized) latest report.
	s.OnFeedbackPacket(t0.Add(senderTestRTT), senderTestRTT, 10_000, 0, true)
	require.Equal(t, Bandwidth(87600), s.SendRate())

	// Data-limited with a new loss event: halve the history and shrink the
	// report by 15% before taking the limit, without doubling it.
	s.OnFeedbackPacket(t0.Add(2*senderTestRTT), senderTestRTT, 10_000, 0.01, true)
	require.Equal(t, Bandwidth(25_000), s.SendRate())
}

func TestSenderAveragePacketSizeConverges(t *testing.T) {
	t0 := monotime.Time(1_000_000)
	s := NewSenderSP(t0, 1460)
	for i := 0; i < 100; i++ {
		s.SendingPacket(300)
	}
	require.InDelta(t, 300, float64(s.averagePacketSize>>4), 3)
}

func TestSenderSmallPacketHeaderTax(t *testing.T) {
	t0 := monotime.Time(1_000_000)
	s := NewSenderSP(t0, 200)

	// rate * avg / (avg + 40) with the initial rate of one MSS per second
	require.Equal(t, Bandwidth(1460*200/240), s.SendRate())

	// the equation always runs on the MSS, not the small segments
	s.OnFirstRTT(t0)
	s.OnFeedbackPacket(t0, senderTestRTT, 10_000_000, 0.01, false)
	equationRate := Bandwidth(calculateBitrate(1460, senderTestRTT, 0.01))
	require.Equal(t, equationRate*200/240, s.SendRate())
}

func TestSenderNilSendRate(t *testing.T) {
	var s *Sender
	require.Equal(t, Bandwidth(protocol.DefaultMSS), s.SendRate())
}

func TestSenderInstRateFollowsRTTSpikes(t *testing.T) {
	t0 := monotime.Time(1_000_000)
	s := newTestSender(t, t0, 10_000_000)
	s.SetUseInstRate(true)
	rate := s.SendRate()

	// An RTT spike lowers the instantaneous rate below the allowed rate
	// before the smoothed average catches up.
	s.OnFeedbackPacket(t0.Add(senderTestRTT), 400*time.Millisecond, 10_000_000, 0, false)
	require.Less(t, s.SendRate(), s.rate)

	s.SetUseInstRate(false)
	require.Equal(t, s.rate, s.SendRate())
	require.GreaterOrEqual(t, s.SendRate(), rate)
}
