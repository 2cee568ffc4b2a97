package congestion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tfrc-go/tfrc-go/internal/monotime"
)

func TestRateHistorySeedUnlimited(t *testing.T) {
	var h receiveRateHistory
	now := monotime.Time(1_000_000)

	require.Zero(t, h.maxRate(false))

	h.seedUnlimited(now)
	require.Equal(t, infBandwidth, h.maxRate(false))
	require.Zero(t, h.maxRate(true))
}

func TestRateHistoryShiftsEntries(t *testing.T) {
	var h receiveRateHistory
	now := monotime.Time(1_000_000)

	h.add(100, now)
	h.add(300, now.Add(time.Second))
	h.add(200, now.Add(2*time.Second))
	require.Equal(t, Bandwidth(300), h.maxRate(false))

	// a fifth entry pushes the oldest one out
	h.add(10, now.Add(3*time.Second))
	h.add(20, now.Add(4*time.Second))
	require.Equal(t, Bandwidth(300), h.maxRate(false))
	h.add(30, now.Add(5*time.Second))
	require.Equal(t, Bandwidth(200), h.maxRate(false))
}

func TestRateHistoryUnlimitedSentinelStopsTheScan(t *testing.T) {
	var h receiveRateHistory
	now := monotime.Time(1_000_000)

	h.seedUnlimited(now)
	h.add(100, now.Add(time.Second))
	h.add(500, now.Add(2*time.Second))

	// with the sentinel in the history, the limit is still unknown
	require.Equal(t, infBandwidth, h.maxRate(false))
	// ignoring it only considers the entries newer than the sentinel
	require.Equal(t, Bandwidth(500), h.maxRate(true))
}

func TestRateHistoryMaximize(t *testing.T) {
	var h receiveRateHistory
	now := monotime.Time(1_000_000)

	h.add(100, now)
	h.add(400, now.Add(time.Second))

	got := h.maximize(250, now.Add(2*time.Second))
	require.Equal(t, Bandwidth(400), got)

	// the history collapsed to a single entry holding the maximum
	require.Equal(t, Bandwidth(400), h.maxRate(false))
	require.Equal(t, Bandwidth(400), h.items[0].rate)
	for i := 1; i < len(h.items); i++ {
		require.Zero(t, h.items[i].rate)
	}
}

func TestRateHistoryUpdateAgesOutOldEntries(t *testing.T) {
	var h receiveRateHistory
	now := monotime.Time(1_000_000)
	const rtt = 100 * time.Millisecond

	h.update(100, now, rtt)
	h.update(200, now.Add(rtt), rtt)
	require.Equal(t, Bandwidth(200), h.maxRate(false))

	// the first entry is now older than two RTTs and gets dropped
	h.update(50, now.Add(3*rtt), rtt)
	require.Equal(t, Bandwidth(200), h.maxRate(false))
	h.update(50, now.Add(4*rtt), rtt)
	require.Equal(t, Bandwidth(50), h.maxRate(false))
}

func TestRateHistoryHalveAndReset(t *testing.T) {
	var h receiveRateHistory
	now := monotime.Time(1_000_000)

	h.add(100, now)
	h.add(400, now)
	h.halve()
	require.Equal(t, Bandwidth(200), h.maxRate(false))

	h.reset(1000, now)
	require.Equal(t, Bandwidth(1000), h.maxRate(false))
	for i := 1; i < len(h.items); i++ {
		require.Zero(t, h.items[i].rate)
	}
}
