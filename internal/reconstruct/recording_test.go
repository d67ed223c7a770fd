package reconstruct

import (
	"testing"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/cel"
	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/timeline"
	"github.com/stretchr/testify/require"
)

func TestCorrelateRecordingsPairsStartAndStop(t *testing.T) {
	rows := []cel.CEL{
		testRow(cel.EventChanStart, "PJSIP/alice-1", "800.1", 0, rowOpts{}),
		testRow(cel.EventMixMonitorStart, "PJSIP/alice-1", "800.1", 1*time.Second,
			rowOpts{extra: `{"mixmonitor_id":"rec-1","filename":"/recordings/a.wav"}`}),
		testRow(cel.EventMixMonitorStop, "PJSIP/alice-1", "800.1", 5*time.Second,
			rowOpts{extra: `{"mixmonitor_id":"rec-1"}`}),
		testRow(cel.EventHangup, "PJSIP/alice-1", "800.1", 6*time.Second, rowOpts{}),
	}

	recordings := correlateRecordings(timeline.Build(rows))

	require.Len(t, recordings, 1)
	require.Equal(t, "rec-1", recordings[0].MixMonitorID)
	require.Equal(t, base.Add(1*time.Second), recordings[0].StartTime)
	require.Equal(t, base.Add(5*time.Second), recordings[0].EndTime)
	require.NotNil(t, recordings[0].Path)
	require.Equal(t, "/recordings/a.wav", *recordings[0].Path)
}

func TestCorrelateRecordingsMissingStopClosesAtChannelEnd(t *testing.T) {
	rows := []cel.CEL{
		testRow(cel.EventChanStart, "PJSIP/alice-1", "801.1", 0, rowOpts{}),
		testRow(cel.EventMixMonitorStart, "PJSIP/alice-1", "801.1", 1*time.Second,
			rowOpts{extra: `{"mixmonitor_id":"rec-2","filename":"/recordings/b.wav"}`}),
		testRow(cel.EventHangup, "PJSIP/alice-1", "801.1", 7*time.Second, rowOpts{}),
	}

	recordings := correlateRecordings(timeline.Build(rows))

	require.Len(t, recordings, 1)
	require.Equal(t, base.Add(7*time.Second), recordings[0].EndTime)
	require.True(t, !recordings[0].EndTime.Before(recordings[0].StartTime))
}

func TestCorrelateRecordingsIgnoresStartWithoutPayload(t *testing.T) {
	rows := []cel.CEL{
		testRow(cel.EventChanStart, "PJSIP/alice-1", "802.1", 0, rowOpts{}),
		testRow(cel.EventMixMonitorStart, "PJSIP/alice-1", "802.1", 1*time.Second, rowOpts{}),
		testRow(cel.EventHangup, "PJSIP/alice-1", "802.1", 3*time.Second, rowOpts{}),
	}

	require.Empty(t, correlateRecordings(timeline.Build(rows)))
}

func TestCorrelateRecordingsConcurrentChannelsAreIndependent(t *testing.T) {
	rows := []cel.CEL{
		testRow(cel.EventChanStart, "PJSIP/alice-1", "803.1", 0, rowOpts{}),
		testRow(cel.EventChanStart, "PJSIP/bob-2", "803.2", 0, rowOpts{}),
		testRow(cel.EventMixMonitorStart, "PJSIP/alice-1", "803.1", 1*time.Second,
			rowOpts{extra: `{"mixmonitor_id":"rec-a","filename":"/recordings/a.wav"}`}),
		testRow(cel.EventMixMonitorStart, "PJSIP/bob-2", "803.2", 2*time.Second,
			rowOpts{extra: `{"mixmonitor_id":"rec-b","filename":"/recordings/b.wav"}`}),
		testRow(cel.EventMixMonitorStop, "PJSIP/bob-2", "803.2", 4*time.Second,
			rowOpts{extra: `{"mixmonitor_id":"rec-b"}`}),
		testRow(cel.EventMixMonitorStop, "PJSIP/alice-1", "803.1", 5*time.Second,
			rowOpts{extra: `{"mixmonitor_id":"rec-a"}`}),
		testRow(cel.EventHangup, "PJSIP/alice-1", "803.1", 6*time.Second, rowOpts{}),
		testRow(cel.EventHangup, "PJSIP/bob-2", "803.2", 6*time.Second, rowOpts{}),
	}

	recordings := correlateRecordings(timeline.Build(rows))

	require.Len(t, recordings, 2)
	// Chronological by start time.
	require.Equal(t, "rec-a", recordings[0].MixMonitorID)
	require.Equal(t, "rec-b", recordings[1].MixMonitorID)
	require.Equal(t, base.Add(5*time.Second), recordings[0].EndTime)
	require.Equal(t, base.Add(4*time.Second), recordings[1].EndTime)
}
