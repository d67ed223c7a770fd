package timeline

import (
	"testing"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/cel"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func row(eventType, channel, uniqueID string, offset time.Duration) cel.CEL {
	return cel.CEL{
		EventType:   eventType,
		EventTime:   base.Add(offset),
		ChannelName: channel,
		UniqueID:    uniqueID,
		LinkedID:    "1386184858.9",
	}
}

func TestBuildSortsByEventTimeNotInputOrder(t *testing.T) {
	rows := []cel.CEL{
		row(cel.EventHangup, "PJSIP/a-1", "1386184858.9", 5*time.Second),
		row(cel.EventChanStart, "PJSIP/a-1", "1386184858.9", 0),
		row(cel.EventAnswer, "PJSIP/a-1", "1386184858.9", 2*time.Second),
	}

	tl := Build(rows)

	require.Len(t, tl.Events, 3)
	require.Equal(t, cel.EventChanStart, tl.Events[0].Row.EventType)
	require.Equal(t, cel.EventAnswer, tl.Events[1].Row.EventType)
	require.Equal(t, cel.EventHangup, tl.Events[2].Row.EventType)
}

func TestBuildUniqueIDTieBreakIsNotChronology(t *testing.T) {
	// "1386184858.10" sorts before "1386184858.9" as text although its
	// numeric suffix is later; timestamps must decide the order.
	rows := []cel.CEL{
		row(cel.EventChanStart, "PJSIP/b-2", "1386184858.10", 3*time.Second),
		row(cel.EventChanStart, "PJSIP/a-1", "1386184858.9", 0),
	}

	tl := Build(rows)

	require.Equal(t, "1386184858.9", tl.Events[0].Row.UniqueID)
	require.Equal(t, "1386184858.10", tl.Events[1].Row.UniqueID)

	originator := tl.Originator()
	require.Equal(t, "1386184858.9", originator.UniqueID)
}

func TestBuildGroupsChannels(t *testing.T) {
	rows := []cel.CEL{
		row(cel.EventChanStart, "PJSIP/a-1", "100.1", 0),
		row(cel.EventChanStart, "PJSIP/b-2", "100.2", time.Second),
		row(cel.EventAnswer, "PJSIP/b-2", "100.2", 2*time.Second),
		row(cel.EventHangup, "PJSIP/a-1", "100.1", 3*time.Second),
	}

	tl := Build(rows)

	require.Len(t, tl.Channels, 2)
	require.Equal(t, "1386184858.9", tl.LinkedID)

	a := tl.ChannelByUniqueID("100.1")
	require.NotNil(t, a)
	require.Len(t, a.Events, 2)

	end, ok := a.EndTime()
	require.True(t, ok)
	require.Equal(t, base.Add(3*time.Second), end)
}

func TestHasTerminalMarker(t *testing.T) {
	rows := []cel.CEL{
		row(cel.EventChanStart, "PJSIP/a-1", "100.1", 0),
	}

	require.False(t, Build(rows).HasTerminalMarker())

	rows = append(rows, row(cel.EventLinkedIDEnd, "PJSIP/a-1", "100.1", time.Second))

	require.True(t, Build(rows).HasTerminalMarker())
}

func TestLocalCounterpart(t *testing.T) {
	rows := []cel.CEL{
		row(cel.EventChanStart, "Local/1002@internal-0001;1", "200.1", 0),
		row(cel.EventChanStart, "Local/1002@internal-0001;2", "200.2", 0),
	}

	tl := Build(rows)

	legOne := tl.ChannelByUniqueID("200.1")
	require.NotNil(t, legOne)
	require.True(t, legOne.IsLocal())

	counterpart := tl.LocalCounterpart(legOne)
	require.NotNil(t, counterpart)
	require.Equal(t, "200.2", counterpart.UniqueID)
}

func TestOriginatorPrefersNonLocalOnTie(t *testing.T) {
	rows := []cel.CEL{
		row(cel.EventChanStart, "Local/s@default-0001;1", "300.1", 0),
		row(cel.EventChanStart, "PJSIP/a-1", "300.2", 0),
	}

	tl := Build(rows)

	require.Equal(t, "300.2", tl.Originator().UniqueID)
}

func TestFirstBridgeEnterAcceptsLegacyName(t *testing.T) {
	rows := []cel.CEL{
		row(cel.EventChanStart, "PJSIP/a-1", "400.1", 0),
		row(cel.EventBridgeStart, "PJSIP/a-1", "400.1", 2*time.Second),
	}

	tl := Build(rows)

	entered, ok := tl.ChannelByUniqueID("400.1").FirstBridgeEnter()
	require.True(t, ok)
	require.Equal(t, base.Add(2*time.Second), entered)
	require.True(t, tl.ChannelByUniqueID("400.1").Answered())
}

func TestParentInference(t *testing.T) {
	rows := []cel.CEL{
		row(cel.EventChanStart, "PJSIP/a-1", "500.1", 0),
		row(cel.EventAppStart, "PJSIP/a-1", "500.1", time.Second),
		row(cel.EventChanStart, "PJSIP/b-2", "500.2", 2*time.Second),
	}

	tl := Build(rows)

	child := tl.ChannelByUniqueID("500.2")
	require.NotNil(t, child.Parent)
	require.Equal(t, "500.1", child.Parent.UniqueID)
	require.Nil(t, tl.ChannelByUniqueID("500.1").Parent)
}
