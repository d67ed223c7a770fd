package reconstruct

import (
	"context"
	"testing"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/calllog"
	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/cel"
	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/directory"
	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/timeline"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

var base = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

type fakeResolver struct {
	byIdentity map[string]*directory.Resolution
}

func (f *fakeResolver) ResolveLine(_ context.Context, identity string, _ time.Time) (*directory.Resolution, error) {
	resolution, ok := f.byIdentity[identity]
	if !ok {
		return nil, directory.ErrLineNotFound
	}

	return resolution, nil
}

type rowOpts struct {
	cidName string
	cidNum  string
	exten   string
	context string
	extra   string
}

func testRow(eventType, channel, uniqueID string, offset time.Duration, opts rowOpts) cel.CEL {
	row := cel.CEL{
		EventType:    eventType,
		EventTime:    base.Add(offset),
		ChannelName:  channel,
		UniqueID:     uniqueID,
		LinkedID:     "1700000000.1",
		CallerIDName: opts.cidName,
		CallerIDNum:  opts.cidNum,
		Exten:        opts.exten,
		Context:      opts.context,
	}

	if opts.extra != "" {
		row.Extra = datatypes.JSON(opts.extra)
	}

	return row
}

func aliceAndBobResolver() *fakeResolver {
	return &fakeResolver{byIdentity: map[string]*directory.Resolution{
		"PJSIP/alice": {
			LineID:     1,
			UserUUID:   "alice-uuid",
			UserName:   "Alice Hart",
			TenantUUID: "tenant-1",
			Context:    "internal",
			Extension:  "1001",
			Tags:       []string{"support"},
		},
		"PJSIP/bob": {
			LineID:     2,
			UserUUID:   "bob-uuid",
			UserName:   "Bob Dole",
			TenantUUID: "tenant-1",
			Context:    "internal",
			Extension:  "1002",
		},
	}}
}

func buildCallLog(t *testing.T, resolver LineResolver, rows []cel.CEL) *calllog.CallLog {
	t.Helper()

	builder := newBuilder(resolver, timeline.Build(rows))

	callLog, err := builder.build(context.Background())
	require.NoError(t, err)
	require.NotNil(t, callLog)

	return callLog
}

func TestBuildAnsweredInternalCall(t *testing.T) {
	rows := []cel.CEL{
		testRow(cel.EventChanStart, "PJSIP/alice-1", "700.1", 0,
			rowOpts{cidName: "Alice Hart", cidNum: "1001", exten: "1002", context: "internal"}),
		testRow(cel.EventAnswer, "PJSIP/bob-2", "700.2", 1*time.Second,
			rowOpts{cidName: "Bob Dole", cidNum: "1002"}),
		testRow(cel.EventAnswer, "PJSIP/alice-1", "700.1", 2*time.Second, rowOpts{}),
		testRow(cel.EventBridgeEnter, "PJSIP/alice-1", "700.1", 3*time.Second, rowOpts{}),
		testRow(cel.EventBridgeEnter, "PJSIP/bob-2", "700.2", 4*time.Second, rowOpts{}),
		testRow(cel.EventHangup, "PJSIP/alice-1", "700.1", 5*time.Second, rowOpts{}),
		testRow(cel.EventLinkedIDEnd, "PJSIP/alice-1", "700.1", 5*time.Second, rowOpts{}),
	}

	callLog := buildCallLog(t, aliceAndBobResolver(), rows)

	require.Equal(t, base, callLog.Date)
	require.NotNil(t, callLog.DateAnswer)
	require.Equal(t, base.Add(3*time.Second), *callLog.DateAnswer)
	require.NotNil(t, callLog.DateEnd)
	require.Equal(t, base.Add(5*time.Second), *callLog.DateEnd)

	require.Equal(t, calllog.DirectionInternal, callLog.Direction)
	require.Equal(t, "1700000000.1", callLog.ConversationID)
	require.Equal(t, "tenant-1", callLog.TenantUUID)

	require.Equal(t, "Alice Hart", callLog.SourceName)
	require.Equal(t, "1001", callLog.SourceExten)
	require.Equal(t, "pjsip/alice", callLog.SourceLineIdentity)
	require.NotNil(t, callLog.SourceUserUUID)
	require.Equal(t, "alice-uuid", *callLog.SourceUserUUID)

	require.Equal(t, "1002", callLog.RequestedExten)
	require.Equal(t, "internal", callLog.RequestedContext)
	require.Equal(t, "Bob Dole", callLog.RequestedName)

	require.Equal(t, "1002", callLog.DestinationExten)
	require.NotNil(t, callLog.DestinationUserUUID)
	require.Equal(t, "bob-uuid", *callLog.DestinationUserUUID)
}

func TestBuildDateAnswerNilWithoutBridge(t *testing.T) {
	rows := []cel.CEL{
		testRow(cel.EventChanStart, "PJSIP/alice-1", "701.1", 0,
			rowOpts{cidNum: "1001", exten: "1002", context: "internal"}),
		testRow(cel.EventChanStart, "PJSIP/bob-2", "701.2", 1*time.Second, rowOpts{cidNum: "1002"}),
		testRow(cel.EventHangup, "PJSIP/bob-2", "701.2", 4*time.Second, rowOpts{}),
		testRow(cel.EventHangup, "PJSIP/alice-1", "701.1", 5*time.Second, rowOpts{}),
	}

	callLog := buildCallLog(t, aliceAndBobResolver(), rows)

	require.Nil(t, callLog.DateAnswer)
	require.NotNil(t, callLog.DateEnd)
	require.Equal(t, base.Add(5*time.Second), *callLog.DateEnd)
}

func TestBuildDirectionFromMarkers(t *testing.T) {
	makeRows := func(marker string) []cel.CEL {
		rows := []cel.CEL{
			testRow(cel.EventChanStart, "PJSIP/trunk-1", "702.1", 0,
				rowOpts{cidNum: "+33612345678", exten: "1001", context: "from-extern"}),
		}

		if marker != "" {
			rows = append(rows, testRow(marker, "PJSIP/trunk-1", "702.1", time.Second, rowOpts{}))
		}

		return append(rows, testRow(cel.EventHangup, "PJSIP/trunk-1", "702.1", 2*time.Second, rowOpts{}))
	}

	tests := []struct {
		marker    string
		direction string
	}{
		{marker: cel.EventXivoIncall, direction: calllog.DirectionInbound},
		{marker: cel.EventXivoOutcall, direction: calllog.DirectionOutbound},
		{marker: "", direction: calllog.DirectionInternal},
	}

	for _, tt := range tests {
		t.Run(tt.direction, func(t *testing.T) {
			callLog := buildCallLog(t, &fakeResolver{}, makeRows(tt.marker))
			require.Equal(t, tt.direction, callLog.Direction)
		})
	}
}

func TestBuildRequestedFromS(t *testing.T) {
	rows := []cel.CEL{
		testRow(cel.EventChanStart, "PJSIP/trunk-1", "703.1", 0,
			rowOpts{cidNum: "+33612345678", exten: "s", context: "default"}),
		testRow(cel.EventXivoFromS, "PJSIP/trunk-1", "703.1", time.Second,
			rowOpts{exten: "1002", context: "internal"}),
		testRow(cel.EventHangup, "PJSIP/trunk-1", "703.1", 2*time.Second, rowOpts{}),
	}

	callLog := buildCallLog(t, &fakeResolver{}, rows)

	require.Equal(t, "1002", callLog.RequestedExten)
	require.Equal(t, "internal", callLog.RequestedContext)
}

func TestBuildForwardNeverOverwritesRequested(t *testing.T) {
	rows := []cel.CEL{
		testRow(cel.EventChanStart, "PJSIP/alice-1", "704.1", 0,
			rowOpts{cidNum: "1001", exten: "1002", context: "internal"}),
		testRow(cel.EventChanStart, "PJSIP/bob-2", "704.2", 1*time.Second, rowOpts{cidNum: "1002"}),
		testRow(cel.EventXivoUserFwd, "PJSIP/alice-1", "704.1", 2*time.Second,
			rowOpts{extra: `{"extra":"NUM: 1003,CONTEXT: internal,NAME: Carol"}`}),
		testRow(cel.EventHangup, "PJSIP/bob-2", "704.2", 3*time.Second, rowOpts{}),
		testRow(cel.EventHangup, "PJSIP/alice-1", "704.1", 4*time.Second, rowOpts{}),
	}

	callLog := buildCallLog(t, aliceAndBobResolver(), rows)

	require.Equal(t, "1002", callLog.RequestedExten)
	require.Equal(t, "Bob Dole", callLog.RequestedName)

	require.Equal(t, "1003", callLog.DestinationExten)
	require.Equal(t, "Carol", callLog.DestinationName)
}

func TestBuildLastDestinationMarkerWins(t *testing.T) {
	rows := []cel.CEL{
		testRow(cel.EventChanStart, "PJSIP/alice-1", "705.1", 0,
			rowOpts{cidNum: "1001", exten: "4000", context: "internal"}),
		testRow(cel.EventCallLogDestination, "PJSIP/alice-1", "705.1", 1*time.Second,
			rowOpts{extra: `{"extra":"type: user,uuid: bob-uuid,name: Bob Dole"}`}),
		testRow(cel.EventConference, "PJSIP/alice-1", "705.1", 2*time.Second,
			rowOpts{extra: `{"extra":"id: 4000,name: Daily standup"}`}),
		testRow(cel.EventHangup, "PJSIP/alice-1", "705.1", 3*time.Second, rowOpts{}),
	}

	callLog := buildCallLog(t, aliceAndBobResolver(), rows)

	require.Equal(t, "Daily standup", callLog.DestinationName)
	require.Equal(t, []calllog.Destination{
		{Key: "type", Value: "conference"},
		{Key: "conference_id", Value: "4000"},
		{Key: "conference_name", Value: "Daily standup"},
	}, callLog.Destinations)
}

func TestBuildLocalLegsAreTransparent(t *testing.T) {
	rows := []cel.CEL{
		testRow(cel.EventChanStart, "PJSIP/alice-1", "706.1", 0,
			rowOpts{cidNum: "1001", exten: "1002", context: "internal"}),
		testRow(cel.EventChanStart, "Local/1002@internal-0001;1", "706.2", 1*time.Second, rowOpts{}),
		testRow(cel.EventChanStart, "Local/1002@internal-0001;2", "706.3", 1*time.Second, rowOpts{}),
		testRow(cel.EventChanStart, "PJSIP/bob-2", "706.4", 2*time.Second, rowOpts{cidNum: "1002"}),
		testRow(cel.EventBridgeEnter, "PJSIP/alice-1", "706.1", 3*time.Second, rowOpts{}),
		testRow(cel.EventBridgeEnter, "PJSIP/bob-2", "706.4", 3*time.Second, rowOpts{}),
		testRow(cel.EventHangup, "PJSIP/bob-2", "706.4", 5*time.Second, rowOpts{}),
		testRow(cel.EventHangup, "PJSIP/alice-1", "706.1", 5*time.Second, rowOpts{}),
	}

	callLog := buildCallLog(t, aliceAndBobResolver(), rows)

	for _, participant := range callLog.Participants {
		require.NotEmpty(t, participant.UserUUID)
	}

	require.Len(t, callLog.Participants, 2)
	require.NotNil(t, callLog.DestinationUserUUID)
	require.Equal(t, "bob-uuid", *callLog.DestinationUserUUID)
}

func TestParticipantsDedupByUserAndRole(t *testing.T) {
	// Bob rings on two legs (shared line); one answers.
	rows := []cel.CEL{
		testRow(cel.EventChanStart, "PJSIP/alice-1", "707.1", 0,
			rowOpts{cidNum: "1001", exten: "1002", context: "internal"}),
		testRow(cel.EventChanStart, "PJSIP/bob-2", "707.2", 1*time.Second, rowOpts{cidNum: "1002"}),
		testRow(cel.EventChanStart, "PJSIP/bob-3", "707.3", 1*time.Second, rowOpts{cidNum: "1002"}),
		testRow(cel.EventBridgeEnter, "PJSIP/alice-1", "707.1", 2*time.Second, rowOpts{}),
		testRow(cel.EventBridgeEnter, "PJSIP/bob-2", "707.2", 2*time.Second, rowOpts{}),
		testRow(cel.EventHangup, "PJSIP/alice-1", "707.1", 4*time.Second, rowOpts{}),
	}

	callLog := buildCallLog(t, aliceAndBobResolver(), rows)

	destinations := 0

	for _, participant := range callLog.Participants {
		if participant.Role == calllog.RoleDestination {
			destinations++
			require.Equal(t, "bob-uuid", participant.UserUUID)
			require.True(t, participant.Answered)
		}
	}

	require.Equal(t, 1, destinations)
}

func TestParticipantsUnansweredParallelDialKeepsOne(t *testing.T) {
	resolver := aliceAndBobResolver()
	resolver.byIdentity["PJSIP/carol"] = &directory.Resolution{
		LineID:     3,
		UserUUID:   "carol-uuid",
		UserName:   "Carol Finch",
		TenantUUID: "tenant-1",
		Context:    "internal",
		Extension:  "1003",
	}

	rows := []cel.CEL{
		testRow(cel.EventChanStart, "PJSIP/alice-1", "708.1", 0,
			rowOpts{cidNum: "1001", exten: "2000", context: "internal"}),
		testRow(cel.EventChanStart, "PJSIP/bob-2", "708.2", 1*time.Second, rowOpts{cidNum: "1002"}),
		testRow(cel.EventChanStart, "PJSIP/carol-3", "708.3", 1*time.Second, rowOpts{cidNum: "1003"}),
		testRow(cel.EventHangup, "PJSIP/bob-2", "708.2", 4*time.Second, rowOpts{}),
		testRow(cel.EventHangup, "PJSIP/carol-3", "708.3", 4*time.Second, rowOpts{}),
		testRow(cel.EventHangup, "PJSIP/alice-1", "708.1", 5*time.Second, rowOpts{}),
	}

	callLog := buildCallLog(t, resolver, rows)

	destinations := 0

	for _, participant := range callLog.Participants {
		if participant.Role == calllog.RoleDestination {
			destinations++
			require.False(t, participant.Answered)
		}
	}

	require.Equal(t, 1, destinations)
}

func TestBuildUnresolvableChannelsStillProduceCallLog(t *testing.T) {
	rows := []cel.CEL{
		testRow(cel.EventChanStart, "PJSIP/unknown-1", "709.1", 0,
			rowOpts{cidNum: "0000", exten: "1002", context: "internal"}),
		testRow(cel.EventHangup, "PJSIP/unknown-1", "709.1", 2*time.Second, rowOpts{}),
	}

	callLog := buildCallLog(t, &fakeResolver{}, rows)

	require.Empty(t, callLog.Participants)
	require.Equal(t, "0000", callLog.SourceExten)
	require.Empty(t, callLog.TenantUUID)
}
