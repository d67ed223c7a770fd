package cel

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestDecodePayloadMixMonitor(t *testing.T) {
	row := &CEL{
		EventType: EventMixMonitorStart,
		Extra:     datatypes.JSON(`{"mixmonitor_id":"0x7f0012","filename":"/var/lib/recordings/abc.wav"}`),
	}

	payload := DecodePayload(row)

	require.NotNil(t, payload.MixMonitor)
	require.Equal(t, "0x7f0012", payload.MixMonitor.MixMonitorID)
	require.Equal(t, "/var/lib/recordings/abc.wav", payload.MixMonitor.Filename)
}

func TestDecodePayloadForward(t *testing.T) {
	row := &CEL{
		EventType: EventXivoUserFwd,
		Extra:     datatypes.JSON(`{"extra":"NUM: 1002,CONTEXT: internal,NAME: Bob Dole"}`),
	}

	payload := DecodePayload(row)

	require.NotNil(t, payload.Forward)
	require.Equal(t, "1002", payload.Forward.Num)
	require.Equal(t, "internal", payload.Forward.Context)
	require.Equal(t, "Bob Dole", payload.Forward.Name)
}

func TestDecodePayloadDestinationUser(t *testing.T) {
	row := &CEL{
		EventType: EventCallLogDestination,
		Extra:     datatypes.JSON(`{"extra":"type: user,uuid: 11111111-2222-3333-4444-555555555555,name: Alice"}`),
	}

	payload := DecodePayload(row)

	require.NotNil(t, payload.Destination)
	require.Equal(t, DestinationUser, payload.Destination.Type)
	require.Equal(t, "11111111-2222-3333-4444-555555555555", payload.Destination.UserUUID)
	require.Equal(t, "Alice", payload.Destination.UserName)
}

func TestDecodePayloadMeetingName(t *testing.T) {
	row := &CEL{
		EventType: EventMeetingName,
		Extra:     datatypes.JSON(`{"extra":"uuid: aaaa-bbbb,name: Weekly sync"}`),
	}

	payload := DecodePayload(row)

	require.NotNil(t, payload.Destination)
	require.Equal(t, DestinationMeeting, payload.Destination.Type)
	require.Equal(t, "Weekly sync", payload.Destination.MeetingName)
}

func TestDecodePayloadMalformed(t *testing.T) {
	tests := []struct {
		name string
		row  CEL
	}{
		{
			name: "empty extra",
			row:  CEL{EventType: EventMixMonitorStart},
		},
		{
			name: "broken json",
			row:  CEL{EventType: EventMixMonitorStart, Extra: datatypes.JSON(`{"mixmonitor`)},
		},
		{
			name: "unknown destination type",
			row:  CEL{EventType: EventCallLogDestination, Extra: datatypes.JSON(`{"extra":"type: spaceship,id: 1"}`)},
		},
		{
			name: "irrelevant event type",
			row:  CEL{EventType: EventChanStart, Extra: datatypes.JSON(`{"extra":"whatever"}`)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, Payload{}, DecodePayload(&tt.row))
		})
	}
}

func TestLineIdentity(t *testing.T) {
	require.Equal(t, "PJSIP/abcdef", LineIdentity("PJSIP/abcdef-00000001"))
	require.Equal(t, "Local/1002@internal", LineIdentity("Local/1002@internal-00000002;1"))
	require.Equal(t, "SIP/trunk", LineIdentity("SIP/trunk-0a8f"))
}

func TestLocalLegCounterpart(t *testing.T) {
	counterpart, ok := LocalLegCounterpart("Local/1002@internal-00000002;1")
	require.True(t, ok)
	require.Equal(t, "Local/1002@internal-00000002;2", counterpart)

	counterpart, ok = LocalLegCounterpart("Local/1002@internal-00000002;2")
	require.True(t, ok)
	require.Equal(t, "Local/1002@internal-00000002;1", counterpart)

	_, ok = LocalLegCounterpart("PJSIP/abcdef-00000001")
	require.False(t, ok)
}
