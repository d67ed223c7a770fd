package cel

import (
	"strings"

	"github.com/goccy/go-json"
)

// The switch writes two payload shapes into the extra column: plain JSON
// objects (mixmonitor and bridge events) and a JSON object whose "extra"
// key holds an ad hoc "key: value,key: value" text (the WAZO_*/XIVO_*
// markers). Each shape is decoded exactly once, here, into a typed
// payload; the reconstruction algorithm never touches raw extra bytes.

type MixMonitorPayload struct {
	MixMonitorID string `json:"mixmonitor_id"`
	Filename     string `json:"filename"`
}

type BridgePayload struct {
	BridgeID         string `json:"bridge_id"`
	BridgeTechnology string `json:"bridge_technology"`
}

// ForwardPayload carries the next target of a user forward hop.
type ForwardPayload struct {
	Num     string
	Context string
	Name    string
}

// MissedCallPayload describes the user a ringing call never reached.
type MissedCallPayload struct {
	DestinationUserUUID string
	DestinationExten    string
	DestinationName     string
}

// DestinationPayload is the typed destination descriptor emitted by
// WAZO_CALL_LOG_DESTINATION, WAZO_MEETING_NAME and WAZO_CONFERENCE
// markers.
type DestinationPayload struct {
	Type           string
	UserUUID       string
	UserName       string
	MeetingUUID    string
	MeetingName    string
	ConferenceID   string
	ConferenceName string
	QueueID        string
	QueueName      string
	GroupID        string
	GroupName      string
}

const (
	DestinationUser       = "user"
	DestinationMeeting    = "meeting"
	DestinationConference = "conference"
	DestinationQueue      = "queue"
	DestinationGroup      = "group"
)

// Payload is the decoded extra column of one CEL row. At most one field
// is set, matching the row's event type.
type Payload struct {
	MixMonitor  *MixMonitorPayload
	Bridge      *BridgePayload
	Forward     *ForwardPayload
	MissedCall  *MissedCallPayload
	Destination *DestinationPayload
}

// DecodePayload parses the extra column of a row according to its event
// type. Rows with no payload, or with payloads this service does not
// consume, yield an empty Payload; malformed payloads do too, since a
// marker that cannot be read carries no information worth failing over.
func DecodePayload(row *CEL) Payload {
	if len(row.Extra) == 0 {
		return Payload{}
	}

	switch row.EventType {
	case EventMixMonitorStart, EventMixMonitorStop:
		var payload MixMonitorPayload

		if err := json.Unmarshal(row.Extra, &payload); err != nil {
			return Payload{}
		}

		return Payload{MixMonitor: &payload}

	case EventBridgeEnter, EventBridgeExit, EventBridgeStart, EventBridgeEnd:
		var payload BridgePayload

		if err := json.Unmarshal(row.Extra, &payload); err != nil {
			return Payload{}
		}

		return Payload{Bridge: &payload}

	case EventXivoUserFwd:
		fields := decodeExtraText(row.Extra)
		if len(fields) == 0 {
			return Payload{}
		}

		return Payload{Forward: &ForwardPayload{
			Num:     fields["num"],
			Context: fields["context"],
			Name:    fields["name"],
		}}

	case EventUserMissedCall:
		fields := decodeExtraText(row.Extra)
		if len(fields) == 0 {
			return Payload{}
		}

		return Payload{MissedCall: &MissedCallPayload{
			DestinationUserUUID: fields["destination_user_uuid"],
			DestinationExten:    fields["destination_exten"],
			DestinationName:     fields["destination_name"],
		}}

	case EventCallLogDestination:
		fields := decodeExtraText(row.Extra)

		return decodeDestination(fields)

	case EventMeetingName:
		fields := decodeExtraText(row.Extra)
		if len(fields) == 0 {
			return Payload{}
		}

		return Payload{Destination: &DestinationPayload{
			Type:        DestinationMeeting,
			MeetingUUID: fields["uuid"],
			MeetingName: fields["name"],
		}}

	case EventConference:
		fields := decodeExtraText(row.Extra)
		if len(fields) == 0 {
			return Payload{}
		}

		return Payload{Destination: &DestinationPayload{
			Type:           DestinationConference,
			ConferenceID:   fields["id"],
			ConferenceName: fields["name"],
		}}
	}

	return Payload{}
}

func decodeDestination(fields map[string]string) Payload {
	destType := fields["type"]

	switch destType {
	case DestinationUser:
		return Payload{Destination: &DestinationPayload{
			Type:     DestinationUser,
			UserUUID: fields["uuid"],
			UserName: fields["name"],
		}}
	case DestinationMeeting:
		return Payload{Destination: &DestinationPayload{
			Type:        DestinationMeeting,
			MeetingUUID: fields["uuid"],
			MeetingName: fields["name"],
		}}
	case DestinationConference:
		return Payload{Destination: &DestinationPayload{
			Type:           DestinationConference,
			ConferenceID:   fields["id"],
			ConferenceName: fields["name"],
		}}
	case DestinationQueue:
		return Payload{Destination: &DestinationPayload{
			Type:      DestinationQueue,
			QueueID:   fields["id"],
			QueueName: fields["name"],
		}}
	case DestinationGroup:
		return Payload{Destination: &DestinationPayload{
			Type:      DestinationGroup,
			GroupID:   fields["id"],
			GroupName: fields["name"],
		}}
	}

	return Payload{}
}

// decodeExtraText unwraps {"extra": "key: value,key: value"} rows. Keys
// are lowercased; values keep embedded spaces but lose surrounding ones.
func decodeExtraText(raw []byte) map[string]string {
	var envelope struct {
		Extra string `json:"extra"`
	}

	if err := json.Unmarshal(raw, &envelope); err != nil || envelope.Extra == "" {
		return nil
	}

	fields := make(map[string]string)

	for _, pair := range strings.Split(envelope.Extra, ",") {
		key, value, found := strings.Cut(pair, ":")
		if !found {
			continue
		}

		fields[strings.ToLower(strings.TrimSpace(key))] = strings.TrimSpace(value)
	}

	return fields
}
