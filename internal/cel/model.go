package cel

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

// CEL is one Channel Event Log row as written by the switch. Rows are
// immutable facts; the only column this service ever touches is
// call_log_id, which marks the row as consumed into a call log.
type CEL struct {
	ID            uint64         `gorm:"column:id;primaryKey;autoIncrement"`
	EventType     string         `gorm:"column:eventtype;type:varchar(30);not null;index"`
	EventTime     time.Time      `gorm:"column:eventtime;type:timestamp;not null"`
	ChannelName   string         `gorm:"column:channame;type:varchar(100);not null"`
	UniqueID      string         `gorm:"column:uniqueid;type:varchar(150);not null"`
	LinkedID      string         `gorm:"column:linkedid;type:varchar(150);not null;index"`
	CallerIDName  string         `gorm:"column:cid_name;type:varchar(80)"`
	CallerIDNum   string         `gorm:"column:cid_num;type:varchar(80)"`
	CallerIDANI   string         `gorm:"column:cid_ani;type:varchar(80)"`
	CallerIDRDNIS string         `gorm:"column:cid_rdnis;type:varchar(80)"`
	CallerIDDNID  string         `gorm:"column:cid_dnid;type:varchar(80)"`
	Exten         string         `gorm:"column:exten;type:varchar(80)"`
	Context       string         `gorm:"column:context;type:varchar(80)"`
	AppName       string         `gorm:"column:appname;type:varchar(80)"`
	AppData       string         `gorm:"column:appdata;type:varchar(512)"`
	Peer          string         `gorm:"column:peer;type:varchar(100)"`
	UserField     string         `gorm:"column:userfield;type:varchar(255)"`
	Extra         datatypes.JSON `gorm:"column:extra;type:jsonb"`
	CallLogID     *uint          `gorm:"column:call_log_id;index"`
}

func (CEL) TableName() string {
	return "cel"
}

const (
	EventChanStart          = "CHAN_START"
	EventChanEnd            = "CHAN_END"
	EventAnswer             = "ANSWER"
	EventHangup             = "HANGUP"
	EventBridgeEnter        = "BRIDGE_ENTER"
	EventBridgeExit         = "BRIDGE_EXIT"
	EventBridgeStart        = "BRIDGE_START" // legacy synonym of BRIDGE_ENTER
	EventBridgeEnd          = "BRIDGE_END"   // legacy synonym of BRIDGE_EXIT
	EventAppStart           = "APP_START"
	EventXivoIncall         = "XIVO_INCALL"
	EventXivoOutcall        = "XIVO_OUTCALL"
	EventXivoFromS          = "XIVO_FROM_S"
	EventXivoUserFwd        = "XIVO_USER_FWD"
	EventUserMissedCall     = "WAZO_USER_MISSED_CALL"
	EventCallLogDestination = "WAZO_CALL_LOG_DESTINATION"
	EventMeetingName        = "WAZO_MEETING_NAME"
	EventConference         = "WAZO_CONFERENCE"
	EventMixMonitorStart    = "MIXMONITOR_START"
	EventMixMonitorStop     = "MIXMONITOR_STOP"
	EventLinkedIDEnd        = "LINKEDID_END"
)

// IsBridgeEnter reports whether the row marks the channel entering a
// bridge, accepting the legacy event name.
func (c *CEL) IsBridgeEnter() bool {
	return c.EventType == EventBridgeEnter || c.EventType == EventBridgeStart
}

// IsChannelEnd reports whether the row terminates its channel.
func (c *CEL) IsChannelEnd() bool {
	return c.EventType == EventHangup || c.EventType == EventChanEnd
}

const (
	localLegOne = ";1"
	localLegTwo = ";2"
)

// IsLocalLeg reports whether name is one leg of a local-channel pair.
// Local channels relay dialplan logic to a real channel and must never
// surface as participants.
func IsLocalLeg(name string) bool {
	return strings.HasSuffix(name, localLegOne) || strings.HasSuffix(name, localLegTwo)
}

// LocalLegCounterpart returns the name of the sibling leg of a local
// channel, and false if name is not a local-channel leg.
func LocalLegCounterpart(name string) (string, bool) {
	switch {
	case strings.HasSuffix(name, localLegOne):
		return strings.TrimSuffix(name, localLegOne) + localLegTwo, true
	case strings.HasSuffix(name, localLegTwo):
		return strings.TrimSuffix(name, localLegTwo) + localLegOne, true
	default:
		return "", false
	}
}

// LineIdentity extracts "protocol/endpoint" from a channel name of the
// form protocol/endpoint-uniqueid[;leg]. The trailing unique id changes
// on every call; the identity part is what the directory knows.
func LineIdentity(name string) string {
	identity := name

	if idx := strings.LastIndex(identity, ";"); idx != -1 {
		identity = identity[:idx]
	}

	if idx := strings.LastIndex(identity, "-"); idx != -1 {
		identity = identity[:idx]
	}

	return identity
}
