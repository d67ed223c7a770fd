package calllog

import (
	"time"

	"gorm.io/datatypes"
)

const (
	DirectionInternal = "internal"
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

const (
	RoleSource      = "source"
	RoleDestination = "destination"
)

// CallLog is the reconstructed call record built from exactly one
// correlation key's CEL set. date_answer stays null when the call was
// never bridged; date <= date_answer <= date_end whenever all are set.
type CallLog struct {
	ID         uint       `gorm:"column:id;primaryKey;autoIncrement"`
	UUID       string     `gorm:"column:uuid;type:varchar(36);uniqueIndex;not null"`
	TenantUUID string     `gorm:"column:tenant_uuid;type:varchar(36);index"`
	Date       time.Time  `gorm:"column:date;type:timestamp;not null;index"`
	DateAnswer *time.Time `gorm:"column:date_answer;type:timestamp"`
	DateEnd    *time.Time `gorm:"column:date_end;type:timestamp"`
	Direction  string     `gorm:"column:direction;type:varchar(10);not null;default:'internal'"`

	SourceName            string  `gorm:"column:source_name;type:varchar(255)"`
	SourceExten           string  `gorm:"column:source_exten;type:varchar(255)"`
	SourceInternalExten   string  `gorm:"column:source_internal_exten;type:varchar(255)"`
	SourceInternalContext string  `gorm:"column:source_internal_context;type:varchar(255)"`
	SourceInternalName    string  `gorm:"column:source_internal_name;type:varchar(255)"`
	SourceLineIdentity    string  `gorm:"column:source_line_identity;type:varchar(255)"`
	SourceUserUUID        *string `gorm:"column:source_user_uuid;type:varchar(36)"`

	RequestedName            string `gorm:"column:requested_name;type:varchar(255)"`
	RequestedExten           string `gorm:"column:requested_exten;type:varchar(255)"`
	RequestedContext         string `gorm:"column:requested_context;type:varchar(255)"`
	RequestedInternalExten   string `gorm:"column:requested_internal_exten;type:varchar(255)"`
	RequestedInternalContext string `gorm:"column:requested_internal_context;type:varchar(255)"`

	DestinationName            string  `gorm:"column:destination_name;type:varchar(255)"`
	DestinationExten           string  `gorm:"column:destination_exten;type:varchar(255)"`
	DestinationInternalExten   string  `gorm:"column:destination_internal_exten;type:varchar(255)"`
	DestinationInternalContext string  `gorm:"column:destination_internal_context;type:varchar(255)"`
	DestinationLineIdentity    string  `gorm:"column:destination_line_identity;type:varchar(255)"`
	DestinationUserUUID        *string `gorm:"column:destination_user_uuid;type:varchar(36)"`

	UserField      string `gorm:"column:user_field;type:varchar(255)"`
	ConversationID string `gorm:"column:conversation_id;type:varchar(150);index"`

	Participants []Participant `gorm:"foreignKey:CallLogID"`
	Destinations []Destination `gorm:"foreignKey:CallLogID"`
	Recordings   []Recording   `gorm:"foreignKey:CallLogID"`
}

func (CallLog) TableName() string {
	return "call_log"
}

// Participant links a directory user to a call log. At most one source
// participant is authoritative; a destination participant always has a
// backing channel.
type Participant struct {
	ID        uint           `gorm:"column:id;primaryKey;autoIncrement"`
	CallLogID uint           `gorm:"column:call_log_id;index;not null"`
	UserUUID  string         `gorm:"column:user_uuid;type:varchar(36);not null"`
	LineID    uint           `gorm:"column:line_id"`
	Role      string         `gorm:"column:role;type:varchar(11);not null"`
	Answered  bool           `gorm:"column:answered;not null;default:false"`
	Requested bool           `gorm:"column:requested;not null;default:false"`
	Tags      datatypes.JSON `gorm:"column:tags;type:jsonb"`
}

func (Participant) TableName() string {
	return "call_log_participant"
}

// Destination is one key/value detail row describing a non-user
// destination; the row with key "type" appears at most once per call log.
type Destination struct {
	ID        uint   `gorm:"column:id;primaryKey;autoIncrement"`
	CallLogID uint   `gorm:"column:call_log_id;index;not null"`
	Key       string `gorm:"column:destination_details_key;type:varchar(50);not null"`
	Value     string `gorm:"column:destination_details_value;type:varchar(255);not null"`
}

func (Destination) TableName() string {
	return "call_log_destination"
}

// Recording is one recorded segment of the call. Path is nulled once the
// media object is gone from the store.
type Recording struct {
	ID           uint      `gorm:"column:id;primaryKey;autoIncrement"`
	UUID         string    `gorm:"column:uuid;type:varchar(36);uniqueIndex;not null"`
	CallLogID    uint      `gorm:"column:call_log_id;index;not null"`
	MixMonitorID string    `gorm:"column:mixmonitor_id;type:varchar(64);not null"`
	StartTime    time.Time `gorm:"column:start_time;type:timestamp;not null"`
	EndTime      time.Time `gorm:"column:end_time;type:timestamp;not null"`
	Path         *string   `gorm:"column:path;type:varchar(255)"`
}

func (Recording) TableName() string {
	return "recording"
}
