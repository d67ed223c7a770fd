package stats

import "time"

// StatAgent identifies one agent in the statistics schema. Periodic rows
// reference it instead of the live agent table so renames and deletions
// never rewrite history.
type StatAgent struct {
	ID         uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	Name       string `gorm:"column:name;type:varchar(128);not null"`
	TenantUUID string `gorm:"column:tenant_uuid;type:varchar(36);not null;index"`
	AgentID    uint64 `gorm:"column:agent_id;index"`
}

func (StatAgent) TableName() string {
	return "stat_agent"
}

type StatQueue struct {
	ID         uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	Name       string `gorm:"column:name;type:varchar(128);not null"`
	TenantUUID string `gorm:"column:tenant_uuid;type:varchar(36);not null;index"`
	QueueID    uint64 `gorm:"column:queue_id;index"`
}

func (StatQueue) TableName() string {
	return "stat_queue"
}

// AgentPeriodic is one pre-summed slice of agent activity. Durations are
// seconds.
type AgentPeriodic struct {
	ID          uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	StatAgentID uint64    `gorm:"column:stat_agent_id;index;not null"`
	Time        time.Time `gorm:"column:time;type:timestamp;not null;index"`
	LoginTime   int64     `gorm:"column:login_time;not null;default:0"`
	PauseTime   int64     `gorm:"column:pause_time;not null;default:0"`
	WrapupTime  int64     `gorm:"column:wrapup_time;not null;default:0"`
}

func (AgentPeriodic) TableName() string {
	return "stat_agent_periodic"
}

// QueuePeriodic is one pre-summed slice of queue counters.
type QueuePeriodic struct {
	ID             uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	StatQueueID    uint64    `gorm:"column:stat_queue_id;index;not null"`
	Time           time.Time `gorm:"column:time;type:timestamp;not null;index"`
	Total          int64     `gorm:"column:total;not null;default:0"`
	Answered       int64     `gorm:"column:answered;not null;default:0"`
	Abandoned      int64     `gorm:"column:abandoned;not null;default:0"`
	Closed         int64     `gorm:"column:closed;not null;default:0"`
	Full           int64     `gorm:"column:full;not null;default:0"`
	JoinEmpty      int64     `gorm:"column:joinempty;not null;default:0"`
	LeaveEmpty     int64     `gorm:"column:leaveempty;not null;default:0"`
	Timeout        int64     `gorm:"column:timeout;not null;default:0"`
	DivertCARatio  int64     `gorm:"column:divert_ca_ratio;not null;default:0"`
	DivertWaittime int64     `gorm:"column:divert_waittime;not null;default:0"`
}

func (QueuePeriodic) TableName() string {
	return "stat_queue_periodic"
}

// Call outcomes recorded in stat_call_on_queue.
const (
	CallStatusAnswered  = "answered"
	CallStatusAbandoned = "abandoned"
	CallStatusTimeout   = "timeout"
)

// CallOnQueue is one call-level fact used for waiting-time and QoS
// aggregation. Times are seconds.
type CallOnQueue struct {
	ID          uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	CallID      string    `gorm:"column:callid;type:varchar(32);not null"`
	StatQueueID uint64    `gorm:"column:stat_queue_id;index;not null"`
	StatAgentID *uint64   `gorm:"column:stat_agent_id;index"`
	Time        time.Time `gorm:"column:time;type:timestamp;not null;index"`
	RingTime    int64     `gorm:"column:ringtime;not null;default:0"`
	TalkTime    int64     `gorm:"column:talktime;not null;default:0"`
	WaitTime    int64     `gorm:"column:waittime;not null;default:0"`
	Status      string    `gorm:"column:status;type:varchar(16);not null"`
}

func (CallOnQueue) TableName() string {
	return "stat_call_on_queue"
}
