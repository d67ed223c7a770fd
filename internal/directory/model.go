package directory

import (
	"strings"
	"time"
)

// User is a directory user. UserField is the free-text field whose
// comma-separated entries become participant tags.
type User struct {
	UUID       string     `gorm:"column:uuid;type:varchar(36);primaryKey"`
	TenantUUID string     `gorm:"column:tenant_uuid;type:varchar(36);not null;index"`
	Firstname  string     `gorm:"column:firstname;type:varchar(128)"`
	Lastname   string     `gorm:"column:lastname;type:varchar(128)"`
	UserField  string     `gorm:"column:userfield;type:varchar(255)"`
	CreatedAt  *time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (User) TableName() string {
	return "endpoint_user"
}

// Tags splits the free-text user field into its tag list, dropping
// empties.
func (u *User) Tags() []string {
	if u.UserField == "" {
		return nil
	}

	parts := strings.Split(u.UserField, ",")
	tags := make([]string, 0, len(parts))

	for _, part := range parts {
		tag := strings.TrimSpace(part)
		if tag != "" {
			tags = append(tags, tag)
		}
	}

	return tags
}

// Line binds a "protocol/endpoint" channel identity to a user. A line
// resolves for times within [created_at, deleted_at).
type Line struct {
	ID         uint       `gorm:"column:id;primaryKey;autoIncrement"`
	UserUUID   *string    `gorm:"column:user_uuid;type:varchar(36);index"`
	TenantUUID string     `gorm:"column:tenant_uuid;type:varchar(36);not null"`
	Identity   string     `gorm:"column:identity;type:varchar(160);not null;index"`
	Context    string     `gorm:"column:context;type:varchar(80)"`
	Extension  string     `gorm:"column:extension;type:varchar(80)"`
	CreatedAt  time.Time  `gorm:"column:created_at;autoCreateTime"`
	DeletedAt  *time.Time `gorm:"column:deleted_at"`
}

func (Line) TableName() string {
	return "endpoint_line"
}

type Tenant struct {
	UUID string `gorm:"column:uuid;type:varchar(36);primaryKey"`
}

func (Tenant) TableName() string {
	return "tenant"
}

// Resolution is the answer to a line lookup: who owns the channel
// identity and in which tenant/context it lives.
type Resolution struct {
	LineID     uint
	UserUUID   string
	UserName   string
	TenantUUID string
	Context    string
	Extension  string
	Tags       []string
}
