package model

import "time"

// AccessEvent records the first successful access of a recipient.
type AccessEvent struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	FileID         string `gorm:"column:file_id;type:varchar(36);not null;uniqueIndex:uk_access_file_recipient,priority:1"`
	RecipientEmail string `gorm:"column:recipient_email;type:varchar(320);not null;uniqueIndex:uk_access_file_recipient,priority:2"`

	IPAddress string `gorm:"column:ip_address;type:varchar(64)"`
	UserAgent string `gorm:"column:user_agent;type:varchar(512)"`

	CreatedAt time.Time
}

// TableName returns the database table name.
func (AccessEvent) TableName() string {
	return "access_event"
}
