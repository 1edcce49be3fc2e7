package model

import "time"

type Grant struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	FileID         string `gorm:"column:file_id;type:varchar(36);not null;uniqueIndex:uk_grant_file_recipient,priority:1"`
	RecipientEmail string `gorm:"column:recipient_email;type:varchar(320);not null;uniqueIndex:uk_grant_file_recipient,priority:2"`
	TokenHash      string `gorm:"column:token_hash;type:varchar(64);uniqueIndex;not null"`

	// Token is the plaintext token, only populated right after creation.
	Token string `gorm:"-"`

	CreatedAt time.Time
}

// TableName returns the database table name.
func (Grant) TableName() string {
	return "share_grant"
}
