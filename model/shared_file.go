package model

import "time"

const (
	FileStateActive   = "active"
	FileStateRetiring = "retiring"
	FileStateRetired  = "retired"
)

type SharedFile struct {
	ID string `gorm:"primaryKey;type:varchar(36)" json:"id"`

	StorageKey string `gorm:"column:storage_key;type:varchar(1024);not null" json:"storage_key"`
	OwnerID    uint64 `gorm:"column:owner_id;index;not null" json:"owner_id"`

	State         string `gorm:"column:state;type:varchar(16);index;not null" json:"state"` // active / retiring / retired
	GrantCount    int    `gorm:"column:grant_count;not null" json:"grant_count"`
	AccessedCount int    `gorm:"column:accessed_count;not null;default:0" json:"accessed_count"`

	DeleteAttempts  int        `gorm:"column:delete_attempts;default:0" json:"delete_attempts"`
	LastDeleteError string     `gorm:"column:last_delete_error;type:text" json:"last_delete_error"`
	NextRetryAt     *time.Time `gorm:"column:next_retry_at" json:"next_retry_at"`
	LeaseUntil      *time.Time `gorm:"column:lease_until" json:"-"`
	RetiredAt       *time.Time `gorm:"column:retired_at" json:"retired_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name.
func (SharedFile) TableName() string {
	return "shared_file"
}

// IsComplete reports whether every grant has been consumed.
func (f *SharedFile) IsComplete() bool {
	return f.AccessedCount >= f.GrantCount
}
