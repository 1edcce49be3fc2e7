package dto

import "time"

type NotificationFailure struct {
	Recipient string `json:"recipient"`
	Error     string `json:"error"`
}

type CreateShareResponse struct {
	FileID               string                `json:"file_id"`
	StorageKey           string                `json:"storage_key"`
	Recipients           []string              `json:"recipients"`
	NotificationFailures []NotificationFailure `json:"notification_failures"`
}

type RecipientStatus struct {
	Email      string     `json:"email"`
	Accessed   bool       `json:"accessed"`
	AccessedAt *time.Time `json:"accessed_at,omitempty"`
}

type ShareStatusResponse struct {
	FileID         string            `json:"file_id"`
	StorageKey     string            `json:"storage_key"`
	State          string            `json:"state"`
	GrantCount     int               `json:"grant_count"`
	AccessedCount  int               `json:"accessed_count"`
	DeleteAttempts int               `json:"delete_attempts"`
	RetiredAt      *time.Time        `json:"retired_at,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	Recipients     []RecipientStatus `json:"recipients"`
}
