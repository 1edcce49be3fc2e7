package dto

type CreateShareRequest struct {
	StorageKey      string   `json:"storage_key" binding:"required"`
	RecipientEmails []string `json:"recipient_emails" binding:"required,min=1,dive,required,email"`
}
