package service

import "errors"

var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrPersistence    = errors.New("persistence failure")
	ErrDeletionFailed = errors.New("storage deletion failed")
	ErrFileNotFound   = errors.New("file not found")
)
