package chat

import "errors"

var (
	ErrEmptyMessage  = errors.New("message text cannot be empty")
	ErrNotFound      = errors.New("counterpart not found")
	ErrSendFailure   = errors.New("message could not be delivered")
	ErrNotConnected  = errors.New("transport not connected")
	ErrInvalidFilter = errors.New("invalid roster filter")
)
