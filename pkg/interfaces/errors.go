package interfaces

import "errors"

// Common collaborator errors used across components
var (
	ErrMessageNotFound = errors.New("message not found")
	ErrUserNotFound    = errors.New("user not found")
)
