package store

import "errors"

var (
	ErrEventNotFound     = errors.New("event not found")
	ErrQueueNotFound     = errors.New("queue not found")
	ErrCustomerNotFound  = errors.New("customer not found")
	ErrQueueClosed       = errors.New("queue closed")
	ErrQueueNotVisible   = errors.New("queue not visible")
	ErrQueueEmpty        = errors.New("no customers waiting")
	ErrInvalidTransition = errors.New("invalid customer state transition")
	ErrNoContactInfo     = errors.New("no usable contact info")
	ErrEventCompleted    = errors.New("event already completed")
	ErrSessionNotFound   = errors.New("session not found")
	ErrAccessDenied      = errors.New("access denied")
)
