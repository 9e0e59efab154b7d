package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidPrompt     = errors.New("invalid prompt")
	ErrUserLimitExceeded = errors.New("user generation limit reached")
	ErrQueueFull         = errors.New("generation queue is full")
)
