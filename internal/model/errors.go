package model

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation error")
	ErrTerminalStatus    = errors.New("event is in a terminal status")
	ErrInvalidTransition = errors.New("invalid status transition")
)
