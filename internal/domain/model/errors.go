package model

import "errors"

// Sentinel errors for domain model validation.
var (
	ErrInvalidJob  = errors.New("invalid job")
	ErrUnknownKind = errors.New("unknown job kind")
)
