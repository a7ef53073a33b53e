package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound           = errors.New("entity not found")
	ErrVersionConflict    = errors.New("subject version conflict")
	ErrAlreadyAssociated  = errors.New("already associated")
	ErrNotAssociated      = errors.New("not associated")
	ErrSubjectClosed      = errors.New("subject closed")
	ErrDuplicateID        = errors.New("duplicate id")
	ErrMissingConnection  = errors.New("missing mongo uri")
	ErrPersistenceFailure = errors.New("persistence failure")
)
