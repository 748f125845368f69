package model

import "errors"

var (
	// ErrNotFound is returned when a resource is not found.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when a resource already exists.
	ErrAlreadyExists = errors.New("already exists")
	// ErrNotValid is returned when a resource is not valid.
	ErrNotValid = errors.New("not valid")
	// ErrNotAuthorized is returned when the caller is not allowed to act on a resource.
	ErrNotAuthorized = errors.New("not authorized")
	// ErrConflict is returned when a previous attempt left a resource in an
	// indeterminate state and the operation can't be replayed safely.
	ErrConflict = errors.New("conflict")
)
