package model

import "errors"

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation error")
	ErrConflict   = errors.New("conflict")
	// ErrNoChange is returned by a ChoreMutator to abort its update.
	ErrNoChange = errors.New("no change")
)
