package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound     = errors.New("resource not found")
	ErrConflict     = errors.New("resource already exists")
	ErrUnauthorized = errors.New("unauthorized")
	ErrBadRequest   = errors.New("bad request")

	// Login gate errors
	ErrInvalidInput      = errors.New("invalid login input")
	ErrInvalidTransition = errors.New("account status does not allow this transition")
	ErrPasswordIncorrect = errors.New("current password is incorrect")
	ErrSessionInvalid    = errors.New("session is invalid or terminated")
)
