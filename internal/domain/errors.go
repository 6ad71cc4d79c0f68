package domain

import "errors"

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
	ErrSessionExists   = errors.New("session already exists")
	ErrFileNotFound    = errors.New("file not found")
	ErrValidation      = errors.New("validation failed")
	ErrUpstream        = errors.New("upstream failure")
)
