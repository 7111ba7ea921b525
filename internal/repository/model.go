package repository

import "errors"

var (
	ErrNoOpenSession     = errors.New("no open session for user")
	ErrOpenSessionExists = errors.New("user already has an open session")
	ErrSessionNotFound   = errors.New("session not found")
)
