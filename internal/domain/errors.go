// Package domain contains entities without transport logic, plus the error taxonomy.
package domain

import "errors"

var (
	ErrRoomNotFound = errors.New("room not found")
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrRoomFull     = errors.New("room is full")
	ErrRoomClosed   = errors.New("room is closed")
	ErrUsageLimit   = errors.New("usage limit reached")
	ErrValidation   = errors.New("validation error")
	ErrUnauthorized = errors.New("unauthorized")
)
