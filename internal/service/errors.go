package service

import "errors"

var (
	ErrValidation   = errors.New("validation error")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("invalid username or password")
	ErrInvalidToken = errors.New("invalid token")
	ErrNotFound     = errors.New("not found")
)
