package apperrors

import (
	"errors"
)

var (
	ErrEmailExists        = errors.New("email already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrValidation         = errors.New("validation error")

	// Store level: the pair for the user (or with the refresh value) is not there
	// Auth service reports it as ErrInvalidToken
	ErrTokenPairNotFound = errors.New("token pair not found")
)
