package models

import (
	"time"

	"github.com/google/uuid"
)

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

type IssuedToken struct {
	Value     string
	ExpiresAt time.Time
}

// Token pair issued by TokenManager
// Storage keeps exactly one (current) pair per user
type TokenPair struct {
	UserID  uuid.UUID
	Access  IssuedToken
	Refresh IssuedToken
}

// Decoded payload of a verified token
type TokenClaims struct {
	UserID    uuid.UUID
	Role      Role
	Type      TokenType
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Returned on sign up and sign in
type AuthResult struct {
	User   User
	Tokens TokenPair
}
