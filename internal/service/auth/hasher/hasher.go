package hasher

import (
	"fmt"
	"unicode/utf8"

	"github.com/nkiryanov/tokenpair/internal/apperrors"
)

const (
	AlgBcrypt   = "bcrypt"
	AlgArgon2id = "argon2id"

	DefaultMinLength = 8
)

// Password hasher interface
// Implemented by Bcrypt and Argon2id
type Hasher interface {
	// Generate hash with random salt embedded
	Hash(password string) (string, error)

	// Compare known hashedPassword and user provided password
	// Return apperrors.ErrInvalidCredentials if they mismatch
	Compare(hashedPassword string, password string) error
}

// Create hasher by algorithm name, minLength <= 0 means default
func New(alg string, minLength int) (Hasher, error) {
	if minLength <= 0 {
		minLength = DefaultMinLength
	}

	switch alg {
	case "", AlgBcrypt:
		return Bcrypt{MinLength: minLength}, nil
	case AlgArgon2id:
		return Argon2id{MinLength: minLength}, nil
	default:
		return nil, fmt.Errorf("unknown password hasher %q", alg)
	}
}

func checkLength(password string, minLength int) error {
	if minLength <= 0 {
		minLength = DefaultMinLength
	}
	if utf8.RuneCountInString(password) < minLength {
		return fmt.Errorf("password must be at least %d characters: %w", minLength, apperrors.ErrValidation)
	}
	return nil
}
