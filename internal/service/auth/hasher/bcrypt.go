package hasher

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/nkiryanov/tokenpair/internal/apperrors"
)

// Bcrypt password hasher, the default one
// Password is sha256 summed first cause bcrypt ignores everything after 72 bytes
type Bcrypt struct {
	MinLength int
	Cost      int
}

func (h Bcrypt) Hash(password string) (string, error) {
	if err := checkLength(password, h.MinLength); err != nil {
		return "", err
	}

	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}

	sum := sha256.Sum256([]byte(password))
	hash, err := bcrypt.GenerateFromPassword(sum[:], cost)
	if err != nil {
		return "", fmt.Errorf("bcrypt error: %w", err)
	}
	return string(hash), nil
}

func (h Bcrypt) Compare(hashedPassword string, password string) error {
	sum := sha256.Sum256([]byte(password))
	err := bcrypt.CompareHashAndPassword([]byte(hashedPassword), sum[:])

	switch {
	case err == nil:
		return nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return apperrors.ErrInvalidCredentials
	default:
		// Stored hash is corrupted, server side problem
		return fmt.Errorf("bcrypt error: %w", err)
	}
}
