package hasher

import (
	"fmt"

	"github.com/alexedwards/argon2id"

	"github.com/nkiryanov/tokenpair/internal/apperrors"
)

// Argon2id password hasher
// Hash is stored in PHC string format, params are read back from it on compare
type Argon2id struct {
	MinLength int

	// nil means argon2id.DefaultParams
	Params *argon2id.Params
}

func (h Argon2id) Hash(password string) (string, error) {
	if err := checkLength(password, h.MinLength); err != nil {
		return "", err
	}

	params := h.Params
	if params == nil {
		params = argon2id.DefaultParams
	}

	hash, err := argon2id.CreateHash(password, params)
	if err != nil {
		return "", fmt.Errorf("argon2id error: %w", err)
	}
	return hash, nil
}

func (h Argon2id) Compare(hashedPassword string, password string) error {
	match, err := argon2id.ComparePasswordAndHash(password, hashedPassword)

	switch {
	case err != nil:
		// Stored hash is corrupted, server side problem
		return fmt.Errorf("argon2id error: %w", err)
	case !match:
		return apperrors.ErrInvalidCredentials
	default:
		return nil
	}
}
