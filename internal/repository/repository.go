package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/tokenpair/internal/models"
)

// What ReplaceForUser does when the user has no token pair yet
type ReplaceMode string

const (
	// Create the pair if it is absent
	ReplaceUpsert ReplaceMode = "upsert"

	// Fail with apperrors.ErrTokenPairNotFound if it is absent
	ReplaceUpdateOnly ReplaceMode = "update-only"
)

func (m ReplaceMode) Valid() bool {
	return m == ReplaceUpsert || m == ReplaceUpdateOnly
}

// User repository interface
type UserRepo interface {
	// Create user
	// If user with the email exists already has to return apperrors.ErrEmailExists
	CreateUser(ctx context.Context, email string, hashedPassword string, role models.Role) (models.User, error)

	// Get user by it's id or email
	// If user not found must return apperrors.ErrUserNotFound
	GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
}

// Token pair repository interface
// Keeps one current pair per user. Implementations must update a user's row atomically:
// two concurrent Rotate calls with the same presented refresh token must have one winner only
type TokenRepo interface {
	// Store the first pair of the user
	Create(ctx context.Context, pair models.TokenPair) (models.TokenPair, error)

	// Replace the user's pair. Previous refresh token must not be found after the call returns
	// Behavior for the user without a pair depends on ReplaceMode
	ReplaceForUser(ctx context.Context, userID uuid.UUID, pair models.TokenPair) error

	// Return the pair which refresh token is exactly the given value
	// If there is no such pair must return apperrors.ErrTokenPairNotFound
	FindByRefreshToken(ctx context.Context, refresh string) (models.TokenPair, error)

	// Replace the user's pair only if its refresh token is still the presented one
	// If it is not must return apperrors.ErrTokenPairNotFound
	Rotate(ctx context.Context, userID uuid.UUID, presented string, pair models.TokenPair) error

	// Delete pairs with refresh token expired before the time, return count of deleted
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

type Storage interface {
	User() UserRepo
	Token() TokenRepo

	// Run function in transaction
	// Commit if no error returned, rollback otherwise
	InTx(ctx context.Context, fn func(Storage) error) error
}
