package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/nkiryanov/tokenpair/internal/apperrors"
	"github.com/nkiryanov/tokenpair/internal/logger"
	"github.com/nkiryanov/tokenpair/internal/models"
	"github.com/nkiryanov/tokenpair/internal/repository"
	"github.com/nkiryanov/tokenpair/internal/service/auth/hasher"
)

// Interface to create or compare user password hashes
type PasswordHasher interface {
	// Generate Hash from password
	Hash(password string) (string, error)

	// Compare known hashedPassword and user provided password
	// Must be protected against timing attacks
	Compare(hashedPassword string, password string) error
}

// Issues and verifies signed tokens
type TokenManager interface {
	GeneratePair(userID uuid.UUID, role models.Role) (models.TokenPair, error)
	Verify(value string, expected models.TokenType) (models.TokenClaims, error)
}

type Config struct {
	// Hasher to use during sign up or sign in, bcrypt if not set
	Hasher PasswordHasher

	// Report unknown email on sign in as apperrors.ErrInvalidCredentials
	// Real reason is logged only
	ConcealUserNotFound bool

	// No-op logger if not set
	Logger logger.Logger
}

// Auth service
type AuthService struct {
	tokens  TokenManager
	storage repository.Storage
	hasher  PasswordHasher
	logger  logger.Logger

	concealUserNotFound bool

	// Compared against when user not found, so the response takes the same time
	dummyHash string
}

func NewService(cfg Config, tokens TokenManager, storage repository.Storage) (*AuthService, error) {
	if tokens == nil || storage == nil {
		return nil, errors.New("token manager and storage must not be nil")
	}

	if cfg.Hasher == nil {
		cfg.Hasher = hasher.Bcrypt{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNoOpLogger()
	}

	s := &AuthService{
		tokens:              tokens,
		storage:             storage,
		hasher:              cfg.Hasher,
		logger:              cfg.Logger.WithGroup("auth"),
		concealUserNotFound: cfg.ConcealUserNotFound,
	}

	if s.concealUserNotFound {
		dummy, err := s.hasher.Hash(uuid.NewString())
		if err != nil {
			return nil, fmt.Errorf("can't prepare dummy hash. Err: %w", err)
		}
		s.dummyHash = dummy
	}

	return s, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register new user and issue its first token pair
// Returns apperrors.ErrEmailExists if email is taken
func (s *AuthService) SignUp(ctx context.Context, email string, password string, role models.Role) (models.AuthResult, error) {
	var result models.AuthResult
	email = normalizeEmail(email)

	if role == "" {
		role = models.RoleUser
	}
	if !role.Valid() {
		return result, fmt.Errorf("unknown role %q: %w", role, apperrors.ErrValidation)
	}

	_, err := s.storage.User().GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		return result, apperrors.ErrEmailExists
	case !errors.Is(err, apperrors.ErrUserNotFound):
		return result, fmt.Errorf("can't check email. Err: %w", err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return result, fmt.Errorf("can't use this as password. Err: %w", err)
	}

	err = s.storage.InTx(ctx, func(st repository.Storage) error {
		user, err := st.User().CreateUser(ctx, email, hash, role)
		if err != nil {
			return err
		}

		pair, err := s.tokens.GeneratePair(user.ID, user.Role)
		if err != nil {
			return fmt.Errorf("token could not generated, sorry. Err: %w", err)
		}

		pair, err = st.Token().Create(ctx, pair)
		if err != nil {
			return fmt.Errorf("can't save token pair. Err: %w", err)
		}

		result = models.AuthResult{User: user, Tokens: pair}
		return nil
	})
	if err != nil {
		return models.AuthResult{}, err
	}

	s.logger.Info("user signed up", "user_id", result.User.ID, "role", result.User.Role)
	return result, nil
}

// Check credentials and issue a new token pair replacing the previous one
// Returns apperrors.ErrUserNotFound or apperrors.ErrInvalidCredentials
// (only the latter if ConcealUserNotFound is set)
func (s *AuthService) SignIn(ctx context.Context, email string, password string) (models.AuthResult, error) {
	var result models.AuthResult
	email = normalizeEmail(email)

	user, err := s.storage.User().GetUserByEmail(ctx, email)
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound) && s.concealUserNotFound:
		_ = s.hasher.Compare(s.dummyHash, password)
		s.logger.Debug("sign in failed", "reason", err.Error())
		return result, apperrors.ErrInvalidCredentials
	case err != nil:
		return result, err
	}

	err = s.hasher.Compare(user.HashedPassword, password)
	switch {
	case errors.Is(err, apperrors.ErrInvalidCredentials):
		s.logger.Debug("sign in failed", "reason", "password mismatch", "user_id", user.ID)
		return result, fmt.Errorf("sign in rejected: %w", apperrors.ErrInvalidCredentials)
	case err != nil:
		return result, fmt.Errorf("can't check password of user %s. Err: %w", user.ID, err)
	}

	pair, err := s.tokens.GeneratePair(user.ID, user.Role)
	if err != nil {
		return result, fmt.Errorf("token could not generated, sorry. Err: %w", err)
	}

	if err := s.storage.Token().ReplaceForUser(ctx, user.ID, pair); err != nil {
		return result, fmt.Errorf("can't replace token pair. Err: %w", err)
	}

	s.logger.Info("user signed in", "user_id", user.ID)
	return models.AuthResult{User: user, Tokens: pair}, nil
}

// Exchange the current refresh token for a new pair. Steps go in this order only:
// verify signature, expiry and type; find the token in storage; load the user; rotate.
// Rotation succeeds only if the stored refresh token is still the presented one,
// so of two concurrent exchanges one fails with apperrors.ErrInvalidToken
func (s *AuthService) RefreshTokens(ctx context.Context, refresh string) (models.TokenPair, error) {
	claims, err := s.tokens.Verify(refresh, models.TokenTypeRefresh)
	if err != nil {
		return models.TokenPair{}, err
	}

	stored, err := s.storage.Token().FindByRefreshToken(ctx, refresh)
	switch {
	case errors.Is(err, apperrors.ErrTokenPairNotFound):
		s.logger.Debug("refresh rejected", "reason", "token is not current", "user_id", claims.UserID)
		return models.TokenPair{}, fmt.Errorf("refresh token is not current: %w", apperrors.ErrInvalidToken)
	case err != nil:
		return models.TokenPair{}, fmt.Errorf("can't find token pair. Err: %w", err)
	case stored.UserID != claims.UserID:
		return models.TokenPair{}, fmt.Errorf("refresh token stored for other user: %w", apperrors.ErrInvalidToken)
	}

	user, err := s.storage.User().GetUserByID(ctx, claims.UserID)
	if err != nil {
		return models.TokenPair{}, err
	}

	pair, err := s.tokens.GeneratePair(user.ID, user.Role)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("token could not generated, sorry. Err: %w", err)
	}

	err = s.storage.Token().Rotate(ctx, user.ID, refresh, pair)
	switch {
	case errors.Is(err, apperrors.ErrTokenPairNotFound):
		s.logger.Warn("refresh rejected", "reason", "token rotated concurrently", "user_id", user.ID)
		return models.TokenPair{}, fmt.Errorf("refresh token already used: %w", apperrors.ErrInvalidToken)
	case err != nil:
		return models.TokenPair{}, fmt.Errorf("can't rotate token pair. Err: %w", err)
	}

	return pair, nil
}

// Return user the access token is issued for
// Access token validity is signature and expiry only, storage is not consulted for it
func (s *AuthService) Authenticate(ctx context.Context, access string) (models.User, error) {
	claims, err := s.tokens.Verify(access, models.TokenTypeAccess)
	if err != nil {
		return models.User{}, err
	}

	user, err := s.storage.User().GetUserByID(ctx, claims.UserID)
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		return models.User{}, fmt.Errorf("token issued for unknown user: %w", apperrors.ErrInvalidToken)
	case err != nil:
		return models.User{}, fmt.Errorf("can't load user. Err: %w", err)
	}

	return user, nil
}
