package tokenmanager

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nkiryanov/tokenpair/internal/apperrors"
	"github.com/nkiryanov/tokenpair/internal/models"
)

const (
	defaultAccessTokenTTL  = 15 * time.Minute
	defaultSigningMethod   = "HS256"
	defaultRefreshTokenTTL = 24 * time.Hour
)

type Claims struct {
	jwt.RegisteredClaims
	UserID uuid.UUID        `json:"uid"`
	Role   models.Role      `json:"role"`
	Type   models.TokenType `json:"token_type"`
}

// Token manager with sensible default
type Config struct {
	// Secret keys to sign access and refresh tokens
	// Both required and must differ: token of one type never validates as the other
	AccessSecret  string
	RefreshSecret string

	// JWT MAC (Message Authentication Code) algorithm
	// If not set than default is used
	Alg string

	// Access and refresh token lifetimes
	// If not set than default is used
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// Clock, time.Now if not set
	Now func() time.Time
}

type TokenManager struct {
	keys map[models.TokenType][]byte
	ttls map[models.TokenType]time.Duration

	// JWT MAC (Message Authentication Code) algorithm
	alg jwt.SigningMethod

	now func() time.Time
}

func New(cfg Config) (*TokenManager, error) {
	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" {
		return nil, errors.New("access and refresh secrets must not be empty")
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, errors.New("access and refresh secrets must differ")
	}

	if cfg.Alg == "" {
		cfg.Alg = defaultSigningMethod
	}
	alg := jwt.GetSigningMethod(cfg.Alg)
	if _, ok := alg.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("signing method %q is not supported, use HMAC one", cfg.Alg)
	}

	setDefaultDuration := func(field *time.Duration, def time.Duration) {
		if *field == 0 {
			*field = def
		}
	}
	setDefaultDuration(&cfg.AccessTTL, defaultAccessTokenTTL)
	setDefaultDuration(&cfg.RefreshTTL, defaultRefreshTokenTTL)

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &TokenManager{
		keys: map[models.TokenType][]byte{
			models.TokenTypeAccess:  []byte(cfg.AccessSecret),
			models.TokenTypeRefresh: []byte(cfg.RefreshSecret),
		},
		ttls: map[models.TokenType]time.Duration{
			models.TokenTypeAccess:  cfg.AccessTTL,
			models.TokenTypeRefresh: cfg.RefreshTTL,
		},
		alg: alg,
		now: cfg.Now,
	}, nil
}

// Issue access and refresh tokens for the user
// Each one is signed with the key of its own type
func (m *TokenManager) GeneratePair(userID uuid.UUID, role models.Role) (models.TokenPair, error) {
	now := m.now().Truncate(time.Second)

	access, err := m.sign(userID, role, models.TokenTypeAccess, now)
	if err != nil {
		return models.TokenPair{}, err
	}

	refresh, err := m.sign(userID, role, models.TokenTypeRefresh, now)
	if err != nil {
		return models.TokenPair{}, err
	}

	return models.TokenPair{UserID: userID, Access: access, Refresh: refresh}, nil
}

func (m *TokenManager) sign(userID uuid.UUID, role models.Role, typ models.TokenType, now time.Time) (models.IssuedToken, error) {
	expiresAt := now.Add(m.ttls[typ])

	token := jwt.NewWithClaims(
		m.alg,
		Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				ID:        uuid.NewString(),
				Subject:   userID.String(),
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(expiresAt),
			},
			UserID: userID,
			Role:   role,
			Type:   typ,
		},
	)

	value, err := token.SignedString(m.keys[typ])
	if err != nil {
		return models.IssuedToken{}, fmt.Errorf("error while signing %s token. Err: %w", typ, err)
	}

	return models.IssuedToken{Value: value, ExpiresAt: expiresAt}, nil
}

// Parse and validate token of expected type
// Any failure (malformed, bad signature, expired, other type) is apperrors.ErrInvalidToken
func (m *TokenManager) Verify(value string, expected models.TokenType) (models.TokenClaims, error) {
	key, ok := m.keys[expected]
	if !ok {
		return models.TokenClaims{}, fmt.Errorf("unknown token type %q: %w", expected, apperrors.ErrInvalidToken)
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(
		value,
		claims,
		func(t *jwt.Token) (any, error) {
			return key, nil
		},
		jwt.WithValidMethods([]string{m.alg.Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		return models.TokenClaims{}, fmt.Errorf("error while parsing or validating token. Err: %w", errors.Join(apperrors.ErrInvalidToken, err))
	}

	if claims.Type != expected {
		return models.TokenClaims{}, fmt.Errorf("expected %s token, got %q: %w", expected, claims.Type, apperrors.ErrInvalidToken)
	}

	if claims.UserID == uuid.Nil || claims.IssuedAt == nil {
		return models.TokenClaims{}, fmt.Errorf("token claims incomplete: %w", apperrors.ErrInvalidToken)
	}

	return models.TokenClaims{
		UserID:    claims.UserID,
		Role:      claims.Role,
		Type:      claims.Type,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
