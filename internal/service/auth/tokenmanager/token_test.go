package tokenmanager

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/tokenpair/internal/apperrors"
	"github.com/nkiryanov/tokenpair/internal/models"
)

func mustParseTime(value string) time.Time {
	dt, err := time.Parse("2006-01-02 15:04:05Z07:00", value)
	if err != nil {
		panic(err)
	}
	return dt
}

// Clock that may be moved forward in tests
type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time { return c.now }

func (c *clock) Add(d time.Duration) { c.now = c.now.Add(d) }

func Test_TokenManager(t *testing.T) {
	t.Parallel()

	userID := uuid.New()

	newManager := func(t *testing.T, c *clock) *TokenManager {
		m, err := New(Config{
			AccessSecret:  "access-secret",
			RefreshSecret: "refresh-secret",
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    24 * time.Hour,
			Now:           c.Now,
		})
		require.NoError(t, err, "token manager should be created without errors")
		return m
	}

	t.Run("new defaults", func(t *testing.T) {
		m, err := New(Config{AccessSecret: "a", RefreshSecret: "r"})
		require.NoError(t, err, "token manager should be created without errors")

		require.Equal(t, []byte("a"), m.keys[models.TokenTypeAccess])
		require.Equal(t, []byte("r"), m.keys[models.TokenTypeRefresh])
		require.Equal(t, defaultAccessTokenTTL, m.ttls[models.TokenTypeAccess], "default access token TTL should be set")
		require.Equal(t, defaultRefreshTokenTTL, m.ttls[models.TokenTypeRefresh], "default refresh token TTL")
		require.Equal(t, defaultSigningMethod, m.alg.Alg(), "default signing method should be set")
		require.NotNil(t, m.now)
	})

	t.Run("new fails", func(t *testing.T) {
		tests := []struct {
			name string
			cfg  Config
		}{
			{"empty access secret", Config{RefreshSecret: "r"}},
			{"empty refresh secret", Config{AccessSecret: "a"}},
			{"same secrets", Config{AccessSecret: "same", RefreshSecret: "same"}},
			{"not hmac alg", Config{AccessSecret: "a", RefreshSecret: "r", Alg: "RS256"}},
			{"unknown alg", Config{AccessSecret: "a", RefreshSecret: "r", Alg: "nope"}},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := New(tt.cfg)
				require.Error(t, err)
			})
		}
	})

	t.Run("GeneratePair", func(t *testing.T) {
		t.Run("return token pair", func(t *testing.T) {
			c := &clock{now: mustParseTime("2024-01-01 19:00:01Z")}
			m := newManager(t, c)

			pair, err := m.GeneratePair(userID, models.RoleUser)

			require.NoError(t, err)
			assert.Equal(t, userID, pair.UserID)
			assert.NotEmpty(t, pair.Access.Value, "access token should not be empty")
			assert.Equal(t, c.now.Add(15*time.Minute), pair.Access.ExpiresAt)
			assert.NotEmpty(t, pair.Refresh.Value, "refresh token should not be empty")
			assert.Equal(t, c.now.Add(24*time.Hour), pair.Refresh.ExpiresAt)
		})

		t.Run("access claims", func(t *testing.T) {
			m, err := New(Config{AccessSecret: "access-secret", RefreshSecret: "refresh-secret"})
			require.NoError(t, err)

			pair, err := m.GeneratePair(userID, models.RoleAdmin)
			require.NoError(t, err)

			token, err := jwt.ParseWithClaims(pair.Access.Value, &Claims{}, func(token *jwt.Token) (any, error) {
				return []byte("access-secret"), nil
			})
			require.NoError(t, err)
			require.True(t, token.Valid, "access token should be valid")

			claims, ok := token.Claims.(*Claims)
			require.True(t, ok, "claims should be of type Claims")
			assert.Equal(t, userID, claims.UserID, "user ID in token should match")
			assert.Equal(t, models.RoleAdmin, claims.Role)
			assert.Equal(t, models.TokenTypeAccess, claims.Type)
			assert.NotEmpty(t, claims.ID, "token has to has jti")
			assert.WithinDuration(t, time.Now(), claims.IssuedAt.Time, time.Second, "issued at should be close to now")
			assert.WithinDuration(t, pair.Access.ExpiresAt, claims.ExpiresAt.Time, 0, "access expires at should match token pair")
		})

		t.Run("generate different tokens", func(t *testing.T) {
			c := &clock{now: mustParseTime("2024-01-01 19:00:01Z")}
			m := newManager(t, c)

			pair1, err := m.GeneratePair(userID, models.RoleUser)
			require.NoError(t, err)
			pair2, err := m.GeneratePair(userID, models.RoleUser)
			require.NoError(t, err)

			assert.NotEqual(t, pair1.Refresh.Value, pair2.Refresh.Value, "refresh tokens should be different even issued at same second")
			assert.NotEqual(t, pair1.Access.Value, pair2.Access.Value, "access tokens should be different")
		})
	})

	t.Run("Verify", func(t *testing.T) {
		t.Run("valid tokens", func(t *testing.T) {
			c := &clock{now: time.Now()}
			m := newManager(t, c)
			pair, err := m.GeneratePair(userID, models.RoleUser)
			require.NoError(t, err)

			access, err := m.Verify(pair.Access.Value, models.TokenTypeAccess)
			require.NoError(t, err, "valid token should be parsed without errors")
			require.Equal(t, userID, access.UserID)
			require.Equal(t, models.RoleUser, access.Role)
			require.Equal(t, models.TokenTypeAccess, access.Type)
			require.WithinDuration(t, pair.Access.ExpiresAt, access.ExpiresAt, 0)

			refresh, err := m.Verify(pair.Refresh.Value, models.TokenTypeRefresh)
			require.NoError(t, err)
			require.Equal(t, models.TokenTypeRefresh, refresh.Type)
			require.WithinDuration(t, pair.Refresh.ExpiresAt, refresh.ExpiresAt, 0)
		})

		t.Run("type confusion", func(t *testing.T) {
			c := &clock{now: time.Now()}
			m := newManager(t, c)
			pair, err := m.GeneratePair(userID, models.RoleUser)
			require.NoError(t, err)

			_, err = m.Verify(pair.Access.Value, models.TokenTypeRefresh)
			require.ErrorIs(t, err, apperrors.ErrInvalidToken, "access token must not pass as refresh")

			_, err = m.Verify(pair.Refresh.Value, models.TokenTypeAccess)
			require.ErrorIs(t, err, apperrors.ErrInvalidToken, "refresh token must not pass as access")
		})

		t.Run("type claim checked even with right key", func(t *testing.T) {
			c := &clock{now: time.Now()}
			m := newManager(t, c)

			// Token signed with access key but claims it is refresh one
			access, err := m.sign(userID, models.RoleUser, models.TokenTypeRefresh, c.now.Truncate(time.Second))
			require.NoError(t, err)
			m.keys[models.TokenTypeAccess] = m.keys[models.TokenTypeRefresh]

			_, err = m.Verify(access.Value, models.TokenTypeAccess)
			require.ErrorIs(t, err, apperrors.ErrInvalidToken)
		})

		t.Run("not a token", func(t *testing.T) {
			m := newManager(t, &clock{now: time.Now()})

			_, err := m.Verify("invalid token", models.TokenTypeAccess)
			require.ErrorIs(t, err, apperrors.ErrInvalidToken, "parsing even not a token should return an error")
		})

		t.Run("unknown type", func(t *testing.T) {
			m := newManager(t, &clock{now: time.Now()})
			pair, err := m.GeneratePair(userID, models.RoleUser)
			require.NoError(t, err)

			_, err = m.Verify(pair.Access.Value, models.TokenType("id"))
			require.ErrorIs(t, err, apperrors.ErrInvalidToken)
		})

		t.Run("expired token", func(t *testing.T) {
			c := &clock{now: time.Now()}
			m := newManager(t, c)
			pair, err := m.GeneratePair(userID, models.RoleUser)
			require.NoError(t, err)

			c.Add(15 * time.Minute)
			_, err = m.Verify(pair.Access.Value, models.TokenTypeAccess)
			require.ErrorIs(t, err, apperrors.ErrInvalidToken, "access token has to become expired")

			_, err = m.Verify(pair.Refresh.Value, models.TokenTypeRefresh)
			require.NoError(t, err, "refresh token lives longer")

			c.Add(24 * time.Hour)
			_, err = m.Verify(pair.Refresh.Value, models.TokenTypeRefresh)
			require.ErrorIs(t, err, apperrors.ErrInvalidToken, "refresh token has to become expired")
		})

		t.Run("signed with other key", func(t *testing.T) {
			c := &clock{now: time.Now()}
			m := newManager(t, c)
			other, err := New(Config{AccessSecret: "other-access", RefreshSecret: "other-refresh", Now: c.Now})
			require.NoError(t, err)
			pair, err := other.GeneratePair(userID, models.RoleUser)
			require.NoError(t, err)

			_, err = m.Verify(pair.Access.Value, models.TokenTypeAccess)
			require.ErrorIs(t, err, apperrors.ErrInvalidToken)
		})

		t.Run("not signed token", func(t *testing.T) {
			c := &clock{now: time.Now()}
			m := newManager(t, c)

			// Create valid but unsigned token
			token := jwt.NewWithClaims(
				jwt.SigningMethodNone,
				Claims{
					RegisteredClaims: jwt.RegisteredClaims{
						ID:        uuid.NewString(),
						IssuedAt:  jwt.NewNumericDate(c.now),
						ExpiresAt: jwt.NewNumericDate(c.now.Add(15 * time.Minute)),
					},
					UserID: userID,
					Role:   models.RoleAdmin,
					Type:   models.TokenTypeAccess,
				},
			)
			access, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
			require.NoError(t, err)

			_, err = m.Verify(access, models.TokenTypeAccess)
			require.ErrorIs(t, err, apperrors.ErrInvalidToken, "Valid token with empty alg must fail")
		})
	})
}
