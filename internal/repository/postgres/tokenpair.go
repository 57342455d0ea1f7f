package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nkiryanov/tokenpair/internal/apperrors"
	"github.com/nkiryanov/tokenpair/internal/models"
	"github.com/nkiryanov/tokenpair/internal/repository"
)

// Token pairs in postgres: one row per user (user_id is primary key)
// Replace and rotate are single UPDATE statements, so postgres row lock makes them atomic.
// Concurrent Rotate blocks on the locked row and re-checks refresh_token after the winner commits
type TokenPairRepo struct {
	DB   DBTX
	Mode repository.ReplaceMode
}

const createPair = `-- name: CreatePair
INSERT INTO token_pairs (user_id, access_token, access_expires_at, refresh_token, refresh_expires_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING user_id, access_token, access_expires_at, refresh_token, refresh_expires_at
`

func (r *TokenPairRepo) Create(ctx context.Context, pair models.TokenPair) (models.TokenPair, error) {
	rows, _ := r.DB.Query(ctx, createPair, pairArgs(pair.UserID, pair)...)
	created, err := pgx.CollectOneRow(rows, rowToPair)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return created, fmt.Errorf("token pair for user already exists: %w", err)
		}

		return created, fmt.Errorf("db error: %w", err)
	}

	return created, nil
}

const upsertPair = `-- name: UpsertPair
INSERT INTO token_pairs (user_id, access_token, access_expires_at, refresh_token, refresh_expires_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (user_id) DO UPDATE
SET access_token = EXCLUDED.access_token,
    access_expires_at = EXCLUDED.access_expires_at,
    refresh_token = EXCLUDED.refresh_token,
    refresh_expires_at = EXCLUDED.refresh_expires_at,
    updated_at = now()
`

const updatePair = `-- name: UpdatePair
UPDATE token_pairs
SET access_token = $2,
    access_expires_at = $3,
    refresh_token = $4,
    refresh_expires_at = $5,
    updated_at = now()
WHERE user_id = $1
`

func (r *TokenPairRepo) ReplaceForUser(ctx context.Context, userID uuid.UUID, pair models.TokenPair) error {
	query := upsertPair
	if r.Mode == repository.ReplaceUpdateOnly {
		query = updatePair
	}

	tag, err := r.DB.Exec(ctx, query, pairArgs(userID, pair)...)
	switch {
	case err != nil:
		return fmt.Errorf("db error: %w", err)
	case tag.RowsAffected() == 0:
		return fmt.Errorf("repo error: %w", apperrors.ErrTokenPairNotFound)
	default:
		return nil
	}
}

const getPairByRefresh = `-- name: GetPairByRefresh
SELECT user_id, access_token, access_expires_at, refresh_token, refresh_expires_at
FROM token_pairs
WHERE refresh_token = $1
`

func (r *TokenPairRepo) FindByRefreshToken(ctx context.Context, refresh string) (models.TokenPair, error) {
	rows, _ := r.DB.Query(ctx, getPairByRefresh, refresh)
	pair, err := pgx.CollectOneRow(rows, rowToPair)

	switch {
	case err == nil:
		return pair, nil
	case errors.Is(err, pgx.ErrNoRows):
		return pair, fmt.Errorf("repo error: %w", apperrors.ErrTokenPairNotFound)
	default:
		return pair, fmt.Errorf("db error: %w", err)
	}
}

const rotatePair = `-- name: RotatePair if refresh token is still the presented one
UPDATE token_pairs
SET access_token = $2,
    access_expires_at = $3,
    refresh_token = $4,
    refresh_expires_at = $5,
    updated_at = now()
WHERE user_id = $1 AND refresh_token = $6
`

func (r *TokenPairRepo) Rotate(ctx context.Context, userID uuid.UUID, presented string, pair models.TokenPair) error {
	args := append(pairArgs(userID, pair), presented)

	tag, err := r.DB.Exec(ctx, rotatePair, args...)
	switch {
	case err != nil:
		return fmt.Errorf("db error: %w", err)
	case tag.RowsAffected() == 0:
		return fmt.Errorf("repo error: %w", apperrors.ErrTokenPairNotFound)
	default:
		return nil
	}
}

const deleteExpired = `-- name: DeleteExpired
DELETE FROM token_pairs
WHERE refresh_expires_at < $1
`

func (r *TokenPairRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.DB.Exec(ctx, deleteExpired, before)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return tag.RowsAffected(), nil
}

func pairArgs(userID uuid.UUID, pair models.TokenPair) []any {
	return []any{userID, pair.Access.Value, pair.Access.ExpiresAt, pair.Refresh.Value, pair.Refresh.ExpiresAt}
}

func rowToPair(row pgx.CollectableRow) (models.TokenPair, error) {
	var p models.TokenPair
	err := row.Scan(&p.UserID, &p.Access.Value, &p.Access.ExpiresAt, &p.Refresh.Value, &p.Refresh.ExpiresAt)
	return p, err
}
