package user

import (
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/tokenpair/internal/apperrors"
	"github.com/nkiryanov/tokenpair/internal/models"
	"github.com/nkiryanov/tokenpair/internal/repository"
	"github.com/nkiryanov/tokenpair/internal/repository/postgres"
	"github.com/nkiryanov/tokenpair/internal/testutil"
)

func TestUser(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	// Helper function to create UserService within transaction
	inTx := func(t *testing.T, fn func(s *UserService, storage repository.Storage)) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			storage := postgres.NewStorage(tx)
			fn(NewService(storage.User()), storage)
		})
	}

	t.Run("GetUser", func(t *testing.T) {
		t.Run("get ok", func(t *testing.T) {
			inTx(t, func(s *UserService, storage repository.Storage) {
				created, err := storage.User().CreateUser(t.Context(), "a@x.com", "hash", models.RoleAdmin)
				require.NoError(t, err)

				user, err := s.GetUser(t.Context(), created.ID)

				require.NoError(t, err)
				require.Equal(t, created.ID, user.ID)
				require.Equal(t, "a@x.com", user.Email)
				require.Equal(t, models.RoleAdmin, user.Role)
			})
		})

		t.Run("not found", func(t *testing.T) {
			inTx(t, func(s *UserService, _ repository.Storage) {
				_, err := s.GetUser(t.Context(), uuid.New())

				require.ErrorIs(t, err, apperrors.ErrUserNotFound)
			})
		})
	})
}
