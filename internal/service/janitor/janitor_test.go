package janitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/tokenpair/internal/models"
	"github.com/nkiryanov/tokenpair/internal/repository/postgres"
	"github.com/nkiryanov/tokenpair/internal/testutil"
)

type deleterMock struct {
	mu      sync.Mutex
	calls   []time.Time
	deleted int64
	err     error
}

func (m *deleterMock) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, before)
	return m.deleted, m.err
}

func (m *deleterMock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func TestJanitor(t *testing.T) {
	t.Parallel()

	t.Run("default interval", func(t *testing.T) {
		j := New(0, &deleterMock{}, nil)

		require.Equal(t, time.Hour, j.interval)
	})

	t.Run("sweep passes current time", func(t *testing.T) {
		now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		m := &deleterMock{deleted: 3}
		j := New(time.Minute, m, nil)
		j.now = func() time.Time { return now }

		deleted := j.Sweep(t.Context())

		require.EqualValues(t, 3, deleted)
		require.Equal(t, []time.Time{now}, m.calls)
	})

	t.Run("sweep error is logged only", func(t *testing.T) {
		j := New(time.Minute, &deleterMock{err: errors.New("db is down")}, nil)

		require.Zero(t, j.Sweep(t.Context()))
	})

	t.Run("run sweeps until stopped", func(t *testing.T) {
		m := &deleterMock{}
		j := New(10*time.Millisecond, m, nil)
		ctx, cancel := context.WithCancel(t.Context())

		stopped := j.Run(ctx)
		require.Eventually(t, func() bool { return m.Calls() >= 2 }, time.Second, 5*time.Millisecond)
		cancel()

		select {
		case <-stopped:
		case <-time.After(time.Second):
			t.Fatal("janitor should stop when context is done")
		}
	})
}

func TestJanitor_Postgres(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
		storage := postgres.NewStorage(tx)
		now := time.Now().Truncate(time.Second)

		newPair := func(email string, refreshExp time.Time) {
			u, err := storage.User().CreateUser(t.Context(), email, "hash", models.RoleUser)
			require.NoError(t, err)
			_, err = storage.Token().Create(t.Context(), models.TokenPair{
				UserID:  u.ID,
				Access:  models.IssuedToken{Value: "access-" + email, ExpiresAt: refreshExp},
				Refresh: models.IssuedToken{Value: "refresh-" + email, ExpiresAt: refreshExp},
			})
			require.NoError(t, err)
		}
		newPair("old@x.com", now.Add(-time.Hour))
		newPair("fresh@x.com", now.Add(time.Hour))

		j := New(time.Minute, storage.Token(), nil)
		j.now = func() time.Time { return now }

		require.EqualValues(t, 1, j.Sweep(t.Context()))

		_, err := storage.Token().FindByRefreshToken(t.Context(), "refresh-fresh@x.com")
		require.NoError(t, err, "not expired pair should stay")
	})
}
