package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nkiryanov/tokenpair/internal/repository"
)

// Both *pgxpool.Pool and pgx.Tx satisfy it
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

type Option func(*Storage)

// Set what ReplaceForUser does for the user without pair
func WithReplaceMode(mode repository.ReplaceMode) Option {
	return func(s *Storage) {
		s.replaceMode = mode
	}
}

type Storage struct {
	db          DBTX
	replaceMode repository.ReplaceMode
}

func NewStorage(db DBTX, opts ...Option) repository.Storage {
	s := &Storage{db: db, replaceMode: repository.ReplaceUpsert}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Storage) User() repository.UserRepo {
	return &UserRepo{DB: s.db}
}

func (s *Storage) Token() repository.TokenRepo {
	return &TokenPairRepo{DB: s.db, Mode: s.replaceMode}
}

func (s *Storage) InTx(ctx context.Context, fn func(repository.Storage) error) (err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("db tx error: %w", err)
	}

	defer func() {
		// Partial writes must not be committed if fn panicked
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}

		switch err {
		case nil:
			err = tx.Commit(ctx)
		default:
			_ = tx.Rollback(ctx)
		}
	}()

	err = fn(&Storage{db: tx, replaceMode: s.replaceMode})

	return err
}
