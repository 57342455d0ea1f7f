package repository

import (
	"context"
)

// Storage that keeps users in the base storage and token pairs in the other repo (redis for example)
// Transactions cover the base storage only
type composed struct {
	base   Storage
	tokens TokenRepo
}

func WithTokenRepo(base Storage, tokens TokenRepo) Storage {
	return &composed{base: base, tokens: tokens}
}

func (s *composed) User() UserRepo {
	return s.base.User()
}

func (s *composed) Token() TokenRepo {
	return s.tokens
}

func (s *composed) InTx(ctx context.Context, fn func(Storage) error) error {
	return s.base.InTx(ctx, func(tx Storage) error {
		return fn(WithTokenRepo(tx, s.tokens))
	})
}
