package auth

import (
	"context"
	"errors"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/tokenpair/internal/apperrors"
	"github.com/nkiryanov/tokenpair/internal/models"
	"github.com/nkiryanov/tokenpair/internal/repository"
)

// In-memory storage to check what service writes
// Every successful write increments mutations
type memStorage struct {
	mu        sync.Mutex
	users     map[uuid.UUID]models.User
	pairs     map[uuid.UUID]models.TokenPair
	mutations int
}

func newMemStorage() *memStorage {
	return &memStorage{
		users: make(map[uuid.UUID]models.User),
		pairs: make(map[uuid.UUID]models.TokenPair),
	}
}

func (s *memStorage) User() repository.UserRepo   { return memUsers{s} }
func (s *memStorage) Token() repository.TokenRepo { return memTokens{s} }

func (s *memStorage) Mutations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mutations
}

func (s *memStorage) Pair(userID uuid.UUID) (models.TokenPair, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pairs[userID]
	return p, ok
}

// Restore state if fn fails
func (s *memStorage) InTx(ctx context.Context, fn func(repository.Storage) error) error {
	s.mu.Lock()
	users, pairs, mutations := maps.Clone(s.users), maps.Clone(s.pairs), s.mutations
	s.mu.Unlock()

	err := fn(s)
	if err != nil {
		s.mu.Lock()
		s.users, s.pairs, s.mutations = users, pairs, mutations
		s.mu.Unlock()
	}
	return err
}

type memUsers struct{ s *memStorage }

func (r memUsers) CreateUser(ctx context.Context, email string, hashedPassword string, role models.Role) (models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, u := range r.s.users {
		if u.Email == email {
			return models.User{}, apperrors.ErrEmailExists
		}
	}

	u := models.User{
		ID:             uuid.New(),
		CreatedAt:      time.Now(),
		Email:          email,
		HashedPassword: hashedPassword,
		Role:           role,
	}
	r.s.users[u.ID] = u
	r.s.mutations++
	return u, nil
}

func (r memUsers) GetUserByID(ctx context.Context, id uuid.UUID) (models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[id]
	if !ok {
		return models.User{}, apperrors.ErrUserNotFound
	}
	return u, nil
}

func (r memUsers) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, u := range r.s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return models.User{}, apperrors.ErrUserNotFound
}

type memTokens struct{ s *memStorage }

func (r memTokens) Create(ctx context.Context, pair models.TokenPair) (models.TokenPair, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.pairs[pair.UserID]; ok {
		return models.TokenPair{}, errors.New("token pair already exists")
	}
	r.s.pairs[pair.UserID] = pair
	r.s.mutations++
	return pair, nil
}

func (r memTokens) ReplaceForUser(ctx context.Context, userID uuid.UUID, pair models.TokenPair) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	pair.UserID = userID
	r.s.pairs[userID] = pair
	r.s.mutations++
	return nil
}

func (r memTokens) FindByRefreshToken(ctx context.Context, refresh string) (models.TokenPair, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, p := range r.s.pairs {
		if p.Refresh.Value == refresh {
			return p, nil
		}
	}
	return models.TokenPair{}, apperrors.ErrTokenPairNotFound
}

func (r memTokens) Rotate(ctx context.Context, userID uuid.UUID, presented string, pair models.TokenPair) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	current, ok := r.s.pairs[userID]
	if !ok || current.Refresh.Value != presented {
		return apperrors.ErrTokenPairNotFound
	}

	pair.UserID = userID
	r.s.pairs[userID] = pair
	r.s.mutations++
	return nil
}

func (r memTokens) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for id, p := range r.s.pairs {
		if p.Refresh.ExpiresAt.Before(before) {
			delete(r.s.pairs, id)
			n++
		}
	}
	r.s.mutations += int(n)
	return n, nil
}

// Storage whose user lookups by id fail as if database is down
type brokenUsersStorage struct {
	*memStorage
	err error
}

func (s *brokenUsersStorage) User() repository.UserRepo {
	return brokenUsers{memUsers: memUsers{s.memStorage}, err: s.err}
}

type brokenUsers struct {
	memUsers
	err error
}

func (r brokenUsers) GetUserByID(ctx context.Context, id uuid.UUID) (models.User, error) {
	return models.User{}, r.err
}
