package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/nkiryanov/tokenpair/internal/apperrors"
	"github.com/nkiryanov/tokenpair/internal/models"
	"github.com/nkiryanov/tokenpair/internal/repository"
)

const defaultKeyPrefix = "tokenpair"

// Every script touches the user hash and refresh index keys together, so redis runs them atomically.
// Old refresh index key is computed inside the script: single node (or hash tagged) deployment only.
//
// KEYS[1] user hash key
// ARGV[1] refresh index key prefix
// ARGV[2..6] user id, access, access expires (ms), refresh, refresh expires (ms)
const writePairLua = `
local function write_pair()
	redis.call('HSET', KEYS[1], 'access', ARGV[3], 'access_exp', ARGV[4], 'refresh', ARGV[5], 'refresh_exp', ARGV[6])
	redis.call('PEXPIREAT', KEYS[1], ARGV[6])
	redis.call('SET', ARGV[1] .. ARGV[5], ARGV[2])
	redis.call('PEXPIREAT', ARGV[1] .. ARGV[5], ARGV[6])
end
`

var createScript = goredis.NewScript(writePairLua + `
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
write_pair()
return 1
`)

// ARGV[7] "1" if missing pair has to be created
var replaceScript = goredis.NewScript(writePairLua + `
local old = redis.call('HGET', KEYS[1], 'refresh')
if not old then
	if ARGV[7] ~= '1' then
		return 0
	end
else
	redis.call('DEL', ARGV[1] .. old)
end
write_pair()
return 1
`)

// ARGV[7] presented refresh token
var rotateScript = goredis.NewScript(writePairLua + `
local old = redis.call('HGET', KEYS[1], 'refresh')
if old ~= ARGV[7] then
	return 0
end
redis.call('DEL', ARGV[1] .. old)
write_pair()
return 1
`)

// Token pairs in redis
// Keys expire with the refresh token, so expired pairs disappear without DeleteExpired
type TokenPairRepo struct {
	client goredis.UniversalClient
	prefix string
	mode   repository.ReplaceMode
}

func NewTokenPairRepo(client goredis.UniversalClient, mode repository.ReplaceMode) *TokenPairRepo {
	if mode == "" {
		mode = repository.ReplaceUpsert
	}

	return &TokenPairRepo{
		client: client,
		prefix: defaultKeyPrefix,
		mode:   mode,
	}
}

func (r *TokenPairRepo) userKey(userID uuid.UUID) string {
	return r.prefix + ":user:" + userID.String()
}

func (r *TokenPairRepo) refreshPrefix() string {
	return r.prefix + ":refresh:"
}

func (r *TokenPairRepo) run(ctx context.Context, script *goredis.Script, userID uuid.UUID, pair models.TokenPair, extra ...any) (bool, error) {
	args := []any{
		r.refreshPrefix(),
		userID.String(),
		pair.Access.Value,
		pair.Access.ExpiresAt.UnixMilli(),
		pair.Refresh.Value,
		pair.Refresh.ExpiresAt.UnixMilli(),
	}
	args = append(args, extra...)

	n, err := script.Run(ctx, r.client, []string{r.userKey(userID)}, args...).Int()
	if err != nil {
		return false, fmt.Errorf("redis error: %w", err)
	}
	return n == 1, nil
}

func (r *TokenPairRepo) Create(ctx context.Context, pair models.TokenPair) (models.TokenPair, error) {
	ok, err := r.run(ctx, createScript, pair.UserID, pair)
	switch {
	case err != nil:
		return models.TokenPair{}, err
	case !ok:
		return models.TokenPair{}, errors.New("token pair for user already exists")
	default:
		return pair, nil
	}
}

func (r *TokenPairRepo) ReplaceForUser(ctx context.Context, userID uuid.UUID, pair models.TokenPair) error {
	upsert := "0"
	if r.mode == repository.ReplaceUpsert {
		upsert = "1"
	}

	ok, err := r.run(ctx, replaceScript, userID, pair, upsert)
	switch {
	case err != nil:
		return err
	case !ok:
		return fmt.Errorf("repo error: %w", apperrors.ErrTokenPairNotFound)
	default:
		return nil
	}
}

func (r *TokenPairRepo) Rotate(ctx context.Context, userID uuid.UUID, presented string, pair models.TokenPair) error {
	ok, err := r.run(ctx, rotateScript, userID, pair, presented)
	switch {
	case err != nil:
		return err
	case !ok:
		return fmt.Errorf("repo error: %w", apperrors.ErrTokenPairNotFound)
	default:
		return nil
	}
}

func (r *TokenPairRepo) FindByRefreshToken(ctx context.Context, refresh string) (models.TokenPair, error) {
	var pair models.TokenPair

	rawID, err := r.client.Get(ctx, r.refreshPrefix()+refresh).Result()
	switch {
	case errors.Is(err, goredis.Nil):
		return pair, fmt.Errorf("repo error: %w", apperrors.ErrTokenPairNotFound)
	case err != nil:
		return pair, fmt.Errorf("redis error: %w", err)
	}

	userID, err := uuid.Parse(rawID)
	if err != nil {
		return pair, fmt.Errorf("corrupted refresh index %q: %w", rawID, err)
	}

	fields, err := r.client.HGetAll(ctx, r.userKey(userID)).Result()
	if err != nil {
		return pair, fmt.Errorf("redis error: %w", err)
	}

	// Index may outlive the hash for a moment: the hash is the source of truth
	if fields["refresh"] != refresh {
		return pair, fmt.Errorf("repo error: %w", apperrors.ErrTokenPairNotFound)
	}

	accessExp, err := parseMillis(fields["access_exp"])
	if err != nil {
		return pair, err
	}
	refreshExp, err := parseMillis(fields["refresh_exp"])
	if err != nil {
		return pair, err
	}

	return models.TokenPair{
		UserID:  userID,
		Access:  models.IssuedToken{Value: fields["access"], ExpiresAt: accessExp},
		Refresh: models.IssuedToken{Value: fields["refresh"], ExpiresAt: refreshExp},
	}, nil
}

// Redis expires keys by itself
func (r *TokenPairRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

func parseMillis(value string) (time.Time, error) {
	ms, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("corrupted expiration %q: %w", value, err)
	}
	return time.UnixMilli(ms), nil
}
