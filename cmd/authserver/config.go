package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/nkiryanov/tokenpair/internal/logger"
	"github.com/nkiryanov/tokenpair/internal/repository"
	"github.com/nkiryanov/tokenpair/internal/service/auth/hasher"
)

const (
	TokenStorePostgres = "postgres"
	TokenStoreRedis    = "redis"
)

const (
	defaultListenAddr      = "localhost:8000"
	defaultLoggingLevel    = logger.LevelInfo
	defaultEnvironment     = logger.EnvProduction
	defaultAccessTTL       = 15 * time.Minute
	defaultRefreshTTL      = 24 * time.Hour
	defaultTokenStore      = TokenStorePostgres
	defaultRedisAddr       = "localhost:6379"
	defaultReplaceMode     = repository.ReplaceUpsert
	defaultPasswordHasher  = hasher.AlgBcrypt
	defaultJanitorInterval = time.Hour
)

type Config struct {
	// Default logging level
	LogLevel string

	// Address on which the auth server will be run
	ListenAddr string

	// Database to connect to
	DatabaseDSN string

	// Secrets to sign access and refresh tokens, must differ
	AccessSecret  string
	RefreshSecret string

	// Token lifetimes
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// Environment (dev, prod)
	Environment string

	// Where token pairs are stored (postgres, redis)
	TokenStore string

	// Redis address, used if token store is redis
	RedisAddr string

	// What to do on sign in if user has no pair (upsert, update-only)
	ReplaceMode string

	// Password hashing algorithm (bcrypt, argon2id)
	PasswordHasher string

	// Report unknown email on sign in as invalid credentials
	ConcealUserNotFound bool

	// How often expired pairs are purged
	JanitorInterval time.Duration
}

func NewConfig() *Config {
	return &Config{
		LogLevel:        defaultLoggingLevel,
		ListenAddr:      defaultListenAddr,
		Environment:     defaultEnvironment,
		AccessTTL:       defaultAccessTTL,
		RefreshTTL:      defaultRefreshTTL,
		TokenStore:      defaultTokenStore,
		RedisAddr:       defaultRedisAddr,
		ReplaceMode:     string(defaultReplaceMode),
		PasswordHasher:  defaultPasswordHasher,
		JanitorInterval: defaultJanitorInterval,
	}
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		return c.LoadEnv(func(key string) string {
			return envMap[key]
		})
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) error {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) error {
		return func(value string) error {
			if value != "" {
				*o = value
			}
			return nil
		}
	}
	setDuration := func(o *time.Duration) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			*o = d
			return nil
		}
	}
	setBool := func(o *bool) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			b, err := strconv.ParseBool(value)
			if err != nil {
				return err
			}
			*o = b
			return nil
		}
	}

	envMap := map[string]func(string) error{
		"RUN_ADDRESS":            setString(&c.ListenAddr),
		"DATABASE_URI":           setString(&c.DatabaseDSN),
		"ACCESS_SECRET":          setString(&c.AccessSecret),
		"REFRESH_SECRET":         setString(&c.RefreshSecret),
		"ACCESS_TTL":             setDuration(&c.AccessTTL),
		"REFRESH_TTL":            setDuration(&c.RefreshTTL),
		"LOG_LEVEL":              setString(&c.LogLevel),
		"ENVIRONMENT":            setString(&c.Environment),
		"TOKEN_STORE":            setString(&c.TokenStore),
		"REDIS_ADDR":             setString(&c.RedisAddr),
		"TOKEN_REPLACE_MODE":     setString(&c.ReplaceMode),
		"PASSWORD_HASHER":        setString(&c.PasswordHasher),
		"CONCEAL_USER_NOT_FOUND": setBool(&c.ConcealUserNotFound),
		"JANITOR_INTERVAL":       setDuration(&c.JanitorInterval),
	}

	for key, parseFn := range envMap {
		if err := parseFn(getenv(key)); err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
	}
	return nil
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("authserver", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string")
	fs.StringVar(&c.AccessSecret, "access-secret", c.AccessSecret, "Secret to sign access tokens")
	fs.StringVar(&c.RefreshSecret, "refresh-secret", c.RefreshSecret, "Secret to sign refresh tokens")
	fs.DurationVar(&c.AccessTTL, "access-ttl", c.AccessTTL, "Access token lifetime")
	fs.DurationVar(&c.RefreshTTL, "refresh-ttl", c.RefreshTTL, "Refresh token lifetime")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")
	fs.StringVar(&c.TokenStore, "token-store", c.TokenStore, "Token pair storage (postgres, redis)")
	fs.StringVar(&c.RedisAddr, "redis", c.RedisAddr, "Redis address")
	fs.StringVar(&c.ReplaceMode, "replace-mode", c.ReplaceMode, "Replace mode on sign in (upsert, update-only)")
	fs.StringVar(&c.PasswordHasher, "hasher", c.PasswordHasher, "Password hasher (bcrypt, argon2id)")
	fs.BoolVar(&c.ConcealUserNotFound, "conceal-user-not-found", c.ConcealUserNotFound, "Report unknown user as invalid credentials")
	fs.DurationVar(&c.JanitorInterval, "janitor-interval", c.JanitorInterval, "How often expired token pairs are purged")

	return fs.Parse(args)
}

// Check options that can't be checked later by components itself
func (c *Config) Validate() error {
	var errs []error

	if c.DatabaseDSN == "" {
		errs = append(errs, errors.New("database DSN is required"))
	}
	if c.AccessSecret == "" || c.RefreshSecret == "" {
		errs = append(errs, errors.New("access and refresh secrets are required"))
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		errs = append(errs, errors.New("token lifetimes must be positive"))
	}
	if c.TokenStore != TokenStorePostgres && c.TokenStore != TokenStoreRedis {
		errs = append(errs, fmt.Errorf("unknown token store %q", c.TokenStore))
	}
	if !repository.ReplaceMode(c.ReplaceMode).Valid() {
		errs = append(errs, fmt.Errorf("unknown replace mode %q", c.ReplaceMode))
	}

	return errors.Join(errs...)
}
