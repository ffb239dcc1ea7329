package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix namespaces every variable, e.g. POS_PORT.
const EnvPrefix = "POS"

// devJWTSecret is the JWT_SECRET default; it is refused when ENV=prod.
const devJWTSecret = "dev-secret-change-in-production"

const (
	StorageFile   = "file"
	StorageRedis  = "redis"
	StorageMemory = "memory"
)

type Config struct {
	Port           string        `envconfig:"PORT" default:"8081"`
	Env            string        `envconfig:"ENV" default:"dev"`
	LogLevel       string        `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat      string        `envconfig:"LOG_FORMAT" default:"json"`
	JWTSecret      string        `envconfig:"JWT_SECRET" default:"dev-secret-change-in-production"`
	DatabaseURL    string        `envconfig:"DATABASE_URL"`
	StorageBackend string        `envconfig:"STORAGE_BACKEND" default:"file"`
	DataDir        string        `envconfig:"DATA_DIR" default:"./data"`
	RedisURL       string        `envconfig:"REDIS_URL"`
	RedisKeyPrefix string        `envconfig:"REDIS_KEY_PREFIX" default:"pos"`
	PersistTimeout time.Duration `envconfig:"PERSIST_TIMEOUT" default:"2s"`
	MaxCarts       int           `envconfig:"MAX_CARTS" default:"5"`
	TerminalPINs   string        `envconfig:"TERMINAL_PINS"`
	ManagerPINHash string        `envconfig:"MANAGER_PIN_HASH"`
	AllowedOrigins []string      `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:5173"`
}

// Load reads .env (if present) and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.StorageBackend {
	case StorageFile, StorageMemory:
	case StorageRedis:
		if c.RedisURL == "" {
			return errors.New("POS_REDIS_URL is required for the redis storage backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.StorageBackend)
	}
	if c.IsProd() && (c.JWTSecret == "" || c.JWTSecret == devJWTSecret) {
		return errors.New("POS_JWT_SECRET must be set to a non-default value in prod")
	}
	if c.MaxCarts < 1 {
		return fmt.Errorf("POS_MAX_CARTS must be >= 1, got %d", c.MaxCarts)
	}
	if _, err := c.PINHashes(); err != nil {
		return err
	}
	return nil
}

func (c *Config) IsProd() bool {
	return strings.EqualFold(c.Env, "prod")
}

// CheckoutEnabled reports whether an order database is configured.
func (c *Config) CheckoutEnabled() bool {
	return c.DatabaseURL != ""
}

// PINHashes parses TERMINAL_PINS ("uuid=bcrypthash,uuid=bcrypthash").
func (c *Config) PINHashes() (map[uuid.UUID]string, error) {
	out := make(map[uuid.UUID]string)
	if strings.TrimSpace(c.TerminalPINs) == "" {
		return out, nil
	}
	for _, pair := range strings.Split(c.TerminalPINs, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		id, hash, ok := strings.Cut(pair, "=")
		if !ok || hash == "" {
			return nil, fmt.Errorf("invalid POS_TERMINAL_PINS entry %q", pair)
		}
		tid, err := uuid.Parse(strings.TrimSpace(id))
		if err != nil {
			return nil, fmt.Errorf("invalid terminal id in POS_TERMINAL_PINS: %w", err)
		}
		out[tid] = strings.TrimSpace(hash)
	}
	return out, nil
}
