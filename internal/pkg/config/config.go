package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Port     string `env:"PORT,      default=8080"`
	Env      string `env:"ENV,       default=development"`
	LogLevel string `env:"LOG_LEVEL, default=info"`

	JWT       JWTConfig
	Login     LoginConfig
	Mongo     MongoConfig
	Redis     RedisConfig
	Audit     AuditConfig
	Bootstrap BootstrapConfig
}

type JWTConfig struct {
	Secret         string        `env:"JWT_SECRET"`
	SigningMethod  string        `env:"JWT_SIGNING_METHOD,   default=HS256"`
	PrivateKeyFile string        `env:"JWT_PRIVATE_KEY_FILE"`
	Issuer         string        `env:"JWT_ISSUER,           default=auth-api"`
	AccessTTL      time.Duration `env:"JWT_ACCESS_TTL,       default=15m"`
	RefreshTTL     time.Duration `env:"JWT_REFRESH_TTL,      default=168h"`
	ClockSkew      time.Duration `env:"JWT_CLOCK_SKEW,       default=30s"`
}

type LoginConfig struct {
	MaxAttempts int           `env:"LOGIN_MAX_ATTEMPTS, default=5"`
	Window      time.Duration `env:"LOGIN_WINDOW,       default=15m"`
	BcryptCost  int           `env:"BCRYPT_COST,        default=10"`
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database string `env:"MONGO_DB,  default=auth_api"`
}

type RedisConfig struct {
	Addr string `env:"REDIS_ADDR, default=localhost:6379"`
	DB   int    `env:"REDIS_DB,   default=0"`
}

type AuditConfig struct {
	Workers int `env:"AUDIT_WORKERS, default=4"`
}

// BootstrapConfig seeds an administrator on startup when Username is set.
type BootstrapConfig struct {
	Username string `env:"BOOTSTRAP_ADMIN_USERNAME"`
	Email    string `env:"BOOTSTRAP_ADMIN_EMAIL"`
	Password string `env:"BOOTSTRAP_ADMIN_PASSWORD"`
}

// Enabled reports whether an admin seed was configured.
func (b BootstrapConfig) Enabled() bool { return b.Username != "" }

// IsDevelopment reports whether the service runs with developer defaults.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Env, "development")
}

// Load reads configuration from environment variables using go-envconfig.
func Load() *Config {
	cfg, err := Process(context.Background(), envconfig.OsLookuper())
	if err != nil {
		panic(fmt.Sprintf("config: failed to load configuration: %v", err))
	}
	return cfg
}

// Process resolves configuration through l and validates it.
func Process(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: l}); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field requirements envconfig cannot express.
func (c *Config) Validate() error {
	var errs []error

	switch strings.ToUpper(c.JWT.SigningMethod) {
	case "HS256":
		if c.JWT.Secret == "" {
			errs = append(errs, errors.New("JWT_SECRET is required for HS256"))
		}
	case "RS256", "EDDSA":
		if c.JWT.PrivateKeyFile == "" {
			errs = append(errs, fmt.Errorf("JWT_PRIVATE_KEY_FILE is required for %s", c.JWT.SigningMethod))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported JWT_SIGNING_METHOD %q", c.JWT.SigningMethod))
	}

	// token lifetimes are encoded in whole seconds
	if c.JWT.AccessTTL < time.Second || c.JWT.RefreshTTL < time.Second {
		errs = append(errs, errors.New("JWT_ACCESS_TTL and JWT_REFRESH_TTL must be at least 1s"))
	}
	if c.JWT.ClockSkew < 0 {
		errs = append(errs, errors.New("JWT_CLOCK_SKEW must not be negative"))
	}
	if c.Bootstrap.Enabled() && (c.Bootstrap.Email == "" || c.Bootstrap.Password == "") {
		errs = append(errs, errors.New("BOOTSTRAP_ADMIN_EMAIL and BOOTSTRAP_ADMIN_PASSWORD are required with BOOTSTRAP_ADMIN_USERNAME"))
	}

	return errors.Join(errs...)
}
