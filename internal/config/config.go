package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig `env:",prefix=SERVER_"`

	// Database configuration
	Database DatabaseConfig `env:",prefix=DB_"`

	// Storage backend selection
	Store StoreConfig `env:",prefix=STORE_"`

	// Redemption engine configuration
	Redemption RedemptionConfig `env:",prefix=REDEMPTION_"`

	// Administrative access
	Admin AdminConfig `env:",prefix=ADMIN_"`

	// Public endpoint rate limiting
	RateLimit RateLimitConfig `env:",prefix=RATE_"`

	// Ledger drift audit and repair
	Reconcile ReconcileConfig `env:",prefix=RECONCILE_"`

	// Application configuration
	App AppConfig `env:",prefix=APP_"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port         string `env:"PORT,default=8080"`
	Host         string `env:"HOST,default=0.0.0.0"`
	ReadTimeout  int    `env:"READ_TIMEOUT,default=30"`  // seconds
	WriteTimeout int    `env:"WRITE_TIMEOUT,default=30"` // seconds
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string `env:"HOST,default=localhost"`
	Port     string `env:"PORT,default=5432"`
	User     string `env:"USER,default=postgres"`
	Password string `env:"PASSWORD,default=postgres"`
	Name     string `env:"NAME,default=redemption"`
	SSLMode  string `env:"SSL_MODE,default=disable"`
	MaxConns int    `env:"MAX_CONNS,default=25"`
	MinConns int    `env:"MIN_CONNS,default=5"`
}

// StoreConfig selects and prepares the storage backend
type StoreConfig struct {
	Driver      string `env:"DRIVER,default=postgres"` // postgres or memory
	AutoMigrate bool   `env:"AUTO_MIGRATE,default=true"`
}

// RedemptionConfig holds redemption engine configuration
type RedemptionConfig struct {
	// Mode is auto, transaction or compensation
	Mode                string        `env:"MODE,default=auto"`
	CompensationTimeout time.Duration `env:"COMPENSATION_TIMEOUT,default=10s"`
	PublicBaseURL       string        `env:"PUBLIC_BASE_URL,default=https://qr.example.com"`
	SlugLength          int           `env:"SLUG_LENGTH,default=8"`
	NodeID              int64         `env:"NODE_ID,default=1"`
}

// AdminConfig holds admin endpoint credentials
type AdminConfig struct {
	// TokenHash is the bcrypt hash of the admin bearer token
	TokenHash string `env:"TOKEN_HASH"`
}

// RateLimitConfig holds the public endpoint token bucket
type RateLimitConfig struct {
	PublicRPS   float64 `env:"PUBLIC_RPS,default=200"`
	PublicBurst int     `env:"PUBLIC_BURST,default=50"`
}

// ReconcileConfig holds reconciliation configuration
type ReconcileConfig struct {
	// AuditSchedule is a cron spec; empty disables the periodic audit
	AuditSchedule string        `env:"AUDIT_SCHEDULE,default=@every 5m"`
	OrphanGrace   time.Duration `env:"ORPHAN_GRACE,default=15m"`
}

// AppConfig holds application-specific configuration
type AppConfig struct {
	Environment string `env:"ENVIRONMENT,default=development"`
	LogLevel    string `env:"LOG_LEVEL,default=info"`
	Debug       bool   `env:"DEBUG,default=false"`
}

// Load loads configuration from environment variables
func Load(ctx context.Context) (*Config, error) {
	return LoadWith(ctx, envconfig.OsLookuper())
}

// LoadWith loads configuration from the given lookuper
func LoadWith(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("failed to process environment config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values envconfig cannot express as defaults
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("invalid STORE_DRIVER %q: want postgres or memory", c.Store.Driver)
	}
	switch c.Redemption.Mode {
	case "auto", "transaction", "compensation":
	default:
		return fmt.Errorf("invalid REDEMPTION_MODE %q: want auto, transaction or compensation", c.Redemption.Mode)
	}
	if c.Redemption.SlugLength < 6 {
		return fmt.Errorf("REDEMPTION_SLUG_LENGTH must be at least 6, got %d", c.Redemption.SlugLength)
	}
	if c.Redemption.CompensationTimeout <= 0 {
		return fmt.Errorf("REDEMPTION_COMPENSATION_TIMEOUT must be positive")
	}
	return nil
}

// GetDatabaseURL returns the PostgreSQL connection URL
func (c *DatabaseConfig) GetDatabaseURL() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

// GetServerAddr returns the server address
func (c *ServerConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// IsDevelopment returns true if running in development environment
func (c *AppConfig) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production environment
func (c *AppConfig) IsProduction() bool {
	return c.Environment == "production"
}
