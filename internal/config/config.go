// Package config loads application configuration from environment variables.
//
// Values are parsed with caarlos0/env into a single Config tree and validated
// once on startup so that misconfiguration fails fast.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Store    StoreConfig
	Import   ImportConfig
	Files    FilesConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to.
	Host string `env:"SERVER_HOST" envDefault:"0.0.0.0"`

	// Port is the port to listen on.
	Port int `env:"SERVER_PORT" envDefault:"8080"`

	// ReadTimeout is the maximum duration for reading a request body.
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"30s"`

	// WriteTimeout is 0 by default so progress streams stay open.
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"0s"`

	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// RequestTimeout bounds non-streaming API requests.
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" envDefault:"60s"`
}

// DatabaseConfig holds Postgres pool settings. Only used by the postgres store backend.
type DatabaseConfig struct {
	URL             string        `env:"DATABASE_URL"`
	MaxConns        int           `env:"DB_MAX_CONNS" envDefault:"10"`
	MinConns        int           `env:"DB_MIN_CONNS" envDefault:"2"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"30m"`
}

// Store backends.
const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// StoreConfig selects the page store implementation.
type StoreConfig struct {
	// Backend is "postgres" or "memory".
	Backend string `env:"STORE_BACKEND" envDefault:"postgres"`

	// EnsureSchema creates the pages table on startup when missing.
	EnsureSchema bool `env:"STORE_ENSURE_SCHEMA" envDefault:"true"`
}

// ImportConfig holds defaults for import runs and the limits applied to them.
type ImportConfig struct {
	// Delimiter is the default field delimiter (a single character, "\t" allowed).
	Delimiter string `env:"IMPORT_DELIMITER" envDefault:","`

	// Quote is the default quote character.
	Quote string `env:"IMPORT_QUOTE" envDefault:"\""`

	// DuplicatePolicy is one of skip, create-unique, modify.
	DuplicatePolicy string `env:"IMPORT_DUPLICATE_POLICY" envDefault:"skip"`

	AutoCreateReferences bool `env:"IMPORT_AUTO_CREATE_REFERENCES" envDefault:"false"`

	// MaxRows caps data rows per run. 0 means unlimited.
	MaxRows int `env:"IMPORT_MAX_ROWS" envDefault:"0"`

	// MaxFileSize is the maximum accepted upload size in bytes.
	MaxFileSize int64 `env:"IMPORT_MAX_FILE_SIZE" envDefault:"52428800"`

	// MaxConcurrent is the number of runs allowed in flight at once.
	MaxConcurrent int `env:"IMPORT_MAX_CONCURRENT" envDefault:"4"`

	// MaxWaitTime is how long a new run waits for a free slot.
	MaxWaitTime time.Duration `env:"IMPORT_MAX_WAIT_TIME" envDefault:"30s"`

	// Timeout bounds a single run.
	Timeout time.Duration `env:"IMPORT_TIMEOUT" envDefault:"15m"`

	// ResultTTL is how long finished run results stay queryable.
	ResultTTL time.Duration `env:"IMPORT_RESULT_TTL" envDefault:"10m"`
}

// FilesConfig controls where attached files are read from and stored.
type FilesConfig struct {
	// Root is the directory attached files are copied into.
	Root string `env:"FILES_ROOT" envDefault:"./files"`

	// SourceDir resolves relative file paths found in import rows.
	SourceDir string `env:"FILES_SOURCE_DIR" envDefault:"."`

	// FetchTimeout bounds downloads of http(s) file sources.
	FetchTimeout time.Duration `env:"FILES_FETCH_TIMEOUT" envDefault:"30s"`

	// MaxFileSize caps a single attached file in bytes.
	MaxFileSize int64 `env:"FILES_MAX_SIZE" envDefault:"20971520"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of proxy CIDRs whose
	// X-Real-IP / X-Forwarded-For headers are honoured.
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:","`

	RequireAPIKey bool     `env:"REQUIRE_API_KEY" envDefault:"false"`
	APIKeys       []string `env:"API_KEYS" envSeparator:","`

	// RateLimit is the number of API requests a client may make per
	// RateLimitPeriod. 0 disables limiting.
	RateLimit       int           `env:"RATE_LIMIT" envDefault:"120"`
	RateLimitPeriod time.Duration `env:"RATE_LIMIT_PERIOD" envDefault:"1m"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `env:"LOG_LEVEL" envDefault:"info"`

	// Format is text or json.
	Format string `env:"LOG_FORMAT" envDefault:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
