// Package config defines service configuration and how it is loaded.
package config

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format" validate:"oneof=text json"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr" validate:"required"`

	// StoreDriver selects the score store backend.
	StoreDriver string `koanf:"store_driver" validate:"oneof=memory sqlite postgres"`

	// StoreDSN is the database DSN; required for sqlite and postgres.
	StoreDSN string `koanf:"store_dsn" validate:"required_unless=StoreDriver memory"`

	// FixturesPath optionally points at a YAML file of reference data to seed.
	FixturesPath string `koanf:"fixtures_path"`

	// DefaultMinJudges is applied to ranking requests that do not pass min_judges.
	DefaultMinJudges int `koanf:"default_min_judges" validate:"gte=0"`
}

// New returns a Config holding the defaults.
func New() *Config {
	return &Config{
		LogLevel:         "info",
		LogFormat:        "text",
		Addr:             ":9080",
		StoreDriver:      DriverMemory,
		DefaultMinJudges: 0,
	}
}
