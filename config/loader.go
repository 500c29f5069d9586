// =============================================================================
// 📦 Migrator configuration loader
// =============================================================================
// Unified config loading: YAML file + environment variable overrides.
//
// Usage:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("migrator.yaml").
//	    WithEnvPrefix("MIGRATOR").
//	    Load()
//
// Precedence: defaults -> YAML file -> environment variables
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 Core configuration structures
// =============================================================================

// Config is the migrator's complete configuration.
type Config struct {
	// Database holds connection settings for the target database.
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	// Migration holds settings specific to the migration engine itself.
	Migration MigrationConfig `yaml:"migration" env:"MIGRATION"`

	// Log holds logging settings.
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry holds tracing/metrics export settings.
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// DatabaseConfig describes the target database connection.
type DatabaseConfig struct {
	// Driver selects the dialect: postgres, mysql, sqlite.
	Driver string `yaml:"driver" env:"DRIVER"`
	// Host is the database host (ignored for sqlite).
	Host string `yaml:"host" env:"HOST"`
	// Port is the database port (ignored for sqlite).
	Port int `yaml:"port" env:"PORT"`
	// User is the connecting user (ignored for sqlite).
	User string `yaml:"user" env:"USER"`
	// Password authenticates User (ignored for sqlite).
	Password string `yaml:"password" env:"PASSWORD"`
	// Name is the database name, or the file path for sqlite.
	Name string `yaml:"name" env:"NAME"`
	// SSLMode controls TLS for postgres connections.
	SSLMode string `yaml:"ssl_mode" env:"SSL_MODE"`
	// MaxOpenConns caps concurrently open connections.
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	// MaxIdleConns caps idle connections kept warm in the pool.
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// ConnMaxLifetime is the maximum age of a pooled connection.
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// MigrationConfig controls the migration engine's own behavior,
// independent of the database it targets.
type MigrationConfig struct {
	// Dir is the filesystem directory Discovery scans for migration
	// files. Ignored if ArchivePath is set.
	Dir string `yaml:"dir" env:"DIR"`
	// ParentDir, if set, is scanned as well and merged under Dir: entries
	// in Dir win on a colliding id. Useful for a vendored/shared base
	// set of migrations a project layers its own on top of.
	ParentDir string `yaml:"parent_dir" env:"PARENT_DIR"`
	// ArchivePath, if set, points at a zip archive of migration files
	// instead of a directory.
	ArchivePath string `yaml:"archive_path" env:"ARCHIVE_PATH"`
	// ExcludeScripts lists filename glob patterns (matched against the
	// base name) that Discovery should skip even if they otherwise match
	// the migration filename grammar.
	ExcludeScripts []string `yaml:"exclude_scripts" env:"EXCLUDE_SCRIPTS"`
	// InitScript names a one-time initialization script inside Dir. It is
	// always excluded from Discovery's scan (it has no migration id) and
	// is only run by an explicit "migrate init" request.
	InitScript string `yaml:"init_script" env:"INIT_SCRIPT"`
	// InitInTransaction controls whether InitScript runs inside a single
	// transaction.
	InitInTransaction bool `yaml:"init_in_transaction" env:"INIT_IN_TRANSACTION"`
	// TableName is the bookkeeping table name.
	TableName string `yaml:"table_name" env:"TABLE_NAME"`
	// SchemaQualify, if non-empty, makes NewEngineFromConfig install an
	// identity ModifySQLFunc; the built-in migrator rewrites no table name
	// or statement with it.
	SchemaQualify string `yaml:"schema_qualify" env:"SCHEMA_QUALIFY"`
	// LockTimeout is loaded but not read by the engine: a reservation
	// attempt never waits, and a reservation held by another actor ends
	// the run with an ignored step at once.
	LockTimeout time.Duration `yaml:"lock_timeout" env:"LOCK_TIMEOUT"`
}

// LogConfig controls zap logger construction.
type LogConfig struct {
	// Level: debug, info, warn, error.
	Level string `yaml:"level" env:"LEVEL"`
	// Format: json or console.
	Format string `yaml:"format" env:"FORMAT"`
	// OutputPaths are zap sink targets ("stdout", a file path, ...).
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// EnableCaller adds the calling file:line to each entry.
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// EnableStacktrace adds a stacktrace to Error-and-above entries.
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig controls the OpenTelemetry SDK.
type TelemetryConfig struct {
	// Enabled turns on OTLP export. When false, Init returns noop
	// providers.
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLPEndpoint is the collector's gRPC endpoint.
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// ServiceName identifies this process in traces/metrics.
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// SampleRate is the trace sampling ratio, 0..1.
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// =============================================================================
// 🔧 Loader
// =============================================================================

// Loader builds a Config using the builder pattern.
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader creates a Loader with the default env prefix.
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "MIGRATOR",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath sets the YAML file path to load.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix overrides the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator appends a validation function run after loading.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load builds the Config: defaults, then YAML file, then environment
// variables, then validators.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 Helpers
// =============================================================================

// MustLoad loads config from path, panicking on failure. Intended for
// cmd/migrator's main, where a bad config is fatal anyway.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv loads config from environment variables only, skipping any
// YAML file.
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate checks the config for values the loaders cannot catch on
// their own (missing required fields, out-of-range settings).
func (c *Config) Validate() error {
	var errs []string

	switch c.Database.Driver {
	case "postgres", "mysql", "sqlite":
	default:
		errs = append(errs, fmt.Sprintf("unsupported database driver %q", c.Database.Driver))
	}

	if c.Database.Driver != "sqlite" && c.Database.Host == "" {
		errs = append(errs, "database host is required")
	}
	if c.Database.Name == "" {
		errs = append(errs, "database name is required")
	}

	if c.Migration.TableName == "" {
		errs = append(errs, "migration table_name is required")
	}
	if c.Migration.Dir == "" && c.Migration.ArchivePath == "" {
		errs = append(errs, "one of migration dir or archive_path is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// DSN returns the database/sql connection string for Driver.
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}
