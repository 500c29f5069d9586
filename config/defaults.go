// =============================================================================
// 📦 Migrator default configuration
// =============================================================================
// Provides reasonable defaults for every configuration field.
// =============================================================================
package config

import "time"

// DefaultConfig returns a Config with every field set to its default.
func DefaultConfig() *Config {
	return &Config{
		Database:  DefaultDatabaseConfig(),
		Migration: DefaultMigrationConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultDatabaseConfig returns default database connection settings.
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "postgres",
		Host:            "localhost",
		Port:            5432,
		User:            "migrator",
		Password:        "",
		Name:            "migrator",
		SSLMode:         "disable",
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Hour,
	}
}

// DefaultMigrationConfig returns default migration engine settings.
func DefaultMigrationConfig() MigrationConfig {
	return MigrationConfig{
		Dir:               "migrations",
		TableName:         "schema_migrations",
		SchemaQualify:     "",
		LockTimeout:       0,
		InitScript:        "init.sql",
		InitInTransaction: true,
	}
}

// DefaultLogConfig returns default logging settings.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig returns default telemetry settings, disabled.
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "migrator",
		SampleRate:   0.1,
	}
}
