// Package config provides configuration management for the migrator.
//
// Config is loaded from a YAML file with environment variable overrides,
// builder-style through Loader. See Config for the structure and
// DefaultConfig for the built-in defaults.
package config
