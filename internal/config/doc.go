// Package config loads and validates application configuration from
// environment variables (MICROBLOG_ prefix) and an optional YAML file.
package config
