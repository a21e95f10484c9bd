// Package config loads and validates application configuration.
//
// It uses Viper to read a YAML file, binds environment variables (including
// those from a .env file loaded with godotenv) over it, and validates the
// result with struct tags through go-playground/validator.
//
// # Usage
//
//	cfg, err := config.Load[AppConfig]("tsengine")
//
// Environment variables override file values using underscore-separated
// paths (e.g., SERVER_PORT overrides server.port).
package config
