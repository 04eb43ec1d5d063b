// Package config loads typed configuration from environment variables.
//
// Structs are annotated with caarlos0/env tags and parsed once per type; the
// parsed copy is cached for the life of the process. A ./.env file is read on
// first use via godotenv, and LoadEnv reads other files explicitly.
//
//	type Config struct {
//		AppURL  string        `env:"APP_URL,required"`
//		Timeout time.Duration `env:"BILLING_REQUEST_TIMEOUT" envDefault:"10s"`
//	}
//
//	var cfg Config
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
//
// Parsing failures wrap ErrParsingConfig. ResetCache clears cached values in tests.
package config
