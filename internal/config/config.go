// Package config loads application settings from environment variables via
// viper. A local .env file, when present, is loaded by main before this runs.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the API server and worker.
type Config struct {
	ServerPort           string   `mapstructure:"SERVER_PORT"`
	DatabaseURL          string   `mapstructure:"DATABASE_URL"`
	JWTSecret            string   `mapstructure:"JWT_SECRET"`
	CORSAllowedOrigins   []string `mapstructure:"CORS_ALLOWED_ORIGINS"`
	BillingWebhookSecret string   `mapstructure:"BILLING_WEBHOOK_SECRET"`

	ProviderBaseURL     string        `mapstructure:"PROVIDER_BASE_URL"`
	ProviderAPIKey      string        `mapstructure:"PROVIDER_API_KEY"`
	ProviderCallbackURL string        `mapstructure:"PROVIDER_CALLBACK_URL"`
	GenerationTimeout   time.Duration `mapstructure:"GENERATION_TIMEOUT"`

	R2Endpoint        string `mapstructure:"R2_ENDPOINT"`
	R2AccessKeyID     string `mapstructure:"R2_ACCESS_KEY_ID"`
	R2SecretAccessKey string `mapstructure:"R2_SECRET_ACCESS_KEY"`
	R2Bucket          string `mapstructure:"R2_BUCKET"`
	R2PublicBaseURL   string `mapstructure:"R2_PUBLIC_BASE_URL"`
}

// Load reads configuration from environment variables.
func Load() (Config, error) {
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"})
	viper.SetDefault("PROVIDER_BASE_URL", "https://api.kie.ai/api/v1")
	viper.SetDefault("GENERATION_TIMEOUT", 15*time.Minute)
	viper.AutomaticEnv()

	// Bind explicitly so the keys survive Unmarshal even when only the
	// environment provides them.
	for _, key := range []string{
		"SERVER_PORT", "DATABASE_URL", "JWT_SECRET", "CORS_ALLOWED_ORIGINS",
		"BILLING_WEBHOOK_SECRET", "PROVIDER_BASE_URL", "PROVIDER_API_KEY",
		"PROVIDER_CALLBACK_URL", "GENERATION_TIMEOUT",
		"R2_ENDPOINT", "R2_ACCESS_KEY_ID", "R2_SECRET_ACCESS_KEY",
		"R2_BUCKET", "R2_PUBLIC_BASE_URL",
	} {
		_ = viper.BindEnv(key)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	return cfg, nil
}
