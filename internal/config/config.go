// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Gateway modes.
const (
	GatewayModeMemory          = "memory"
	GatewayModeIdentityToolkit = "identitytoolkit"
)

// Config holds all configuration for the auth session manager.
type Config struct {
	// Application
	AppMode string `mapstructure:"APP_MODE"`

	// Logging Configuration
	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`

	// Identity Provider Gateway
	GatewayMode string `mapstructure:"GATEWAY_MODE"`

	// Firebase Configuration
	FirebaseAPIKey                string `mapstructure:"FIREBASE_API_KEY"`
	FirebaseProjectID             string `mapstructure:"FIREBASE_PROJECT_ID"`
	FirebaseServiceAccountKeyPath string `mapstructure:"FIREBASE_SERVICE_ACCOUNT_KEY_PATH"`

	// Federated sign-in (Google OAuth)
	GoogleClientID     string `mapstructure:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `mapstructure:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURI  string `mapstructure:"GOOGLE_REDIRECT_URI"`

	// Platform capabilities
	PushDeliveryUnreliable bool          `mapstructure:"PUSH_DELIVERY_UNRELIABLE"`
	PollInterval           time.Duration `mapstructure:"-"` // POLL_INTERVAL_MS

	// Phone challenge
	PhoneChallengeTTL    time.Duration `mapstructure:"-"` // PHONE_CHALLENGE_TTL_SECONDS
	MockVerificationCode string        `mapstructure:"MOCK_VERIFICATION_CODE"`

	// Policies
	ResetPasswordDiscloseUnknown bool `mapstructure:"RESET_PASSWORD_DISCLOSE_UNKNOWN"`

	MetricsEnabled bool `mapstructure:"METRICS_ENABLED"`
}

// Load attempts to load configuration from a .env file (if present) and environment variables.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling configuration: %w", err)
	}

	// Convert duration fields
	cfg.PollInterval = time.Duration(v.GetInt("POLL_INTERVAL_MS")) * time.Millisecond
	cfg.PhoneChallengeTTL = time.Duration(v.GetInt("PHONE_CHALLENGE_TTL_SECONDS")) * time.Second
	cfg.Normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_MODE", "debug")

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "console")

	v.SetDefault("GATEWAY_MODE", GatewayModeMemory)

	// Firebase
	v.SetDefault("FIREBASE_API_KEY", "")
	v.SetDefault("FIREBASE_PROJECT_ID", "") // Optional
	v.SetDefault("FIREBASE_SERVICE_ACCOUNT_KEY_PATH", "")

	v.SetDefault("GOOGLE_CLIENT_ID", "")
	v.SetDefault("GOOGLE_CLIENT_SECRET", "")
	v.SetDefault("GOOGLE_REDIRECT_URI", "http://localhost:8085/oauth/callback")

	v.SetDefault("PUSH_DELIVERY_UNRELIABLE", false)
	v.SetDefault("POLL_INTERVAL_MS", 1000)

	v.SetDefault("PHONE_CHALLENGE_TTL_SECONDS", 300)
	v.SetDefault("MOCK_VERIFICATION_CODE", "123456")

	v.SetDefault("RESET_PASSWORD_DISCLOSE_UNKNOWN", false)
	v.SetDefault("METRICS_ENABLED", true)
}

// Normalize canonicalizes values that are compared by equality elsewhere.
func (c *Config) Normalize() {
	c.GatewayMode = strings.ToLower(strings.TrimSpace(c.GatewayMode))
}

// Validate checks the settings that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.GatewayMode {
	case GatewayModeMemory:
	case GatewayModeIdentityToolkit:
		if strings.TrimSpace(c.FirebaseAPIKey) == "" {
			return fmt.Errorf("FATAL: FIREBASE_API_KEY is required when GATEWAY_MODE=%s", GatewayModeIdentityToolkit)
		}
	default:
		return fmt.Errorf("unsupported GATEWAY_MODE %q", c.GatewayMode)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL_MS must be positive")
	}
	if c.PhoneChallengeTTL <= 0 {
		return fmt.Errorf("PHONE_CHALLENGE_TTL_SECONDS must be positive")
	}
	if c.FirebaseServiceAccountKeyPath != "" {
		if _, err := os.Stat(c.FirebaseServiceAccountKeyPath); os.IsNotExist(err) {
			return fmt.Errorf("Firebase service account key file specified in FIREBASE_SERVICE_ACCOUNT_KEY_PATH (%s) not found", c.FirebaseServiceAccountKeyPath)
		}
	}
	return nil
}
