package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
)

type BackplaneConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

type APNSConfig struct {
	KeyID        string
	TeamID       string
	BundleID     string
	P8KeyContent string
}

type VapidConfig struct {
	PublicKey       string
	PrivateKey      string
	SubscriberEmail string
}

type EmailConfig struct {
	Mode        string
	APIBaseURL  string
	APIKey      string
	FromAddress string
	RelayHost   string
	RelayPort   int
}

type TimeoutConfig struct {
	Push  time.Duration
	Email time.Duration
}

// Config defines the *single*, authoritative configuration.
type Config struct {
	ProjectID              string
	ListenAddr             string
	TopicID                string
	SubscriptionID         string
	SubscriptionDLQTopicID string
	CleanupTopicID         string
	NumPipelineWorkers     int

	CorsConfig middleware.CorsConfig
	Backplane  BackplaneConfig
	APNS       APNSConfig
	Vapid      VapidConfig
	Email      EmailConfig
	Timeouts   TimeoutConfig

	PubsubConsumerConfig *messagepipeline.GooglePubsubConsumerConfig
}

// UpdateConfigWithEnvOverrides applies environment variables and final validation.
func UpdateConfigWithEnvOverrides(cfg *Config, logger *slog.Logger) (*Config, error) {
	logger.Debug("Applying environment variable overrides...")

	if val := os.Getenv("PROJECT_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "PROJECT_ID", "source", "env")
		cfg.ProjectID = val
	}
	if val := os.Getenv("PORT"); val != "" {
		logger.Debug("Overriding config value", "key", "PORT", "source", "env")
		cfg.ListenAddr = ":" + val
	}
	if val := os.Getenv("TOPIC_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "TOPIC_ID", "source", "env")
		cfg.TopicID = val
	}
	if val := os.Getenv("SUBSCRIPTION_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "SUBSCRIPTION_ID", "source", "env")
		cfg.SubscriptionID = val
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(val)
	}
	if val := os.Getenv("SUBSCRIPTION_DLQ_TOPIC_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "SUBSCRIPTION_DLQ_TOPIC_ID", "source", "env")
		cfg.SubscriptionDLQTopicID = val
	}
	if val := os.Getenv("CLEANUP_TOPIC_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "CLEANUP_TOPIC_ID", "source", "env")
		cfg.CleanupTopicID = val
	}
	if val := os.Getenv("NUM_PIPELINE_WORKERS"); val != "" {
		if workers, err := strconv.Atoi(val); err == nil && workers > 0 {
			logger.Debug("Overriding config value", "key", "NUM_PIPELINE_WORKERS", "source", "env")
			cfg.NumPipelineWorkers = workers
		}
	}

	// Backplane (Redis) Overrides
	if val := os.Getenv("BACKPLANE_ADDR"); val != "" {
		cfg.Backplane.Addr = val
		cfg.Backplane.Enabled = true
	}
	if val := os.Getenv("BACKPLANE_PASSWORD"); val != "" {
		cfg.Backplane.Password = val
	}
	if val := os.Getenv("BACKPLANE_DB"); val != "" {
		if db, err := strconv.Atoi(val); err == nil {
			cfg.Backplane.DB = db
		}
	}
	if val := os.Getenv("BACKPLANE_ENABLED"); val != "" {
		enabled, _ := strconv.ParseBool(val)
		cfg.Backplane.Enabled = enabled
	}

	// APNS Overrides
	if val := os.Getenv("APNS_KEY_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "APNS_KEY_ID", "source", "env")
		cfg.APNS.KeyID = val
	}
	if val := os.Getenv("APNS_TEAM_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "APNS_TEAM_ID", "source", "env")
		cfg.APNS.TeamID = val
	}
	if val := os.Getenv("APNS_BUNDLE_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "APNS_BUNDLE_ID", "source", "env")
		cfg.APNS.BundleID = val
	}
	if val := os.Getenv("APNS_P8_KEY"); val != "" {
		logger.Debug("Overriding config value", "key", "APNS_P8_KEY", "source", "env")
		cfg.APNS.P8KeyContent = val
	}

	// VAPID Overrides
	if val := os.Getenv("VAPID_PUBLIC_KEY"); val != "" {
		logger.Debug("Overriding config value", "key", "VAPID_PUBLIC_KEY", "source", "env")
		cfg.Vapid.PublicKey = val
	}
	if val := os.Getenv("VAPID_PRIVATE_KEY"); val != "" {
		logger.Debug("Overriding config value", "key", "VAPID_PRIVATE_KEY", "source", "env")
		cfg.Vapid.PrivateKey = val
	}
	if val := os.Getenv("VAPID_SUB_EMAIL"); val != "" {
		logger.Debug("Overriding config value", "key", "VAPID_SUB_EMAIL", "source", "env")
		cfg.Vapid.SubscriberEmail = val
	}

	// Email Overrides
	if val := os.Getenv("EMAIL_MODE"); val != "" {
		logger.Debug("Overriding config value", "key", "EMAIL_MODE", "source", "env")
		cfg.Email.Mode = val
	}
	if val := os.Getenv("EMAIL_API_BASE_URL"); val != "" {
		logger.Debug("Overriding config value", "key", "EMAIL_API_BASE_URL", "source", "env")
		cfg.Email.APIBaseURL = val
	}
	if val := os.Getenv("EMAIL_API_KEY"); val != "" {
		logger.Debug("Overriding config value", "key", "EMAIL_API_KEY", "source", "env")
		cfg.Email.APIKey = val
	}
	if val := os.Getenv("EMAIL_FROM_ADDRESS"); val != "" {
		logger.Debug("Overriding config value", "key", "EMAIL_FROM_ADDRESS", "source", "env")
		cfg.Email.FromAddress = val
	}
	if val := os.Getenv("EMAIL_RELAY_HOST"); val != "" {
		logger.Debug("Overriding config value", "key", "EMAIL_RELAY_HOST", "source", "env")
		cfg.Email.RelayHost = val
	}
	if val := os.Getenv("EMAIL_RELAY_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil && port > 0 {
			cfg.Email.RelayPort = port
		}
	}

	// Timeout Overrides
	if val := os.Getenv("PUSH_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil && d > 0 {
			cfg.Timeouts.Push = d
		}
	}
	if val := os.Getenv("EMAIL_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil && d > 0 {
			cfg.Timeouts.Email = d
		}
	}

	// CORS Overrides
	if corsOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); corsOrigins != "" {
		logger.Debug("Overriding config value", "key", "CORS_ALLOWED_ORIGINS", "source", "env")
		rawOrigins := strings.Split(corsOrigins, ",")
		var cleanOrigins []string
		for _, o := range rawOrigins {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				cleanOrigins = append(cleanOrigins, trimmed)
			}
		}
		cfg.CorsConfig.AllowedOrigins = cleanOrigins
	}

	// Final Validation
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("project_id is required (set via YAML or PROJECT_ID env var)")
	}
	if cfg.SubscriptionID == "" {
		return nil, fmt.Errorf("subscription_id is required (set via YAML or SUBSCRIPTION_ID env var)")
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.NumPipelineWorkers <= 0 {
		cfg.NumPipelineWorkers = 1
	}

	if cfg.PubsubConsumerConfig == nil && cfg.SubscriptionID != "" {
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(cfg.SubscriptionID)
	}

	logger.Debug("Configuration finalized and validated successfully")
	return cfg, nil
}
