package config

import (
	"log/slog"
	"time"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
)

type YamlCorsConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	Role           string   `yaml:"role"`
}

type YamlBackplaneConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Enabled  bool   `yaml:"enabled"`
}

type YamlAPNSConfig struct {
	KeyID        string `yaml:"key_id"`
	TeamID       string `yaml:"team_id"`
	BundleID     string `yaml:"bundle_id"`
	P8KeyContent string `yaml:"p8_key"`
}

type YamlVapidConfig struct {
	PublicKey       string `yaml:"public_key"`
	PrivateKey      string `yaml:"private_key"`
	SubscriberEmail string `yaml:"subscriber_email"`
}

type YamlEmailConfig struct {
	Mode        string `yaml:"mode"`
	APIBaseURL  string `yaml:"api_base_url"`
	APIKey      string `yaml:"api_key"`
	FromAddress string `yaml:"from_address"`
	RelayHost   string `yaml:"relay_host"`
	RelayPort   int    `yaml:"relay_port"`
}

type YamlTimeoutConfig struct {
	Push  time.Duration `yaml:"push"`
	Email time.Duration `yaml:"email"`
}

// YamlConfig is the structure that mirrors the raw config.yaml file.
type YamlConfig struct {
	ProjectID              string              `yaml:"project_id"`
	ListenAddr             string              `yaml:"listen_addr"`
	TopicID                string              `yaml:"topic_id"`
	SubscriptionID         string              `yaml:"subscription_id"`
	SubscriptionDLQTopicID string              `yaml:"subscription_dlq_topic_id"`
	CleanupTopicID         string              `yaml:"cleanup_topic_id"`
	CorsConfig             YamlCorsConfig      `yaml:"cors"`
	BackplaneConfig        YamlBackplaneConfig `yaml:"backplane"`
	APNSConfig             YamlAPNSConfig      `yaml:"apns"`
	VapidConfig            YamlVapidConfig     `yaml:"vapid"`
	EmailConfig            YamlEmailConfig     `yaml:"email"`
	TimeoutConfig          YamlTimeoutConfig   `yaml:"timeouts"`
	NumPipelineWorkers     int                 `yaml:"num_pipeline_workers"`
}

// NewConfigFromYaml converts the YamlConfig into a clean, base Config struct.
func NewConfigFromYaml(baseCfg *YamlConfig, logger *slog.Logger) (*Config, error) {
	logger.Debug("Mapping YAML config to base config struct")

	cfg := &Config{
		ProjectID:      baseCfg.ProjectID,
		ListenAddr:     baseCfg.ListenAddr,
		TopicID:        baseCfg.TopicID,
		SubscriptionID: baseCfg.SubscriptionID,
		CorsConfig: middleware.CorsConfig{
			AllowedOrigins: baseCfg.CorsConfig.AllowedOrigins,
			Role:           middleware.CorsRole(baseCfg.CorsConfig.Role),
		},
		Backplane: BackplaneConfig{
			Addr:     baseCfg.BackplaneConfig.Addr,
			Password: baseCfg.BackplaneConfig.Password,
			DB:       baseCfg.BackplaneConfig.DB,
			Enabled:  baseCfg.BackplaneConfig.Enabled,
		},
		APNS: APNSConfig{
			KeyID:        baseCfg.APNSConfig.KeyID,
			TeamID:       baseCfg.APNSConfig.TeamID,
			BundleID:     baseCfg.APNSConfig.BundleID,
			P8KeyContent: baseCfg.APNSConfig.P8KeyContent,
		},
		Vapid: VapidConfig{
			PublicKey:       baseCfg.VapidConfig.PublicKey,
			PrivateKey:      baseCfg.VapidConfig.PrivateKey,
			SubscriberEmail: baseCfg.VapidConfig.SubscriberEmail,
		},
		Email: EmailConfig{
			Mode:        baseCfg.EmailConfig.Mode,
			APIBaseURL:  baseCfg.EmailConfig.APIBaseURL,
			APIKey:      baseCfg.EmailConfig.APIKey,
			FromAddress: baseCfg.EmailConfig.FromAddress,
			RelayHost:   baseCfg.EmailConfig.RelayHost,
			RelayPort:   baseCfg.EmailConfig.RelayPort,
		},
		Timeouts: TimeoutConfig{
			Push:  baseCfg.TimeoutConfig.Push,
			Email: baseCfg.TimeoutConfig.Email,
		},
		SubscriptionDLQTopicID: baseCfg.SubscriptionDLQTopicID,
		CleanupTopicID:         baseCfg.CleanupTopicID,
		NumPipelineWorkers:     baseCfg.NumPipelineWorkers,
	}

	if cfg.SubscriptionID != "" {
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(cfg.SubscriptionID)
	}

	logger.Debug("YAML config mapping complete",
		"project_id", cfg.ProjectID,
		"listen_addr", cfg.ListenAddr,
		"subscription_id", cfg.SubscriptionID,
	)

	return cfg, nil
}
