package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"

	"cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"

	firebase "firebase.google.com/go/v4"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"

	"github.com/hearthhub/go-realtime-notify/internal/dispatch"
	"github.com/hearthhub/go-realtime-notify/internal/pipeline"
	"github.com/hearthhub/go-realtime-notify/internal/platform/apns"
	"github.com/hearthhub/go-realtime-notify/internal/platform/email"
	"github.com/hearthhub/go-realtime-notify/internal/platform/fcm"
	"github.com/hearthhub/go-realtime-notify/internal/platform/push"
	"github.com/hearthhub/go-realtime-notify/internal/platform/web"
	"github.com/hearthhub/go-realtime-notify/internal/realtime"
	"github.com/hearthhub/go-realtime-notify/internal/registry"
	"github.com/hearthhub/go-realtime-notify/notifyservice"
	"github.com/hearthhub/go-realtime-notify/notifyservice/config"
	pubdispatch "github.com/hearthhub/go-realtime-notify/pkg/dispatch"
	"github.com/hearthhub/go-realtime-notify/pkg/notify"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gopkg.in/yaml.v3"
)

//go:embed local.yaml
var configFile []byte

func main() {
	var logLevel slog.Level
	switch os.Getenv("LOG_LEVEL") {
	case "debug", "DEBUG":
		logLevel = slog.LevelDebug
	case "info", "INFO":
		logLevel = slog.LevelInfo
	case "warn", "WARN":
		logLevel = slog.LevelWarn
	case "error", "ERROR":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})).With("service", "go-realtime-notify")
	slog.SetDefault(logger)

	ctx := context.Background()

	// --- Config Loading ---
	var yamlCfg config.YamlConfig
	if err := yaml.Unmarshal(configFile, &yamlCfg); err != nil {
		logger.Error("Failed to unmarshal embedded yaml config", "err", err)
		os.Exit(1)
	}
	baseCfg, _ := config.NewConfigFromYaml(&yamlCfg, logger)
	cfg, err := config.UpdateConfigWithEnvOverrides(baseCfg, logger)
	if err != nil {
		logger.Error("Config failed", "err", err)
		os.Exit(1)
	}

	// --- Infrastructure Clients ---
	psClient, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		logger.Error("PubSub client failed", "err", err)
		os.Exit(1)
	}
	defer psClient.Close()

	// --- Channel Registry (with optional cross-node backplane) ---
	var backplane registry.Backplane
	if cfg.Backplane.Enabled {
		logger.Info("Initializing Redis backplane...", "addr", cfg.Backplane.Addr)
		redisBackplane, err := registry.NewRedisBackplane(cfg.Backplane.Addr, cfg.Backplane.Password, cfg.Backplane.DB, logger)
		if err != nil {
			logger.Error("Failed to connect to Redis backplane", "err", err)
			os.Exit(1)
		}
		defer redisBackplane.Close()
		backplane = redisBackplane
	}

	reg := registry.New(backplane, logger)
	if rb, ok := backplane.(*registry.RedisBackplane); ok {
		rb.Start(ctx, func(ctx context.Context, env notify.Envelope) {
			reg.DeliverLocal(ctx, env)
		})
	}

	// --- Auth ---
	identityURL := os.Getenv("IDENTITY_SERVICE_URL")
	if identityURL == "" {
		identityURL = "http://localhost:3000"
	}
	jwksURL, _ := middleware.DiscoverAndValidateJWTConfig(identityURL, middleware.RSA256, logger)
	authMiddleware, _ := middleware.NewJWKSAuthMiddleware(jwksURL, logger)

	// --- Delivery Providers ---

	// A. Realtime
	realtimePublisher := realtime.NewTopicPublisher(reg, logger)

	// B. Push (FCM + APNS + WebPush, each optional)
	pushSenders := make(map[notify.PushPlatform]push.Sender)

	fbApp, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID})
	if err != nil {
		logger.Warn("Firebase App unavailable; FCM disabled", "err", err)
	} else {
		fcmMessaging, err := fbApp.Messaging(ctx)
		if err != nil {
			logger.Warn("FCM messaging client unavailable; FCM disabled", "err", err)
		} else {
			pushSenders[notify.PlatformFCM] = fcm.NewSender(fcmMessaging, logger)
		}
	}

	if cfg.APNS.P8KeyContent != "" {
		apnsSender, err := apns.NewSender(apns.Config{
			KeyID:        cfg.APNS.KeyID,
			TeamID:       cfg.APNS.TeamID,
			BundleID:     cfg.APNS.BundleID,
			P8KeyContent: cfg.APNS.P8KeyContent,
		}, logger)
		if err != nil {
			logger.Error("APNs credentials invalid", "err", err)
			os.Exit(1)
		}
		pushSenders[notify.PlatformAPNS] = apnsSender
	}

	if cfg.Vapid.PrivateKey != "" && cfg.Vapid.PublicKey != "" {
		logger.Info("Web push enabled", "public_key", cfg.Vapid.PublicKey)
		pushSenders[notify.PlatformWebPush] = web.NewSender(web.Config{
			PublicKey:       cfg.Vapid.PublicKey,
			PrivateKey:      cfg.Vapid.PrivateKey,
			SubscriberEmail: cfg.Vapid.SubscriberEmail,
		}, logger)
	}

	pushGateway := push.NewGateway(pushSenders, logger)

	// C. Email
	emailSender := email.NewSender(email.Config{
		Mode:        cfg.Email.Mode,
		APIBaseURL:  cfg.Email.APIBaseURL,
		APIKey:      cfg.Email.APIKey,
		FromAddress: cfg.Email.FromAddress,
		RelayHost:   cfg.Email.RelayHost,
		RelayPort:   cfg.Email.RelayPort,
	}, logger)

	// --- Dispatcher ---
	dispatcher := dispatch.New(realtimePublisher, pushGateway, emailSender, dispatch.Config{
		PushTimeout:  cfg.Timeouts.Push,
		EmailTimeout: cfg.Timeouts.Email,
	}, logger)

	// --- Cleanup Sink ---
	var cleanupSink *pipeline.PubsubCleanupSink
	if cfg.CleanupTopicID != "" {
		cleanupSink = pipeline.NewPubsubCleanupSink(psClient, cfg.CleanupTopicID, logger)
		defer cleanupSink.Stop()
	}

	// --- Consumer & Service ---
	consumer, err := newIngestionConsumer(ctx, cfg, psClient, logger)
	if err != nil {
		logger.Error("Ingestion consumer failed", "err", err)
		os.Exit(1)
	}

	service, err := notifyservice.New(
		cfg,
		consumer,
		reg,
		dispatcher,
		emailSender,
		cleanupSinkOrNil(cleanupSink),
		authMiddleware,
		logger,
	)
	if err != nil {
		logger.Error("Service creation failed", "err", err)
		os.Exit(1)
	}

	logger.Info("Starting service...")
	if err := service.Start(ctx); err != nil {
		logger.Error("Service shutdown with error", "err", err)
		os.Exit(1)
	}
}

// cleanupSinkOrNil keeps the interface value nil when no sink is configured;
// a non-nil interface wrapping a nil pointer would defeat the nil checks.
func cleanupSinkOrNil(sink *pipeline.PubsubCleanupSink) pubdispatch.CleanupSink {
	if sink == nil {
		return nil
	}
	return sink
}

func newIngestionConsumer(ctx context.Context, cfg *config.Config, psClient *pubsub.Client, logger *slog.Logger) (messagepipeline.MessageConsumer, error) {
	sub := convertPubsub(cfg.ProjectID, cfg.PubsubConsumerConfig.SubscriptionID, "subscriptions")
	topicID := convertPubsub(cfg.ProjectID, cfg.TopicID, "topics")
	dlt := convertPubsub(cfg.ProjectID, cfg.SubscriptionDLQTopicID, "topics")

	subConfig := &pubsubpb.Subscription{
		Name:               sub,
		Topic:              topicID,
		AckDeadlineSeconds: 10,
		DeadLetterPolicy: &pubsubpb.DeadLetterPolicy{
			DeadLetterTopic:     dlt,
			MaxDeliveryAttempts: 5,
		},
		EnableMessageOrdering: false,
	}
	logger.Debug("Ensuring subscription exists", "sub", subConfig.Name, "topic", subConfig.Topic)
	_, err := psClient.SubscriptionAdminClient.CreateSubscription(ctx, subConfig)
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			logger.Debug("Subscription already exists, skipping creation", "sub", subConfig.Name)
		} else {
			logger.Error("Failed to create subscription", "sub", subConfig.Name, "err", err)
			return nil, fmt.Errorf("could not create sub: %s", sub)
		}
	}

	return messagepipeline.NewGooglePubsubConsumer(
		messagepipeline.NewGooglePubsubConsumerDefaults(subConfig.Name), psClient, logger,
	)
}

type PS string

func convertPubsub(project, id string, ps PS) string {
	return fmt.Sprintf("projects/%s/%s/%s", project, ps, id)
}
