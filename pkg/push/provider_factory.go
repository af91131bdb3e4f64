package push

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"socialhub-backend/pkg/logger"
)

// ProviderType represents the type of push notification provider
type ProviderType string

const (
	ProviderTypeMock ProviderType = "mock"
	ProviderTypeFCM  ProviderType = "fcm"
	ProviderTypeAPNs ProviderType = "apns"
)

// Config selects and configures a provider
type Config struct {
	Provider ProviderType
	FCM      FCMConfig
	APNs     APNsConfig
}

// NewProvider creates the push provider named by cfg.Provider.
// Unknown names fall back to the mock provider.
func NewProvider(ctx context.Context, cfg Config) (Provider, error) {
	logger.Info("Initializing push notification provider",
		zap.String("provider_type", string(cfg.Provider)))

	switch cfg.Provider {
	case ProviderTypeFCM:
		if cfg.FCM.ProjectID == "" {
			return nil, fmt.Errorf("FCM project id is required for FCM provider")
		}
		return NewFCMProvider(ctx, &cfg.FCM)
	case ProviderTypeAPNs:
		return NewAPNsProvider(&cfg.APNs)
	case ProviderTypeMock, "":
		return NewMockProvider(), nil
	default:
		logger.Warn("Unknown push provider type, falling back to mock",
			zap.String("provider_type", string(cfg.Provider)))
		return NewMockProvider(), nil
	}
}
