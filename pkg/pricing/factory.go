package pricing

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"k8s.io/client-go/kubernetes"
)

// NewProvider creates a pricing provider from config, or from cloud detection when
// no provider is configured. A nil clientset skips detection.
func NewProvider(ctx context.Context, clientset kubernetes.Interface, config *Config, logger *zap.Logger) (Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	provider := config.Provider
	region := config.Region

	if provider == "" {
		provider, region = "default", "unknown"
		if clientset != nil {
			detected, detectedRegion, err := DetectProvider(ctx, clientset)
			if err != nil {
				logger.Warn("Cloud provider detection failed, using default pricing", zap.Error(err))
			} else {
				provider, region = detected, detectedRegion
			}
		}
	}

	switch provider {
	case "azure":
		return NewAzureProvider(region, logger), nil
	case "aws":
		return NewAWSProvider(region), nil
	case "gcp":
		return NewGCPProvider(region), nil
	case "default":
		return NewDefaultProvider(config.DefaultCPU, config.DefaultMemory), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", provider)
	}
}
