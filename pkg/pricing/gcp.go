package pricing

import (
	"context"
	"time"

	"github.com/opscart/k8s-cost-agent/pkg/models"
)

// GCPProvider implements GCP GKE pricing
type GCPProvider struct {
	region string
}

func NewGCPProvider(region string) *GCPProvider {
	return &GCPProvider{region: region}
}

func (g *GCPProvider) Name() string {
	return "gcp"
}

// Rates returns e2-medium average rates
func (g *GCPProvider) Rates(ctx context.Context) (*models.CostInfo, error) {
	return &models.CostInfo{
		Provider:         "gcp",
		Region:           g.region,
		CPUCostPerCore:   31.0,
		MemoryCostPerGiB: 4.2,
		Currency:         "USD",
		LastUpdated:      time.Now(),
	}, nil
}
