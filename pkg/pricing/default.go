package pricing

import (
	"context"
	"time"

	"github.com/opscart/k8s-cost-agent/pkg/models"
)

// DefaultProvider provides fallback pricing for on-prem or unknown clouds
type DefaultProvider struct {
	cpuCost    float64
	memoryCost float64
}

func NewDefaultProvider(cpuCost, memoryCost float64) *DefaultProvider {
	if cpuCost == 0 {
		cpuCost = 23.0 // Conservative default
	}
	if memoryCost == 0 {
		memoryCost = 3.0
	}
	return &DefaultProvider{
		cpuCost:    cpuCost,
		memoryCost: memoryCost,
	}
}

func (d *DefaultProvider) Name() string {
	return "default"
}

func (d *DefaultProvider) Rates(ctx context.Context) (*models.CostInfo, error) {
	return &models.CostInfo{
		Provider:         "default",
		Region:           "unknown",
		CPUCostPerCore:   d.cpuCost,
		MemoryCostPerGiB: d.memoryCost,
		Currency:         "USD",
		LastUpdated:      time.Now(),
	}, nil
}
