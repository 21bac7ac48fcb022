package pricing

import (
	"context"

	"github.com/opscart/k8s-cost-agent/pkg/models"
)

// Provider supplies per-core and per-GiB monthly rates for the cluster's cloud
type Provider interface {
	Rates(ctx context.Context) (*models.CostInfo, error)
	Name() string
}

type Config struct {
	Provider      string
	Region        string
	DefaultCPU    float64
	DefaultMemory float64
}

// Resources is a CPU/memory request pair
type Resources struct {
	CPUMillicores int64
	MemoryBytes   int64
}

// EstimateSavings prices the monthly difference between two requests; never negative
func EstimateSavings(ctx context.Context, p Provider, current, recommended Resources) (float64, error) {
	rates, err := p.Rates(ctx)
	if err != nil {
		return 0, err
	}

	savings := rates.MonthlyCost(current.CPUMillicores, current.MemoryBytes) -
		rates.MonthlyCost(recommended.CPUMillicores, recommended.MemoryBytes)
	if savings < 0 {
		return 0, nil
	}
	return savings, nil
}
