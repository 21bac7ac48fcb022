package datasource

import (
	"context"
	"time"
)

// MetricsProvider runs instant queries against a metrics backend
type MetricsProvider interface {
	Query(ctx context.Context, expr string) ([]Sample, error)
	IsAvailable(ctx context.Context) bool
	Name() string
}

// Sample is one series of an instant-vector result
type Sample struct {
	Labels map[string]string
	Value  float64
}

type Config struct {
	PrometheusURL string
	Timeout       time.Duration
}
