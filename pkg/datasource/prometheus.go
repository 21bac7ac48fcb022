package datasource

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
	"go.uber.org/zap"
)

type PrometheusSource struct {
	client  v1.API
	url     string
	timeout time.Duration
	logger  *zap.Logger
}

func NewPrometheusSource(cfg Config, logger *zap.Logger) (*PrometheusSource, error) {
	client, err := api.NewClient(api.Config{
		Address: cfg.PrometheusURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &PrometheusSource{
		client:  v1.NewAPI(client),
		url:     cfg.PrometheusURL,
		timeout: cfg.Timeout,
		logger:  logger.Named("prometheus"),
	}, nil
}

// Query executes an instant query. Non-vector results are treated as empty.
func (p *PrometheusSource) Query(ctx context.Context, expr string) ([]Sample, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	result, warnings, err := p.client.Query(ctx, expr, time.Now())
	if err != nil {
		p.logger.Error("Prometheus query failed", zap.String("query", expr), zap.Error(err))
		return nil, fmt.Errorf("query failed: %w", err)
	}

	if len(warnings) > 0 {
		p.logger.Warn("Prometheus returned warnings", zap.Strings("warnings", warnings))
	}

	vector, ok := result.(model.Vector)
	if !ok {
		p.logger.Warn("Unexpected Prometheus result type", zap.String("query", expr), zap.String("type", result.Type().String()))
		return nil, nil
	}

	samples := make([]Sample, 0, len(vector))
	for _, s := range vector {
		labels := make(map[string]string, len(s.Metric))
		for name, value := range s.Metric {
			labels[string(name)] = string(value)
		}
		samples = append(samples, Sample{Labels: labels, Value: float64(s.Value)})
	}
	return samples, nil
}

// QueryScalar sums the values of an instant query
func (p *PrometheusSource) QueryScalar(ctx context.Context, expr string) (float64, error) {
	samples, err := p.Query(ctx, expr)
	if err != nil {
		return 0, err
	}
	if len(samples) == 0 {
		return 0, fmt.Errorf("no data for query: %s", expr)
	}

	sum := 0.0
	for _, s := range samples {
		sum += s.Value
	}
	return sum, nil
}

func (p *PrometheusSource) IsAvailable(ctx context.Context) bool {
	_, _, err := p.client.Query(ctx, "up", time.Now())
	return err == nil
}

func (p *PrometheusSource) Name() string {
	return "Prometheus"
}
