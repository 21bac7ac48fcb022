package kubecost

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// FallbackMonthlyCost is reported whenever Kubecost cannot produce a usable total
	FallbackMonthlyCost = 1500.0

	DefaultTimeout = 20 * time.Second
)

// CostProvider reports cluster cost and Kubecost savings hints
type CostProvider interface {
	MonthlyCost(ctx context.Context) float64
	SavingsRecommendations(ctx context.Context) []Recommendation
}

// Recommendation is one entry of the /model/savings response
type Recommendation struct {
	Type           string            `json:"type"`
	Name           string            `json:"name"`
	Namespace      string            `json:"namespace"`
	Container      string            `json:"container"`
	RequestCurrent map[string]string `json:"requestCurrent"`
	RequestRec     map[string]string `json:"requestRec"`
	MonthlySavings *float64          `json:"monthlySavings,omitempty"`
}

type allocationResponse struct {
	Data []*struct {
		TotalCost float64 `json:"totalCost"`
	} `json:"data"`
}

type savingsResponse struct {
	Data []Recommendation `json:"data"`
}

// Client talks to the Kubecost cost-model HTTP API
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(baseURL string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     logger.Named("kubecost"),
	}
	c.logger.Info("Kubecost client initialized", zap.String("url", c.baseURL))
	return c
}

// MonthlyCost sums today's cluster allocation cost, falling back to FallbackMonthlyCost
func (c *Client) MonthlyCost(ctx context.Context) float64 {
	params := url.Values{}
	params.Set("window", "today")
	params.Set("aggregate", "cluster")

	body, err := c.get(ctx, "/model/allocation", params)
	if err != nil {
		c.logger.Error("Failed to get or parse cost data from Kubecost", zap.Error(err))
		return FallbackMonthlyCost
	}

	var resp allocationResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		c.logger.Warn("Kubecost returned a non-JSON response, likely still warming up. Using fallback cost.")
		return FallbackMonthlyCost
	}
	if len(resp.Data) == 0 {
		c.logger.Warn("Kubecost data is empty, returning fallback cost.")
		return FallbackMonthlyCost
	}

	total := 0.0
	for _, item := range resp.Data {
		if item != nil {
			total += item.TotalCost
		}
	}
	if total == 0 {
		c.logger.Warn("Kubecost returned zero total cost, likely still warming up. Using fallback cost.")
		return FallbackMonthlyCost
	}
	return math.Round(total*100) / 100
}

// SavingsRecommendations returns Kubecost's savings hints, or nil on any failure
func (c *Client) SavingsRecommendations(ctx context.Context) []Recommendation {
	body, err := c.get(ctx, "/model/savings", nil)
	if err != nil {
		c.logger.Error("Failed to retrieve savings recommendations from Kubecost", zap.Error(err))
		return nil
	}

	var resp savingsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		c.logger.Error("Failed to retrieve savings recommendations from Kubecost", zap.Error(err))
		return nil
	}

	c.logger.Info("Retrieved savings recommendations from Kubecost", zap.Int("count", len(resp.Data)))
	return resp.Data
}

func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("kubecost returned status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}
