package models

import "time"

// CostInfo represents pricing information
type CostInfo struct {
	Provider         string    `json:"provider"`
	Region           string    `json:"region"`
	CPUCostPerCore   float64   `json:"cpu_cost_per_core"`   // $/core/month
	MemoryCostPerGiB float64   `json:"memory_cost_per_gib"` // $/GiB/month
	Currency         string    `json:"currency"`
	LastUpdated      time.Time `json:"last_updated"`
}

// MonthlyCost prices a request of cpuMillicores and memoryBytes
func (c *CostInfo) MonthlyCost(cpuMillicores, memoryBytes int64) float64 {
	cpuCores := float64(cpuMillicores) / 1000.0
	memoryGiB := float64(memoryBytes) / (1024.0 * 1024.0 * 1024.0)
	return (cpuCores * c.CPUCostPerCore) + (memoryGiB * c.MemoryCostPerGiB)
}
