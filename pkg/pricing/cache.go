package pricing

import (
	"sync"
	"time"

	"github.com/opscart/k8s-cost-agent/pkg/models"
)

// PriceCache caches rate lookups to reduce pricing API calls
type PriceCache struct {
	data  map[string]*cacheEntry
	ttl   time.Duration
	mutex sync.RWMutex
}

type cacheEntry struct {
	costInfo  *models.CostInfo
	expiresAt time.Time
}

func NewPriceCache(ttl time.Duration) *PriceCache {
	return &PriceCache{
		data: make(map[string]*cacheEntry),
		ttl:  ttl,
	}
}

// Get returns a copy of the cached rates, or nil when absent or expired
func (c *PriceCache) Get(key string) *models.CostInfo {
	c.mutex.RLock()
	entry, exists := c.data[key]
	c.mutex.RUnlock()

	if !exists {
		return nil
	}
	if time.Now().After(entry.expiresAt) {
		c.mutex.Lock()
		if current, ok := c.data[key]; ok && current == entry {
			delete(c.data, key)
		}
		c.mutex.Unlock()
		return nil
	}

	cp := *entry.costInfo
	return &cp
}

func (c *PriceCache) Set(key string, costInfo *models.CostInfo) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	cp := *costInfo
	c.data[key] = &cacheEntry{
		costInfo:  &cp,
		expiresAt: time.Now().Add(c.ttl),
	}
}

func (c *PriceCache) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.data = make(map[string]*cacheEntry)
}
