package orchestrator

import (
	"sync"

	contractx "github.com/vaani-ai/voice-sales-agent/agent/contract"
)

// leadCache keeps the CRM fields needed to place a call (name, phone)
// keyed by lead id, so dialing never blocks on a CRM round trip.
type leadCache struct {
	mu   sync.RWMutex
	byID map[string]contractx.Lead
}

func newLeadCache() *leadCache {
	return &leadCache{byID: make(map[string]contractx.Lead)}
}

func (c *leadCache) put(lead contractx.Lead) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byID[lead.ID] = lead
}

func (c *leadCache) get(leadID string) (contractx.Lead, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	lead, ok := c.byID[leadID]
	return lead, ok
}
