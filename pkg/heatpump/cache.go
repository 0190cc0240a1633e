package heatpump

import "sync"

// Cache holds the most recent reading for consumers outside the read path.
type Cache struct {
	data *Reading
	sync.RWMutex
}

func (c *Cache) Get() *Reading {
	c.RLock()
	defer c.RUnlock()
	return c.data
}

func (c *Cache) Set(d *Reading) {
	c.Lock()
	c.data = d
	c.Unlock()
}
