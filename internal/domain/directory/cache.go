package directory

import (
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// doctorCache memoises doctor lookups by id. It is bounded in size and age;
// a nil cache is valid and never hits.
type doctorCache struct {
	lru *expirable.LRU[uuid.UUID, Doctor]
}

func newDoctorCache(size int, ttl time.Duration) *doctorCache {
	if size <= 0 {
		return nil
	}
	return &doctorCache{lru: expirable.NewLRU[uuid.UUID, Doctor](size, nil, ttl)}
}

func (c *doctorCache) get(id uuid.UUID) (*Doctor, bool) {
	if c == nil {
		return nil, false
	}
	d, ok := c.lru.Get(id)
	if !ok {
		return nil, false
	}
	return &d, true
}

func (c *doctorCache) add(d *Doctor) {
	if c == nil || d == nil {
		return
	}
	c.lru.Add(d.ID, *d)
}

func (c *doctorCache) remove(id uuid.UUID) {
	if c == nil {
		return
	}
	c.lru.Remove(id)
}

func (c *doctorCache) purge() {
	if c == nil {
		return
	}
	c.lru.Purge()
}

func (c *doctorCache) len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}
