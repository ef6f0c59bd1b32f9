package mesh

import "time"

type seenKey struct {
	from uint32
	id   uint32
}

// seenCache remembers recently handled packets.
type seenCache struct {
	ttl       time.Duration
	entries   map[seenKey]time.Time
	lastPrune time.Time
}

const pruneEvery = time.Minute

func newSeenCache(ttl time.Duration) *seenCache {
	return &seenCache{ttl: ttl, entries: map[seenKey]time.Time{}}
}

// add records the packet and reports whether it was new.
func (c *seenCache) add(from, id uint32, now time.Time) bool {
	k := seenKey{from, id}
	if at, ok := c.entries[k]; ok && now.Sub(at) < c.ttl {
		return false
	}
	c.entries[k] = now
	return true
}

func (c *seenCache) prune(now time.Time) {
	if now.Sub(c.lastPrune) < pruneEvery {
		return
	}
	c.lastPrune = now
	for k, at := range c.entries {
		if now.Sub(at) >= c.ttl {
			delete(c.entries, k)
		}
	}
}

func (c *seenCache) len() int {
	return len(c.entries)
}
