package scheduler

import (
	"sync"
	"time"

	"github.com/samijaber1/aegis-budget/internal/eval"
	"github.com/samijaber1/aegis-budget/internal/policy"
)

// Snapshot is the outcome of one monitor tick
type Snapshot struct {
	Service        string                 `json:"service"`
	Reports        eval.ReportSet         `json:"reports"`
	Recommendation *policy.Recommendation `json:"recommendation"`
	UpdatedAt      time.Time              `json:"updated_at"`
	TTL            time.Duration          `json:"-"`
}

// IsStale returns true if the snapshot is older than its TTL
func (s *Snapshot) IsStale(now time.Time) bool {
	return s.TTL > 0 && now.Sub(s.UpdatedAt) > s.TTL
}

// ReportCache holds the latest snapshot and notifies subscribers of new ones
type ReportCache struct {
	mu          sync.RWMutex
	latest      *Snapshot
	subscribers map[chan *Snapshot]struct{}
}

// NewReportCache creates an empty cache
func NewReportCache() *ReportCache {
	return &ReportCache{
		subscribers: make(map[chan *Snapshot]struct{}),
	}
}

// Get returns the latest snapshot
func (c *ReportCache) Get() (*Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.latest, c.latest != nil
}

// Set stores snap and offers it to every subscriber.
// Slow subscribers miss intermediate snapshots.
func (c *ReportCache) Set(snap *Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.latest = snap
	for ch := range c.subscribers {
		select {
		case ch <- snap:
		default:
		}
	}
}

// Subscribe returns a channel receiving new snapshots and a function that
// unsubscribes and closes it
func (c *ReportCache) Subscribe() (<-chan *Snapshot, func()) {
	ch := make(chan *Snapshot, 1)

	c.mu.Lock()
	c.subscribers[ch] = struct{}{}
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subscribers, ch)
			c.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers returns the number of active subscribers
func (c *ReportCache) Subscribers() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.subscribers)
}
