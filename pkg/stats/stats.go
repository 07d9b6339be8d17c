// Package stats implements the server's monotonic counters: atomic
// increment/decrement fields that a Snapshot copies into an immutable
// value stamped with the capture time.
package stats

import (
	"sync/atomic"
	"time"
)

// Counters holds the live, mutable atomic fields. All mutation happens
// through the Inc*/Dec* methods; no field is ever read directly except
// by Snapshot.
type Counters struct {
	aliveConnections  int64
	pooledBuffers     int64
	lifetimeConnects  int64
	lifetimeHits      int64
	waitingForHeader  int64
	servingHTTPBody   int64
	servingWebsockets int64
}

// New returns a zeroed Counters instance.
func New() *Counters {
	return &Counters{}
}

func (c *Counters) IncAliveConnections() { atomic.AddInt64(&c.aliveConnections, 1) }
func (c *Counters) DecAliveConnections() { atomic.AddInt64(&c.aliveConnections, -1) }

func (c *Counters) IncPooledBuffers() { atomic.AddInt64(&c.pooledBuffers, 1) }
func (c *Counters) DecPooledBuffers() { atomic.AddInt64(&c.pooledBuffers, -1) }

func (c *Counters) IncLifetimeConnects() { atomic.AddInt64(&c.lifetimeConnects, 1) }
func (c *Counters) IncLifetimeHits()     { atomic.AddInt64(&c.lifetimeHits, 1) }

func (c *Counters) IncWaitingForHeader() { atomic.AddInt64(&c.waitingForHeader, 1) }
func (c *Counters) DecWaitingForHeader() { atomic.AddInt64(&c.waitingForHeader, -1) }

func (c *Counters) IncServingHTTPBody() { atomic.AddInt64(&c.servingHTTPBody, 1) }
func (c *Counters) DecServingHTTPBody() { atomic.AddInt64(&c.servingHTTPBody, -1) }

func (c *Counters) IncServingWebsockets() { atomic.AddInt64(&c.servingWebsockets, 1) }
func (c *Counters) DecServingWebsockets() { atomic.AddInt64(&c.servingWebsockets, -1) }

// Snapshot is an immutable point-in-time copy of the counters.
type Snapshot struct {
	Timestamp         time.Time `json:"timestamp"`
	AliveConnections  int64     `json:"alive_connections"`
	PooledBuffers     int64     `json:"pooled_buffers"`
	LifetimeConnects  int64     `json:"lifetime_connects"`
	LifetimeHits      int64     `json:"lifetime_hits"`
	WaitingForHeader  int64     `json:"waiting_for_header"`
	ServingHTTPBody   int64     `json:"serving_http_body"`
	ServingWebsockets int64     `json:"serving_websockets"`
}

// Snapshot copies the counters without holding a lock: readers accept
// per-field (but not cross-field) staleness, per the concurrency model.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		Timestamp:         time.Now().UTC(),
		AliveConnections:  atomic.LoadInt64(&c.aliveConnections),
		PooledBuffers:     atomic.LoadInt64(&c.pooledBuffers),
		LifetimeConnects:  atomic.LoadInt64(&c.lifetimeConnects),
		LifetimeHits:      atomic.LoadInt64(&c.lifetimeHits),
		WaitingForHeader:  atomic.LoadInt64(&c.waitingForHeader),
		ServingHTTPBody:   atomic.LoadInt64(&c.servingHTTPBody),
		ServingWebsockets: atomic.LoadInt64(&c.servingWebsockets),
	}
}
