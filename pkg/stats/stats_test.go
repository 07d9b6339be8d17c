package stats

import (
	"sync"
	"testing"
)

func TestIncDec(t *testing.T) {
	c := New()
	c.IncAliveConnections()
	c.IncAliveConnections()
	c.DecAliveConnections()
	snap := c.Snapshot()
	if snap.AliveConnections != 1 {
		t.Fatalf("expected 1 alive connection, got %d", snap.AliveConnections)
	}
}

func TestLifetimeCountersNeverDecrement(t *testing.T) {
	c := New()
	c.IncLifetimeConnects()
	c.IncLifetimeHits()
	c.IncLifetimeHits()
	snap := c.Snapshot()
	if snap.LifetimeConnects != 1 || snap.LifetimeHits != 2 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestConcurrentIncrements(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.IncLifetimeHits()
		}()
	}
	wg.Wait()
	if got := c.Snapshot().LifetimeHits; got != 100 {
		t.Fatalf("expected 100, got %d", got)
	}
}

func TestSnapshotStampsTimestamp(t *testing.T) {
	c := New()
	snap := c.Snapshot()
	if snap.Timestamp.IsZero() {
		t.Fatalf("expected non-zero timestamp")
	}
}
