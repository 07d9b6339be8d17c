package server

import (
	"sync"

	"github.com/gosub-com/gosubweb/pkg/connio"
	"github.com/gosub-com/gosubweb/pkg/stats"
)

// pool is the connection pipeline's reader/writer free list: an
// unbounded LIFO under a single mutex, push/pop at the tail, never a
// fixed-size ring.
type pool struct {
	mu      sync.Mutex
	readers []*connio.Reader
	writers []*connio.Writer
	stats   *stats.Counters
}

func newPool(counters *stats.Counters) *pool {
	return &pool{stats: counters}
}

// acquire pops a pooled Reader/Writer pair, or allocates a fresh one if
// the pool is empty.
func (p *pool) acquire() (*connio.Reader, *connio.Writer) {
	p.mu.Lock()
	var reader *connio.Reader
	var writer *connio.Writer
	if n := len(p.readers); n > 0 {
		reader = p.readers[n-1]
		p.readers = p.readers[:n-1]
		p.stats.DecPooledBuffers()
	}
	if n := len(p.writers); n > 0 {
		writer = p.writers[n-1]
		p.writers = p.writers[:n-1]
	}
	p.mu.Unlock()

	if reader == nil {
		reader = connio.NewReader()
	}
	if writer == nil {
		writer = connio.NewWriter()
	}
	return reader, writer
}

// release resets the Reader and returns the Reader/Writer pair to the
// pool once their connection has closed (the Writer is rebound by Reset
// when the next connection uses it). Always called, even on failure, so a reader's
// 16 KiB buffer survives to the next connection.
func (p *pool) release(reader *connio.Reader, writer *connio.Writer) {
	reader.Reset()

	p.mu.Lock()
	p.readers = append(p.readers, reader)
	p.writers = append(p.writers, writer)
	p.stats.IncPooledBuffers()
	p.mu.Unlock()
}
