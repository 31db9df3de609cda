package network

import (
	"sync"
	"time"

	"github.com/zeebo/blake3"
)

const (
	// defaultDedupTTL is the default time-to-live for seen frame hashes.
	defaultDedupTTL = 5 * time.Second

	// cleanupInterval is the interval between cleanup runs.
	cleanupInterval = 1 * time.Second
)

// Dedup remembers recently seen one-way frames so a repeated report is
// handled once. Entries expire after a TTL.
type Dedup struct {
	seen map[[32]byte]time.Time // seen maps frame hash to first sighting
	mu   sync.Mutex
	ttl  time.Duration
	stop chan struct{}
	wg   sync.WaitGroup
}

// NewDedup creates a tracker. A zero ttl uses the default.
func NewDedup(ttl time.Duration) *Dedup {
	if ttl <= 0 {
		ttl = defaultDedupTTL
	}

	d := &Dedup{
		seen: make(map[[32]byte]time.Time),
		ttl:  ttl,
		stop: make(chan struct{}),
	}

	d.wg.Add(1)
	go d.cleanupLoop()

	return d
}

// Check returns true if f was not seen within the TTL, and records it.
func (d *Dedup) Check(f Frame) bool {
	h := blake3.New()
	h.Write([]byte{byte(f.Kind)})
	h.Write(f.Payload)

	var key [32]byte
	h.Sum(key[:0])

	now := time.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	if ts, ok := d.seen[key]; ok && now.Sub(ts) < d.ttl {
		return false
	}

	d.seen[key] = now

	return true
}

// Len returns the number of remembered frames.
func (d *Dedup) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.seen)
}

// Close stops the cleanup goroutine.
func (d *Dedup) Close() {
	close(d.stop)
	d.wg.Wait()
}

// cleanupLoop drops expired entries every cleanupInterval.
func (d *Dedup) cleanupLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.cleanup(time.Now())
		case <-d.stop:
			return
		}
	}
}

// cleanup removes entries older than the TTL at now.
func (d *Dedup) cleanup(now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for key, ts := range d.seen {
		if now.Sub(ts) >= d.ttl {
			delete(d.seen, key)
		}
	}
}
