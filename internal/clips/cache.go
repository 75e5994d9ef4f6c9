package clips

import (
	"context"
	"fmt"
	"os"
	"time"

	cache "github.com/Code-Hex/go-generics-cache"
)

// CachingProber remembers probe results for files that have not changed.
// Entries are keyed on path, size and modification time.
type CachingProber struct {
	next  Prober
	ttl   time.Duration
	store *cache.Cache[string, Probe]
}

// NewCachingProber wraps next. A ttl of zero keeps entries until the
// process exits.
func NewCachingProber(next Prober, ttl time.Duration) *CachingProber {
	return &CachingProber{
		next:  next,
		ttl:   ttl,
		store: cache.New[string, Probe](),
	}
}

// ProbeClip returns a cached result or probes and stores it.
// Failures are not cached.
func (c *CachingProber) ProbeClip(ctx context.Context, path string) (Probe, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return Probe{}, err
	}
	key := fmt.Sprintf("%s|%d|%d", path, fi.Size(), fi.ModTime().UnixNano())

	if p, ok := c.store.Get(key); ok {
		return p, nil
	}

	p, err := c.next.ProbeClip(ctx, path)
	if err != nil {
		return Probe{}, err
	}

	if c.ttl > 0 {
		c.store.Set(key, p, cache.WithExpiration(c.ttl))
	} else {
		c.store.Set(key, p)
	}
	return p, nil
}
