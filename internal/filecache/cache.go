// Package filecache caches the decoded contents of a JSON file for a fixed
// wall-clock window. There is no invalidation on file change: edits become
// visible once the cached value is older than the TTL.
package filecache

import (
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultTTL is how long a loaded file is served from memory.
const DefaultTTL = 60 * time.Second

// DecodeFunc turns raw file bytes into a value. It must return the zero/empty
// value on malformed input rather than failing.
type DecodeFunc[T any] func(data []byte) T

// EmptyFunc reports whether a cached value should be treated as absent.
// Empty values are never served from cache.
type EmptyFunc[T any] func(v T) bool

// Cache is a time-boxed cache over one file.
type Cache[T any] struct {
	decode DecodeFunc[T]
	empty  EmptyFunc[T]
	clock  clockwork.Clock
	ttl    time.Duration
	logger *slog.Logger

	mu       sync.Mutex
	path     string
	loadedAt time.Time
	data     T
}

// Option configures a Cache.
type Option func(*options)

type options struct {
	clock  clockwork.Clock
	ttl    time.Duration
	logger *slog.Logger
}

// WithClock sets the clock used to age entries.
func WithClock(c clockwork.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithTTL overrides DefaultTTL.
func WithTTL(d time.Duration) Option {
	return func(o *options) { o.ttl = d }
}

// WithLogger sets the logger used to report unreadable files.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New creates a cache for path.
func New[T any](path string, decode DecodeFunc[T], empty EmptyFunc[T], opts ...Option) *Cache[T] {
	o := options{ttl: DefaultTTL}
	for _, opt := range opts {
		opt(&o)
	}
	if o.clock == nil {
		o.clock = clockwork.NewRealClock()
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return &Cache[T]{
		decode: decode,
		empty:  empty,
		clock:  o.clock,
		ttl:    o.ttl,
		logger: o.logger,
		path:   path,
	}
}

// Load returns the cached value while it is fresh and non-empty, and
// re-reads the file otherwise. A failed read caches the empty value and
// restarts the window.
func (c *Cache[T]) Load() T {
	now := c.clock.Now()

	c.mu.Lock()
	if !c.empty(c.data) && now.Sub(c.loadedAt) < c.ttl {
		data := c.data
		c.mu.Unlock()
		return data
	}
	path := c.path
	c.mu.Unlock()

	var data T
	raw, err := os.ReadFile(path)
	if err != nil {
		c.logger.Debug("cached file unreadable", slog.String("path", path), slog.String("error", err.Error()))
		data = c.decode(nil)
	} else {
		data = c.decode(raw)
	}

	c.mu.Lock()
	c.loadedAt = now
	c.data = data
	c.mu.Unlock()

	return data
}

// Path returns the file being cached.
func (c *Cache[T]) Path() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.path
}

// SetPath points the cache at another file and drops the cached value.
func (c *Cache[T]) SetPath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.path = path
	c.reset()
}

// Reset drops the cached value.
func (c *Cache[T]) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset()
}

func (c *Cache[T]) reset() {
	var zero T
	c.data = zero
	c.loadedAt = time.Time{}
}
