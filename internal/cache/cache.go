// Package cache holds rendered API responses keyed by snapshot and request.
// Keys embed the snapshot ID, so publishing a new snapshot makes old entries
// unreachable without an explicit flush.
package cache

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
)

// Cache stores opaque response bodies. Implementations are safe for
// concurrent use and treat backend failures as misses.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, data []byte)
	// InvalidatePrefix drops every entry whose key starts with prefix.
	InvalidatePrefix(ctx context.Context, prefix string)
	Stats() Stats
}

// Stats contains cache performance statistics.
type Stats struct {
	Driver     string  `json:"driver"`
	Entries    int     `json:"entries"`
	MaxEntries int     `json:"max_entries"`
	Hits       int64   `json:"hits"`
	Misses     int64   `json:"misses"`
	HitRate    float64 `json:"hit_rate"`
}

func hitRate(hits, misses int64) float64 {
	if total := hits + misses; total > 0 {
		return float64(hits) / float64(total)
	}
	return 0
}

// Options selects and sizes a backend.
type Options struct {
	Driver     string // memory, redis or none
	MaxEntries int
	TTL        time.Duration
	RedisURL   string
}

// New returns the cache for opts.Driver.
func New(opts Options) (Cache, error) {
	switch opts.Driver {
	case "", "memory":
		return NewLRU(opts.MaxEntries, opts.TTL), nil
	case "redis":
		return NewRedisFromURL(opts.RedisURL, opts.TTL)
	case "none":
		return Nop{}, nil
	default:
		return nil, eris.Errorf("cache: unknown driver %q", opts.Driver)
	}
}

// Nop never stores anything.
type Nop struct{}

func (Nop) Get(context.Context, string) ([]byte, bool) { return nil, false }

func (Nop) Set(context.Context, string, []byte) {}

func (Nop) InvalidatePrefix(context.Context, string) {}

func (Nop) Stats() Stats { return Stats{Driver: "none"} }
