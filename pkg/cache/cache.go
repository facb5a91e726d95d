// Package cache holds fetched API responses for the lifetime of one
// report run. Recipes frequently issue overlapping queries against the
// same endpoint; the cache answers exact repeats directly and derives
// narrower result sets locally when a new query only adds restrictions
// to one already fetched.
package cache

import (
	"fmt"
	"log/slog"

	"github.com/spaolacci/murmur3"

	"github.com/secreport/secreport/pkg/query"
)

// Stats counts cache traffic for run metadata.
type Stats struct {
	Entries    int `json:"entries"`
	Records    int `json:"records"`
	Hits       int `json:"hits"`
	SubsetHits int `json:"subset_hits"`
	Misses     int `json:"misses"`
}

type entry struct {
	endpoint string
	universe string
	filter   query.Filter
	records  []map[string]any
}

// Cache is scoped to a single run and not safe for concurrent use;
// the orchestrator processes recipes sequentially.
type Cache struct {
	entries map[string]*entry
	byEP    map[string][]string // endpoint -> keys, for subset scans
	stats   Stats
	logger  *slog.Logger
}

// New returns an empty cache. A nil logger falls back to slog.Default.
func New(logger *slog.Logger) *Cache {
	return &Cache{
		entries: make(map[string]*entry),
		byEP:    make(map[string][]string),
		logger:  orDefault(logger),
	}
}

func orDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}

// Key derives the cache key for a query: the endpoint plus a murmur3
// hash of the canonical JSON of its offset-free parameters.
func Key(cfg query.Config) (string, error) {
	identity, err := cfg.Identity()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%016x", cfg.Endpoint, murmur3.Sum64(identity)), nil
}

// universe canonicalizes cfg's non-filter parameters. A cached result
// may only subset-serve requests over the same universe: a different
// archived or sort selects a different record set upstream.
func universe(cfg query.Config) (string, error) {
	cfg.Params.Filter = ""
	identity, err := cfg.Identity()
	if err != nil {
		return "", err
	}
	return string(identity), nil
}

// Get returns cached records for cfg. An exact key match returns the
// stored records; otherwise every entry on the same endpoint and
// universe is tested for coverage: if cfg's filter equals the cached
// filter plus extra locally evaluable clauses, the subset is computed
// here instead of refetched. Anything ambiguous is a miss, never a
// guess.
//
// The returned slice is a copy; callers may mutate rows freely.
func (c *Cache) Get(cfg query.Config) ([]map[string]any, bool) {
	key, err := Key(cfg)
	if err != nil {
		c.stats.Misses++
		return nil, false
	}
	if e, ok := c.entries[key]; ok {
		c.stats.Hits++
		c.logger.Debug("cache hit", "endpoint", cfg.Endpoint, "records", len(e.records))
		return copyRecords(e.records), true
	}

	want, err := query.ParseFilter(cfg.Params.Filter)
	if err != nil {
		c.stats.Misses++
		return nil, false
	}
	uni, err := universe(cfg)
	if err != nil {
		c.stats.Misses++
		return nil, false
	}
	for _, k := range c.byEP[cfg.Endpoint] {
		e := c.entries[k]
		if e.universe != uni {
			continue
		}
		extra, ok := want.RestrictionOf(e.filter)
		if !ok {
			continue
		}
		out := make([]map[string]any, 0, len(e.records))
		for _, r := range e.records {
			if extra.Match(r) {
				out = append(out, r)
			}
		}
		c.stats.SubsetHits++
		c.logger.Debug("cache subset hit",
			"endpoint", cfg.Endpoint,
			"cached", len(e.records),
			"matched", len(out))
		return copyRecords(out), true
	}

	c.stats.Misses++
	return nil, false
}

// Put stores the records fetched for cfg. Filters that fail to parse
// are stored for exact reuse only.
func (c *Cache) Put(cfg query.Config, records []map[string]any) {
	key, err := Key(cfg)
	if err != nil {
		return
	}
	if _, exists := c.entries[key]; exists {
		return
	}
	f, err := query.ParseFilter(cfg.Params.Filter)
	if err != nil {
		// Unparseable filter: block the subset path for this entry.
		f = query.Filter{{Field: "\x00", Op: query.OpGe, Value: ""}}
	}
	uni, err := universe(cfg)
	if err != nil {
		return
	}
	c.entries[key] = &entry{
		endpoint: cfg.Endpoint,
		universe: uni,
		filter:   f,
		records:  copyRecords(records),
	}
	c.byEP[cfg.Endpoint] = append(c.byEP[cfg.Endpoint], key)
	c.stats.Entries = len(c.entries)
	c.stats.Records += len(records)
}

// Clear drops every entry but keeps the counters.
func (c *Cache) Clear() {
	c.entries = make(map[string]*entry)
	c.byEP = make(map[string][]string)
	c.stats.Entries = 0
	c.stats.Records = 0
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() Stats {
	return c.stats
}

func copyRecords(in []map[string]any) []map[string]any {
	out := make([]map[string]any, len(in))
	for i, r := range in {
		nr := make(map[string]any, len(r))
		for k, v := range r {
			nr[k] = v
		}
		out[i] = nr
	}
	return out
}
