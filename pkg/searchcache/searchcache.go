// Package searchcache implements the ambient, per-task Search Cache: a small
// gob-encoded record of recent search results, persisted atomically so a
// crash mid-write never corrupts it, and invalidated wholesale whenever a
// commit touches any file the cache currently references.
package searchcache

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/natefinch/atomic"
)

// Entry is one cached search result.
type Entry struct {
	Query       string
	FilePaths   []string
	ResultCount int
	CachedAt    time.Time
}

// document is the on-disk gob payload: a slice rather than a map, so
// iteration order for invalidation scans is deterministic.
type document struct {
	Entries []Entry
}

// Cache holds a task's search result cache. A persistent task's Cache is
// backed by a gob file at path; the ephemeral "default" task's Cache (path
// == "") lives only in memory and is never written to disk.
type Cache struct {
	mu      sync.Mutex
	path    string
	entries []Entry
}

// New creates a Cache persisted to path, loading any existing entries.
func New(path string) *Cache {
	c := &Cache{path: path}
	c.load()

	return c
}

// NewInMemory creates a Cache with no backing file, for the ephemeral
// "default" task.
func NewInMemory() *Cache {
	return &Cache{}
}

func (c *Cache) load() {
	if c.path == "" {
		return
	}

	data, err := os.ReadFile(c.path)
	if err != nil {
		return
	}

	var doc document

	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&doc); err != nil {
		return
	}

	c.entries = doc.Entries
}

// Put records a new search result, evicting any prior entry for the same
// query, and persists the cache.
func (c *Cache) Put(query string, filePaths []string, resultCount int, cachedAt time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := make([]Entry, 0, len(c.entries)+1)

	for _, e := range c.entries {
		if e.Query != query {
			next = append(next, e)
		}
	}

	next = append(next, Entry{
		Query:       query,
		FilePaths:   append([]string(nil), filePaths...),
		ResultCount: resultCount,
		CachedAt:    cachedAt,
	})

	c.entries = next

	return c.persist()
}

// Lookup returns the cached entry for query, if any.
func (c *Cache) Lookup(query string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, e := range c.entries {
		if e.Query == query {
			return e, true
		}
	}

	return Entry{}, false
}

// InvalidatePaths removes (and persists the removal of) every cached entry
// that references any of paths. Called after a commit touching those paths.
func (c *Cache) InvalidatePaths(paths []string) error {
	if len(paths) == 0 {
		return nil
	}

	touched := make(map[string]bool, len(paths))
	for _, p := range paths {
		touched[p] = true
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	next := make([]Entry, 0, len(c.entries))

	for _, e := range c.entries {
		if !entryTouches(e, touched) {
			next = append(next, e)
		}
	}

	if len(next) == len(c.entries) {
		return nil
	}

	c.entries = next

	return c.persist()
}

func entryTouches(e Entry, touched map[string]bool) bool {
	for _, p := range e.FilePaths {
		if touched[p] {
			return true
		}
	}

	return false
}

// Clear wipes every cached entry (e.g. on task reset) and persists the
// empty cache.
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = nil

	return c.persist()
}

// persist must be called with c.mu held.
func (c *Cache) persist() error {
	if c.path == "" {
		return nil
	}

	var buf bytes.Buffer

	if err := gob.NewEncoder(&buf).Encode(document{Entries: c.entries}); err != nil {
		return fmt.Errorf("encode search cache: %w", err)
	}

	if err := atomic.WriteFile(c.path, &buf); err != nil {
		return fmt.Errorf("persist search cache %q: %w", c.path, err)
	}

	return nil
}
