// Package depcache persists the dependency sets of source files between runs.
package depcache

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"
)

// Record is what is known about a single source file
type Record struct {
	Hash uint64   `json:"hash"`
	Deps []string `json:"deps"` // transitive includes, sorted
}

// CorruptError reports persisted state that could not be trusted. The whole
// cache is discarded when it occurs.
type CorruptError struct {
	Path string
	Err  error
}

func (e *CorruptError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("corrupt dependency cache: %v", e.Err)
	}
	return fmt.Sprintf("corrupt dependency cache %s: %v", e.Path, e.Err)
}

func (e *CorruptError) Unwrap() error { return e.Err }

// Cache maps source files to their last known record. It is safe for
// concurrent use.
type Cache struct {
	mu      sync.RWMutex
	records map[string]Record
}

func New() *Cache {
	return &Cache{records: make(map[string]Record)}
}

// Parse reads a cache. Any malformed entry invalidates the entire cache.
func Parse(rdr io.Reader) (*Cache, error) {
	var raw map[string]map[string]json.RawMessage
	dec := json.NewDecoder(rdr)
	if err := dec.Decode(&raw); err != nil {
		return nil, &CorruptError{Err: err}
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, &CorruptError{Err: errors.New("unexpected data after the cache object")}
	}

	c := New()
	for file, fields := range raw {
		rec, err := parseRecord(fields)
		if err != nil {
			return nil, &CorruptError{Err: fmt.Errorf("entry %q: %w", file, err)}
		}
		c.records[file] = rec
	}
	return c, nil
}

func parseRecord(fields map[string]json.RawMessage) (Record, error) {
	var rec Record

	hash, ok := fields["hash"]
	if !ok || isNull(hash) {
		return rec, errors.New("missing hash")
	}
	if err := json.Unmarshal(hash, &rec.Hash); err != nil {
		return rec, fmt.Errorf("bad hash: %w", err)
	}

	deps, ok := fields["deps"]
	if !ok || isNull(deps) {
		return rec, errors.New("missing deps")
	}
	var list []*string
	if err := json.Unmarshal(deps, &list); err != nil {
		return rec, fmt.Errorf("bad deps: %w", err)
	}
	rec.Deps = make([]string, 0, len(list))
	for _, dep := range list {
		if dep == nil || *dep == "" {
			return rec, errors.New("empty dependency name")
		}
		rec.Deps = append(rec.Deps, *dep)
	}
	slices.Sort(rec.Deps)
	return rec, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// Load reads the cache stored at path. A missing file yields an empty cache
// and no error. On any other failure an empty, usable cache is returned
// together with the error so that the caller can warn and carry on.
func Load(path string) (*Cache, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return New(), nil
		}
		return New(), err
	}
	defer f.Close()

	c, err := Parse(bufio.NewReader(f))
	if err != nil {
		var cerr *CorruptError
		if errors.As(err, &cerr) {
			cerr.Path = path
		}
		return New(), err
	}
	return c, nil
}

// Save writes the whole cache to path, replacing it atomically
func (c *Cache) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename

	bufw := bufio.NewWriter(tmp)
	enc := json.NewEncoder(bufw)
	enc.SetIndent("", "  ")

	c.mu.RLock()
	err = enc.Encode(c.records)
	c.mu.RUnlock()
	if err == nil {
		err = bufw.Flush()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write dependency cache: %w", err)
	}

	return os.Rename(tmp.Name(), path)
}

// Get returns the record of file, if any
func (c *Cache) Get(file string) (Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.records[file]
	return rec, ok
}

// Put stores the record of file, replacing any previous one
func (c *Cache) Put(file string, rec Record) {
	if rec.Deps == nil {
		rec.Deps = []string{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records[file] = rec
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

// Paths returns the files with a record, sorted
func (c *Cache) Paths() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Sorted(maps.Keys(c.records))
}
