package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ottosulin/claude-code-security-review/internal/parse"
)

// File is a directory of JSON entries, one per key.
type File struct {
	dir string
	ttl time.Duration
	now func() time.Time
}

// NewFile creates the file cache. If dir is empty, DefaultDir is used. A
// zero ttl keeps entries forever.
func NewFile(dir string, ttl time.Duration) (*File, error) {
	if dir == "" {
		d, err := DefaultDir()
		if err != nil {
			return nil, err
		}
		dir = d
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	return &File{dir: dir, ttl: ttl, now: time.Now}, nil
}

// Dir returns the cache directory path.
func (c *File) Dir() string { return c.dir }

// Enabled implements Cache.
func (c *File) Enabled() bool { return true }

// Get implements Cache. Expired entries are removed on read.
func (c *File) Get(_ context.Context, key string) (parse.Verdict, bool) {
	path := c.entryPath(key)
	entry, err := readEntry(path)
	if err != nil {
		return parse.Verdict{}, false
	}
	if c.expired(entry) {
		_ = os.Remove(path)
		return parse.Verdict{}, false
	}
	return entry.Verdict, true
}

// Put implements Cache. The entry is written to a temp file and renamed so
// concurrent readers never see a partial write.
func (c *File) Put(_ context.Context, key string, e Entry) error {
	e.Key = key
	if e.CreatedAt.IsZero() {
		e.CreatedAt = c.now()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshaling cache entry: %w", err)
	}
	tmp, err := os.CreateTemp(c.dir, ".entry-*")
	if err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing cache entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("writing cache entry: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.entryPath(key)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("writing cache entry: %w", err)
	}
	return nil
}

// Clear implements Cache.
func (c *File) Clear(_ context.Context) (int, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading cache directory: %w", err)
	}
	var removed int
	for _, e := range entries {
		if filepath.Ext(e.Name()) != ".json" {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, e.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}

// Stats implements Cache.
func (c *File) Stats(_ context.Context) (Stats, error) {
	stats := Stats{Backend: "file", Location: c.dir}
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return stats, nil
		}
		return stats, fmt.Errorf("reading cache directory: %w", err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) != ".json" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		stats.Entries++
		stats.TotalBytes += info.Size()

		entry, err := readEntry(filepath.Join(c.dir, e.Name()))
		if err != nil {
			continue
		}
		if c.expired(entry) {
			stats.Expired++
		}
	}
	return stats, nil
}

func (c *File) expired(e Entry) bool {
	return c.ttl > 0 && c.now().Sub(e.CreatedAt) > c.ttl
}

func (c *File) entryPath(key string) string {
	return filepath.Join(c.dir, key+".json")
}

func readEntry(path string) (Entry, error) {
	var entry Entry
	data, err := os.ReadFile(path)
	if err != nil {
		return entry, err
	}
	err = json.Unmarshal(data, &entry)
	return entry, err
}
