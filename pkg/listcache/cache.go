// Package listcache provides a disk-backed cache of deployment directory
// listings. Deployment bundles are immutable, so entries never go stale;
// they are only evicted to bound the cache size.
package listcache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Key identifies one directory listing.
type Key struct {
	Deployment string `json:"deployment"`
	Root       string `json:"root"`
	Path       string `json:"path"`
}

func (k Key) id() string {
	sum := sha256.Sum256([]byte(k.Deployment + "\x00" + k.Root + "\x00" + k.Path))
	return hex.EncodeToString(sum[:])
}

// Entry is one child in a cached listing.
type Entry struct {
	Name string `json:"name"`
	Dir  bool   `json:"dir,omitempty"`
}

type record struct {
	Key     Key     `json:"key"`
	Entries []Entry `json:"entries"`
}

type item struct {
	key        Key
	localPath  string
	lastAccess time.Time
}

// Cache manages cached listings on disk.
type Cache struct {
	dir        string
	maxEntries int // 0 = unlimited

	mu    sync.Mutex
	items map[string]*item
}

// New opens a cache in dir, indexing any listings already there.
func New(dir string, maxEntries int) (*Cache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	c := &Cache{
		dir:        dir,
		maxEntries: maxEntries,
		items:      make(map[string]*item),
	}
	if err := c.load(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Cache) load() error {
	files, err := os.ReadDir(c.dir)
	if err != nil {
		return fmt.Errorf("read cache dir: %w", err)
	}
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
			continue
		}
		localPath := filepath.Join(c.dir, f.Name())
		rec, err := readRecord(localPath)
		if err != nil || rec.Key.id()+".json" != f.Name() {
			os.Remove(localPath)
			continue
		}
		info, err := f.Info()
		if err != nil {
			continue
		}
		c.items[rec.Key.id()] = &item{key: rec.Key, localPath: localPath, lastAccess: info.ModTime()}
	}
	return nil
}

func readRecord(path string) (*record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Get returns a cached listing.
func (c *Cache) Get(key Key) ([]Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	it, ok := c.items[key.id()]
	if !ok {
		return nil, false
	}
	rec, err := readRecord(it.localPath)
	if err != nil {
		os.Remove(it.localPath)
		delete(c.items, key.id())
		return nil, false
	}
	it.lastAccess = time.Now()
	if rec.Entries == nil {
		rec.Entries = []Entry{}
	}
	return rec.Entries, true
}

// Put stores a listing. Content is written atomically (temp file then rename).
func (c *Cache) Put(key Key, entries []Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := key.id()
	if _, exists := c.items[id]; !exists {
		for c.maxEntries > 0 && len(c.items) >= c.maxEntries {
			if !c.evictOldest() {
				break
			}
		}
	}

	data, err := json.Marshal(record{Key: key, Entries: entries})
	if err != nil {
		return fmt.Errorf("encode listing: %w", err)
	}

	localPath := filepath.Join(c.dir, id+".json")
	tempPath := localPath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("write listing: %w", err)
	}
	if err := os.Rename(tempPath, localPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("rename temp file: %w", err)
	}

	c.items[id] = &item{key: key, localPath: localPath, lastAccess: time.Now()}
	return nil
}

// Evict removes a listing from the cache.
func (c *Cache) Evict(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if it, ok := c.items[key.id()]; ok {
		os.Remove(it.localPath)
		delete(c.items, key.id())
	}
}

// Clear removes every listing.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for id, it := range c.items {
		os.Remove(it.localPath)
		delete(c.items, id)
	}
}

// Len returns the number of cached listings.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// evictOldest removes the least recently used listing. Caller holds mu.
func (c *Cache) evictOldest() bool {
	var oldestID string
	var oldest *item
	for id, it := range c.items {
		if oldest == nil || it.lastAccess.Before(oldest.lastAccess) {
			oldestID, oldest = id, it
		}
	}
	if oldest == nil {
		return false
	}
	os.Remove(oldest.localPath)
	delete(c.items, oldestID)
	return true
}
