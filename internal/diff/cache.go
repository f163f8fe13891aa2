package diff

import (
	"path/filepath"
	"strings"
	"sync"
	"time"

	"repostate/internal/model"
)

// CacheKey identifica o diff de um arquivo em um repositório.
type CacheKey struct {
	Repo   string
	Path   string
	Staged bool
}

func newCacheKey(repo string, path string, staged bool) CacheKey {
	return CacheKey{
		Repo:   filepath.Clean(strings.TrimSpace(repo)),
		Path:   strings.TrimSpace(path),
		Staged: staged,
	}
}

type cacheEntry struct {
	file       model.FileDiff
	options    Options
	cost       int64
	lastAccess time.Time
	seq        uint64
}

// Cache é um LRU limitado por custo em bytes, não por número de entradas.
// Get atualiza o último acesso; Set despeja o entry acessado há mais tempo
// até o novo caber no orçamento.
type Cache struct {
	mu      sync.Mutex
	budget  int64
	used    int64
	seq     uint64
	now     func() time.Time
	entries map[CacheKey]*cacheEntry
}

// NewCache cria um cache com orçamento de budget bytes.
func NewCache(budget int64) *Cache {
	return &Cache{
		budget:  budget,
		now:     time.Now,
		entries: make(map[CacheKey]*cacheEntry),
	}
}

// Get devolve o diff e as opções com que foi carregado.
func (c *Cache) Get(key CacheKey) (model.FileDiff, Options, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return model.FileDiff{}, Options{}, false
	}
	c.touch(entry)
	file := entry.file
	file.Hunks = append([]model.DiffHunk(nil), entry.file.Hunks...)
	return file, entry.options, true
}

// Set guarda file. Retorna false se o custo sozinho excede o orçamento.
func (c *Cache) Set(key CacheKey, file model.FileDiff, opts Options) bool {
	cost := file.Cost()

	c.mu.Lock()
	defer c.mu.Unlock()

	if previous, ok := c.entries[key]; ok {
		c.used -= previous.cost
		delete(c.entries, key)
	}
	if c.budget > 0 && cost > c.budget {
		return false
	}
	for c.budget > 0 && c.used+cost > c.budget && len(c.entries) > 0 {
		c.evictOldest()
	}

	entry := &cacheEntry{
		file:    file,
		options: opts,
		cost:    cost,
	}
	c.touch(entry)
	c.entries[key] = entry
	c.used += cost
	return true
}

// Remove descarta uma entrada.
func (c *Cache) Remove(key CacheKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.entries[key]; ok {
		c.used -= entry.cost
		delete(c.entries, key)
	}
}

// RemoveFile descarta as versões staged e unstaged de path.
func (c *Cache) RemoveFile(repo string, path string) {
	c.Remove(newCacheKey(repo, path, false))
	c.Remove(newCacheKey(repo, path, true))
}

// InvalidateRepo descarta todas as entradas de repo.
func (c *Cache) InvalidateRepo(repo string) {
	normalized := filepath.Clean(strings.TrimSpace(repo))

	c.mu.Lock()
	defer c.mu.Unlock()
	for key, entry := range c.entries {
		if key.Repo == normalized {
			c.used -= entry.cost
			delete(c.entries, key)
		}
	}
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Used retorna o custo somado das entradas.
func (c *Cache) Used() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.used
}

func (c *Cache) Budget() int64 {
	return c.budget
}

func (c *Cache) touch(entry *cacheEntry) {
	c.seq++
	entry.lastAccess = c.now()
	entry.seq = c.seq
}

// evictOldest remove o entry de menor último acesso. O seq desempata
// acessos no mesmo instante do relógio.
func (c *Cache) evictOldest() {
	var (
		oldestKey   CacheKey
		oldestEntry *cacheEntry
	)
	for key, entry := range c.entries {
		if oldestEntry == nil || entry.lastAccess.Before(oldestEntry.lastAccess) ||
			(entry.lastAccess.Equal(oldestEntry.lastAccess) && entry.seq < oldestEntry.seq) {
			oldestKey = key
			oldestEntry = entry
		}
	}
	if oldestEntry == nil {
		return
	}
	c.used -= oldestEntry.cost
	delete(c.entries, oldestKey)
}
