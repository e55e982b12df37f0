package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/paulpham157/neptune-fetcher/internal/infra/storage"
	"github.com/paulpham157/neptune-fetcher/internal/table"
)

type savedTable struct {
	table     *table.Table
	createdAt time.Time
}

type cachedPage struct {
	value     []byte
	expiresAt time.Time
}

// MemoryStorage keeps saved tables and cached pages in process memory.
type MemoryStorage struct {
	tables map[string]savedTable
	pages  map[string]cachedPage
	now    func() time.Time
	mu     sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		tables: make(map[string]savedTable),
		pages:  make(map[string]cachedPage),
		now:    time.Now,
	}
}

// -----------------------------------------------------------------------------
// Table Store
// -----------------------------------------------------------------------------

type TableRepo struct {
	store *MemoryStorage
}

func NewTableRepo(store *MemoryStorage) *TableRepo {
	return &TableRepo{store: store}
}

func (r *TableRepo) SaveTable(ctx context.Context, name string, t *table.Table) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.tables[name] = savedTable{table: t.Clone(), createdAt: r.store.now().UTC()}
	return nil
}

func (r *TableRepo) LoadTable(ctx context.Context, name string) (*table.Table, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	saved, ok := r.store.tables[name]
	if !ok {
		return nil, storage.ErrTableNotFound
	}
	return saved.table.Clone(), nil
}

func (r *TableRepo) ListTables(ctx context.Context) ([]storage.TableInfo, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	infos := make([]storage.TableInfo, 0, len(r.store.tables))
	for name, saved := range r.store.tables {
		infos = append(infos, storage.TableInfo{
			Name:      name,
			Rows:      len(saved.table.Rows),
			Columns:   len(saved.table.Columns),
			Nested:    saved.table.Nested,
			CreatedAt: saved.createdAt,
		})
	}
	slices.SortFunc(infos, func(a, b storage.TableInfo) int {
		return strings.Compare(a.Name, b.Name)
	})
	return infos, nil
}

func (r *TableRepo) DeleteTable(ctx context.Context, name string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	delete(r.store.tables, name)
	return nil
}

// -----------------------------------------------------------------------------
// Page Cache
// -----------------------------------------------------------------------------

type PageCache struct {
	store *MemoryStorage
}

func NewPageCache(store *MemoryStorage) *PageCache {
	return &PageCache{store: store}
}

func (c *PageCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.store.mu.RLock()
	page, ok := c.store.pages[key]
	c.store.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !page.expiresAt.IsZero() && !c.store.now().Before(page.expiresAt) {
		c.store.mu.Lock()
		delete(c.store.pages, key)
		c.store.mu.Unlock()
		return nil, false, nil
	}
	return slices.Clone(page.value), true, nil
}

// Set stores value under key. A zero ttl never expires.
func (c *PageCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	page := cachedPage{value: slices.Clone(value)}
	if ttl > 0 {
		page.expiresAt = c.store.now().Add(ttl)
	}
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	c.store.pages[key] = page
	return nil
}

func (c *PageCache) Purge(ctx context.Context, prefix string) (int, error) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	n := 0
	for key := range c.store.pages {
		if strings.HasPrefix(key, prefix) {
			delete(c.store.pages, key)
			n++
		}
	}
	return n, nil
}
