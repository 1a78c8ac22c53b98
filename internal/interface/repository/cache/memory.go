package cache

import (
	"context"
	"sync"

	"offlineproxy/internal/domain"
)

// MemoryStorage はプロセス内のキャッシュストレージ実装
type MemoryStorage struct {
	mu     sync.RWMutex
	caches map[string]*memoryCache
	order  []string
}

// Verify interface implementation
var (
	_ domain.CacheStorage = (*MemoryStorage)(nil)
	_ domain.Cache        = (*memoryCache)(nil)
)

// NewMemory は新しいMemoryStorageインスタンスを作成
func NewMemory() *MemoryStorage {
	return &MemoryStorage{
		caches: make(map[string]*memoryCache),
	}
}

// Open は名前のキャッシュを開く
func (s *MemoryStorage) Open(ctx context.Context, name string) (domain.Cache, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if c, exists := s.caches[name]; exists {
		return c, nil
	}

	c := &memoryCache{
		name:    name,
		entries: make(map[domain.RequestKey]*domain.StoredResponse),
	}
	s.caches[name] = c
	s.order = append(s.order, name)
	return c, nil
}

// Has はキャッシュの存在を確認
func (s *MemoryStorage) Has(_ context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.caches[name]
	return exists, nil
}

// Keys はキャッシュ名を作成順で返す
func (s *MemoryStorage) Keys(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, len(s.order))
	copy(names, s.order)
	return names, nil
}

// Delete はキャッシュ全体を削除
func (s *MemoryStorage) Delete(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.caches[name]; !exists {
		return false, nil
	}

	delete(s.caches, name)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true, nil
}

// Match は全キャッシュを作成順に検索
func (s *MemoryStorage) Match(ctx context.Context, key domain.RequestKey) (*domain.StoredResponse, bool, error) {
	s.mu.RLock()
	caches := make([]*memoryCache, 0, len(s.order))
	for _, name := range s.order {
		caches = append(caches, s.caches[name])
	}
	s.mu.RUnlock()

	for _, c := range caches {
		resp, ok, err := c.Match(ctx, key)
		if err != nil || ok {
			return resp, ok, err
		}
	}
	return nil, false, nil
}

// Close は何もしない
func (s *MemoryStorage) Close() error {
	return nil
}

type memoryCache struct {
	name    string
	mu      sync.RWMutex
	entries map[domain.RequestKey]*domain.StoredResponse
	order   []domain.RequestKey
}

func (c *memoryCache) Name() string {
	return c.name
}

func (c *memoryCache) Match(_ context.Context, key domain.RequestKey) (*domain.StoredResponse, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	resp, exists := c.entries[key]
	return resp, exists, nil
}

func (c *memoryCache) Put(ctx context.Context, key domain.RequestKey, resp *domain.StoredResponse) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// 既存キーの上書きでは順序を維持する
	if _, exists := c.entries[key]; !exists {
		c.order = append(c.order, key)
	}
	c.entries[key] = resp
	return nil
}

func (c *memoryCache) Delete(ctx context.Context, key domain.RequestKey) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists {
		return false, nil
	}

	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return true, nil
}

func (c *memoryCache) Keys(_ context.Context) ([]domain.RequestKey, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]domain.RequestKey, len(c.order))
	copy(keys, c.order)
	return keys, nil
}
