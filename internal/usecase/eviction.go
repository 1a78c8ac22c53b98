package usecase

import (
	"context"
	"fmt"

	"offlineproxy/internal/domain"
)

// TrimCache はキャッシュのエントリ数が maxEntries 以下になるまで
// 最初に挿入された順(FIFO)で削除する. 削除した件数を返す.
// 上限内であれば何もしない. 空のキャッシュでもエラーにならない.
// 存在しないキャッシュは作成せずに 0 を返す.
func TrimCache(
	ctx context.Context, storage domain.CacheStorage, cacheName string, maxEntries int,
) (int, error) {
	if maxEntries < 0 {
		maxEntries = 0
	}

	exists, err := storage.Has(ctx, cacheName)
	if err != nil {
		return 0, fmt.Errorf("failed to check cache %s: %w", cacheName, err)
	}
	if !exists {
		return 0, nil
	}

	cache, err := storage.Open(ctx, cacheName)
	if err != nil {
		return 0, fmt.Errorf("failed to open cache %s: %w", cacheName, err)
	}

	keys, err := cache.Keys(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list keys of %s: %w", cacheName, err)
	}

	evicted := 0
	for len(keys) > maxEntries {
		deleted, err := cache.Delete(ctx, keys[0])
		if err != nil {
			return evicted, fmt.Errorf("failed to evict %s: %w", keys[0], err)
		}
		if deleted {
			evicted++
		}
		keys = keys[1:]
	}

	return evicted, nil
}
