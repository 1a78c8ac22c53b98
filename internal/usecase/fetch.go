package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"offlineproxy/internal/domain"
)

// HandleFetch はリクエストをインターセプトする.
// GET以外, または別オリジンのリクエストは handled=false を返し, 呼び出し側がそのままネットワークへ流す.
func (w *Worker) HandleFetch(ctx context.Context, req *domain.Request) (*domain.Response, bool, error) {
	if req.Method != http.MethodGet {
		return nil, false, nil
	}
	if !domain.SameOrigin(w.scope, req.URL) {
		return nil, false, nil
	}

	if w.manifest.IsRuntimePath(req.URL) {
		resp, err := w.cacheFirst(ctx, w.manifest.RuntimeCacheName(), req, w.trimRuntimeCache)
		return resp, true, err
	}

	resp, err := w.cacheFirst(ctx, w.manifest.CoreCacheName(), req, nil)
	if err == nil {
		return resp, true, nil
	}

	var netErr *domain.ErrNetwork
	if !errors.As(err, &netErr) || !req.IsNavigation() {
		return nil, true, err
	}

	fallback, fbErr := w.fallback(ctx)
	if fbErr != nil {
		return nil, true, fmt.Errorf("%w: %w", fbErr, err)
	}
	return fallback, true, nil
}

// cacheFirst はキャッシュにあればそれを返し, なければネットワークから取得して保存する.
// 200かつbasicのレスポンスのみ保存し, 保存後に afterStore を呼ぶ.
func (w *Worker) cacheFirst(
	ctx context.Context, cacheName string, req *domain.Request, afterStore func(),
) (*domain.Response, error) {
	cache, err := w.storage.Open(ctx, cacheName)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache %s: %w", cacheName, err)
	}

	key := domain.KeyFor(req)
	stored, ok, err := cache.Match(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to match %s: %w", key, err)
	}
	if ok {
		w.metrics.RecordCacheHit()
		return stored.ToResponse(), nil
	}
	w.metrics.RecordCacheMiss()

	w.metrics.RecordNetworkFetch()
	resp, err := w.fetcher.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}

	if resp.Cacheable() {
		if err := cache.Put(ctx, key, domain.NewStoredResponse(resp)); err != nil {
			w.metrics.RecordError()
			w.logger.Warn("Failed to store response", map[string]interface{}{
				"cache": cacheName,
				"key":   key.String(),
				"error": err.Error(),
			})
		} else if afterStore != nil {
			afterStore()
		}
	}

	return resp, nil
}

// fallback はオフライン時のナビゲーション用ページを全キャッシュから探す
func (w *Worker) fallback(ctx context.Context) (*domain.Response, error) {
	u, err := w.manifest.Resolve(w.manifest.FallbackPage)
	if err != nil {
		return nil, err
	}

	stored, ok, err := w.storage.Match(ctx, domain.GetKey(u.String()))
	if err != nil {
		return nil, fmt.Errorf("failed to match fallback page: %w", err)
	}
	if !ok {
		return nil, domain.ErrNoFallback
	}

	w.metrics.RecordFallback()
	w.logger.Info("Serving offline fallback", map[string]interface{}{
		"page": u.String(),
	})
	return stored.ToResponse(), nil
}

// trimRuntimeCache はランタイムキャッシュの削減をバックグラウンドで開始する.
// 失敗はレスポンスに影響しない. 置き換え済みのワーカーは削減しない.
func (w *Worker) trimRuntimeCache() {
	name := w.manifest.RuntimeCacheName()
	limit := w.manifest.RuntimeMaxEntries

	w.tasks.Add(1)
	go func() {
		defer w.tasks.Done()

		if w.State() == StateRedundant {
			return
		}

		evicted, err := TrimCache(context.Background(), w.storage, name, limit)
		if evicted > 0 {
			w.metrics.RecordEvictions(evicted)
		}
		if err != nil {
			w.logger.Debug("Runtime cache trim failed", map[string]interface{}{
				"cache": name,
				"error": err.Error(),
			})
		}
	}()
}
