package usecase

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"golang.org/x/sync/errgroup"

	"offlineproxy/internal/domain"
)

// WorkerState はワーカーのライフサイクル状態
type WorkerState string

const (
	StateParsed     WorkerState = "parsed"
	StateInstalling WorkerState = "installing"
	StateInstalled  WorkerState = "installed"
	StateActivating WorkerState = "activating"
	StateActivated  WorkerState = "activated"
	StateRedundant  WorkerState = "redundant"
)

// Dependencies はワーカーが利用する外部コンポーネント
type Dependencies struct {
	Storage domain.CacheStorage
	Fetcher domain.Fetcher
	Metrics domain.MetricsCollector
	Logger  domain.Logger
	// Tasks はバックグラウンド処理の追跡用. nil の場合はワーカーごとに作成する
	Tasks *sync.WaitGroup
}

// Worker は1つのマニフェストバージョンに対応するキャッシュワーカー
type Worker struct {
	manifest domain.Manifest
	scope    *url.URL
	storage  domain.CacheStorage
	fetcher  domain.Fetcher
	metrics  domain.MetricsCollector
	logger   domain.Logger
	tasks    *sync.WaitGroup

	mu      sync.RWMutex
	state   WorkerState
	claimed bool
}

// NewWorker は新しいWorkerインスタンスを作成
func NewWorker(manifest domain.Manifest, deps Dependencies) (*Worker, error) {
	if err := manifest.Normalize(); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	scope, err := manifest.ScopeURL()
	if err != nil {
		return nil, err
	}

	tasks := deps.Tasks
	if tasks == nil {
		tasks = &sync.WaitGroup{}
	}

	return &Worker{
		manifest: manifest,
		scope:    scope,
		storage:  deps.Storage,
		fetcher:  deps.Fetcher,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
		tasks:    tasks,
		state:    StateParsed,
	}, nil
}

// Manifest はワーカーのマニフェストを返す
func (w *Worker) Manifest() domain.Manifest {
	return w.manifest
}

// State は現在の状態を返す
func (w *Worker) State() WorkerState {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

// Claimed はクライアントを制御しているかどうか
func (w *Worker) Claimed() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.claimed
}

func (w *Worker) setState(state WorkerState) {
	w.mu.Lock()
	w.state = state
	w.mu.Unlock()
}

// Wait はバックグラウンド処理の完了を待つ
func (w *Worker) Wait() {
	w.tasks.Wait()
}

// Install はコアアセットをすべて取得してからコアキャッシュに保存する.
// 1つでも取得できなければ何も保存せずに失敗する.
func (w *Worker) Install(ctx context.Context) error {
	w.setState(StateInstalling)
	w.logger.Info("Installing worker", map[string]interface{}{
		"version": w.manifest.Version,
		"cache":   w.manifest.CoreCacheName(),
		"assets":  len(w.manifest.CoreAssets),
	})

	if err := w.precache(ctx); err != nil {
		w.setState(StateRedundant)
		w.metrics.RecordInstall(false)
		w.logger.Error("Install failed", err, map[string]interface{}{
			"version": w.manifest.Version,
		})
		return err
	}

	w.setState(StateInstalled)
	w.metrics.RecordInstall(true)
	w.logger.Info("Worker installed", map[string]interface{}{
		"version": w.manifest.Version,
	})
	return nil
}

func (w *Worker) precache(ctx context.Context) error {
	requests := make([]*domain.Request, len(w.manifest.CoreAssets))
	for i, asset := range w.manifest.CoreAssets {
		u, err := w.manifest.Resolve(asset)
		if err != nil {
			return w.installError(asset, err)
		}
		requests[i] = &domain.Request{
			Method: http.MethodGet,
			URL:    u,
			Header: http.Header{},
			Mode:   domain.ModeSameOrigin,
		}
	}

	responses := make([]*domain.Response, len(requests))
	g, gctx := errgroup.WithContext(ctx)
	for i, req := range requests {
		g.Go(func() error {
			w.metrics.RecordNetworkFetch()
			resp, err := w.fetcher.Fetch(gctx, req)
			if err != nil {
				return w.installError(w.manifest.CoreAssets[i], err)
			}
			if !resp.OK() {
				return w.installError(w.manifest.CoreAssets[i],
					&domain.ErrBadStatus{URL: req.URL.String(), Status: resp.Status})
			}
			responses[i] = resp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	cache, err := w.storage.Open(ctx, w.manifest.CoreCacheName())
	if err != nil {
		return w.installError("", err)
	}

	stored := make([]domain.RequestKey, 0, len(requests))
	for i, req := range requests {
		key := domain.KeyFor(req)
		if err := cache.Put(ctx, key, domain.NewStoredResponse(responses[i])); err != nil {
			w.rollback(cache, stored)
			return w.installError(w.manifest.CoreAssets[i], err)
		}
		stored = append(stored, key)
	}
	return nil
}

// rollback は途中まで保存したエントリを削除する
func (w *Worker) rollback(cache domain.Cache, keys []domain.RequestKey) {
	ctx := context.Background()
	for _, key := range keys {
		if _, err := cache.Delete(ctx, key); err != nil {
			w.logger.Warn("Failed to roll back precached entry", map[string]interface{}{
				"key":   key.String(),
				"error": err.Error(),
			})
		}
	}
}

func (w *Worker) installError(asset string, err error) error {
	return &domain.ErrInstallFailed{Version: w.manifest.Version, Asset: asset, Err: err}
}

// Activate は現在のコア/ランタイムキャッシュ以外を削除し, クライアントを制御下に置く.
// 古いキャッシュの削除に失敗してもワーカーは有効化される.
func (w *Worker) Activate(ctx context.Context) error {
	w.mu.Lock()
	if w.state == StateRedundant {
		w.mu.Unlock()
		return domain.ErrWorkerRedundant
	}
	if w.state != StateInstalled {
		state := w.state
		w.mu.Unlock()
		return fmt.Errorf("cannot activate worker in state %s", state)
	}
	w.state = StateActivating
	w.mu.Unlock()

	cleanupErr := w.deleteStaleCaches(ctx)

	w.mu.Lock()
	w.state = StateActivated
	w.claimed = true
	w.mu.Unlock()

	w.logger.Info("Worker activated", map[string]interface{}{
		"version": w.manifest.Version,
	})

	if cleanupErr != nil {
		return fmt.Errorf("failed to delete stale caches: %w", cleanupErr)
	}
	return nil
}

func (w *Worker) deleteStaleCaches(ctx context.Context) error {
	names, err := w.storage.Keys(ctx)
	if err != nil {
		return err
	}

	keep := map[string]bool{
		w.manifest.CoreCacheName():    true,
		w.manifest.RuntimeCacheName(): true,
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, name := range names {
		if keep[name] {
			continue
		}
		g.Go(func() error {
			if _, err := w.storage.Delete(gctx, name); err != nil {
				return fmt.Errorf("delete cache %s: %w", name, err)
			}
			w.logger.Info("Deleted stale cache", map[string]interface{}{
				"cache": name,
			})
			return nil
		})
	}
	return g.Wait()
}

// retire は新しいワーカーに置き換えられたワーカーを不要状態にする
func (w *Worker) retire() {
	w.mu.Lock()
	w.state = StateRedundant
	w.claimed = false
	w.mu.Unlock()
}
