package main

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"offlineproxy/internal/domain"
	"offlineproxy/internal/interface/repository/cache"
	"offlineproxy/internal/interface/repository/logger"
	"offlineproxy/internal/interface/repository/manifest"
	"offlineproxy/internal/interface/repository/metrics"
	"offlineproxy/internal/interface/repository/network"
	"offlineproxy/internal/usecase"
)

// app はコマンド間で共有するコンポーネント
type app struct {
	cfg       *config
	logger    *logger.Repository
	storage   domain.CacheStorage
	metrics   *metrics.Repository
	manifests *manifest.Repository
	container *usecase.Container
}

func newApp(ctx context.Context, cfg *config) (*app, error) {
	if err := prepareDirectories(cfg); err != nil {
		return nil, err
	}

	opts, err := logger.OptionsFromEnv()
	if err != nil {
		return nil, err
	}
	loggerRepo, err := logger.New(cfg.logDir, "offlineproxy.log", logger.DefaultRotationConfig(), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	storage, err := openStorage(ctx, cfg)
	if err != nil {
		loggerRepo.Close()
		return nil, fmt.Errorf("failed to initialize cache storage: %w", err)
	}

	metricsRepo := metrics.New(filepath.Join(cfg.logDir, "metrics.json"))

	fetcher := network.New(network.Config{
		Upstream: cfg.upstream,
		Timeout:  cfg.fetchTimeout,
	}, loggerRepo)

	container := usecase.NewContainer(usecase.Dependencies{
		Storage: storage,
		Fetcher: fetcher,
		Metrics: metricsRepo,
		Logger:  loggerRepo,
		Tasks:   &sync.WaitGroup{},
	})

	loggerRepo.Info("Initialized", map[string]interface{}{
		"storage":  cfg.storage,
		"manifest": cfg.manifestPath,
		"version":  Version,
	})

	return &app{
		cfg:       cfg,
		logger:    loggerRepo,
		storage:   storage,
		metrics:   metricsRepo,
		manifests: manifest.New(cfg.manifestPath, loggerRepo),
		container: container,
	}, nil
}

func openStorage(ctx context.Context, cfg *config) (domain.CacheStorage, error) {
	switch cfg.storage {
	case "memory":
		return cache.NewMemory(), nil
	case "redis":
		return cache.OpenRedis(ctx, cfg.redisURL, cfg.redisNamespace)
	default:
		return cache.OpenSQLite(filepath.Join(cfg.cacheDir, "caches.db"))
	}
}

// register はマニフェストを読み込んでワーカーを登録する
func (a *app) register(ctx context.Context) (*usecase.Worker, error) {
	m, err := a.manifests.Load()
	if err != nil {
		return nil, err
	}
	return a.container.Register(ctx, *m)
}

// installInBackground は register を別ゴルーチンで実行し, その完了を待つ関数を返す.
// 失敗はログに残すだけで中継は続ける.
func (a *app) installInBackground(ctx context.Context) (wait func()) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := a.register(ctx); err != nil {
			a.logger.Error("Initial install failed", err, nil)
		}
	}()
	return wg.Wait
}

func (a *app) Close() {
	if err := a.manifests.Close(); err != nil {
		a.logger.Error("Failed to stop manifest watcher", err, nil)
	}
	a.container.Wait()
	if err := a.storage.Close(); err != nil {
		a.logger.Error("Failed to close cache storage", err, nil)
	}
	a.logger.Close()
}
