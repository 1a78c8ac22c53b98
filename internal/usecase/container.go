package usecase

import (
	"context"
	"reflect"
	"sync"

	"offlineproxy/internal/domain"
)

// Container は有効なワーカーを保持し, 新しいバージョンの登録を担当する
type Container struct {
	deps Dependencies

	// register は登録処理を直列化する
	register sync.Mutex

	mu     sync.RWMutex
	active *Worker
}

// NewContainer は新しいContainerインスタンスを作成
func NewContainer(deps Dependencies) *Container {
	if deps.Tasks == nil {
		deps.Tasks = &sync.WaitGroup{}
	}
	return &Container{deps: deps}
}

// Active は現在有効なワーカーを返す. 存在しなければ nil.
func (c *Container) Active() *Worker {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active
}

// Register はマニフェストからワーカーを作成し, インストール後すぐに有効化する.
// インストールに失敗した場合は以前のワーカーが有効なまま残る.
// 有効なワーカーと同じマニフェストの場合は何もしない.
func (c *Container) Register(ctx context.Context, manifest domain.Manifest) (*Worker, error) {
	c.register.Lock()
	defer c.register.Unlock()

	if err := manifest.Normalize(); err != nil {
		return nil, err
	}

	if current := c.Active(); current != nil && reflect.DeepEqual(current.Manifest(), manifest) {
		c.deps.Logger.Debug("Manifest unchanged, skipping update", map[string]interface{}{
			"version": manifest.Version,
		})
		return current, nil
	}

	worker, err := NewWorker(manifest, c.deps)
	if err != nil {
		return nil, err
	}

	if err := worker.Install(ctx); err != nil {
		return nil, err
	}

	// 待機せずに即座に切り替える
	c.mu.Lock()
	previous := c.active
	c.active = worker
	c.mu.Unlock()

	if previous != nil {
		previous.retire()
	}

	if err := worker.Activate(ctx); err != nil {
		c.deps.Logger.Warn("Activation completed with errors", map[string]interface{}{
			"version": manifest.Version,
			"error":   err.Error(),
		})
	}

	return worker, nil
}

// Wait は全ワーカーのバックグラウンド処理の完了を待つ
func (c *Container) Wait() {
	c.deps.Tasks.Wait()
}

// Storage はワーカーが共有するキャッシュストレージを返す
func (c *Container) Storage() domain.CacheStorage {
	return c.deps.Storage
}
