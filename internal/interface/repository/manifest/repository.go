package manifest

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"offlineproxy/internal/domain"
)

// reloadDelay はエディタの連続書き込みをまとめるための待ち時間
const reloadDelay = 200 * time.Millisecond

// Repository はYAMLファイルからマニフェストを読み込むリポジトリ実装
type Repository struct {
	mu      sync.Mutex
	path    string
	logger  domain.Logger
	watcher *fsnotify.Watcher
	done    chan struct{}
	loops   sync.WaitGroup
}

var _ domain.ManifestSource = (*Repository)(nil)

// New は新しいRepositoryインスタンスを作成
func New(path string, logger domain.Logger) *Repository {
	return &Repository{
		path:   path,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Load はマニフェストを読み込む. ファイルがなければデフォルトを書き出す
func (r *Repository) Load() (*domain.Manifest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, err := loadManifestFile(r.path)
	if err != nil {
		return nil, err
	}

	r.logger.Info("Loaded manifest", map[string]interface{}{
		"path":    r.path,
		"version": m.Version,
		"assets":  len(m.CoreAssets),
	})
	return m, nil
}

// Watch はファイルの変更を監視し, 読み込めた場合に onChange を呼ぶ
func (r *Repository) Watch(onChange func(*domain.Manifest)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	// リネームによる置き換えも検知するためディレクトリを監視する
	if err := watcher.Add(filepath.Dir(r.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", r.path, err)
	}

	r.mu.Lock()
	r.watcher = watcher
	r.mu.Unlock()

	r.loops.Add(1)
	go func() {
		defer r.loops.Done()
		r.watchLoop(watcher, onChange)
	}()
	return nil
}

func (r *Repository) watchLoop(watcher *fsnotify.Watcher, onChange func(*domain.Manifest)) {
	target := filepath.Clean(r.path)

	var timer *time.Timer
	reload := make(chan struct{}, 1)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(reloadDelay, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})

		case <-reload:
			m, err := r.Load()
			if err != nil {
				r.logger.Error("Error reloading manifest", err, map[string]interface{}{
					"path": r.path,
				})
				continue
			}
			onChange(m)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			r.logger.Error("Manifest watcher error", err, nil)

		case <-r.done:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

// Close は監視を停止し, 実行中の onChange が戻るまで待つ
func (r *Repository) Close() error {
	r.mu.Lock()
	select {
	case <-r.done:
		r.mu.Unlock()
		return nil
	default:
		close(r.done)
	}

	var err error
	if r.watcher != nil {
		err = r.watcher.Close()
	}
	r.mu.Unlock()

	// watchLoop は Load で mu を取るためロックを外してから待つ
	r.loops.Wait()
	return err
}
