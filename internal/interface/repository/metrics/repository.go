package metrics

import (
	"encoding/json"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"offlineproxy/internal/domain"
)

// Repository はメトリクスのリポジトリ実装
type Repository struct {
	mu             sync.Mutex
	metricsFile    string
	startTime      time.Time
	requests       int64
	bytes          int64
	cacheHits      int64
	cacheMisses    int64
	networkFetches int64
	bypassed       int64
	fallbacks      int64
	evictions      int64
	installs       int64
	failedInstalls int64
	errors         int64
}

// インターフェースの実装を検証
var _ domain.MetricsCollector = (*Repository)(nil)

// New は新しいRepositoryインスタンスを作成
func New(metricsFile string) *Repository {
	return &Repository{
		metricsFile: metricsFile,
		startTime:   time.Now(),
	}
}

// SaveMetrics はメトリクスをファイルに保存
func (r *Repository) SaveMetrics(snapshot *domain.MetricsSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}

	tempFile := r.metricsFile + ".tmp"
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return err
	}

	return os.Rename(tempFile, r.metricsFile)
}

// 以下、MetricsCollector インターフェースの実装
func (r *Repository) RecordRequest() {
	atomic.AddInt64(&r.requests, 1)
}

func (r *Repository) AddBytesTransferred(bytes int64) {
	atomic.AddInt64(&r.bytes, bytes)
}

func (r *Repository) RecordCacheHit() {
	atomic.AddInt64(&r.cacheHits, 1)
}

func (r *Repository) RecordCacheMiss() {
	atomic.AddInt64(&r.cacheMisses, 1)
}

func (r *Repository) RecordNetworkFetch() {
	atomic.AddInt64(&r.networkFetches, 1)
}

func (r *Repository) RecordBypass() {
	atomic.AddInt64(&r.bypassed, 1)
}

func (r *Repository) RecordFallback() {
	atomic.AddInt64(&r.fallbacks, 1)
}

func (r *Repository) RecordEvictions(n int) {
	atomic.AddInt64(&r.evictions, int64(n))
}

func (r *Repository) RecordInstall(ok bool) {
	if ok {
		atomic.AddInt64(&r.installs, 1)
		return
	}
	atomic.AddInt64(&r.failedInstalls, 1)
}

func (r *Repository) RecordError() {
	atomic.AddInt64(&r.errors, 1)
}

func (r *Repository) GetSnapshot() *domain.MetricsSnapshot {
	return &domain.MetricsSnapshot{
		Timestamp:        time.Now(),
		StartTime:        r.startTime,
		TotalRequests:    atomic.LoadInt64(&r.requests),
		BytesTransferred: atomic.LoadInt64(&r.bytes),
		CacheHits:        atomic.LoadInt64(&r.cacheHits),
		CacheMisses:      atomic.LoadInt64(&r.cacheMisses),
		NetworkFetches:   atomic.LoadInt64(&r.networkFetches),
		Bypassed:         atomic.LoadInt64(&r.bypassed),
		Fallbacks:        atomic.LoadInt64(&r.fallbacks),
		Evictions:        atomic.LoadInt64(&r.evictions),
		Installs:         atomic.LoadInt64(&r.installs),
		FailedInstalls:   atomic.LoadInt64(&r.failedInstalls),
		Errors:           atomic.LoadInt64(&r.errors),
		Uptime:           time.Since(r.startTime).String(),
	}
}
