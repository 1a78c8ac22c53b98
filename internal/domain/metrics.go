package domain

import (
	"fmt"
	"strings"
	"time"
)

// MetricsCollector はメトリクス収集のインターフェース
type MetricsCollector interface {
	RecordRequest()
	RecordCacheHit()
	RecordCacheMiss()
	RecordNetworkFetch()
	RecordBypass()
	RecordFallback()
	RecordEvictions(n int)
	RecordInstall(ok bool)
	RecordError()
	AddBytesTransferred(bytes int64)
	GetSnapshot() *MetricsSnapshot
}

// MetricsSnapshot はメトリクスのスナップショットを表す
type MetricsSnapshot struct {
	Timestamp        time.Time `json:"timestamp"`
	StartTime        time.Time `json:"start_time"`
	TotalRequests    int64     `json:"total_requests"`
	BytesTransferred int64     `json:"bytes_transferred"`
	CacheHits        int64     `json:"cache_hits"`
	CacheMisses      int64     `json:"cache_misses"`
	NetworkFetches   int64     `json:"network_fetches"`
	Bypassed         int64     `json:"bypassed_requests"`
	Fallbacks        int64     `json:"fallback_responses"`
	Evictions        int64     `json:"evictions"`
	Installs         int64     `json:"installs"`
	FailedInstalls   int64     `json:"failed_installs"`
	Errors           int64     `json:"errors"`
	Uptime           string    `json:"uptime"`
}

// ToPrometheusFormat はメトリクスをPrometheus形式にフォーマット
func (ms *MetricsSnapshot) ToPrometheusFormat() string {
	type metric struct {
		name, help, kind string
		value            int64
	}

	list := []metric{
		{"offlineproxy_total_requests", "Total number of processed requests", "counter", ms.TotalRequests},
		{"offlineproxy_bytes_transferred", "Total number of response bytes written", "counter", ms.BytesTransferred},
		{"offlineproxy_cache_hits", "Total number of cache hits", "counter", ms.CacheHits},
		{"offlineproxy_cache_misses", "Total number of cache misses", "counter", ms.CacheMisses},
		{"offlineproxy_network_fetches", "Total number of origin fetches", "counter", ms.NetworkFetches},
		{"offlineproxy_bypassed_requests", "Total number of requests passed through untouched", "counter", ms.Bypassed},
		{"offlineproxy_fallback_responses", "Total number of offline fallback pages served", "counter", ms.Fallbacks},
		{"offlineproxy_evictions", "Total number of runtime cache entries evicted", "counter", ms.Evictions},
		{"offlineproxy_installs", "Total number of successful installs", "counter", ms.Installs},
		{"offlineproxy_failed_installs", "Total number of failed installs", "counter", ms.FailedInstalls},
		{"offlineproxy_errors", "Total number of errors", "counter", ms.Errors},
	}

	var metrics []string
	for _, m := range list {
		metrics = append(metrics, fmt.Sprintf("# HELP %s %s\n# TYPE %s %s\n%s %d",
			m.name, m.help, m.name, m.kind, m.name, m.value))
	}

	return strings.Join(metrics, "\n\n") + "\n"
}
