package usecase

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"path/filepath"
	"sync"
	"testing"

	"offlineproxy/internal/domain"
	"offlineproxy/internal/interface/repository/cache"
	"offlineproxy/internal/interface/repository/logger"
	"offlineproxy/internal/interface/repository/metrics"
)

const testScope = "https://example.test/app/"

// fakeFetcher はURLごとに固定のレスポンスを返し, 呼び出し回数を数える
type fakeFetcher struct {
	mu        sync.Mutex
	responses map[string]*domain.Response
	offline   bool
	calls     int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{responses: make(map[string]*domain.Response)}
}

// serve はURLに200 basicのレスポンスを登録する
func (f *fakeFetcher) serve(rawURL, body string) {
	f.set(rawURL, &domain.Response{
		Status: http.StatusOK,
		Header: http.Header{"Content-Type": {"text/plain"}},
		Body:   []byte(body),
		Type:   domain.TypeBasic,
		URL:    rawURL,
	})
}

func (f *fakeFetcher) set(rawURL string, resp *domain.Response) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[rawURL] = resp
}

func (f *fakeFetcher) setOffline(offline bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offline = offline
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeFetcher) Fetch(_ context.Context, req *domain.Request) (*domain.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++

	if f.offline {
		return nil, &domain.ErrNetwork{URL: req.URL.String(), Err: errors.New("offline")}
	}

	resp, ok := f.responses[req.URL.String()]
	if !ok {
		return &domain.Response{
			Status: http.StatusNotFound,
			Header: http.Header{},
			Type:   domain.TypeBasic,
			URL:    req.URL.String(),
		}, nil
	}

	copied := *resp
	copied.Header = resp.Header.Clone()
	return &copied, nil
}

func testManifest(version string) domain.Manifest {
	return domain.Manifest{
		Version:           version,
		CachePrefix:       "ball-maze",
		Scope:             testScope,
		CoreAssets:        []string{"./", "./index.html"},
		RuntimePathPrefix: "/app/music/",
		RuntimeMaxEntries: 8,
	}
}

type testEnv struct {
	storage *cache.MemoryStorage
	fetcher *fakeFetcher
	metrics *metrics.Repository
	deps    Dependencies
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	storage := cache.NewMemory()
	fetcher := newFakeFetcher()
	fetcher.serve(testScope, "<html>home</html>")
	fetcher.serve(testScope+"index.html", "<html>home</html>")

	metricsRepo := metrics.New(filepath.Join(t.TempDir(), "metrics.json"))

	return &testEnv{
		storage: storage,
		fetcher: fetcher,
		metrics: metricsRepo,
		deps: Dependencies{
			Storage: storage,
			Fetcher: fetcher,
			Metrics: metricsRepo,
			Logger:  logger.NewNop(),
			Tasks:   &sync.WaitGroup{},
		},
	}
}

// installedWorker はインストールと有効化を済ませたワーカーを返す
func (e *testEnv) installedWorker(t *testing.T, manifest domain.Manifest) *Worker {
	t.Helper()

	w, err := NewWorker(manifest, e.deps)
	if err != nil {
		t.Fatalf("NewWorker() error = %v", err)
	}
	if err := w.Install(context.Background()); err != nil {
		t.Fatalf("Install() error = %v", err)
	}
	if err := w.Activate(context.Background()); err != nil {
		t.Fatalf("Activate() error = %v", err)
	}
	return w
}

func getRequest(t *testing.T, rawURL string, mode domain.RequestMode) *domain.Request {
	t.Helper()

	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("url.Parse(%q) error = %v", rawURL, err)
	}
	return &domain.Request{
		Method: http.MethodGet,
		URL:    u,
		Header: http.Header{},
		Mode:   mode,
	}
}

func cacheKeys(t *testing.T, storage domain.CacheStorage, name string) []string {
	t.Helper()

	c, err := storage.Open(context.Background(), name)
	if err != nil {
		t.Fatalf("Open(%s) error = %v", name, err)
	}
	keys, err := c.Keys(context.Background())
	if err != nil {
		t.Fatalf("Keys() error = %v", err)
	}

	urls := make([]string, len(keys))
	for i, k := range keys {
		urls[i] = k.URL
	}
	return urls
}
