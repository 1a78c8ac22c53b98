package usecase

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"testing"

	"offlineproxy/internal/domain"
)

func TestWorkerInstallPrecachesCoreAssets(t *testing.T) {
	env := newTestEnv(t)
	w := env.installedWorker(t, testManifest("v1"))

	if got := w.State(); got != StateActivated {
		t.Errorf("State() = %s, want %s", got, StateActivated)
	}
	if !w.Claimed() {
		t.Error("Claimed() = false after activation")
	}

	got := cacheKeys(t, env.storage, "ball-maze-v1")
	want := []string{testScope, testScope + "index.html"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("core cache keys = %v, want %v", got, want)
	}

	// プリキャッシュ済みのアセットはオフラインでもネットワークを使わずに返る
	env.fetcher.setOffline(true)
	before := env.fetcher.callCount()
	for _, u := range want {
		resp, handled, err := w.HandleFetch(context.Background(), getRequest(t, u, domain.ModeNoCORS))
		if err != nil || !handled {
			t.Fatalf("HandleFetch(%s) = handled %v, err %v", u, handled, err)
		}
		if !resp.FromCache {
			t.Errorf("HandleFetch(%s) not served from cache", u)
		}
	}
	if calls := env.fetcher.callCount() - before; calls != 0 {
		t.Errorf("network calls after install = %d, want 0", calls)
	}

	if snap := env.metrics.GetSnapshot(); snap.Installs != 1 {
		t.Errorf("Installs = %d, want 1", snap.Installs)
	}
}

func TestWorkerInstallFailure(t *testing.T) {
	testCases := []struct {
		name   string
		setup  func(f *fakeFetcher)
		assert func(t *testing.T, err error)
	}{
		{
			"Missing asset",
			func(f *fakeFetcher) {
				f.set(testScope+"index.html", &domain.Response{
					Status: http.StatusNotFound,
					Type:   domain.TypeBasic,
				})
			},
			func(t *testing.T, err error) {
				var badStatus *domain.ErrBadStatus
				if !errors.As(err, &badStatus) {
					t.Fatalf("error = %v, want ErrBadStatus", err)
				}
				if badStatus.Status != http.StatusNotFound {
					t.Errorf("Status = %d, want 404", badStatus.Status)
				}
			},
		},
		{
			"Network failure",
			func(f *fakeFetcher) { f.setOffline(true) },
			func(t *testing.T, err error) {
				var netErr *domain.ErrNetwork
				if !errors.As(err, &netErr) {
					t.Fatalf("error = %v, want ErrNetwork", err)
				}
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			tc.setup(env.fetcher)

			w, err := NewWorker(testManifest("v1"), env.deps)
			if err != nil {
				t.Fatalf("NewWorker() error = %v", err)
			}

			err = w.Install(context.Background())
			var installErr *domain.ErrInstallFailed
			if !errors.As(err, &installErr) {
				t.Fatalf("Install() error = %v, want ErrInstallFailed", err)
			}
			if installErr.Version != "v1" {
				t.Errorf("Version = %q, want v1", installErr.Version)
			}
			tc.assert(t, err)

			if got := w.State(); got != StateRedundant {
				t.Errorf("State() = %s, want %s", got, StateRedundant)
			}
			if keys := cacheKeys(t, env.storage, "ball-maze-v1"); len(keys) != 0 {
				t.Errorf("core cache has %d entries after failed install, want 0", len(keys))
			}
			if err := w.Activate(context.Background()); !errors.Is(err, domain.ErrWorkerRedundant) {
				t.Errorf("Activate() error = %v, want ErrWorkerRedundant", err)
			}
			if snap := env.metrics.GetSnapshot(); snap.FailedInstalls != 1 {
				t.Errorf("FailedInstalls = %d, want 1", snap.FailedInstalls)
			}
		})
	}
}

func TestWorkerActivateDeletesStaleCaches(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for _, name := range []string{"ball-maze-v0", "ball-maze-music-v0", "unrelated"} {
		if _, err := env.storage.Open(ctx, name); err != nil {
			t.Fatalf("Open(%s) error = %v", name, err)
		}
	}
	runtime, _ := env.storage.Open(ctx, "ball-maze-music-v1")
	runtime.Put(ctx, domain.GetKey(testScope+"music/a.mp3"), &domain.StoredResponse{Status: 200})

	env.installedWorker(t, testManifest("v1"))

	names, err := env.storage.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys() error = %v", err)
	}
	want := []string{"ball-maze-music-v1", "ball-maze-v1"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("caches after activate = %v, want %v", names, want)
	}
	if keys := cacheKeys(t, env.storage, "ball-maze-music-v1"); len(keys) != 1 {
		t.Errorf("current runtime cache entries = %d, want 1", len(keys))
	}
}

func TestNewWorkerRejectsInvalidManifest(t *testing.T) {
	testCases := []struct {
		name   string
		modify func(m *domain.Manifest)
	}{
		{"Missing version", func(m *domain.Manifest) { m.Version = "" }},
		{"Missing prefix", func(m *domain.Manifest) { m.CachePrefix = " " }},
		{"Relative scope", func(m *domain.Manifest) { m.Scope = "/app/" }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			m := testManifest("v1")
			tc.modify(&m)
			if _, err := NewWorker(m, env.deps); err == nil {
				t.Error("NewWorker() error = nil, want error")
			}
		})
	}
}
