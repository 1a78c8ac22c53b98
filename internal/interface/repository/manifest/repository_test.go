package manifest

import (
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"offlineproxy/internal/domain"
	"offlineproxy/internal/interface/repository/logger"
)

func TestLoadCreatesDefaultManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.yaml")
	r := New(path, logger.NewNop())
	defer r.Close()

	m, err := r.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !reflect.DeepEqual(m, DefaultManifest()) {
		t.Errorf("Load() = %+v, want default", m)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("default manifest not written: %v", err)
	}

	// 書き出したファイルを読み直しても同じ内容になる
	again, err := r.Load()
	if err != nil {
		t.Fatalf("Load() again error = %v", err)
	}
	if !reflect.DeepEqual(again, m) {
		t.Errorf("reloaded manifest = %+v, want %+v", again, m)
	}
}

func TestParseManifest(t *testing.T) {
	testCases := []struct {
		name    string
		yaml    string
		want    *domain.Manifest
		wantErr bool
	}{
		{
			name: "Defaults applied",
			yaml: `
version: v2
cache_prefix: ball-maze
scope: https://localhost/ball-on-a-maze/
core_assets: ["./", "./index.html"]
`,
			want: &domain.Manifest{
				Version:           "v2",
				CachePrefix:       "ball-maze",
				RuntimeLabel:      "music",
				Scope:             "https://localhost/ball-on-a-maze/",
				CoreAssets:        []string{"./", "./index.html"},
				RuntimeMaxEntries: 8,
				FallbackPage:      "./index.html",
			},
		},
		{
			name: "Explicit values kept",
			yaml: `
version: v3
cache_prefix: game
runtime_label: audio
scope: https://game.example/
runtime_path_prefix: /audio/
runtime_max_entries: 4
fallback_page: ./offline.html
`,
			want: &domain.Manifest{
				Version:           "v3",
				CachePrefix:       "game",
				RuntimeLabel:      "audio",
				Scope:             "https://game.example/",
				RuntimePathPrefix: "/audio/",
				RuntimeMaxEntries: 4,
				FallbackPage:      "./offline.html",
			},
		},
		{name: "Missing version", yaml: "cache_prefix: x\nscope: https://a/\n", wantErr: true},
		{name: "Relative scope", yaml: "version: v1\ncache_prefix: x\nscope: /app/\n", wantErr: true},
		{name: "Broken YAML", yaml: "version: [", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseManifest([]byte(tc.yaml))
			if tc.wantErr {
				if err == nil {
					t.Errorf("parseManifest() error = nil, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseManifest() error = %v", err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("parseManifest() = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestWatchReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.yaml")
	r := New(path, logger.NewNop())
	defer r.Close()

	if _, err := r.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	changed := make(chan *domain.Manifest, 1)
	if err := r.Watch(func(m *domain.Manifest) {
		select {
		case changed <- m:
		default:
		}
	}); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	updated := "version: v9\ncache_prefix: ball-maze\nscope: https://localhost/ball-on-a-maze/\n"
	if err := os.WriteFile(path, []byte(updated), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	select {
	case m := <-changed:
		if m.Version != "v9" {
			t.Errorf("reloaded Version = %q, want v9", m.Version)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("manifest change was not observed")
	}
}

func TestCloseWaitsForRunningCallback(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.yaml")
	r := New(path, logger.NewNop())

	if _, err := r.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	if err := r.Watch(func(*domain.Manifest) {
		once.Do(func() { close(started) })
		<-release
	}); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	updated := "version: v9\ncache_prefix: ball-maze\nscope: https://localhost/ball-on-a-maze/\n"
	if err := os.WriteFile(path, []byte(updated), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("manifest change was not observed")
	}

	closed := make(chan struct{})
	go func() {
		r.Close()
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("Close() returned while onChange was running")
	case <-time.After(100 * time.Millisecond):
	}

	close(release)
	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("Close() did not return after onChange finished")
	}
}
