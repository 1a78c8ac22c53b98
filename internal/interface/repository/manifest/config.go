package manifest

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"offlineproxy/internal/domain"
)

// DefaultManifest はマニフェストファイルが存在しない場合の初期設定
func DefaultManifest() *domain.Manifest {
	return &domain.Manifest{
		Version:      "v1.0.2",
		CachePrefix:  "ball-maze",
		RuntimeLabel: domain.DefaultRuntimeLabel,
		Scope:        "https://localhost/ball-on-a-maze/",
		CoreAssets: []string{
			"./",
			"./index.html",
			"./manifest.json",
			"./icons/icon-192.png",
			"./icons/icon-512.png",
		},
		RuntimePathPrefix: "/ball-on-a-maze/assets/music/",
		RuntimeMaxEntries: domain.DefaultRuntimeMaxEntries,
		FallbackPage:      domain.DefaultFallbackPage,
	}
}

func loadManifestFile(path string) (*domain.Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return createDefaultManifest(path)
		}
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	return parseManifest(data)
}

func parseManifest(data []byte) (*domain.Manifest, error) {
	var m domain.Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if err := m.Normalize(); err != nil {
		return nil, err
	}
	return &m, nil
}

func createDefaultManifest(path string) (*domain.Manifest, error) {
	m := DefaultManifest()

	data, err := yaml.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to create default manifest: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write default manifest: %w", err)
	}

	return m, nil
}
