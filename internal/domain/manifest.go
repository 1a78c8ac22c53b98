package domain

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	DefaultRuntimeMaxEntries = 8
	DefaultFallbackPage      = "./index.html"
	DefaultRuntimeLabel      = "music"
)

// Manifest はワーカーの設定(バージョン, プリキャッシュ対象など)を表す.
type Manifest struct {
	Version           string   `yaml:"version" json:"version"`
	CachePrefix       string   `yaml:"cache_prefix" json:"cache_prefix"`
	RuntimeLabel      string   `yaml:"runtime_label" json:"runtime_label"`
	Scope             string   `yaml:"scope" json:"scope"`
	CoreAssets        []string `yaml:"core_assets" json:"core_assets"`
	RuntimePathPrefix string   `yaml:"runtime_path_prefix" json:"runtime_path_prefix"`
	RuntimeMaxEntries int      `yaml:"runtime_max_entries" json:"runtime_max_entries"`
	FallbackPage      string   `yaml:"fallback_page" json:"fallback_page"`
}

// ManifestSource はマニフェストの読み込みを担当.
type ManifestSource interface {
	Load() (*Manifest, error)
	Watch(onChange func(*Manifest)) error
	Close() error
}

// Normalize はデフォルト値を補完し, 設定を検証する.
func (m *Manifest) Normalize() error {
	m.Version = strings.TrimSpace(m.Version)
	m.CachePrefix = strings.TrimSpace(m.CachePrefix)
	if m.Version == "" {
		return fmt.Errorf("manifest version is required")
	}
	if m.CachePrefix == "" {
		return fmt.Errorf("manifest cache_prefix is required")
	}
	if m.RuntimeLabel == "" {
		m.RuntimeLabel = DefaultRuntimeLabel
	}
	if m.RuntimeMaxEntries <= 0 {
		m.RuntimeMaxEntries = DefaultRuntimeMaxEntries
	}
	if m.FallbackPage == "" {
		m.FallbackPage = DefaultFallbackPage
	}
	if _, err := m.ScopeURL(); err != nil {
		return err
	}
	return nil
}

// CoreCacheName はコアキャッシュの名前.
func (m *Manifest) CoreCacheName() string {
	return m.CachePrefix + "-" + m.Version
}

// RuntimeCacheName はランタイムキャッシュの名前.
func (m *Manifest) RuntimeCacheName() string {
	return m.CachePrefix + "-" + m.RuntimeLabel + "-" + m.Version
}

// ScopeURL はスコープURLを解析する. パスは必ず "/" で終わる.
func (m *Manifest) ScopeURL() (*url.URL, error) {
	u, err := url.Parse(m.Scope)
	if err != nil {
		return nil, fmt.Errorf("invalid scope %q: %w", m.Scope, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("scope %q must be an absolute URL", m.Scope)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return u, nil
}

// Resolve はスコープ相対のパスを絶対URLに解決する.
func (m *Manifest) Resolve(ref string) (*url.URL, error) {
	scope, err := m.ScopeURL()
	if err != nil {
		return nil, err
	}
	r, err := url.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("invalid asset path %q: %w", ref, err)
	}
	return scope.ResolveReference(r), nil
}

// SameOrigin はURLがスコープと同一オリジンかどうか.
func (m *Manifest) SameOrigin(u *url.URL) bool {
	scope, err := m.ScopeURL()
	if err != nil {
		return false
	}
	return SameOrigin(scope, u)
}

// IsRuntimePath はランタイムキャッシュ対象のURLかどうか.
func (m *Manifest) IsRuntimePath(u *url.URL) bool {
	return m.RuntimePathPrefix != "" && m.SameOrigin(u) &&
		strings.HasPrefix(u.Path, m.RuntimePathPrefix)
}

// SameOrigin はスキーム, ホスト, ポートが一致するかどうか.
func SameOrigin(a, b *url.URL) bool {
	return strings.EqualFold(a.Scheme, b.Scheme) &&
		strings.EqualFold(a.Hostname(), b.Hostname()) &&
		effectivePort(a) == effectivePort(b)
}

func effectivePort(u *url.URL) string {
	if p := u.Port(); p != "" {
		return p
	}
	switch strings.ToLower(u.Scheme) {
	case "https":
		return "443"
	case "http":
		return "80"
	}
	return ""
}
