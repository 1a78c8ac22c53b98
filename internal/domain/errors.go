package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNoFallback はオフライン用のフォールバックページがキャッシュにない.
	ErrNoFallback = errors.New("fallback page is not cached")
	// ErrWorkerRedundant はインストールに失敗したワーカー.
	ErrWorkerRedundant = errors.New("worker is redundant")
	// ErrNoActiveWorker は有効なワーカーが存在しない.
	ErrNoActiveWorker = errors.New("no active worker")
	// ErrCacheNotFound は指定の名前のキャッシュが存在しない.
	ErrCacheNotFound = errors.New("cache not found")
)

// ErrNetwork はネットワーク取得の失敗.
type ErrNetwork struct {
	URL string
	Err error
}

func (e *ErrNetwork) Error() string {
	return fmt.Sprintf("network request to %s failed: %v", e.URL, e.Err)
}

func (e *ErrNetwork) Unwrap() error {
	return e.Err
}

// ErrInstallFailed はプリキャッシュ失敗によるインストールエラー.
type ErrInstallFailed struct {
	Version string
	Asset   string
	Err     error
}

func (e *ErrInstallFailed) Error() string {
	return fmt.Sprintf("install of %s failed at %s: %v", e.Version, e.Asset, e.Err)
}

func (e *ErrInstallFailed) Unwrap() error {
	return e.Err
}

// ErrBadStatus はプリキャッシュ対象が2xx以外を返した.
type ErrBadStatus struct {
	URL    string
	Status int
}

func (e *ErrBadStatus) Error() string {
	return fmt.Sprintf("unexpected status %d for %s", e.Status, e.URL)
}

// ErrConnectionFailed は接続失敗エラー.
type ErrConnectionFailed struct {
	Host string
	Err  error
}

func (e *ErrConnectionFailed) Error() string {
	return fmt.Sprintf("failed to connect to host %s: %v", e.Host, e.Err)
}

func (e *ErrConnectionFailed) Unwrap() error {
	return e.Err
}
