// Package network はオリジンへのHTTP取得を実装する.
package network

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/dustin/go-humanize"

	"offlineproxy/internal/domain"
)

// hopHeaders はオリジンに転送しないヘッダ
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Config はフェッチャーの設定
type Config struct {
	// Upstream が設定されている場合, リクエストをこのホストへ送る
	Upstream *url.URL
	// Timeout が0の場合はタイムアウトしない
	Timeout      time.Duration
	MaxRedirects int
}

// Fetcher はnet/httpによるFetcher実装
type Fetcher struct {
	client   *http.Client
	upstream *url.URL
	logger   domain.Logger
}

// Verify interface implementation
var _ domain.Fetcher = (*Fetcher)(nil)

// New は新しいFetcherインスタンスを作成
func New(cfg Config, logger domain.Logger) *Fetcher {
	if cfg.MaxRedirects <= 0 {
		cfg.MaxRedirects = 10
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	client := &http.Client{
		Transport: transport,
		Timeout:   cfg.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= cfg.MaxRedirects {
				return fmt.Errorf("stopped after %d redirects", cfg.MaxRedirects)
			}
			return nil
		},
	}

	return &Fetcher{
		client:   client,
		upstream: cfg.Upstream,
		logger:   logger,
	}
}

// Fetch はリクエストをオリジンへ送り, レスポンス全体を読み込む
func (f *Fetcher) Fetch(ctx context.Context, req *domain.Request) (*domain.Response, error) {
	start := time.Now()
	target := f.target(req.URL)

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target.String(), nil)
	if err != nil {
		return nil, &domain.ErrNetwork{URL: req.URL.String(), Err: err}
	}
	for name, values := range req.Header {
		httpReq.Header[name] = append([]string(nil), values...)
	}
	for _, h := range hopHeaders {
		httpReq.Header.Del(h)
	}
	// 保存するボディは常に非圧縮にする
	httpReq.Header.Del("Accept-Encoding")
	httpReq.Header.Del("Range")

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, &domain.ErrNetwork{URL: req.URL.String(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.ErrNetwork{URL: req.URL.String(), Err: fmt.Errorf("read body: %w", err)}
	}

	finalURL := resp.Request.URL
	header := resp.Header.Clone()
	for _, h := range hopHeaders {
		header.Del(h)
	}
	header.Del("Content-Length")

	result := &domain.Response{
		Status:     resp.StatusCode,
		Header:     header,
		Body:       body,
		Type:       classify(finalURL, req.URL, target),
		Redirected: finalURL.String() != target.String(),
		URL:        finalURL.String(),
	}

	f.logger.Debug("Fetched from network", map[string]interface{}{
		"url":        req.URL.String(),
		"status":     resp.StatusCode,
		"type":       string(result.Type),
		"redirected": result.Redirected,
		"size":       humanize.Bytes(uint64(len(body))),
		"duration":   time.Since(start).String(),
	})

	return result, nil
}

// target はリクエストをアップストリームへ書き換える
func (f *Fetcher) target(u *url.URL) *url.URL {
	if f.upstream == nil {
		return u
	}
	t := *u
	t.Scheme = f.upstream.Scheme
	t.Host = f.upstream.Host
	return &t
}

// classify は最終URLがリクエスト元と同一オリジンならbasic, それ以外はcorsとする
func classify(finalURL, requested, target *url.URL) domain.ResponseType {
	if domain.SameOrigin(requested, finalURL) || domain.SameOrigin(target, finalURL) {
		return domain.TypeBasic
	}
	return domain.TypeCORS
}
