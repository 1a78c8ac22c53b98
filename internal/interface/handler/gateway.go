package handler

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"strings"
	"time"

	"offlineproxy/internal/domain"
	"offlineproxy/internal/usecase"
)

type targetKey struct{}

// GatewayHandler はリクエストをワーカーに渡し, 対象外のものはそのまま中継する
type GatewayHandler struct {
	container   *usecase.Container
	tunnel      *usecase.TunnelUseCase
	metrics     domain.MetricsCollector
	logger      domain.Logger
	upstream    *url.URL
	passthrough *httputil.ReverseProxy
}

// GatewayConfig はゲートウェイの設定
type GatewayConfig struct {
	// Upstream が設定されている場合, スコープと同一オリジンの中継先をこのホストに置き換える
	Upstream *url.URL
	// Transport は中継に使うトランスポート. nil の場合は http.DefaultTransport
	Transport http.RoundTripper
}

// NewGatewayHandler は新しいGatewayHandlerインスタンスを作成
func NewGatewayHandler(
	container *usecase.Container,
	tunnel *usecase.TunnelUseCase,
	metrics domain.MetricsCollector,
	logger domain.Logger,
	cfg GatewayConfig,
) *GatewayHandler {
	h := &GatewayHandler{
		container: container,
		tunnel:    tunnel,
		metrics:   metrics,
		logger:    logger,
		upstream:  cfg.Upstream,
	}

	h.passthrough = &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			target := pr.In.Context().Value(targetKey{}).(*url.URL)
			pr.Out.URL = target
			pr.Out.Host = ""
			pr.SetXForwarded()
		},
		Transport: cfg.Transport,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			h.metrics.RecordError()
			h.logger.Error("Passthrough failed", err, map[string]interface{}{
				"method": r.Method,
				"url":    r.URL.String(),
			})
			http.Error(w, "Bad Gateway", http.StatusBadGateway)
		},
	}

	return h
}

func (h *GatewayHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.metrics.RecordRequest()

	if r.Method == http.MethodConnect {
		h.handleConnect(w, r)
		return
	}

	start := time.Now()
	worker := h.container.Active()
	req := h.buildRequest(r, worker)

	if worker == nil {
		h.forward(w, r, req.URL)
		return
	}

	resp, handled, err := worker.HandleFetch(r.Context(), req)
	if !handled {
		h.forward(w, r, req.URL)
		return
	}

	if err != nil {
		h.metrics.RecordError()
		h.logger.Error("Fetch failed", err, map[string]interface{}{
			"method":   req.Method,
			"url":      req.URL.String(),
			"navigate": req.IsNavigation(),
		})
		status := http.StatusBadGateway
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
		http.Error(w, http.StatusText(status), status)
		return
	}

	h.writeResponse(w, resp)

	h.logger.Info("Served", map[string]interface{}{
		"method":   req.Method,
		"url":      req.URL.String(),
		"status":   resp.Status,
		"cache":    cacheStatus(resp),
		"duration": time.Since(start),
	})
}

// buildRequest はHTTPリクエストからワーカー用のリクエストを作成する.
// origin-form のパスはスコープのオリジンに解決する
func (h *GatewayHandler) buildRequest(r *http.Request, worker *usecase.Worker) *domain.Request {
	u := *r.URL
	if !u.IsAbs() {
		if origin := h.originOf(worker); origin != nil {
			u.Scheme = origin.Scheme
			u.Host = origin.Host
		} else {
			u.Scheme = "http"
			u.Host = r.Host
		}
	}

	return &domain.Request{
		Method: r.Method,
		URL:    &u,
		Header: r.Header.Clone(),
		Mode:   requestMode(r),
	}
}

func (h *GatewayHandler) originOf(worker *usecase.Worker) *url.URL {
	if worker != nil {
		m := worker.Manifest()
		if scope, err := m.ScopeURL(); err == nil {
			return scope
		}
	}
	return h.upstream
}

// requestMode はSec-Fetch-Modeヘッダ, なければAcceptからモードを判定する
func requestMode(r *http.Request) domain.RequestMode {
	switch mode := strings.ToLower(r.Header.Get("Sec-Fetch-Mode")); mode {
	case "navigate":
		return domain.ModeNavigate
	case "cors":
		return domain.ModeCORS
	case "no-cors":
		return domain.ModeNoCORS
	case "same-origin":
		return domain.ModeSameOrigin
	}

	if r.Method == http.MethodGet && strings.Contains(r.Header.Get("Accept"), "text/html") {
		return domain.ModeNavigate
	}
	return domain.ModeNoCORS
}

// forward はリクエストをキャッシュせずにそのままネットワークへ中継する
func (h *GatewayHandler) forward(w http.ResponseWriter, r *http.Request, target *url.URL) {
	h.metrics.RecordBypass()

	t := *target
	if h.upstream != nil && !r.URL.IsAbs() {
		t.Scheme = h.upstream.Scheme
		t.Host = h.upstream.Host
	}

	h.logger.Debug("Passing through", map[string]interface{}{
		"method": r.Method,
		"url":    t.String(),
	})

	ctx := context.WithValue(r.Context(), targetKey{}, &t)
	h.passthrough.ServeHTTP(w, r.WithContext(ctx))
}

func (h *GatewayHandler) writeResponse(w http.ResponseWriter, resp *domain.Response) {
	header := w.Header()
	for name, values := range resp.Header {
		header[name] = append([]string(nil), values...)
	}
	header.Set("X-Cache", cacheStatus(resp))

	if !bodyAllowed(resp.Status) {
		w.WriteHeader(resp.Status)
		return
	}

	header.Set("Content-Length", strconv.Itoa(len(resp.Body)))
	w.WriteHeader(resp.Status)
	n, err := w.Write(resp.Body)
	h.metrics.AddBytesTransferred(int64(n))
	if err != nil {
		h.logger.Debug("Failed to write response body", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func bodyAllowed(status int) bool {
	return status >= 200 && status != http.StatusNoContent && status != http.StatusNotModified
}

func cacheStatus(resp *domain.Response) string {
	if resp.FromCache {
		return "HIT"
	}
	return "MISS"
}

// handleConnect はCONNECTリクエストをトンネリングする
func (h *GatewayHandler) handleConnect(w http.ResponseWriter, r *http.Request) {
	clientIP := r.RemoteAddr
	if host, _, err := net.SplitHostPort(clientIP); err == nil {
		clientIP = host
	}

	serverConn, err := h.tunnel.Dial(r.Context(), r.Host)
	if err != nil {
		h.logger.Error("Tunnel dial failed", err, map[string]interface{}{
			"client_ip": clientIP,
			"host":      r.Host,
		})
		http.Error(w, "Bad Gateway", http.StatusBadGateway)
		return
	}
	defer serverConn.Close()

	hijacker, ok := w.(http.Hijacker)
	if !ok {
		h.logger.Error("Hijacking not supported", nil, nil)
		http.Error(w, "Hijacking not supported", http.StatusInternalServerError)
		return
	}

	clientConn, _, err := hijacker.Hijack()
	if err != nil {
		h.logger.Error("Hijacking failed", err, nil)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer clientConn.Close()

	if _, err := clientConn.Write([]byte("HTTP/1.1 200 Connection Established\r\n\r\n")); err != nil {
		h.logger.Error("Failed to write connection established response", err, nil)
		return
	}

	if err := h.tunnel.Relay(r.Context(), clientConn, serverConn); err != nil {
		h.logger.Error("Tunnel handling failed", err, map[string]interface{}{
			"host": r.Host,
		})
	}
}
