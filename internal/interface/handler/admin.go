package handler

import (
	"encoding/json"
	"net/http"

	"offlineproxy/internal/domain"
	"offlineproxy/internal/interface/repository/cache"
	"offlineproxy/internal/usecase"
)

// AdminHandler はメトリクスとキャッシュ管理のHTTPリクエストを処理
type AdminHandler struct {
	metricsUseCase *usecase.MetricsUseCase
	container      *usecase.Container
	logger         domain.Logger
}

// NewAdminHandler は新しいAdminHandlerインスタンスを作成
func NewAdminHandler(
	metricsUseCase *usecase.MetricsUseCase,
	container *usecase.Container,
	logger domain.Logger,
) *AdminHandler {
	return &AdminHandler{
		metricsUseCase: metricsUseCase,
		container:      container,
		logger:         logger,
	}
}

// Routes は管理用のルーティングを返す
func (h *AdminHandler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /metrics", h.HandleMetrics)
	mux.HandleFunc("GET /stats", h.HandleStats)
	mux.HandleFunc("GET /health", h.HandleHealth)
	mux.HandleFunc("GET /caches", h.HandleCaches)
	mux.HandleFunc("DELETE /caches/{name}", h.HandleDeleteCache)
	return mux
}

// HandleMetrics はPrometheus形式のメトリクスを提供
func (h *AdminHandler) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.Write([]byte(h.metricsUseCase.GetPrometheusMetrics(r.Context())))
}

// HandleStats はJSON形式の詳細な統計情報を提供
func (h *AdminHandler) HandleStats(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, h.metricsUseCase.GetMetricsSnapshot())
}

// HandleHealth は有効なワーカーの状態を提供
func (h *AdminHandler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	worker := h.container.Active()
	if worker == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": domain.ErrNoActiveWorker.Error(),
		})
		return
	}

	m := worker.Manifest()
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "up",
		"state":         worker.State(),
		"version":       m.Version,
		"core_cache":    m.CoreCacheName(),
		"runtime_cache": m.RuntimeCacheName(),
		"claimed":       worker.Claimed(),
	})
}

// HandleCaches はキャッシュ名, エントリ数, サイズを一覧で提供
func (h *AdminHandler) HandleCaches(w http.ResponseWriter, r *http.Request) {
	summaries, err := cache.Summarize(r.Context(), h.container.Storage())
	if err != nil {
		h.logger.Error("Failed to summarize caches", err, nil)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, summaries)
}

// HandleDeleteCache は名前付きキャッシュを削除
func (h *AdminHandler) HandleDeleteCache(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	deleted, err := h.container.Storage().Delete(r.Context(), name)
	if err != nil {
		h.logger.Error("Failed to delete cache", err, map[string]interface{}{
			"cache": name,
		})
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if !deleted {
		http.Error(w, domain.ErrCacheNotFound.Error(), http.StatusNotFound)
		return
	}

	h.logger.Info("Deleted cache", map[string]interface{}{
		"cache": name,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to encode response", err, nil)
	}
}
