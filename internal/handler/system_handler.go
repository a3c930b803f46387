package handler

import (
	"net/http"
	"time"
)

// apiVersion はAPI情報エンドポイントが返すバージョン。
const apiVersion = "1.0.0"

// SystemHandler はヘルスチェックとAPI情報のHTTPハンドラー。
type SystemHandler struct{}

// NewSystemHandler はSystemHandlerを生成する。
func NewSystemHandler() *SystemHandler {
	return &SystemHandler{}
}

// Health はヘルスチェックレスポンスを返す。コンテナのliveness probe用。
// GET /health
func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// APIInfo はAPIのバージョン情報を返す。
// GET /api
func (h *SystemHandler) APIInfo(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, map[string]string{
		"message": "Podcast Admin API",
		"version": apiVersion,
	})
}
