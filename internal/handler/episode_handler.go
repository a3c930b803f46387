// Package handler はAPIエンドポイントのHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/hitoshi/podscribe/internal/model"
)

// エピソード一覧のクエリパラメータのデフォルト値。
const (
	defaultEpisodeLimit   = 100
	defaultEpisodeMaxDays = 90
)

// AggregatorService はエピソードハンドラーが必要とするフィード集約インターフェース。
type AggregatorService interface {
	// ListEpisodes は全フィードのエピソードを公開日時の降順で返す。
	ListEpisodes(ctx context.Context, limit, maxAgeDays int) ([]model.Episode, error)
	// FindEpisode は指定IDに解決されるエピソードを全フィードから探す。
	FindEpisode(ctx context.Context, episodeID string) (*model.Episode, error)
}

// EpisodeHandler はエピソード一覧のHTTPハンドラー。
type EpisodeHandler struct {
	aggregator AggregatorService
}

// NewEpisodeHandler はEpisodeHandlerを生成する。
func NewEpisodeHandler(aggregator AggregatorService) *EpisodeHandler {
	return &EpisodeHandler{aggregator: aggregator}
}

// ListEpisodes はエピソード一覧を返す。
// GET /episodes?limit=&days=
func (h *EpisodeHandler) ListEpisodes(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultEpisodeLimit)
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("limitは正の整数で指定してください"))
		return
	}

	days, err := queryInt(r, "days", defaultEpisodeMaxDays)
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("daysは正の整数で指定してください"))
		return
	}

	episodes, err := h.aggregator.ListEpisodes(r.Context(), limit, days)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, episodes)
}

// queryInt は正の整数クエリパラメータを取得する。未指定の場合はデフォルト値を返す。
func queryInt(r *http.Request, name string, defaultValue int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if v < 1 {
		return 0, errors.New("value must be positive")
	}
	return v, nil
}

// --- ヘルパー関数 ---

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// writeJSONResponse はJSONレスポンスを書き込む。
func writeJSONResponse(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	writeJSONResponse(w, statusCode, apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		statusCode := mapAPIErrorToHTTPStatus(apiErr)
		writeAPIErrorResponse(w, statusCode, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeEpisodeNotFound, model.ErrCodeTaskNotFound, model.ErrCodeTranscriptNotFound:
		return http.StatusNotFound
	case model.ErrCodeAlreadyTranscribed, model.ErrCodeTranscriptNotReady, model.ErrCodeInvalidRequest:
		return http.StatusBadRequest
	case model.ErrCodeAlreadyRunning:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
