package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/podscribe/internal/metrics"
	"github.com/hitoshi/podscribe/internal/middleware"
	"github.com/hitoshi/podscribe/internal/model"
)

// newTestRouterDeps はルーターテスト用の依存一式を組み立てる。
func newTestRouterDeps(t *testing.T) (*RouterDeps, *middleware.RateLimiter) {
	t.Helper()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())

	reg := prometheus.NewRegistry()
	metrics.NewCollector(reg)

	deps := &RouterDeps{
		CORSAllowedOrigin: "http://localhost:3000",
		RateLimiter:       rl,
		Logger:            logger,
		Aggregator: &mockAggregator{
			listFn: func(ctx context.Context, limit, maxAgeDays int) ([]model.Episode, error) {
				return []model.Episode{}, nil
			},
			findFn: func(ctx context.Context, episodeID string) (*model.Episode, error) {
				return &model.Episode{ID: episodeID, Title: "テスト"}, nil
			},
		},
		Runner: &mockJobStarter{
			beginFn: func(ctx context.Context, episode *model.Episode) (string, error) {
				return "transcribe_test_12345678", nil
			},
		},
		Tasks: &mockTaskReader{
			getFn: func(taskID string) (*model.Task, bool) {
				return &model.Task{Type: "transcribe", Status: model.StatusPending}, true
			},
		},
		Store: &mockStatusReader{
			getFn: func(episodeID string) (*model.StatusRecord, bool, error) {
				return nil, false, nil
			},
			allFn: func() (map[string]model.StatusRecord, error) {
				return map[string]model.StatusRecord{}, nil
			},
		},
		MetricsHandler: metrics.Handler(reg),
	}

	return deps, rl
}

func TestNewRouter_RouteTable(t *testing.T) {
	deps, rl := newTestRouterDeps(t)
	defer rl.Stop()

	router := NewRouter(deps)

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
	}{
		{"エピソード一覧", http.MethodGet, "/episodes", http.StatusOK},
		{"文字起こし開始", http.MethodPost, "/transcribe/abcd1234_ep-1", http.StatusAccepted},
		{"タスク状態", http.MethodGet, "/task-status/transcribe_test_12345678", http.StatusOK},
		{"全ステータス", http.MethodGet, "/status", http.StatusOK},
		{"ヘルスチェック", http.MethodGet, "/health", http.StatusOK},
		{"API情報", http.MethodGet, "/api", http.StatusOK},
		{"メトリクス", http.MethodGet, "/metrics", http.StatusOK},
		{"未定義ルート", http.MethodGet, "/unknown", http.StatusNotFound},
		{"文字起こしへのGETは不許可", http.MethodGet, "/transcribe/abcd1234_ep-1", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			req.RemoteAddr = "192.0.2.1:12345"
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("%s %s: status = %d, want %d", tt.method, tt.path, w.Code, tt.wantStatus)
			}
		})
	}
}

func TestNewRouter_SecurityAndCORSHeaders(t *testing.T) {
	deps, rl := newTestRouterDeps(t)
	defer rl.Stop()

	router := NewRouter(deps)

	req := httptest.NewRequest(http.MethodGet, "/episodes", nil)
	req.RemoteAddr = "192.0.2.1:12345"
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
	if got := w.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q, want DENY", got)
	}
}

func TestNewRouter_HealthResponse(t *testing.T) {
	deps, rl := newTestRouterDeps(t)
	defer rl.Stop()

	router := NewRouter(deps)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("レスポンスのパースに失敗: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("status = %q, want healthy", body["status"])
	}
	if body["timestamp"] == "" {
		t.Error("timestampが空")
	}
}

func TestNewRouter_APIInfoResponse(t *testing.T) {
	deps, rl := newTestRouterDeps(t)
	defer rl.Stop()

	router := NewRouter(deps)

	req := httptest.NewRequest(http.MethodGet, "/api", nil)
	req.RemoteAddr = "192.0.2.1:12345"
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("レスポンスのパースに失敗: %v", err)
	}
	if body["version"] != "1.0.0" {
		t.Errorf("version = %q, want 1.0.0", body["version"])
	}
}

// TestNewRouter_TranscribeRateLimit は文字起こし開始の専用レート制限が
// API全般のレート制限とは別に適用されることを検証する。
func TestNewRouter_TranscribeRateLimit(t *testing.T) {
	deps, rl := newTestRouterDeps(t)
	defer rl.Stop()

	router := NewRouter(deps)

	// デフォルトの文字起こしバーストは10。超過すると429になる。
	var last int
	for i := 0; i < 11; i++ {
		req := httptest.NewRequest(http.MethodPost, "/transcribe/abcd1234_ep-1", nil)
		req.RemoteAddr = "192.0.2.1:12345"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		last = w.Code
	}

	if last != http.StatusTooManyRequests {
		t.Errorf("11回目のstatus = %d, want 429", last)
	}
}
