package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/podscribe/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// サービス依存
	Aggregator AggregatorService
	Runner     JobStarter
	Tasks      TaskReader
	Store      StatusReaderService

	// Prometheusスクレイプ用ハンドラー
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	CORS → SecurityHeaders → Logging → Recovery → RateLimit(General)
//
// /metrics と /health はレート制限の外に配置する（スクレイパーとprobeを制限しない）。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewRecoveryMiddleware())

	episodeHandler := NewEpisodeHandler(deps.Aggregator)
	transcribeHandler := NewTranscribeHandler(deps.Aggregator, deps.Runner, deps.Tasks, deps.Store)
	systemHandler := NewSystemHandler()

	// --- レート制限の外のルート ---
	r.Get("/health", systemHandler.Health)
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// --- レート制限付きのルート ---
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/api", systemHandler.APIInfo)
		r.Get("/episodes", episodeHandler.ListEpisodes)

		// POST /transcribe/{episodeID} - ジョブ開始（専用レート制限を追加）
		r.With(deps.RateLimiter.TranscribeMiddleware()).
			Post("/transcribe/{episodeID}", transcribeHandler.StartTranscription)

		r.Get("/task-status/{taskID}", transcribeHandler.GetTaskStatus)
		r.Get("/transcript/{episodeID}", transcribeHandler.GetTranscript)
		r.Get("/status", transcribeHandler.GetAllStatus)
	})

	return r
}
