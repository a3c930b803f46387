// Package app はアプリケーションの初期化と起動を提供する。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/podscribe/internal/config"
	"github.com/hitoshi/podscribe/internal/feed"
	"github.com/hitoshi/podscribe/internal/handler"
	"github.com/hitoshi/podscribe/internal/logger"
	"github.com/hitoshi/podscribe/internal/metrics"
	"github.com/hitoshi/podscribe/internal/middleware"
	"github.com/hitoshi/podscribe/internal/security"
	"github.com/hitoshi/podscribe/internal/status"
	"github.com/hitoshi/podscribe/internal/task"
	"github.com/hitoshi/podscribe/internal/transcribe"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("feeds_file", cfg.FeedsFile),
	)

	return runServe(cfg)
}

// runServe はAPIサーバーモードで起動する。
// 全依存関係をワイヤリングし、タスクスイーパーとHTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. セキュリティサービスの初期化
	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewContentSanitizer()

	// 2. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 3. ストアとタスクレジストリの初期化
	store := status.NewFileStore(cfg.StatusFile)
	tasks := task.NewRegistry(slog.Default())
	tasks.Retention = cfg.TaskRetention

	// 4. 文字起こしランナーの初期化
	providerClient := transcribe.NewClient(
		&http.Client{Timeout: cfg.DownloadTimeout},
		slog.Default(),
		cfg.GladiaAPIKey,
	)
	runner := transcribe.NewRunner(
		store, tasks, providerClient, ssrfGuard, collector, slog.Default(),
		transcribe.RunnerConfig{
			EpisodesDir:      cfg.EpisodesDir,
			PollInterval:     cfg.PollInterval,
			PollTimeout:      cfg.PollTimeout,
			DownloadTimeout:  cfg.DownloadTimeout,
			MaxConcurrent:    cfg.MaxConcurrentJobs,
			MinFreeDiskBytes: cfg.MinFreeDiskBytes,
		},
	)

	// 5. フィードアグリゲータの初期化
	aggregator := feed.NewAggregator(
		cfg.FeedsFile, store, runner, ssrfGuard, sanitizer, collector,
		slog.Default(), cfg.FetchTimeout, cfg.FetchMaxSize,
	)

	// 6. ルーターの構築
	// configのレート値はreq/min単位なのでreq/secに変換する
	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		GeneralRate:     rate.Limit(float64(cfg.RateLimitGeneral) / 60.0),
		GeneralBurst:    cfg.RateLimitGeneral,
		TranscribeRate:  rate.Limit(float64(cfg.RateLimitTranscribe) / 60.0),
		TranscribeBurst: cfg.RateLimitTranscribe,
		CleanupInterval: 5 * time.Minute,
	})
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Logger:            slog.Default(),
		Aggregator:        aggregator,
		Runner:            runner,
		Tasks:             tasks,
		Store:             store,
		MetricsHandler:    metrics.Handler(registry),
	})

	// 7. タスクスイーパーをバックグラウンドで起動
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go tasks.StartSweeper(ctx, cfg.TaskSweepInterval)

	// 8. HTTPサーバーの起動
	server := &http.Server{
		Addr:        ":" + cfg.ServerPort,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// 文字起こし取得は大きなレスポンスになり得るため書き込みは長めに取る
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}
