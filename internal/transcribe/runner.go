package transcribe

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"
	"unicode"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/hitoshi/podscribe/internal/model"
	"github.com/hitoshi/podscribe/internal/status"
)

// audioFileName / transcriptFileName はエピソードディレクトリ内の固定ファイル名。
const (
	audioFileName      = "audio.mp3"
	transcriptFileName = "transcript.txt"
)

// ProviderClient は文字起こしプロバイダとのやり取りのインターフェース。
type ProviderClient interface {
	// Upload は音声ファイルをアップロードし、音声URLを返す。
	Upload(ctx context.Context, audioPath string) (string, error)
	// Submit は文字起こしジョブを開始し、ポーリングURLを返す。
	Submit(ctx context.Context, audioURL string) (string, error)
	// GetResult はポーリングURLから現在の状態を取得する。
	GetResult(ctx context.Context, resultURL string) (*PollResult, error)
}

// TaskUpdater はジョブ進行状況の記録先インターフェース。
type TaskUpdater interface {
	Create(taskID string, task *model.Task)
	Update(taskID string, fn func(t *model.Task))
}

// SSRFValidator は音声ダウンロードURLのSSRF検証インターフェース。
type SSRFValidator interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client
}

// RunnerMetrics はジョブ実行メトリクスを記録するインターフェース。
type RunnerMetrics interface {
	RecordJobSuccess()
	RecordJobFailure()
	RecordJobDuration(duration time.Duration)
}

// Runner は文字起こしジョブの受け付けと実行を行う。
//
// ジョブはpending→running→completed|errorの状態を遷移する。実行中のジョブは
// エピソードIDでインフライト集合に記録され、同一エピソードへの二重リクエストは
// 拒否される。並列実行数はsemaphoreチャネルで制限され、枠が空くまでジョブは
// pendingのまま待機する。終端状態に達したときのみStatusRecordを書き込む。
type Runner struct {
	episodesDir      string
	store            status.Store
	tasks            TaskUpdater
	client           ProviderClient
	ssrfGuard        SSRFValidator
	metrics          RunnerMetrics
	logger           *slog.Logger
	pollInterval     time.Duration
	pollTimeout      time.Duration
	downloadTimeout  time.Duration
	minFreeDiskBytes uint64

	sem chan struct{}

	mu       sync.Mutex
	inflight map[string]struct{}
}

// RunnerConfig はRunnerの実行パラメータ。
type RunnerConfig struct {
	EpisodesDir      string
	PollInterval     time.Duration
	PollTimeout      time.Duration
	DownloadTimeout  time.Duration
	MaxConcurrent    int
	MinFreeDiskBytes uint64
}

// NewRunner はRunnerの新しいインスタンスを生成する。
// MaxConcurrentが0以下の場合はデフォルト値4を使用する。
func NewRunner(
	store status.Store,
	tasks TaskUpdater,
	client ProviderClient,
	ssrfGuard SSRFValidator,
	metrics RunnerMetrics,
	logger *slog.Logger,
	cfg RunnerConfig,
) *Runner {
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	return &Runner{
		episodesDir:      cfg.EpisodesDir,
		store:            store,
		tasks:            tasks,
		client:           client,
		ssrfGuard:        ssrfGuard,
		metrics:          metrics,
		logger:           logger,
		pollInterval:     cfg.PollInterval,
		pollTimeout:      cfg.PollTimeout,
		downloadTimeout:  cfg.DownloadTimeout,
		minFreeDiskBytes: cfg.MinFreeDiskBytes,
		sem:              make(chan struct{}, maxConcurrent),
		inflight:         make(map[string]struct{}),
	}
}

// Running は指定エピソードのジョブが実行中（待機中を含む）かを返す。
func (r *Runner) Running(episodeID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.inflight[episodeID]
	return ok
}

// Begin は文字起こしジョブを受け付け、バックグラウンドで実行を開始する。
// 即座にタスクIDを返す。文字起こし済みのエピソードはALREADY_TRANSCRIBED、
// 実行中のエピソードはALREADY_RUNNINGで拒否する。
// エラー状態のエピソードは再実行を許可する。
func (r *Runner) Begin(ctx context.Context, episode *model.Episode) (string, error) {
	rec, ok, err := r.store.Get(episode.ID)
	if err != nil {
		return "", fmt.Errorf("ステータスの読み取りに失敗: %w", err)
	}
	if ok && rec.Status == model.StatusCompleted {
		return "", model.NewAlreadyTranscribedError(episode.ID)
	}

	r.mu.Lock()
	if _, running := r.inflight[episode.ID]; running {
		r.mu.Unlock()
		return "", model.NewAlreadyRunningError(episode.ID)
	}
	r.inflight[episode.ID] = struct{}{}
	r.mu.Unlock()

	taskID := fmt.Sprintf("transcribe_%s_%s", episode.ID, uuid.NewString()[:8])
	r.tasks.Create(taskID, &model.Task{
		Type:         "transcribe",
		Status:       model.StatusPending,
		Message:      "実行枠の空きを待機中",
		EpisodeTitle: episode.Title,
		CreatedAt:    time.Now().UTC(),
	})

	r.logger.Info("文字起こしジョブを受け付けました",
		slog.String("task_id", taskID),
		slog.String("episode_id", episode.ID),
		slog.String("episode_title", episode.Title),
	)

	ep := *episode
	go r.run(taskID, &ep)

	return taskID, nil
}

// run はジョブ本体。semaphoreで実行枠を取得してから各ステージを実行し、
// 成否にかかわらず終端状態のStatusRecordを書き込む。
// リクエストのコンテキストから切り離して実行する。
func (r *Runner) run(taskID string, episode *model.Episode) {
	defer func() {
		r.mu.Lock()
		delete(r.inflight, episode.ID)
		r.mu.Unlock()
	}()

	r.sem <- struct{}{}
	defer func() { <-r.sem }()

	start := time.Now()
	defer func() {
		r.metrics.RecordJobDuration(time.Since(start))
	}()

	r.tasks.Update(taskID, func(t *model.Task) {
		t.Status = model.StatusRunning
		t.Message = "文字起こしを開始しました"
	})

	transcriptPath, err := r.execute(context.Background(), taskID, episode)
	if err != nil {
		r.logger.Error("文字起こしジョブが失敗しました",
			slog.String("task_id", taskID),
			slog.String("episode_id", episode.ID),
			slog.String("error", err.Error()),
		)
		r.metrics.RecordJobFailure()

		r.tasks.Update(taskID, func(t *model.Task) {
			t.Status = model.StatusError
			t.Message = err.Error()
		})
		r.writeStatus(episode, &model.StatusRecord{
			Status:       model.StatusError,
			Error:        err.Error(),
			FailedAt:     time.Now().UTC().Format(time.RFC3339),
			PodcastName:  episode.PodcastName,
			EpisodeTitle: episode.Title,
		})
		return
	}

	r.logger.Info("文字起こしジョブが完了しました",
		slog.String("task_id", taskID),
		slog.String("episode_id", episode.ID),
		slog.String("transcript_path", transcriptPath),
		slog.Float64("duration_sec", time.Since(start).Seconds()),
	)
	r.metrics.RecordJobSuccess()

	r.tasks.Update(taskID, func(t *model.Task) {
		t.Status = model.StatusCompleted
		t.Message = "文字起こしが完了しました"
	})
	r.writeStatus(episode, &model.StatusRecord{
		Status:         model.StatusCompleted,
		TranscriptPath: transcriptPath,
		CompletedAt:    time.Now().UTC().Format(time.RFC3339),
		PodcastName:    episode.PodcastName,
		EpisodeTitle:   episode.Title,
	})
}

// execute はジョブの各ステージを順に実行し、完成した文字起こしファイルのパスを返す。
func (r *Runner) execute(ctx context.Context, taskID string, episode *model.Episode) (string, error) {
	dir := filepath.Join(r.episodesDir, SanitizeName(episode.PodcastName+"_"+episode.Title))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("エピソードディレクトリの作成に失敗: %w", err)
	}

	if err := r.checkDiskSpace(dir); err != nil {
		return "", err
	}

	audioPath := filepath.Join(dir, audioFileName)
	r.tasks.Update(taskID, func(t *model.Task) { t.Message = "音声ファイルをダウンロード中" })
	if err := r.downloadAudio(ctx, episode.AudioURL, audioPath); err != nil {
		return "", err
	}

	r.tasks.Update(taskID, func(t *model.Task) { t.Message = "音声ファイルをアップロード中" })
	audioURL, err := r.client.Upload(ctx, audioPath)
	if err != nil {
		return "", err
	}

	r.tasks.Update(taskID, func(t *model.Task) { t.Message = "文字起こしジョブを送信中" })
	resultURL, err := r.client.Submit(ctx, audioURL)
	if err != nil {
		return "", err
	}

	r.tasks.Update(taskID, func(t *model.Task) { t.Message = "文字起こしの完了を待機中" })
	result, err := r.pollResult(ctx, resultURL)
	if err != nil {
		return "", err
	}

	transcript, err := Normalize(result)
	if err != nil {
		return "", err
	}

	transcriptPath := filepath.Join(dir, transcriptFileName)
	if err := os.WriteFile(transcriptPath, []byte(transcript), 0o644); err != nil {
		return "", fmt.Errorf("文字起こしファイルの書き込みに失敗: %w", err)
	}

	return transcriptPath, nil
}

// downloadAudio は音声ファイルをSSRF検証付きでダウンロードする。
// 既にファイルが存在する場合はダウンロードをスキップする（失敗ジョブの再実行時に
// ダウンロードをやり直さないため）。一時ファイル経由で書き込み、部分ダウンロードの
// 残骸が音声ファイルとして扱われることを防ぐ。
func (r *Runner) downloadAudio(ctx context.Context, audioURL, audioPath string) error {
	if _, err := os.Stat(audioPath); err == nil {
		r.logger.Info("音声ファイルが既に存在するためダウンロードをスキップします",
			slog.String("audio_path", audioPath),
		)
		return nil
	}

	if err := r.ssrfGuard.ValidateURL(audioURL); err != nil {
		return fmt.Errorf("音声URLのSSRF検証に失敗: %w", err)
	}

	client := r.ssrfGuard.NewSafeClient(r.downloadTimeout, 0)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, audioURL, nil)
	if err != nil {
		return fmt.Errorf("ダウンロードリクエストの作成に失敗: %w", err)
	}
	req.Header.Set("User-Agent", "Podscribe/1.0 Podcast Transcriber")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("音声ファイルのダウンロードに失敗: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("音声ダウンロードがステータス %d を返しました", resp.StatusCode)
	}

	tmp, err := os.CreateTemp(filepath.Dir(audioPath), audioFileName+".tmp-*")
	if err != nil {
		return fmt.Errorf("一時ファイルの作成に失敗: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("音声ファイルの保存に失敗: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("一時ファイルのクローズに失敗: %w", err)
	}
	if err := os.Rename(tmpName, audioPath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("音声ファイルの配置に失敗: %w", err)
	}

	return nil
}

// pollResult は完了または失敗までポーリングURLを定期的に照会する。
// ポーリング全体にデッドラインを設け、無期限に回り続けることを防ぐ。
func (r *Runner) pollResult(ctx context.Context, resultURL string) (*TranscriptionResult, error) {
	ctx, cancel := context.WithTimeout(ctx, r.pollTimeout)
	defer cancel()

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		result, err := r.client.GetResult(ctx, resultURL)
		if err != nil {
			return nil, err
		}

		switch result.Status {
		case pollStatusDone:
			return result.Result, nil
		case pollStatusError:
			return nil, &ProviderError{Code: result.ErrorCode}
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("文字起こしのポーリングがタイムアウトしました（上限 %s）", r.pollTimeout)
		case <-ticker.C:
		}
	}
}

// checkDiskSpace は空きディスク容量の事前チェックを行う。
// 容量の取得自体に失敗した場合は警告ログのみで処理を継続する。
func (r *Runner) checkDiskSpace(dir string) error {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(dir, &stat); err != nil {
		r.logger.Warn("ディスク容量の取得に失敗したためチェックをスキップします",
			slog.String("dir", dir),
			slog.String("error", err.Error()),
		)
		return nil
	}

	free := stat.Bavail * uint64(stat.Bsize)
	if free < r.minFreeDiskBytes {
		return fmt.Errorf("ディスクの空き容量が不足しています（空き %s、必要 %s 以上）",
			humanize.IBytes(free), humanize.IBytes(r.minFreeDiskBytes))
	}
	return nil
}

// writeStatus は終端状態のStatusRecordを書き込む。
// 書き込み失敗はログに記録するのみで、ジョブの結果自体は変更しない。
func (r *Runner) writeStatus(episode *model.Episode, rec *model.StatusRecord) {
	if err := r.store.Set(episode.ID, rec); err != nil {
		r.logger.Error("ステータスレコードの書き込みに失敗しました",
			slog.String("episode_id", episode.ID),
			slog.String("error", err.Error()),
		)
	}
}

// SanitizeName はポッドキャスト名・エピソードタイトルからディレクトリ名を生成する。
// 英数字（Unicode文字を含む）と「_」「-」のみを残し、それ以外は「_」に置換する。
func SanitizeName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}
