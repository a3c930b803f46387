// Package transcribe は音声の文字起こしジョブの実行を提供する。
// Gladia APIクライアント、レスポンスの正規化、バックグラウンドジョブランナーを含む。
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

const (
	// defaultUploadEndpoint はGladiaの音声アップロードAPIのエンドポイント。
	defaultUploadEndpoint = "https://api.gladia.io/v2/upload/"
	// defaultSubmitEndpoint はGladiaの文字起こし開始APIのエンドポイント。
	defaultSubmitEndpoint = "https://api.gladia.io/v2/pre-recorded/"
)

// PollResult はポーリングAPIの1回分のレスポンスを表す。
type PollResult struct {
	Status    string               `json:"status"`
	ErrorCode string               `json:"error_code"`
	Result    *TranscriptionResult `json:"result"`
}

// プロバイダの終端ステータス値。
const (
	pollStatusDone  = "done"
	pollStatusError = "error"
)

// Client はGladia文字起こしAPIのクライアント。
// アップロード→開始→結果URLのポーリングという3段階のフローを提供する。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	apiKey     string

	// テスト用にエンドポイントを差し替え可能
	uploadEndpoint string
	submitEndpoint string
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, logger *slog.Logger, apiKey string) *Client {
	return &Client{
		httpClient:     httpClient,
		logger:         logger,
		apiKey:         apiKey,
		uploadEndpoint: defaultUploadEndpoint,
		submitEndpoint: defaultSubmitEndpoint,
	}
}

// Upload は音声ファイルをプロバイダにアップロードし、音声URLを返す。
func (c *Client) Upload(ctx context.Context, audioPath string) (string, error) {
	file, err := os.Open(audioPath)
	if err != nil {
		return "", fmt.Errorf("音声ファイルのオープンに失敗: %w", err)
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("audio", filepath.Base(audioPath))
	if err != nil {
		return "", fmt.Errorf("マルチパートフォームの作成に失敗: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", fmt.Errorf("音声ファイルの読み込みに失敗: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("マルチパートフォームのクローズに失敗: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uploadEndpoint, &body)
	if err != nil {
		return "", fmt.Errorf("HTTPリクエストの作成に失敗: %w", err)
	}
	req.Header.Set("x-gladia-key", c.apiKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var resp struct {
		AudioURL string `json:"audio_url"`
	}
	if err := c.doJSON(req, &resp); err != nil {
		return "", fmt.Errorf("音声アップロードに失敗: %w", err)
	}
	if resp.AudioURL == "" {
		return "", fmt.Errorf("アップロードレスポンスにaudio_urlが含まれていません")
	}

	return resp.AudioURL, nil
}

// Submit は文字起こしジョブを開始し、結果取得用のポーリングURLを返す。
// 話者分離（ダイアライゼーション）を有効にして送信する。
func (c *Client) Submit(ctx context.Context, audioURL string) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"audio_url":   audioURL,
		"language":    "en",
		"diarization": true,
		"subtitles":   false,
	})
	if err != nil {
		return "", fmt.Errorf("リクエストボディのマーシャルに失敗: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.submitEndpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("HTTPリクエストの作成に失敗: %w", err)
	}
	req.Header.Set("x-gladia-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	var resp struct {
		ResultURL string `json:"result_url"`
	}
	if err := c.doJSON(req, &resp); err != nil {
		return "", fmt.Errorf("文字起こしの開始に失敗: %w", err)
	}
	if resp.ResultURL == "" {
		return "", fmt.Errorf("開始レスポンスにresult_urlが含まれていません")
	}

	return resp.ResultURL, nil
}

// GetResult はポーリングURLから現在の文字起こし状態を取得する。
func (c *Client) GetResult(ctx context.Context, resultURL string) (*PollResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resultURL, nil)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗: %w", err)
	}
	req.Header.Set("x-gladia-key", c.apiKey)

	var result PollResult
	if err := c.doJSON(req, &result); err != nil {
		return nil, fmt.Errorf("結果の取得に失敗: %w", err)
	}

	return &result, nil
}

// doJSON はリクエストを実行し、2xxレスポンスのボディをJSONとしてデコードする。
func (c *Client) doJSON(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("プロバイダAPIの呼び出しに失敗しました",
			slog.String("url", req.URL.String()),
			slog.String("error", err.Error()),
		)
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("レスポンスボディの読み取りに失敗: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Error("プロバイダAPIがエラーステータスを返しました",
			slog.String("url", req.URL.String()),
			slog.Int("http_status", resp.StatusCode),
			slog.String("body", truncateForLog(string(body))),
		)
		return fmt.Errorf("プロバイダAPIがステータス %d を返しました", resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("レスポンスJSONのパースに失敗: %w", err)
	}
	return nil
}

// truncateForLog はログ出力用にレスポンスボディを切り詰める。
func truncateForLog(s string) string {
	const maxLen = 512
	s = strings.TrimSpace(s)
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	return s
}
