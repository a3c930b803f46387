// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, feed, transcription, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeEpisodeNotFound     = "EPISODE_NOT_FOUND"
	ErrCodeTaskNotFound        = "TASK_NOT_FOUND"
	ErrCodeAlreadyTranscribed  = "ALREADY_TRANSCRIBED"
	ErrCodeAlreadyRunning      = "ALREADY_RUNNING"
	ErrCodeTranscriptNotReady  = "TRANSCRIPT_NOT_READY"
	ErrCodeTranscriptNotFound  = "TRANSCRIPT_NOT_FOUND"
	ErrCodeFeedFetchFailed     = "FEED_FETCH_FAILED"
	ErrCodeInvalidRequest      = "INVALID_REQUEST"
)

// NewEpisodeNotFoundError はエピソード未検出エラーを生成する。
// 指定IDに解決されるエントリがどのフィードにも存在しない場合に返される。
func NewEpisodeNotFoundError(episodeID string) *APIError {
	return &APIError{
		Code:     ErrCodeEpisodeNotFound,
		Message:  fmt.Sprintf("指定されたエピソードが見つかりません: %s", episodeID),
		Category: "feed",
		Action:   "エピソードIDを確認してください。フィードからエントリが削除された可能性があります。",
	}
}

// NewTaskNotFoundError はタスク未検出エラーを生成する。
// スイープ済みまたはプロセス再起動で失われたタスクIDに対しても返される。
func NewTaskNotFoundError(taskID string) *APIError {
	return &APIError{
		Code:     ErrCodeTaskNotFound,
		Message:  fmt.Sprintf("指定されたタスクが見つかりません: %s", taskID),
		Category: "transcription",
		Action:   "タスクIDを確認してください。完了から1時間経過したタスクは削除されます。",
	}
}

// NewAlreadyTranscribedError は文字起こし済みエピソードへの再実行エラーを生成する。
func NewAlreadyTranscribedError(episodeID string) *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyTranscribed,
		Message:  fmt.Sprintf("エピソードは既に文字起こし済みです: %s", episodeID),
		Category: "transcription",
		Action:   "/transcript/{episode_id} から既存の文字起こしを取得してください。",
	}
}

// NewAlreadyRunningError は実行中エピソードへの重複リクエストエラーを生成する。
func NewAlreadyRunningError(episodeID string) *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyRunning,
		Message:  fmt.Sprintf("エピソードの文字起こしは既に実行中です: %s", episodeID),
		Category: "transcription",
		Action:   "実行中のタスクの完了を待ってください。",
	}
}

// NewTranscriptNotReadyError は未完了エピソードの文字起こし取得エラーを生成する。
func NewTranscriptNotReadyError(episodeID string) *APIError {
	return &APIError{
		Code:     ErrCodeTranscriptNotReady,
		Message:  fmt.Sprintf("エピソードの文字起こしはまだ完了していません: %s", episodeID),
		Category: "transcription",
		Action:   "/task-status/{task_id} で進行状況を確認してください。",
	}
}

// NewTranscriptNotFoundError は文字起こしファイル未検出エラーを生成する。
// ステータスレコードは存在するがファイルが削除されている場合に返される。
func NewTranscriptNotFoundError(episodeID string) *APIError {
	return &APIError{
		Code:     ErrCodeTranscriptNotFound,
		Message:  fmt.Sprintf("文字起こしファイルが見つかりません: %s", episodeID),
		Category: "transcription",
		Action:   "文字起こしを再実行してください。",
	}
}

// NewInvalidRequestError は無効なリクエストエラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("無効なリクエストです: %s", reason),
		Category: "validation",
		Action:   "リクエストパラメータを確認してください。",
	}
}
