// Package model はドメインモデルを定義する。
package model

import "time"

// Episode はフィードエントリから導出されるエピソードを表す。
// エンティティとして永続化されず、リクエストごとにフィードから再構築される。
// IDは同一フィード・同一エントリに対して常に同じ値になる（冪等な再ポーリングの前提）。
type Episode struct {
	ID            string     `json:"id"`
	PodcastName   string     `json:"podcast_name"`
	Title         string     `json:"title"`
	Summary       string     `json:"summary,omitempty"` // サニタイズ済みHTML
	PubDate       string     `json:"pub_date"`
	PubDateParsed *time.Time `json:"pub_date_parsed"`
	AudioURL      string     `json:"audio_url"`
	Status        string     `json:"status"`
}

// エピソードのステータス値。pending/runningは読み取り時に合成され、
// completed/errorのみがStatusRecordとして永続化される。
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusError     = "error"
)

// StatusRecord はエピソードIDごとの最終的な文字起こし結果を表す。
// 文字起こしジョブが終端状態（completed/error）に達したときのみ書き込まれる。
// 書き込みはTranscription Runnerが専有し、読み取りはAggregatorとハンドラーが行う。
type StatusRecord struct {
	Status         string `json:"status"`
	TranscriptPath string `json:"transcript_path,omitempty"`
	CompletedAt    string `json:"completed_at,omitempty"`
	Error          string `json:"error,omitempty"`
	FailedAt       string `json:"failed_at,omitempty"`
	PodcastName    string `json:"podcast_name"`
	EpisodeTitle   string `json:"episode_title"`
}

// Task はバックグラウンドジョブの進行状況を表す。
// インメモリのみで保持され、プロセス再起動で失われる。
type Task struct {
	Type         string    `json:"type"`
	Status       string    `json:"status"`
	Message      string    `json:"message"`
	EpisodeTitle string    `json:"episode_title"`
	CreatedAt    time.Time `json:"created_at"`
}

// IsTerminal はタスクが終端状態（completed/error）かを返す。
// 終端状態のタスクのみが保持期間経過後のスイープ対象となる。
func (t *Task) IsTerminal() bool {
	return t.Status == StatusCompleted || t.Status == StatusError
}

// FeedSource は設定ファイルに記述された購読フィードを表す。
type FeedSource struct {
	Name string `json:"name"`
	RSS  string `json:"rss"`
}
