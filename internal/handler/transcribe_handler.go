package handler

import (
	"context"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/podscribe/internal/model"
)

// JobStarter は文字起こしジョブの受け付けインターフェース。
type JobStarter interface {
	// Begin はジョブをバックグラウンドで開始し、タスクIDを返す。
	Begin(ctx context.Context, episode *model.Episode) (string, error)
}

// TaskReader はタスクレコードの参照インターフェース。
type TaskReader interface {
	Get(taskID string) (*model.Task, bool)
}

// StatusReaderService はステータスレコードの参照インターフェース。
type StatusReaderService interface {
	Get(episodeID string) (*model.StatusRecord, bool, error)
	All() (map[string]model.StatusRecord, error)
}

// TranscribeHandler は文字起こし関連のHTTPハンドラー。
type TranscribeHandler struct {
	aggregator AggregatorService
	runner     JobStarter
	tasks      TaskReader
	store      StatusReaderService
}

// NewTranscribeHandler はTranscribeHandlerを生成する。
func NewTranscribeHandler(aggregator AggregatorService, runner JobStarter, tasks TaskReader, store StatusReaderService) *TranscribeHandler {
	return &TranscribeHandler{
		aggregator: aggregator,
		runner:     runner,
		tasks:      tasks,
		store:      store,
	}
}

// transcribeResponse は文字起こし開始のAPIレスポンス。
type transcribeResponse struct {
	TaskID  string `json:"task_id"`
	Message string `json:"message"`
}

// transcriptResponse は文字起こし取得のAPIレスポンス。
type transcriptResponse struct {
	Episode    *model.StatusRecord `json:"episode"`
	Transcript string              `json:"transcript"`
}

// StartTranscription は指定エピソードの文字起こしジョブを開始する。
// ジョブは非同期に実行されるため202を返す。
// POST /transcribe/{episodeID}
func (h *TranscribeHandler) StartTranscription(w http.ResponseWriter, r *http.Request) {
	episodeID := chi.URLParam(r, "episodeID")

	episode, err := h.aggregator.FindEpisode(r.Context(), episodeID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	taskID, err := h.runner.Begin(r.Context(), episode)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusAccepted, transcribeResponse{
		TaskID:  taskID,
		Message: "文字起こしタスクを開始しました",
	})
}

// GetTaskStatus は指定タスクの進行状況を返す。
// GET /task-status/{taskID}
func (h *TranscribeHandler) GetTaskStatus(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")

	task, ok := h.tasks.Get(taskID)
	if !ok {
		handleServiceError(w, model.NewTaskNotFoundError(taskID))
		return
	}

	writeJSONResponse(w, http.StatusOK, task)
}

// GetTranscript は完了済みエピソードの文字起こしテキストを返す。
// GET /transcript/{episodeID}
func (h *TranscribeHandler) GetTranscript(w http.ResponseWriter, r *http.Request) {
	episodeID := chi.URLParam(r, "episodeID")

	rec, ok, err := h.store.Get(episodeID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if !ok {
		handleServiceError(w, model.NewEpisodeNotFoundError(episodeID))
		return
	}
	if rec.Status != model.StatusCompleted {
		handleServiceError(w, model.NewTranscriptNotReadyError(episodeID))
		return
	}

	// レコードは完了済みでもファイルが手動削除されている可能性がある
	data, err := os.ReadFile(rec.TranscriptPath)
	if err != nil {
		handleServiceError(w, model.NewTranscriptNotFoundError(episodeID))
		return
	}

	writeJSONResponse(w, http.StatusOK, transcriptResponse{
		Episode:    rec,
		Transcript: string(data),
	})
}

// GetAllStatus は全エピソードのステータスレコードを返す。
// GET /status
func (h *TranscribeHandler) GetAllStatus(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.All()
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, records)
}
