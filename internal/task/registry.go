// Package task はバックグラウンドジョブ進行状況のインメモリレジストリを提供する。
// レコードはプロセス内のみで保持され、再起動で失われる。終端状態のレコードは
// 保持期間経過後に定期スイープで削除される。
package task

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/podscribe/internal/model"
)

// defaultRetention は終端状態タスクの保持期間。
const defaultRetention = time.Hour

// Registry はタスクレコードのミューテックス保護付きインメモリマップ。
// ジョブの開始より完了が遅いペースで積まれ続けた場合の無制限な増加は
// 防がない（終端レコードのスイープのみで抑制する、既知の制限）。
type Registry struct {
	mu        sync.RWMutex
	tasks     map[string]*model.Task
	logger    *slog.Logger
	Retention time.Duration

	now func() time.Time // テスト用に差し替え可能
}

// NewRegistry はRegistryの新しいインスタンスを生成する。
// デフォルトの保持期間は1時間。
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		tasks:     make(map[string]*model.Task),
		logger:    logger,
		Retention: defaultRetention,
		now:       time.Now,
	}
}

// Create は新しいタスクレコードを登録する。
func (r *Registry) Create(taskID string, task *model.Task) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := *task
	r.tasks[taskID] = &t
}

// Get は指定タスクのレコードのコピーを返す。レコードがなければ ok=false。
func (r *Registry) Get(taskID string) (*model.Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tasks[taskID]
	if !ok {
		return nil, false
	}
	copied := *t
	return &copied, true
}

// Update は指定タスクのレコードをロック保護下で変更する。
// レコードが存在しない場合は何もしない（スイープ済みのタスクへの更新を握りつぶす）。
func (r *Registry) Update(taskID string, fn func(t *model.Task)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[taskID]
	if !ok {
		return
	}
	fn(t)
}

// Sweep は保持期間を超過した終端状態（completed/error）のレコードを削除する。
// 実行中・待機中のレコードは経過時間にかかわらず削除しない。
// 削除件数を返す。冪等: 対象がなくてもエラーにならない。
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.Retention)
	removed := 0

	for id, t := range r.tasks {
		if t.IsTerminal() && t.CreatedAt.Before(cutoff) {
			delete(r.tasks, id)
			removed++
		}
	}

	if removed > 0 {
		r.logger.Info("タスクレジストリをスイープしました",
			slog.Int("removed_count", removed),
			slog.Int("remaining_count", len(r.tasks)),
		)
	}

	return removed
}

// Len は現在のレコード数を返す。テストおよびメトリクス用。
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tasks)
}

// StartSweeper は指定間隔でSweepを実行するバックグラウンドループを開始する。
// コンテキストがキャンセルされるまで実行を継続する（ブロッキング）。
func (r *Registry) StartSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info("タスクスイーパーを開始しました",
		slog.Duration("interval", interval),
		slog.Duration("retention", r.Retention),
	)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("タスクスイーパーを停止しました")
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}
