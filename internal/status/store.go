// Package status はエピソードごとの文字起こし結果の永続化を提供する。
// 単一のJSONファイルにエピソードID→StatusRecordのマップを保持する。
package status

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/hitoshi/podscribe/internal/model"
)

// Store はステータスレコードの読み書きインターフェース。
// 書き込みはTranscription Runnerのみが行い、読み取りはAggregatorとハンドラーが行う。
type Store interface {
	// Get は指定エピソードのステータスレコードを返す。レコードがなければ ok=false。
	Get(episodeID string) (*model.StatusRecord, bool, error)
	// Set は指定エピソードのステータスレコードを書き込む（上書き）。
	Set(episodeID string, rec *model.StatusRecord) error
	// All は全レコードのコピーを返す。ファイルが存在しない場合は空マップ。
	All() (map[string]model.StatusRecord, error)
}

// FileStore はJSONファイルを使ったStoreの実装。
//
// 書き込みはプロセス内ミューテックスで直列化した上で、一時ファイルへの書き込みと
// os.Renameによるアトミックな置換で行う。途中でプロセスが落ちても既存ファイルは
// 壊れない。別プロセスとの間の排他は提供しない（last-writer-wins、既知の制限）。
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore はFileStoreの新しいインスタンスを生成する。
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Get は指定エピソードのステータスレコードを返す。
func (s *FileStore) Get(episodeID string) (*model.StatusRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return nil, false, err
	}

	rec, ok := records[episodeID]
	if !ok {
		return nil, false, nil
	}
	return &rec, true, nil
}

// Set は指定エピソードのステータスレコードを書き込む。
// load-mutate-saveのサイクル全体をロックで保護する。
func (s *FileStore) Set(episodeID string, rec *model.StatusRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return err
	}

	records[episodeID] = *rec
	return s.save(records)
}

// All は全レコードのコピーを返す。
func (s *FileStore) All() (map[string]model.StatusRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.load()
}

// load はファイルから全レコードを読み込む。ファイルがなければ空マップを返す。
func (s *FileStore) load() (map[string]model.StatusRecord, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return make(map[string]model.StatusRecord), nil
		}
		return nil, fmt.Errorf("ステータスファイルの読み込みに失敗: %w", err)
	}

	records := make(map[string]model.StatusRecord)
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("ステータスファイルのパースに失敗: %w", err)
	}
	return records, nil
}

// save は全レコードを一時ファイル経由でアトミックに書き込む。
// 同一ディレクトリ内の一時ファイルにフラッシュしてからrenameすることで、
// 部分書き込みによるファイル破損を防ぐ。
func (s *FileStore) save(records map[string]model.StatusRecord) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("ステータスのマーシャルに失敗: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("一時ファイルの作成に失敗: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("一時ファイルへの書き込みに失敗: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("一時ファイルのフラッシュに失敗: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("一時ファイルのクローズに失敗: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("ステータスファイルの置換に失敗: %w", err)
	}
	return nil
}
