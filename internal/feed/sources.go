package feed

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/hitoshi/podscribe/internal/model"
)

// LoadSources は購読フィード一覧をJSONファイルから読み込む。
// ファイルが存在しない場合は空リストを返す（エラーにしない）。
func LoadSources(path string) ([]model.FeedSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []model.FeedSource{}, nil
		}
		return nil, fmt.Errorf("フィード設定ファイルの読み込みに失敗: %w", err)
	}

	var sources []model.FeedSource
	if err := json.Unmarshal(data, &sources); err != nil {
		return nil, fmt.Errorf("フィード設定ファイルのパースに失敗: %w", err)
	}

	return sources, nil
}
