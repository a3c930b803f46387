package feed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/hitoshi/podscribe/internal/model"
)

// StatusReader はエピソードIDからステータスレコードを参照するインターフェース。
type StatusReader interface {
	Get(episodeID string) (*model.StatusRecord, bool, error)
}

// InFlightChecker は実行中の文字起こしジョブの有無を確認するインターフェース。
type InFlightChecker interface {
	Running(episodeID string) bool
}

// SSRFValidator はSSRF検証のインターフェース。
type SSRFValidator interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client
}

// ContentSanitizer はエントリ概要のHTMLサニタイズのインターフェース。
type ContentSanitizer interface {
	Sanitize(rawHTML string) string
}

// MetricsRecorder はフィード取得メトリクスを記録するインターフェース。
type MetricsRecorder interface {
	RecordFeedFetchFailure(feedName string)
	RecordFeedFetchLatency(duration time.Duration)
}

// Aggregator は設定された全フィードを取得・パースし、エピソード一覧を構築する。
// 個別フィードの失敗は集約を中断せず、警告ログとメトリクス記録のみ行って継続する。
// エピソードのステータスはStatusReaderとInFlightCheckerから読み取り時に解決される。
type Aggregator struct {
	feedsFile   string
	store       StatusReader
	inflight    InFlightChecker
	ssrfGuard   SSRFValidator
	sanitizer   ContentSanitizer
	metrics     MetricsRecorder
	logger      *slog.Logger
	timeout     time.Duration
	maxBodySize int64
}

// NewAggregator はAggregatorの新しいインスタンスを生成する。
func NewAggregator(
	feedsFile string,
	store StatusReader,
	inflight InFlightChecker,
	ssrfGuard SSRFValidator,
	sanitizer ContentSanitizer,
	metrics MetricsRecorder,
	logger *slog.Logger,
	timeout time.Duration,
	maxBodySize int64,
) *Aggregator {
	return &Aggregator{
		feedsFile:   feedsFile,
		store:       store,
		inflight:    inflight,
		ssrfGuard:   ssrfGuard,
		sanitizer:   sanitizer,
		metrics:     metrics,
		logger:      logger,
		timeout:     timeout,
		maxBodySize: maxBodySize,
	}
}

// ListEpisodes は全フィードのエピソードを公開日時の降順で返す。
// maxAgeDays日より古いエピソードは除外される。ただし公開日時を持たない
// エントリは日付でフィルタできないため常に含める。結果はlimit件に切り詰められる。
func (a *Aggregator) ListEpisodes(ctx context.Context, limit, maxAgeDays int) ([]model.Episode, error) {
	sources, err := LoadSources(a.feedsFile)
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -maxAgeDays)
	allEpisodes := make([]model.Episode, 0, limit)

	for _, src := range sources {
		parsed, err := a.fetchFeed(ctx, src)
		if err != nil {
			// 個別フィードの失敗は集約を中断しない
			a.logger.Warn("フィードの取得に失敗したためスキップします",
				slog.String("feed_name", src.Name),
				slog.String("feed_url", src.RSS),
				slog.String("error", err.Error()),
			)
			a.metrics.RecordFeedFetchFailure(src.Name)
			continue
		}

		allEpisodes = append(allEpisodes, a.episodesFromFeed(src, parsed, &cutoff)...)
	}

	// 全フィード横断で公開日時の降順にソート（日付なしは末尾）
	sort.SliceStable(allEpisodes, func(i, j int) bool {
		pi, pj := allEpisodes[i].PubDateParsed, allEpisodes[j].PubDateParsed
		if pi == nil {
			return false
		}
		if pj == nil {
			return true
		}
		return pi.After(*pj)
	})

	if len(allEpisodes) > limit {
		allEpisodes = allEpisodes[:limit]
	}

	return allEpisodes, nil
}

// FindEpisode は指定IDに解決されるエピソードを全フィードから探す。
// どのフィードにも該当エントリがない場合はEPISODE_NOT_FOUNDエラーを返す。
func (a *Aggregator) FindEpisode(ctx context.Context, episodeID string) (*model.Episode, error) {
	sources, err := LoadSources(a.feedsFile)
	if err != nil {
		return nil, err
	}

	for _, src := range sources {
		parsed, err := a.fetchFeed(ctx, src)
		if err != nil {
			a.logger.Warn("フィードの取得に失敗したためスキップします",
				slog.String("feed_name", src.Name),
				slog.String("feed_url", src.RSS),
				slog.String("error", err.Error()),
			)
			a.metrics.RecordFeedFetchFailure(src.Name)
			continue
		}

		for _, entry := range parsed.Items {
			if entry == nil {
				continue
			}
			audioURL := audioEnclosureURL(entry)
			if audioURL == "" {
				continue
			}
			if DeriveEpisodeID(src.RSS, entry) != episodeID {
				continue
			}

			ep := a.buildEpisode(src, entry, audioURL)
			return &ep, nil
		}
	}

	return nil, model.NewEpisodeNotFoundError(episodeID)
}

// fetchFeed は1フィードをSSRF検証付きで取得し、gofeedでパースする。
func (a *Aggregator) fetchFeed(ctx context.Context, src model.FeedSource) (*gofeed.Feed, error) {
	start := time.Now()

	if err := a.ssrfGuard.ValidateURL(src.RSS); err != nil {
		return nil, fmt.Errorf("SSRF検証に失敗: %w", err)
	}

	client := a.ssrfGuard.NewSafeClient(a.timeout, a.maxBodySize)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.RSS, nil)
	if err != nil {
		return nil, fmt.Errorf("リクエスト作成に失敗: %w", err)
	}

	req.Header.Set("User-Agent", "Podscribe/1.0 Podcast Transcriber")
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, */*")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエスト失敗: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTPステータス %d が返されました", resp.StatusCode)
	}

	// レスポンスボディを読み込み（最大サイズ制限付き）
	body, err := io.ReadAll(io.LimitReader(resp.Body, a.maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("レスポンス読み取り失敗: %w", err)
	}

	parser := gofeed.NewParser()
	parsed, err := parser.ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("フィードのパースに失敗: %w", err)
	}

	a.metrics.RecordFeedFetchLatency(time.Since(start))
	return parsed, nil
}

// episodesFromFeed は1フィードのエントリをエピソードに変換する。
//
// 公開日時を持つエントリは降順に並べた上で、cutoffより古いエントリに到達した
// 時点で残り（より古いエントリ）をスキップする。フィードのエントリはおおむね
// 時系列順であるという前提のヒューリスティックであり、厳密な保証ではない。
// 公開日時を持たないエントリは日付でフィルタできないため常に含める。
func (a *Aggregator) episodesFromFeed(src model.FeedSource, parsed *gofeed.Feed, cutoff *time.Time) []model.Episode {
	var dated []*gofeed.Item
	var undated []*gofeed.Item

	for _, entry := range parsed.Items {
		if entry == nil {
			continue
		}
		if audioEnclosureURL(entry) == "" {
			// 音声エンクロージャのないエントリは対象外
			continue
		}
		if entry.PublishedParsed != nil {
			dated = append(dated, entry)
		} else {
			undated = append(undated, entry)
		}
	}

	sort.SliceStable(dated, func(i, j int) bool {
		return dated[i].PublishedParsed.After(*dated[j].PublishedParsed)
	})

	episodes := make([]model.Episode, 0, len(dated)+len(undated))

	for _, entry := range undated {
		episodes = append(episodes, a.buildEpisode(src, entry, audioEnclosureURL(entry)))
	}

	for _, entry := range dated {
		if cutoff != nil && entry.PublishedParsed.Before(*cutoff) {
			// 降順に並べているため、これ以降のエントリはすべて古い
			break
		}
		episodes = append(episodes, a.buildEpisode(src, entry, audioEnclosureURL(entry)))
	}

	return episodes
}

// buildEpisode はフィードエントリからエピソードを構築し、ステータスを解決する。
func (a *Aggregator) buildEpisode(src model.FeedSource, entry *gofeed.Item, audioURL string) model.Episode {
	title := entry.Title
	if title == "" {
		title = unknownTitle
	}

	ep := model.Episode{
		ID:          DeriveEpisodeID(src.RSS, entry),
		PodcastName: src.Name,
		Title:       title,
		Summary:     a.sanitizer.Sanitize(entry.Description),
		PubDate:     entry.Published,
		AudioURL:    audioURL,
	}

	if entry.PublishedParsed != nil {
		t := entry.PublishedParsed.UTC()
		ep.PubDateParsed = &t
	}

	ep.Status = a.resolveStatus(ep.ID)
	return ep
}

// resolveStatus はエピソードのステータスを読み取り時に解決する。
// ステータスレコードがあればその値、なければ実行中ジョブの有無でrunning/pendingを合成する。
func (a *Aggregator) resolveStatus(episodeID string) string {
	rec, ok, err := a.store.Get(episodeID)
	if err != nil {
		a.logger.Error("ステータスの読み取りに失敗しました",
			slog.String("episode_id", episodeID),
			slog.String("error", err.Error()),
		)
		return model.StatusPending
	}
	if ok {
		return rec.Status
	}
	if a.inflight != nil && a.inflight.Running(episodeID) {
		return model.StatusRunning
	}
	return model.StatusPending
}

// audioEnclosureURL はエントリの音声エンクロージャのURLを返す。
// MIMEタイプが audio/ で始まる最初のエンクロージャを採用し、なければ空文字を返す。
func audioEnclosureURL(entry *gofeed.Item) string {
	for _, enc := range entry.Enclosures {
		if enc == nil {
			continue
		}
		if strings.HasPrefix(enc.Type, "audio/") && enc.URL != "" {
			return enc.URL
		}
	}
	return ""
}
