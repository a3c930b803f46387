// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// フィードアグリゲータと文字起こしランナーから利用する。
type MetricsCollector interface {
	RecordFeedFetchFailure(feedName string)
	RecordFeedFetchLatency(duration time.Duration)
	RecordJobSuccess()
	RecordJobFailure()
	RecordJobDuration(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	feedFetchFail    *prometheus.CounterVec
	feedFetchLatency prometheus.Histogram
	jobSuccess       prometheus.Counter
	jobFail          prometheus.Counter
	jobDuration      prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		feedFetchFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "podscribe_feed_fetch_fail_total",
			Help: "フィード取得失敗の合計数",
		}, []string{"feed_name"}),
		feedFetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "podscribe_feed_fetch_latency_seconds",
			Help:    "フィード取得のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		jobSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "podscribe_transcribe_success_total",
			Help: "文字起こしジョブ成功の合計数",
		}),
		jobFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "podscribe_transcribe_fail_total",
			Help: "文字起こしジョブ失敗の合計数",
		}),
		jobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "podscribe_transcribe_duration_seconds",
			Help: "文字起こしジョブの所要時間（秒）",
			// ジョブは分〜時間単位なので長めのバケットを使う
			Buckets: []float64{30, 60, 120, 300, 600, 1200, 1800, 3600, 7200},
		}),
	}

	reg.MustRegister(
		c.feedFetchFail,
		c.feedFetchLatency,
		c.jobSuccess,
		c.jobFail,
		c.jobDuration,
	)

	return c
}

// RecordFeedFetchFailure はフィード取得失敗を記録する。
func (c *Collector) RecordFeedFetchFailure(feedName string) {
	c.feedFetchFail.WithLabelValues(feedName).Inc()
}

// RecordFeedFetchLatency はフィード取得のレイテンシを記録する。
func (c *Collector) RecordFeedFetchLatency(duration time.Duration) {
	c.feedFetchLatency.Observe(duration.Seconds())
}

// RecordJobSuccess は文字起こしジョブの成功を記録する。
func (c *Collector) RecordJobSuccess() {
	c.jobSuccess.Inc()
}

// RecordJobFailure は文字起こしジョブの失敗を記録する。
func (c *Collector) RecordJobFailure() {
	c.jobFail.Inc()
}

// RecordJobDuration は文字起こしジョブの所要時間を記録する。
func (c *Collector) RecordJobDuration(duration time.Duration) {
	c.jobDuration.Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
