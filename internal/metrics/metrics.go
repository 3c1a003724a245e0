// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector はゲートウェイとニュース取得のメトリクスを収集する実装。
// gateway.Metricsを実装する。
type Collector struct {
	requests    *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	newsFetch   prometheus.Counter
	newsFail    prometheus.Counter
	uploadBytes prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cropid_api_requests_total",
			Help: "アイデンティティAPIリクエストの合計数（操作・ステータス別）",
		}, []string{"operation", "status_code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cropid_api_latency_seconds",
			Help:    "アイデンティティAPIリクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		newsFetch: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cropid_news_fetch_success_total",
			Help: "お知らせフィード取得成功の合計数",
		}),
		newsFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cropid_news_fetch_fail_total",
			Help: "お知らせフィード取得失敗の合計数",
		}),
		uploadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cropid_upload_bytes_total",
			Help: "判定用にアップロードした画像の合計バイト数",
		}),
	}

	reg.MustRegister(
		c.requests,
		c.latency,
		c.newsFetch,
		c.newsFail,
		c.uploadBytes,
	)

	return c
}

// RecordRequest はAPIリクエストの完了を記録する。
// トランスポート失敗はstatus=0で記録される。
func (c *Collector) RecordRequest(operation string, status int) {
	c.requests.WithLabelValues(operation, strconv.Itoa(status)).Inc()
}

// RecordLatency はAPIリクエストのレイテンシを記録する。
func (c *Collector) RecordLatency(operation string, duration time.Duration) {
	c.latency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordNewsFetch はお知らせフィード取得の成否を記録する。
func (c *Collector) RecordNewsFetch(success bool) {
	if success {
		c.newsFetch.Inc()
	} else {
		c.newsFail.Inc()
	}
}

// RecordUploadBytes はアップロードした画像のバイト数を記録する。
func (c *Collector) RecordUploadBytes(n int64) {
	c.uploadBytes.Add(float64(n))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", Handler(gatherer))
	return r
}
