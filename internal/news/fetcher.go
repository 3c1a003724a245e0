// Package news は製品お知らせフィードの取得と表示用整形を提供する。
//
// ダッシュボードに表示するお知らせは運営のRSS/Atomフィードから取得する。
// 取得はSSRF防止付きのHTTPクライアントで行い、本文はサニタイズの後に
// 端末表示向けのプレーンテキストへ縮約される。
package news

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/hitoshi/cropid/internal/model"
)

// SSRFValidator はSSRF検証のインターフェース。
type SSRFValidator interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client
}

// Sanitizer はHTMLサニタイズのインターフェース。
type Sanitizer interface {
	Sanitize(rawHTML string) string
}

// Metrics はお知らせ取得のメトリクス収集のインターフェース。
type Metrics interface {
	RecordNewsFetch(success bool)
}

// noopMetrics はメトリクス未設定時の実装。
type noopMetrics struct{}

func (noopMetrics) RecordNewsFetch(bool) {}

// Config はFetcherの設定。
type Config struct {
	FeedURL     string
	Timeout     time.Duration
	MaxBodySize int64
	MaxItems    int // 返却するお知らせの上限件数
	UserAgent   string
}

// Fetcher はお知らせフィードのHTTPフェッチとパースを行う。
// SSRF検証、gofeedによるパース、本文のサニタイズと縮約を実行する。
type Fetcher struct {
	cfg       Config
	ssrfGuard SSRFValidator
	sanitizer Sanitizer
	metrics   Metrics
	logger    *slog.Logger
}

// NewFetcher はFetcherの新しいインスタンスを生成する。
// metricsがnilの場合は収集しない。
func NewFetcher(cfg Config, ssrfGuard SSRFValidator, sanitizer Sanitizer, metrics Metrics, logger *slog.Logger) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = 2 << 20
	}
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = 10
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "cropid/1.0"
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		cfg:       cfg,
		ssrfGuard: ssrfGuard,
		sanitizer: sanitizer,
		metrics:   metrics,
		logger:    logger,
	}
}

// Fetch はお知らせフィードを取得し、公開日時の降順で返す。
// フィードURLが未設定の場合は空のスライスを返す。
func (f *Fetcher) Fetch(ctx context.Context) ([]model.Announcement, error) {
	if f.cfg.FeedURL == "" {
		return nil, nil
	}

	// SSRF検証
	if err := f.ssrfGuard.ValidateURL(f.cfg.FeedURL); err != nil {
		f.metrics.RecordNewsFetch(false)
		f.logger.Error("announcement feed URL rejected",
			slog.String("feed_url", f.cfg.FeedURL),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("フィードURLの検証に失敗: %w", err)
	}

	client := f.ssrfGuard.NewSafeClient(f.cfg.Timeout, f.cfg.MaxBodySize)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.cfg.FeedURL, nil)
	if err != nil {
		f.metrics.RecordNewsFetch(false)
		return nil, fmt.Errorf("リクエスト作成に失敗: %w", err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, */*")

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		f.metrics.RecordNewsFetch(false)
		f.logger.Error("announcement feed request failed",
			slog.String("feed_url", f.cfg.FeedURL),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("フィード取得に失敗: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		f.metrics.RecordNewsFetch(false)
		return nil, fmt.Errorf("フィード取得に失敗: HTTPステータス %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBodySize))
	if err != nil {
		f.metrics.RecordNewsFetch(false)
		return nil, fmt.Errorf("レスポンス読み取りに失敗: %w", err)
	}

	parser := gofeed.NewParser()
	parsedFeed, err := parser.ParseString(string(body))
	if err != nil {
		f.metrics.RecordNewsFetch(false)
		f.logger.Error("announcement feed parse failed",
			slog.String("feed_url", f.cfg.FeedURL),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("フィードのパースに失敗: %w", err)
	}

	announcements := f.convertItems(parsedFeed.Items)

	f.metrics.RecordNewsFetch(true)
	f.logger.Info("announcement feed fetched",
		slog.String("feed_url", f.cfg.FeedURL),
		slog.Int("items", len(announcements)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return announcements, nil
}

// convertItems はgofeedの記事をmodel.Announcementに変換する。
// 公開日時の降順に並べ、上限件数で打ち切る。
func (f *Fetcher) convertItems(items []*gofeed.Item) []model.Announcement {
	announcements := make([]model.Announcement, 0, len(items))

	for _, item := range items {
		if item == nil {
			continue
		}

		content := item.Content
		if content == "" {
			content = item.Description
		}
		safeHTML := f.sanitizer.Sanitize(content)

		a := model.Announcement{
			Title:     item.Title,
			Link:      item.Link,
			Summary:   safeHTML,
			PlainText: HTMLToText(safeHTML),
		}

		if item.PublishedParsed != nil {
			t := *item.PublishedParsed
			a.PublishedAt = &t
		} else if item.UpdatedParsed != nil {
			t := *item.UpdatedParsed
			a.PublishedAt = &t
		}

		announcements = append(announcements, a)
	}

	// 公開日時なしの記事はフィード順のまま末尾に回す
	sort.SliceStable(announcements, func(i, j int) bool {
		if announcements[i].PublishedAt == nil {
			return false
		}
		if announcements[j].PublishedAt == nil {
			return true
		}
		return announcements[i].PublishedAt.After(*announcements[j].PublishedAt)
	})

	if len(announcements) > f.cfg.MaxItems {
		announcements = announcements[:f.cfg.MaxItems]
	}
	return announcements
}
