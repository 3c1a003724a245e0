// Package predict は作物識別APIへの画像アップロードと判定取得を提供する。
package predict

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/hitoshi/cropid/internal/model"
)

// predictPath は作物識別エンドポイントのパス。
const predictPath = "/api/predict"

// SSRFValidator はURL指定判定に使うSSRF検証のインターフェース。
type SSRFValidator interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client
}

// Metrics はアップロード量のメトリクス収集のインターフェース。
type Metrics interface {
	RecordUploadBytes(n int64)
}

// noopMetrics はメトリクス未設定時の実装。
type noopMetrics struct{}

func (noopMetrics) RecordUploadBytes(int64) {}

// Config は判定クライアントの設定。
type Config struct {
	BaseURL       string
	Timeout       time.Duration
	UploadMaxSize int64
	UserAgent     string
}

// Client は作物識別APIのクライアント。
// 画像ファイルのmultipartアップロードと、URL指定画像の取得→アップロードを
// サポートする。URL指定の取得はSSRF防止付きクライアントで行う。
type Client struct {
	cfg       Config
	http      *http.Client
	ssrfGuard SSRFValidator
	metrics   Metrics
	logger    *slog.Logger
}

// NewClient はClientを生成する。metricsがnilの場合は収集しない。
func NewClient(cfg Config, ssrfGuard SSRFValidator, metrics Metrics, logger *slog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.UploadMaxSize <= 0 {
		cfg.UploadMaxSize = 10 << 20
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
	return &Client{
		cfg:       cfg,
		http:      &http.Client{Timeout: cfg.Timeout},
		ssrfGuard: ssrfGuard,
		metrics:   metrics,
		logger:    logger,
	}, nil
}

// allowedImageExtensions はアップロードを受け付ける画像拡張子。
var allowedImageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
}

// validateImage はアップロード前のローカル検証を行う。
func (c *Client) validateImage(filename string, size int64) *model.APIError {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedImageExtensions[ext] {
		return model.NewValidationError("image", "must be a jpg, jpeg, png, or webp file")
	}
	if size > c.cfg.UploadMaxSize {
		return model.NewValidationError("image", fmt.Sprintf("must not exceed %d bytes", c.cfg.UploadMaxSize))
	}
	return nil
}

// PredictImage は画像を識別APIへアップロードし判定結果を返す。
// 失敗は*model.APIErrorに正規化される。
func (c *Client) PredictImage(ctx context.Context, filename string, image io.Reader, size int64) (*model.PredictionResult, error) {
	if apiErr := c.validateImage(filename, size); apiErr != nil {
		return nil, apiErr
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filepath.Base(filename))
	if err != nil {
		return nil, model.NewTransportError(fmt.Sprintf("build upload: %s", err), 0)
	}
	written, err := io.Copy(part, io.LimitReader(image, c.cfg.UploadMaxSize+1))
	if err != nil {
		return nil, model.NewTransportError(fmt.Sprintf("read image: %s", err), 0)
	}
	if written > c.cfg.UploadMaxSize {
		return nil, model.NewValidationError("image", fmt.Sprintf("must not exceed %d bytes", c.cfg.UploadMaxSize))
	}
	if err := writer.Close(); err != nil {
		return nil, model.NewTransportError(fmt.Sprintf("build upload: %s", err), 0)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+predictPath, &buf)
	if err != nil {
		return nil, model.NewTransportError(fmt.Sprintf("build request: %s", err), 0)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error("prediction request failed", slog.String("error", err.Error()))
		return nil, model.NewTransportError(err.Error(), 0)
	}
	defer resp.Body.Close()

	c.metrics.RecordUploadBytes(written)

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, model.NewTransportError(fmt.Sprintf("read response: %s", err), resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, model.NewTransportError(fmt.Sprintf("prediction failed: HTTP %d", resp.StatusCode), resp.StatusCode)
	}

	var result model.PredictionResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, model.NewTransportError(fmt.Sprintf("malformed response body: %s", err), resp.StatusCode)
	}
	if result.Timestamp.IsZero() {
		result.Timestamp = time.Now()
	}

	c.logger.Info("prediction completed",
		slog.String("crop", result.Crop),
		slog.Float64("confidence", result.Confidence),
		slog.Int64("upload_bytes", written),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return &result, nil
}

// PredictImageURL はURLで指定された画像を取得して判定にかける。
// 画像の取得はSSRF防止付きクライアントで行われる。
func (c *Client) PredictImageURL(ctx context.Context, rawURL string) (*model.PredictionResult, error) {
	if err := c.ssrfGuard.ValidateURL(rawURL); err != nil {
		return nil, model.NewValidationError("image_url", err.Error())
	}

	client := c.ssrfGuard.NewSafeClient(c.cfg.Timeout, c.cfg.UploadMaxSize)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, model.NewTransportError(fmt.Sprintf("build request: %s", err), 0)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, model.NewTransportError(fmt.Sprintf("fetch image: %s", err), 0)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, model.NewTransportError(fmt.Sprintf("fetch image: HTTP %d", resp.StatusCode), resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.UploadMaxSize+1))
	if err != nil {
		return nil, model.NewTransportError(fmt.Sprintf("read image: %s", err), 0)
	}
	if int64(len(data)) > c.cfg.UploadMaxSize {
		return nil, model.NewValidationError("image_url", fmt.Sprintf("image must not exceed %d bytes", c.cfg.UploadMaxSize))
	}

	filename := filepath.Base(req.URL.Path)
	if !allowedImageExtensions[strings.ToLower(filepath.Ext(filename))] {
		filename = "image.jpg"
	}
	return c.PredictImage(ctx, filename, bytes.NewReader(data), int64(len(data)))
}
