// Package gateway はアイデンティティAPIへの唯一のネットワーク境界を提供する。
//
// すべての操作は1リクエスト・1応答で、失敗は必ず*model.APIErrorに正規化
// されてから呼び出し側へ返される。生のトランスポート例外がこの境界を
// 越えることはない。認証が必要な操作はTokenSourceからベアラー資格情報を
// 取り付け、保持していない場合はネットワーク呼び出しなしで失敗する。
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/cropid/internal/model"
)

// basePath はアイデンティティAPIのベースパス。
const basePath = "/api/v1"

// maxResponseSize は応答ボディの読み取り上限。
const maxResponseSize = 1 << 20 // 1MB

// TokenSource は認証付き呼び出しに取り付けるベアラートークンの供給元。
// セッションストアが実装する。
type TokenSource interface {
	AccessToken() string
}

// Metrics はゲートウェイ操作のメトリクス収集のインターフェース。
type Metrics interface {
	RecordRequest(operation string, status int)
	RecordLatency(operation string, duration time.Duration)
}

// noopMetrics はメトリクス未設定時の実装。
type noopMetrics struct{}

func (noopMetrics) RecordRequest(string, int)           {}
func (noopMetrics) RecordLatency(string, time.Duration) {}

// Config はゲートウェイクライアントの設定。
type Config struct {
	BaseURL   string        // 例: https://api.cropai.example
	Timeout   time.Duration // HTTPタイムアウト
	UserAgent string
}

// Client はアイデンティティAPIのステートレスなリクエスト/レスポンス
// ラッパー。
type Client struct {
	http      *http.Client
	baseURL   string
	userAgent string
	tokens    TokenSource
	metrics   Metrics

	// 資格情報を伴う送信（ログイン、コード検証）へのクライアント側の
	// 礼儀的レート制限。権威あるレート制限はサーバー側で行われる。
	submitLimiter *rate.Limiter
}

// NewClient はClientを生成する。metricsがnilの場合は収集しない。
func NewClient(cfg Config, tokens TokenSource, metrics Metrics) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "cropid/1.0"
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}

	return &Client{
		http:          &http.Client{Timeout: cfg.Timeout},
		baseURL:       cfg.BaseURL,
		userAgent:     cfg.UserAgent,
		tokens:        tokens,
		metrics:       metrics,
		submitLimiter: rate.NewLimiter(rate.Limit(1), 12),
	}, nil
}

// errorEnvelope はサーバーの構造化エラーボディ。error_codeとerrorの
// 両方のフィールド名が観測されているため両対応する。どちらも欠けて
// いても許容される（HTTPステータステキストへフォールバック）。
type errorEnvelope struct {
	ErrorCode string         `json:"error_code"`
	ErrorKey  string         `json:"error"`
	Message   string         `json:"message"`
	Detail    string         `json:"detail"`
	Details   map[string]any `json:"details"`
}

// code はエンベロープのエラーコードを返す。
func (e *errorEnvelope) code() string {
	if e.ErrorCode != "" {
		return e.ErrorCode
	}
	return e.ErrorKey
}

// message はエンベロープのメッセージを返す。
func (e *errorEnvelope) message() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Detail
}

// do は1つのHTTPリクエストを発行し、成功時はoutへデコード、失敗時は
// 正規化済みの*model.APIErrorを返す。authedがtrueの場合はベアラー
// 資格情報を取り付け、保持していなければローカルで失敗する。
func (c *Client) do(ctx context.Context, operation, method, path string, body, out any, authed bool) error {
	var token string
	if authed {
		token = c.tokens.AccessToken()
		if token == "" {
			return model.NewUnauthenticatedError("", 0)
		}
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return model.NewTransportError(fmt.Sprintf("encode request: %s", err), 0)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+basePath+path, reqBody)
	if err != nil {
		return model.NewTransportError(fmt.Sprintf("build request: %s", err), 0)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.RecordRequest(operation, 0)
		slog.Error("identity API request failed",
			slog.String("operation", operation),
			slog.String("error", err.Error()),
		)
		return model.NewTransportError(err.Error(), 0)
	}
	defer resp.Body.Close()

	c.metrics.RecordRequest(operation, resp.StatusCode)
	c.metrics.RecordLatency(operation, time.Since(start))

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return model.NewTransportError(fmt.Sprintf("read response: %s", err), resp.StatusCode)
	}

	if resp.StatusCode >= 400 {
		return c.normalizeError(operation, resp.StatusCode, resp.Status, data, authed)
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return model.NewTransportError(fmt.Sprintf("malformed response body: %s", err), resp.StatusCode)
		}
	}
	return nil
}

// normalizeError はHTTP失敗応答をエラー分類へ写像する。
// サーバーのエラーコードを優先し、無ければHTTPステータスで分類する。
func (c *Client) normalizeError(operation string, status int, statusText string, body []byte, authed bool) *model.APIError {
	var env errorEnvelope
	_ = json.Unmarshal(body, &env) // 壊れたボディは許容してステータスで分類する

	message := env.message()
	if message == "" {
		message = statusText
	}

	apiErr := c.classify(env.code(), message, status, env.Details, authed)
	apiErr.Details = mergeDetails(apiErr.Details, env.Details)

	slog.Warn("identity API returned error",
		slog.String("operation", operation),
		slog.Int("status", status),
		slog.String("code", apiErr.Code),
	)
	return apiErr
}

// classify はサーバーのエラーコードとHTTPステータスからエラー分類を選ぶ。
// ベアラー付き呼び出しの401は資格情報の誤りではなくトークンの失効・剥奪を
// 意味するため、authedで分類を分ける。
func (c *Client) classify(code, message string, status int, details map[string]any, authed bool) *model.APIError {
	switch code {
	case "account_locked", "challenge_exhausted", "rate_limit_exceeded":
		return model.NewTooManyAttemptsError(message, status)
	case "challenge_expired", "invalid_challenge":
		// invalid_challengeは「見つからないか失効」: どちらも再試行不能
		return model.NewExpiredChallengeError(message, status)
	case "invalid_code":
		return model.NewInvalidCodeError(message, status, remainingAttempts(details))
	case "invalid_credentials":
		return model.NewInvalidCredentialsError(message, status)
	case "duplicate_email", "duplicate_phone", "already_registered":
		return model.NewConflictError(message, status)
	}

	switch status {
	case http.StatusUnauthorized:
		if authed {
			return model.NewUnauthenticatedError(message, status)
		}
		return model.NewInvalidCredentialsError(message, status)
	case http.StatusTooManyRequests:
		return model.NewTooManyAttemptsError(message, status)
	case http.StatusConflict:
		return model.NewConflictError(message, status)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return &model.APIError{
			Code:      model.ErrCodeValidation,
			Message:   message,
			Category:  "validation",
			Action:    "入力内容を確認してください。",
			Status:    status,
			Remaining: -1,
		}
	default:
		return model.NewTransportError(message, status)
	}
}

// remainingAttempts はdetailsマップから残り試行回数を取り出す。
// 提供されていない場合は-1。
func remainingAttempts(details map[string]any) int {
	if details == nil {
		return -1
	}
	v, ok := details["remaining_attempts"]
	if !ok {
		return -1
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return -1
		}
		return int(i)
	default:
		return -1
	}
}

// mergeDetails は分類時に生成された詳細とサーバーの詳細を統合する。
func mergeDetails(base, extra map[string]any) map[string]any {
	if len(extra) == 0 {
		return base
	}
	if base == nil {
		base = make(map[string]any, len(extra))
	}
	for k, v := range extra {
		if _, exists := base[k]; !exists {
			base[k] = v
		}
	}
	return base
}

// waitSubmit は資格情報を伴う送信の前に礼儀的リミッターを通す。
func (c *Client) waitSubmit(ctx context.Context) error {
	if err := c.submitLimiter.Wait(ctx); err != nil {
		return model.NewTransportError(fmt.Sprintf("request cancelled: %s", err), 0)
	}
	return nil
}
