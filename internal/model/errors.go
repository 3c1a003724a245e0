// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// ゲートウェイクライアントが唯一の変換境界であり、トランスポート例外や
// 構造化エラーボディはすべてこの形に正規化されてから上位に渡される。
type APIError struct {
	Code      string         // エラーコード
	Message   string         // エラーメッセージ
	Category  string         // カテゴリ: auth, validation, transport, system
	Action    string         // ユーザー向け対処方法
	Status    int            // HTTPステータス（取得できた場合のみ、0は不明）
	Details   map[string]any // サーバーが返した構造化詳細（任意）
	Remaining int            // invalid_code時の残り試行回数。-1は未提供。
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeInvalidCode        = "INVALID_CODE"
	ErrCodeTooManyAttempts    = "TOO_MANY_ATTEMPTS"
	ErrCodeExpiredChallenge   = "EXPIRED_CHALLENGE"
	ErrCodeConflict           = "CONFLICT"
	ErrCodeUnauthenticated    = "UNAUTHENTICATED"
	ErrCodeTransport          = "TRANSPORT_ERROR"
)

// NewValidationError はクライアント側で検出した入力不正エラーを生成する。
// ネットワーク呼び出しの前に返すため、Statusは持たない。
func NewValidationError(field, reason string) *APIError {
	return &APIError{
		Code:      ErrCodeValidation,
		Message:   fmt.Sprintf("invalid field %q: %s", field, reason),
		Category:  "validation",
		Action:    "入力内容を確認してください。",
		Details:   map[string]any{"field": field},
		Remaining: -1,
	}
}

// NewInvalidCredentialsError は認証失敗エラーを生成する。
func NewInvalidCredentialsError(message string, status int) *APIError {
	if message == "" {
		message = "invalid email/username or password"
	}
	return &APIError{
		Code:      ErrCodeInvalidCredentials,
		Message:   message,
		Category:  "auth",
		Action:    "メールアドレスとパスワードを確認してください。",
		Status:    status,
		Remaining: -1,
	}
}

// NewInvalidCodeError は検証コード不一致エラーを生成する。
// remainingはサーバーが残り試行回数を報告した場合のみ0以上。
func NewInvalidCodeError(message string, status, remaining int) *APIError {
	if message == "" {
		message = "invalid verification code"
	}
	return &APIError{
		Code:      ErrCodeInvalidCode,
		Message:   message,
		Category:  "auth",
		Action:    "コードを確認して再入力してください。",
		Status:    status,
		Remaining: remaining,
	}
}

// NewTooManyAttemptsError は試行上限超過エラーを生成する。
// レート制限応答（429）およびchallenge_exhaustedから写像される。
func NewTooManyAttemptsError(message string, status int) *APIError {
	if message == "" {
		message = "too many attempts"
	}
	return &APIError{
		Code:      ErrCodeTooManyAttempts,
		Message:   message,
		Category:  "auth",
		Action:    "しばらく待ってからログインをやり直してください。",
		Status:    status,
		Remaining: 0,
	}
}

// NewExpiredChallengeError はチャレンジ失効エラーを生成する。
func NewExpiredChallengeError(message string, status int) *APIError {
	if message == "" {
		message = "verification challenge has expired"
	}
	return &APIError{
		Code:      ErrCodeExpiredChallenge,
		Message:   message,
		Category:  "auth",
		Action:    "ログインからやり直して新しいコードを取得してください。",
		Status:    status,
		Remaining: -1,
	}
}

// NewConflictError は登録重複エラーを生成する。
func NewConflictError(message string, status int) *APIError {
	if message == "" {
		message = "account already exists"
	}
	return &APIError{
		Code:      ErrCodeConflict,
		Message:   message,
		Category:  "validation",
		Action:    "別のメールアドレスまたは電話番号で登録するか、ログインしてください。",
		Status:    status,
		Remaining: -1,
	}
}

// NewUnauthenticatedError はベアラー資格情報が無い状態で保護された
// 操作を呼び出した場合のエラーを生成する。ローカルで検出されるため
// Statusは持たない場合がある。
func NewUnauthenticatedError(message string, status int) *APIError {
	if message == "" {
		message = "not authenticated"
	}
	return &APIError{
		Code:      ErrCodeUnauthenticated,
		Message:   message,
		Category:  "auth",
		Action:    "ログインし直してください。",
		Status:    status,
		Remaining: -1,
	}
}

// NewTransportError はネットワーク到達不能・不正な応答エンベロープを表す
// エラーを生成する。生のトランスポート例外はこの境界を越えない。
func NewTransportError(reason string, status int) *APIError {
	return &APIError{
		Code:      ErrCodeTransport,
		Message:   fmt.Sprintf("request failed: %s", reason),
		Category:  "transport",
		Action:    "通信環境を確認して再試行してください。",
		Status:    status,
		Remaining: -1,
	}
}
