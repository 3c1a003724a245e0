package gateway

import (
	"context"
	"strings"

	"github.com/hitoshi/cropid/internal/model"
)

// Register は新規アカウントを登録する。ネットワーク呼び出しの前に
// クライアント側で検出できる不正入力はValidationErrorとして返す。
// 重複登録はConflictに正規化される。
func (c *Client) Register(ctx context.Context, profile model.RegistrationProfile) (*model.RegisteredAccount, error) {
	if err := validateProfile(&profile); err != nil {
		return nil, err
	}

	if err := c.waitSubmit(ctx); err != nil {
		return nil, err
	}

	var account model.RegisteredAccount
	if err := c.do(ctx, "register", "POST", "/register", profile, &account, false); err != nil {
		return nil, err
	}
	return &account, nil
}

// validateProfile は登録プロフィールのローカル検証を行う。
func validateProfile(p *model.RegistrationProfile) *model.APIError {
	if !strings.Contains(p.Email, "@") {
		return model.NewValidationError("email", "must be a valid email address")
	}
	if strings.TrimSpace(p.PhoneNumber) == "" {
		return model.NewValidationError("phone_number", "must not be empty")
	}
	if len(p.Password) < 8 {
		return model.NewValidationError("password", "must be at least 8 characters")
	}
	if strings.TrimSpace(p.FirstName) == "" {
		return model.NewValidationError("first_name", "must not be empty")
	}
	if strings.TrimSpace(p.LastName) == "" {
		return model.NewValidationError("last_name", "must not be empty")
	}
	return nil
}

// changePasswordRequest はパスワード変更のリクエスト形式。
type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

// ChangePassword はログイン済みユーザーのパスワードを変更する。
// ベアラー資格情報が必要。
func (c *Client) ChangePassword(ctx context.Context, current, newPassword string) error {
	if len(newPassword) < 8 {
		return model.NewValidationError("new_password", "must be at least 8 characters")
	}
	req := changePasswordRequest{
		CurrentPassword: current,
		NewPassword:     newPassword,
		ConfirmPassword: newPassword,
	}
	return c.do(ctx, "change_password", "POST", "/login/password/change", req, nil, true)
}

// RequestPasswordReset はパスワードリセットの開始を要求する。
// アカウントの存在を漏らさないため、サーバーは常に確認応答を返す。
func (c *Client) RequestPasswordReset(ctx context.Context, identifier string) error {
	if strings.TrimSpace(identifier) == "" {
		return model.NewValidationError("email_or_username", "must not be empty")
	}
	req := map[string]string{"email_or_username": identifier}
	return c.do(ctx, "reset_request", "POST", "/login/password/reset-request", req, nil, false)
}

// resetVerifyRequest はリセットトークン検証のリクエスト形式。
type resetVerifyRequest struct {
	ResetToken      string `json:"reset_token"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

// VerifyPasswordReset はリセットトークンを検証し新しいパスワードを
// 設定する。
func (c *Client) VerifyPasswordReset(ctx context.Context, token, newPassword string) error {
	if token == "" {
		return model.NewValidationError("reset_token", "must not be empty")
	}
	if len(newPassword) < 8 {
		return model.NewValidationError("new_password", "must be at least 8 characters")
	}
	req := resetVerifyRequest{
		ResetToken:      token,
		NewPassword:     newPassword,
		ConfirmPassword: newPassword,
	}
	return c.do(ctx, "reset_verify", "POST", "/login/password/reset-verify", req, nil, false)
}

// setupMFARequest はMFAセットアップ開始のリクエスト形式。
type setupMFARequest struct {
	Method      model.ChallengeMethod `json:"mfa_method"`
	PhoneNumber string                `json:"phone_number,omitempty"`
	BackupEmail string                `json:"backup_email,omitempty"`
}

// SetupMFA はMFAセットアップを開始する。TOTPの場合はQRコードと
// シークレット、SMS/メールの場合は配送先確認を返す。ベアラー資格情報が
// 必要。
func (c *Client) SetupMFA(ctx context.Context, method model.ChallengeMethod, phoneNumber, backupEmail string) (*model.MFASetup, error) {
	switch method {
	case model.MethodTOTP, model.MethodSMS, model.MethodEmail:
	default:
		return nil, model.NewValidationError("mfa_method", "must be one of totp, sms, email")
	}

	var setup model.MFASetup
	req := setupMFARequest{Method: method, PhoneNumber: phoneNumber, BackupEmail: backupEmail}
	if err := c.do(ctx, "setup_mfa", "POST", "/login/mfa/setup", req, &setup, true); err != nil {
		return nil, err
	}
	return &setup, nil
}

// VerifyMFASetup はセットアップ時の確認コードを検証してMFAを有効化する。
// ベアラー資格情報が必要。
func (c *Client) VerifyMFASetup(ctx context.Context, code string) error {
	if code == "" {
		return model.NewValidationError("code", "must not be empty")
	}
	req := map[string]string{"code": code}
	return c.do(ctx, "verify_mfa_setup", "POST", "/login/mfa/verify-setup", req, nil, true)
}

// DisableMFA はパスワード再確認の上でMFAを無効化する。
// ベアラー資格情報が必要。
func (c *Client) DisableMFA(ctx context.Context, password string) error {
	if password == "" {
		return model.NewValidationError("password", "must not be empty")
	}
	req := map[string]string{"password": password}
	return c.do(ctx, "disable_mfa", "POST", "/login/mfa/disable", req, nil, true)
}
