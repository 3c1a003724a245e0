package gateway

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/hitoshi/cropid/internal/model"
)

// LoginOutcome はログイン操作のタグ付き結果。
// ちょうど一方のフィールドが非nilになる: MFA不要で完了した場合は
// Session、チャレンジが要求された場合はChallenge。
type LoginOutcome struct {
	Session   *model.Session
	Challenge *model.Challenge
}

// loginResponse はログイン/MFA検証エンドポイントのワイヤ形式。
// 完了応答とチャレンジ記述子の両方のフィールドを持つ。
type loginResponse struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	TokenType    string      `json:"token_type"`
	ExpiresIn    int         `json:"expires_in"`
	UserID       json.Number `json:"user_id"`
	Email        string      `json:"email"`
	Role         string      `json:"role"`
	Name         string      `json:"name"`

	RequiresMFA bool   `json:"requires_mfa"`
	ChallengeID string `json:"challenge_id"`
	MFAMethod   string `json:"mfa_method"`
}

// session は完了応答からセッションを構築する。
// ロールが未指定の場合はfarmerを既定とする。
func (r *loginResponse) session() *model.Session {
	role := model.Role(r.Role)
	if !role.IsValid() {
		role = model.RoleFarmer
	}
	return &model.Session{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		UserID:       r.UserID.String(),
		Name:         r.Name,
		Email:        r.Email,
		Role:         role,
	}
}

// Login はパスワードログインを行い、完了セッションまたはチャレンジ
// 記述子を返す。失敗はInvalidCredentials、TooManyAttempts（アカウント
// ロック）、またはTransportに正規化される。
func (c *Client) Login(ctx context.Context, creds model.Credentials) (*LoginOutcome, error) {
	if strings.TrimSpace(creds.EmailOrUsername) == "" {
		return nil, model.NewValidationError("email_or_username", "must not be empty")
	}
	if creds.Password == "" {
		return nil, model.NewValidationError("password", "must not be empty")
	}

	if err := c.waitSubmit(ctx); err != nil {
		return nil, err
	}

	var resp loginResponse
	if err := c.do(ctx, "login", "POST", "/login", creds, &resp, false); err != nil {
		return nil, err
	}

	if resp.RequiresMFA {
		if resp.ChallengeID == "" {
			return nil, model.NewTransportError("challenge descriptor missing challenge_id", 0)
		}
		method := model.ChallengeMethod(resp.MFAMethod)
		if method == "" {
			method = model.MethodTOTP
		}
		return &LoginOutcome{
			Challenge: model.NewChallenge(resp.ChallengeID, method, time.Now()),
		}, nil
	}

	if resp.AccessToken == "" {
		return nil, model.NewTransportError("login response carries neither tokens nor challenge", 0)
	}
	return &LoginOutcome{Session: resp.session()}, nil
}

// verifyRequest はMFA検証エンドポイントのリクエスト形式。
type verifyRequest struct {
	ChallengeID string `json:"challenge_id"`
	Code        string `json:"code"`
}

// VerifyChallenge はワンタイムコードを検証し、成功時は完了セッションを
// 返す。失敗はInvalidCode（残り試行回数付き）、TooManyAttempts、
// ExpiredChallenge、またはTransportに正規化される。
func (c *Client) VerifyChallenge(ctx context.Context, challengeID, code string) (*model.Session, error) {
	if challengeID == "" {
		return nil, model.NewValidationError("challenge_id", "must not be empty")
	}
	if code == "" {
		return nil, model.NewValidationError("code", "must not be empty")
	}

	if err := c.waitSubmit(ctx); err != nil {
		return nil, err
	}

	var resp loginResponse
	req := verifyRequest{ChallengeID: challengeID, Code: code}
	if err := c.do(ctx, "verify_mfa", "POST", "/login/mfa/verify", req, &resp, false); err != nil {
		return nil, err
	}

	if resp.AccessToken == "" {
		return nil, model.NewTransportError("verification response missing tokens", 0)
	}
	return resp.session(), nil
}

// VerifyBackupCode はバックアップコードでチャレンジを完了する。
// バックアップコードは主検証エンドポイントと同じ契約で検証される
// （codeフィールドにXXXX-XXXX-XXXX形式のコードを渡す）。
func (c *Client) VerifyBackupCode(ctx context.Context, challengeID, code string) (*model.Session, error) {
	return c.VerifyChallenge(ctx, challengeID, code)
}
