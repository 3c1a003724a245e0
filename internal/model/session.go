// Package model はドメインモデルを定義する。
package model

import "time"

// Role はユーザーに割り当てられるロールを表す。
type Role string

const (
	RoleFarmer      Role = "farmer"
	RolePartner     Role = "partner"
	RoleCustomer    Role = "customer"
	RoleCallCenter  Role = "callcenter"
	RoleTechSupport Role = "techsupport"
	RoleAdmin       Role = "admin"
)

// validRoles は割り当て可能なロールの固定セット。
var validRoles = map[Role]struct{}{
	RoleFarmer:      {},
	RolePartner:     {},
	RoleCustomer:    {},
	RoleCallCenter:  {},
	RoleTechSupport: {},
	RoleAdmin:       {},
}

// IsValid はロールが固定セットに含まれるかを返す。
func (r Role) IsValid() bool {
	_, ok := validRoles[r]
	return ok
}

// Session はクライアントが保持する認証済みプリンシパルの記録を表す。
// セッションは「不在」か「完全」かのいずれかであり、部分的なセッションは存在しない。
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	UserID       string `json:"user_id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	Role         Role   `json:"role"`
}

// IsComplete はセッションが完全に構成されているかを検証する。
// 耐久ストレージから復元した値の健全性チェックに使用する。
func (s *Session) IsComplete() bool {
	if s == nil {
		return false
	}
	return s.AccessToken != "" && s.UserID != "" && s.Email != "" && s.Role.IsValid()
}

// ChallengeMethod はMFAチャレンジの検証方式を表す。
type ChallengeMethod string

const (
	MethodTOTP  ChallengeMethod = "totp"
	MethodSMS   ChallengeMethod = "sms"
	MethodEmail ChallengeMethod = "email"
)

// ChallengeValidity はチャレンジの有効期間。サーバー側の
// MFA_CHALLENGE_EXPIRY（5分）と一致させている。UX目的のクライアント側
// カウントダウンにのみ使用し、権威ある期限判定は常にサーバーが行う。
const ChallengeValidity = 300 * time.Second

// ChallengeMaxAttempts はチャレンジあたりの検証試行予算の初期値。
const ChallengeMaxAttempts = 5

// Challenge はサーバーが発行した短命のMFAチャレンジを表す。
// 一度検証または失効したチャレンジは再利用できない。
type Challenge struct {
	ID        string
	Method    ChallengeMethod
	IssuedAt  time.Time
	ExpiresIn time.Duration
	Attempts  int // 残り試行予算。減少のみ。
}

// NewChallenge はログイン応答のチャレンジ記述子からChallengeを構築する。
func NewChallenge(id string, method ChallengeMethod, now time.Time) *Challenge {
	return &Challenge{
		ID:        id,
		Method:    method,
		IssuedAt:  now,
		ExpiresIn: ChallengeValidity,
		Attempts:  ChallengeMaxAttempts,
	}
}
