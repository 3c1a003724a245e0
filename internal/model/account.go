package model

import "time"

// RegistrationProfile は新規登録リクエストの入力を表す。
type RegistrationProfile struct {
	Email             string `json:"email"`
	PhoneNumber       string `json:"phone_number"`
	Password          string `json:"password"`
	FirstName         string `json:"first_name"`
	LastName          string `json:"last_name"`
	DateOfBirth       string `json:"date_of_birth"` // YYYY-MM-DD
	Gender            string `json:"gender"`
	ProfilePictureURL string `json:"profile_picture_url,omitempty"`
}

// RegisteredAccount は登録成功時にサーバーが返すアカウント記録を表す。
type RegisteredAccount struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	PhoneNumber string    `json:"phone_number"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	CreatedAt   time.Time `json:"created_at"`
	Message     string    `json:"message"`
}

// Credentials はパスワードログインの入力を表す。
type Credentials struct {
	EmailOrUsername string `json:"email_or_username"`
	Password        string `json:"password"`
	RememberMe      bool   `json:"remember_me,omitempty"`
	DeviceName      string `json:"device_name,omitempty"`
}

// DeviceType は登録デバイスの種別を表す。
type DeviceType string

const (
	DeviceWeb           DeviceType = "WEB"
	DeviceMobileIOS     DeviceType = "MOBILE_IOS"
	DeviceMobileAndroid DeviceType = "MOBILE_ANDROID"
	DeviceDesktop       DeviceType = "DESKTOP"
	DeviceTablet        DeviceType = "TABLET"
	DeviceOther         DeviceType = "OTHER"
)

// Device は信頼済みデバイスの記録を表す。
type Device struct {
	DeviceID   string     `json:"device_id"`
	DeviceName string     `json:"device_name"`
	DeviceType DeviceType `json:"device_type"`
	IsTrusted  bool       `json:"is_trusted"`
	LastUsedAt time.Time  `json:"last_used_at"`
	CreatedAt  time.Time  `json:"created_at"`
}

// LoginRecord はログイン履歴の1レコードを表す。
type LoginRecord struct {
	ID              string    `json:"id"`
	Status          string    `json:"status"`
	Method          string    `json:"method"`
	IPAddress       string    `json:"ip_address"`
	UserAgent       string    `json:"user_agent"`
	DeviceType      string    `json:"device_type"`
	LocationCity    string    `json:"location_city"`
	LocationCountry string    `json:"location_country"`
	CreatedAt       time.Time `json:"created_at"`
	FailureReason   string    `json:"failure_reason,omitempty"`
}

// LoginHistoryPage はページングされたログイン履歴を表す。
type LoginHistoryPage struct {
	Records []LoginRecord `json:"records"`
	Total   int           `json:"total"`
	Page    int           `json:"page"`
}

// MFASetup はMFAセットアップ開始時のサーバー応答を表す。
// TOTPの場合はQRコードとシークレット、SMS/メールの場合は配送先が入る。
type MFASetup struct {
	SetupToken     string          `json:"setup_token"`
	Method         ChallengeMethod `json:"mfa_method"`
	QRCode         string          `json:"qr_code,omitempty"`
	Secret         string          `json:"secret,omitempty"`
	BackupCodes    []string        `json:"backup_codes,omitempty"`
	DeliveryMethod string          `json:"delivery_method,omitempty"`
}
