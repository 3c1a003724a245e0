// Package verify はMFAチャレンジの対話的な検証フローを実装する。
//
// フローは短命・時間制限・試行制限付きの状態機械で、カウントダウンの
// 進行、ローカル検証、再試行メッセージ、セッション設置を調停する。
// カウントダウンのコールバックはフローインスタンスが所有し、Closeで
// 確実に解除される。Close後に解決した検証応答はUI状態に触れず黙って
// 破棄される。
package verify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/cropid/internal/model"
)

// State はフローの状態を表す。
type State string

const (
	// StateAwaitingCode はコード入力待ち。
	StateAwaitingCode State = "awaiting_code"
	// StateSubmitting は検証リクエストが送信中。
	StateSubmitting State = "submitting"
	// StateSucceeded は検証成功。終端状態。
	StateSucceeded State = "succeeded"
	// StateExpired はチャレンジ失効。終端状態。
	StateExpired State = "expired"
	// StateAttemptsExhausted は試行予算の枯渇。終端状態。
	StateAttemptsExhausted State = "attempts_exhausted"
)

// terminal は状態が終端かを返す。
func (s State) terminal() bool {
	return s == StateSucceeded || s == StateExpired || s == StateAttemptsExhausted
}

// Verifier はチャレンジ検証を行うゲートウェイ操作のインターフェース。
type Verifier interface {
	VerifyChallenge(ctx context.Context, challengeID, code string) (*model.Session, error)
	VerifyBackupCode(ctx context.Context, challengeID, code string) (*model.Session, error)
}

// SessionInstaller は検証成功時にセッションを設置するインターフェース。
// セッションストアが実装する。
type SessionInstaller interface {
	Login(sess model.Session)
}

// Callbacks はフローの観測点。nilのコールバックは呼ばれない。
type Callbacks struct {
	// OnStateChange は状態遷移ごとに新しい状態で呼ばれる。
	OnStateChange func(state State)
	// OnTick はカウントダウンの1秒ごとに残り秒数で呼ばれる。
	OnTick func(remaining int)
	// OnReject は拒否された試行ごとに正規化済みエラーで呼ばれる。
	OnReject func(err *model.APIError)
	// OnSuccess は成功後、固定の表示遅延を置いてから呼ばれる。
	// ダッシュボードへの遷移に使用する。
	OnSuccess func()
}

// Config はフローの時間設定。ゼロ値には既定が適用される。
// テストではTickIntervalとSuccessDelayを短縮する。
type Config struct {
	Countdown    time.Duration // チャレンジの有効期間（既定300秒）
	TickInterval time.Duration // カウントダウンの刻み（既定1秒）
	SuccessDelay time.Duration // 成功からOnSuccessまでの遅延（既定1秒）
}

// Flow はひとつのチャレンジに対する検証フローインスタンス。
type Flow struct {
	gateway  Verifier
	sessions SessionInstaller
	cb       Callbacks
	cfg      Config

	mu         sync.Mutex
	challenge  *model.Challenge
	state      State
	remaining  int // 残り秒数
	backupMode bool
	closed     bool

	stopTicker chan struct{}
	tickerOnce sync.Once
}

// NewFlow はチャレンジ記述子からフローを生成し、カウントダウンを開始する。
func NewFlow(challenge *model.Challenge, gw Verifier, sessions SessionInstaller, cb Callbacks, cfg Config) *Flow {
	if cfg.Countdown <= 0 {
		cfg.Countdown = model.ChallengeValidity
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.SuccessDelay <= 0 {
		cfg.SuccessDelay = time.Second
	}

	f := &Flow{
		gateway:    gw,
		sessions:   sessions,
		cb:         cb,
		cfg:        cfg,
		challenge:  challenge,
		state:      StateAwaitingCode,
		remaining:  int(cfg.Countdown / time.Second),
		stopTicker: make(chan struct{}),
	}

	go f.countdown()

	slog.Info("verification flow started",
		slog.String("challenge_id", challenge.ID),
		slog.String("method", string(challenge.Method)),
		slog.Int("window_seconds", f.remaining),
	)
	return f
}

// State は現在の状態を返す。
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Remaining はカウントダウンの残り秒数を返す。
func (f *Flow) Remaining() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.remaining
}

// AttemptsLeft は残り試行予算を返す。
func (f *Flow) AttemptsLeft() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.challenge.Attempts
}

// BackupMode はバックアップコード入力モードかを返す。
func (f *Flow) BackupMode() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.backupMode
}

// ToggleBackupMode はバックアップコード入力モードを切り替える。
// バックアップモードでは6桁の形式検証が迂回される。
func (f *Flow) ToggleBackupMode() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.backupMode = !f.backupMode
	return f.backupMode
}

// validateCode はコードのローカル形式検証を行う。
// 6桁の数字以外はネットワーク呼び出しなしで拒否される。
func validateCode(code string) *model.APIError {
	if len(code) != 6 {
		return model.NewValidationError("code", "must be exactly 6 digits")
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return model.NewValidationError("code", "must contain only digits")
		}
	}
	return nil
}

// Submit はコードを検証にかける。ローカル検証に失敗した場合と終端状態
// からの送信はネットワーク呼び出しなしでエラーを返す。検証結果が適用
// される前にフローが閉じられた・終端へ遷移していた場合、結果は黙って
// 破棄されnilを返す。
func (f *Flow) Submit(ctx context.Context, code string) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return errors.New("verification flow is closed")
	}
	switch f.state {
	case StateExpired:
		f.mu.Unlock()
		return model.NewExpiredChallengeError("", 0)
	case StateAttemptsExhausted:
		f.mu.Unlock()
		return model.NewTooManyAttemptsError("", 0)
	case StateSubmitting, StateSucceeded:
		f.mu.Unlock()
		return errors.New("submission already in progress or completed")
	}

	backup := f.backupMode
	if !backup {
		if apiErr := validateCode(code); apiErr != nil {
			f.mu.Unlock()
			return apiErr
		}
	} else if code == "" {
		f.mu.Unlock()
		return model.NewValidationError("code", "must not be empty")
	}

	challengeID := f.challenge.ID
	f.setStateLocked(StateSubmitting)
	f.mu.Unlock()
	f.notifyState(StateSubmitting)

	var sess *model.Session
	var err error
	if backup {
		sess, err = f.gateway.VerifyBackupCode(ctx, challengeID, code)
	} else {
		sess, err = f.gateway.VerifyChallenge(ctx, challengeID, code)
	}

	return f.applyResult(sess, err)
}

// applyResult は検証応答を状態機械に適用する。
func (f *Flow) applyResult(sess *model.Session, err error) error {
	f.mu.Lock()

	// ティアダウン後・カウントダウン失効後に解決した応答は破棄する
	if f.closed || f.state != StateSubmitting {
		f.mu.Unlock()
		return nil
	}

	if err == nil {
		f.setStateLocked(StateSucceeded)
		f.stopCountdownLocked()
		f.mu.Unlock()
		f.notifyState(StateSucceeded)

		f.sessions.Login(*sess)
		if f.cb.OnSuccess != nil {
			time.AfterFunc(f.cfg.SuccessDelay, func() {
				f.mu.Lock()
				closed := f.closed
				f.mu.Unlock()
				if !closed {
					f.cb.OnSuccess()
				}
			})
		}
		return nil
	}

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		apiErr = model.NewTransportError(err.Error(), 0)
	}

	var next State
	switch apiErr.Code {
	case model.ErrCodeInvalidCode:
		// サーバーが残り試行回数を報告した場合はそれを採用し、報告が無い
		// 場合はローカル予算を減算する。どちらの経路でも予算が0に達した
		// 時点で枯渇へ遷移する
		if apiErr.Remaining >= 0 {
			f.challenge.Attempts = apiErr.Remaining
		} else if f.challenge.Attempts > 0 {
			f.challenge.Attempts--
		}
		if f.challenge.Attempts <= 0 {
			next = StateAttemptsExhausted
			f.stopCountdownLocked()
		} else {
			next = StateAwaitingCode
		}

	case model.ErrCodeTooManyAttempts:
		// ローカルのタイマー状態に関わらず終端
		f.challenge.Attempts = 0
		next = StateAttemptsExhausted
		f.stopCountdownLocked()

	case model.ErrCodeExpiredChallenge:
		// 権威ある期限判定はサーバー側: ローカルに残り時間があっても従う
		next = StateExpired
		f.stopCountdownLocked()

	default:
		// トランスポート等の一時的失敗は再試行可能
		next = StateAwaitingCode
	}
	changed := f.setStateLocked(next)
	f.mu.Unlock()

	if changed {
		f.notifyState(next)
	}
	if f.cb.OnReject != nil {
		f.cb.OnReject(apiErr)
	}
	return apiErr
}

// Cancel はフローを中断する。チャレンジとタイマーはネットワーク
// 呼び出しなしで破棄され、以後の送信は受け付けない。
func (f *Flow) Cancel() {
	f.Close()
}

// Close はカウントダウンを解除しフローを閉じる。複数回呼んでも安全。
// 解決待ちの検証応答は以後UI状態に触れない。
func (f *Flow) Close() {
	f.mu.Lock()
	f.closed = true
	f.stopCountdownLocked()
	f.mu.Unlock()
}

// countdown は固定周期でカウントダウンを進める。
// 残りがゼロに達した時点でAwaitingCodeまたはSubmittingならExpiredへ
// 遷移する。
func (f *Flow) countdown() {
	ticker := time.NewTicker(f.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-f.stopTicker:
			return
		case <-ticker.C:
			f.mu.Lock()
			if f.closed || f.state.terminal() {
				f.mu.Unlock()
				return
			}
			if f.remaining > 0 {
				f.remaining--
			}
			remaining := f.remaining
			expired := remaining == 0
			if expired {
				f.setStateLocked(StateExpired)
				f.stopCountdownLocked()
			}
			f.mu.Unlock()

			if f.cb.OnTick != nil {
				f.cb.OnTick(remaining)
			}
			if expired {
				f.notifyState(StateExpired)
				return
			}
		}
	}
}

// setStateLocked は状態を変更し、遷移があったかを返す。muを保持して
// 呼ぶ。OnStateChangeの配送はロック解放後に呼び出し側が行う。
func (f *Flow) setStateLocked(next State) bool {
	if f.state == next {
		return false
	}
	f.state = next
	return true
}

// notifyState はOnStateChangeを配送する。ロックを保持せずに呼ぶ。
func (f *Flow) notifyState(next State) {
	if f.cb.OnStateChange != nil {
		f.cb.OnStateChange(next)
	}
}

// stopCountdownLocked はカウントダウンの停止を通知する。muを保持して呼ぶ。
func (f *Flow) stopCountdownLocked() {
	f.tickerOnce.Do(func() {
		close(f.stopTicker)
	})
}
