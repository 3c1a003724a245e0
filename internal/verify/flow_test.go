package verify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/cropid/internal/model"
)

// mockVerifier はVerifierのモック実装。
type mockVerifier struct {
	mu              sync.Mutex
	verifyFunc      func(ctx context.Context, challengeID, code string) (*model.Session, error)
	backupFunc      func(ctx context.Context, challengeID, code string) (*model.Session, error)
	verifyCalls     int
	backupCalls     int
	lastChallengeID string
	lastCode        string
}

var _ Verifier = (*mockVerifier)(nil)

func (m *mockVerifier) VerifyChallenge(ctx context.Context, challengeID, code string) (*model.Session, error) {
	m.mu.Lock()
	m.verifyCalls++
	m.lastChallengeID = challengeID
	m.lastCode = code
	fn := m.verifyFunc
	m.mu.Unlock()
	if fn == nil {
		return nil, model.NewTransportError("not configured", 0)
	}
	return fn(ctx, challengeID, code)
}

func (m *mockVerifier) VerifyBackupCode(ctx context.Context, challengeID, code string) (*model.Session, error) {
	m.mu.Lock()
	m.backupCalls++
	m.lastChallengeID = challengeID
	m.lastCode = code
	fn := m.backupFunc
	m.mu.Unlock()
	if fn == nil {
		return nil, model.NewTransportError("not configured", 0)
	}
	return fn(ctx, challengeID, code)
}

func (m *mockVerifier) calls() (verify, backup int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.verifyCalls, m.backupCalls
}

// mockInstaller はSessionInstallerのモック実装。
type mockInstaller struct {
	mu        sync.Mutex
	installed []model.Session
}

var _ SessionInstaller = (*mockInstaller)(nil)

func (m *mockInstaller) Login(sess model.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.installed = append(m.installed, sess)
}

func (m *mockInstaller) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.installed)
}

func testChallenge() *model.Challenge {
	return model.NewChallenge("chal_123", model.MethodTOTP, time.Now())
}

func verifiedSession() *model.Session {
	return &model.Session{
		AccessToken:  "access",
		RefreshToken: "refresh",
		UserID:       "42",
		Email:        "asha@example.com",
		Role:         model.RoleFarmer,
	}
}

// longConfig はテスト中にカウントダウンが進まない長い時間設定。
func longConfig() Config {
	return Config{
		Countdown:    time.Hour,
		TickInterval: time.Hour,
		SuccessDelay: time.Millisecond,
	}
}

func TestNewFlow_StartsAwaitingCode(t *testing.T) {
	gw := &mockVerifier{}
	flow := NewFlow(testChallenge(), gw, &mockInstaller{}, Callbacks{}, longConfig())
	defer flow.Close()

	if got := flow.State(); got != StateAwaitingCode {
		t.Errorf("State = %q, want awaiting_code", got)
	}
	if got := flow.AttemptsLeft(); got != model.ChallengeMaxAttempts {
		t.Errorf("AttemptsLeft = %d, want %d", got, model.ChallengeMaxAttempts)
	}
}

// TestSubmit_MalformedCode_NoNetworkCall は形式不正のコードがネットワーク
// 呼び出しなしで拒否されることを検証する。
func TestSubmit_MalformedCode_NoNetworkCall(t *testing.T) {
	gw := &mockVerifier{}
	flow := NewFlow(testChallenge(), gw, &mockInstaller{}, Callbacks{}, longConfig())
	defer flow.Close()

	for _, code := range []string{"", "12345", "1234567", "12a456"} {
		err := flow.Submit(context.Background(), code)
		var apiErr *model.APIError
		if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeValidation {
			t.Errorf("Submit(%q) = %v, want validation error", code, err)
		}
	}

	if verify, backup := gw.calls(); verify != 0 || backup != 0 {
		t.Errorf("expected no network calls, got verify=%d backup=%d", verify, backup)
	}
	if got := flow.State(); got != StateAwaitingCode {
		t.Errorf("State = %q, want awaiting_code", got)
	}
}

func TestSubmit_Success_InstallsSessionAndFiresOnSuccess(t *testing.T) {
	gw := &mockVerifier{
		verifyFunc: func(ctx context.Context, challengeID, code string) (*model.Session, error) {
			return verifiedSession(), nil
		},
	}
	installer := &mockInstaller{}
	success := make(chan struct{}, 1)

	flow := NewFlow(testChallenge(), gw, installer, Callbacks{
		OnSuccess: func() { success <- struct{}{} },
	}, longConfig())
	defer flow.Close()

	if err := flow.Submit(context.Background(), "482913"); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if got := flow.State(); got != StateSucceeded {
		t.Errorf("State = %q, want succeeded", got)
	}
	if installer.count() != 1 {
		t.Errorf("expected exactly one session install, got %d", installer.count())
	}
	if gw.lastChallengeID != "chal_123" || gw.lastCode != "482913" {
		t.Errorf("verifier saw (%q, %q)", gw.lastChallengeID, gw.lastCode)
	}

	select {
	case <-success:
	case <-time.After(time.Second):
		t.Error("OnSuccess was not fired")
	}
}

// TestSubmit_ServerRemaining_ExhaustsExactlyAtZero はサーバーが報告する
// 残り試行回数を採用し、0が報告された時点で枯渇に遷移することを検証する。
func TestSubmit_ServerRemaining_ExhaustsExactlyAtZero(t *testing.T) {
	remaining := 5
	gw := &mockVerifier{}
	gw.verifyFunc = func(ctx context.Context, challengeID, code string) (*model.Session, error) {
		remaining--
		return nil, model.NewInvalidCodeError("invalid code", 400, remaining)
	}

	flow := NewFlow(testChallenge(), gw, &mockInstaller{}, Callbacks{}, longConfig())
	defer flow.Close()

	for want := 4; want >= 1; want-- {
		err := flow.Submit(context.Background(), "000000")
		var apiErr *model.APIError
		if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidCode {
			t.Fatalf("Submit = %v, want invalid code error", err)
		}
		if got := flow.AttemptsLeft(); got != want {
			t.Errorf("AttemptsLeft = %d, want %d", got, want)
		}
		if got := flow.State(); got != StateAwaitingCode {
			t.Fatalf("State = %q after %d attempts left, want awaiting_code", got, want)
		}
	}

	// 5回目: remaining=0が報告され枯渇へ
	if err := flow.Submit(context.Background(), "000000"); err == nil {
		t.Fatal("expected error on final attempt")
	}
	if got := flow.State(); got != StateAttemptsExhausted {
		t.Errorf("State = %q, want attempts_exhausted", got)
	}

	// 以後の送信はネットワーク呼び出しなしで拒否される
	before, _ := gw.calls()
	err := flow.Submit(context.Background(), "111111")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeTooManyAttempts {
		t.Errorf("Submit after exhaustion = %v, want too many attempts", err)
	}
	if after, _ := gw.calls(); after != before {
		t.Error("expected no network call after exhaustion")
	}
}

// TestSubmit_ServerOmitsRemaining_LocalBudgetExhausts はサーバーが残り
// 試行回数を報告しない場合でもローカル予算の減算で枯渇に到達することを
// 検証する。
func TestSubmit_ServerOmitsRemaining_LocalBudgetExhausts(t *testing.T) {
	gw := &mockVerifier{
		verifyFunc: func(ctx context.Context, challengeID, code string) (*model.Session, error) {
			return nil, model.NewInvalidCodeError("invalid code", 400, -1)
		},
	}
	flow := NewFlow(testChallenge(), gw, &mockInstaller{}, Callbacks{}, longConfig())
	defer flow.Close()

	for i := 0; i < model.ChallengeMaxAttempts-1; i++ {
		if err := flow.Submit(context.Background(), "000000"); err == nil {
			t.Fatal("expected rejection")
		}
		if got := flow.State(); got != StateAwaitingCode {
			t.Fatalf("State = %q after attempt %d, want awaiting_code", got, i+1)
		}
	}
	if got := flow.AttemptsLeft(); got != 1 {
		t.Errorf("AttemptsLeft = %d, want 1", got)
	}

	// 最後の減算で予算が0となり枯渇へ
	if err := flow.Submit(context.Background(), "000000"); err == nil {
		t.Fatal("expected rejection on final attempt")
	}
	if got := flow.State(); got != StateAttemptsExhausted {
		t.Errorf("State = %q, want attempts_exhausted", got)
	}

	// 以後の送信はネットワーク呼び出しなしで拒否される
	before, _ := gw.calls()
	err := flow.Submit(context.Background(), "111111")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeTooManyAttempts {
		t.Errorf("Submit after exhaustion = %v, want too many attempts", err)
	}
	if after, _ := gw.calls(); after != before {
		t.Error("expected no network call after local exhaustion")
	}
}

func TestSubmit_ServerExpired_TerminatesFlow(t *testing.T) {
	gw := &mockVerifier{
		verifyFunc: func(ctx context.Context, challengeID, code string) (*model.Session, error) {
			return nil, model.NewExpiredChallengeError("challenge expired", 400)
		},
	}
	flow := NewFlow(testChallenge(), gw, &mockInstaller{}, Callbacks{}, longConfig())
	defer flow.Close()

	if err := flow.Submit(context.Background(), "482913"); err == nil {
		t.Fatal("expected error")
	}
	if got := flow.State(); got != StateExpired {
		t.Errorf("State = %q, want expired", got)
	}
}

func TestSubmit_TransportFailure_IsRetryable(t *testing.T) {
	gw := &mockVerifier{
		verifyFunc: func(ctx context.Context, challengeID, code string) (*model.Session, error) {
			return nil, model.NewTransportError("connection refused", 0)
		},
	}
	flow := NewFlow(testChallenge(), gw, &mockInstaller{}, Callbacks{}, longConfig())
	defer flow.Close()

	if err := flow.Submit(context.Background(), "482913"); err == nil {
		t.Fatal("expected error")
	}
	if got := flow.State(); got != StateAwaitingCode {
		t.Errorf("State = %q, want awaiting_code (retryable)", got)
	}
	if got := flow.AttemptsLeft(); got != model.ChallengeMaxAttempts {
		t.Errorf("AttemptsLeft = %d, transport failure must not consume the budget", got)
	}
}

func TestCountdown_ReachingZero_ExpiresLocally(t *testing.T) {
	gw := &mockVerifier{}
	flow := NewFlow(testChallenge(), gw, &mockInstaller{}, Callbacks{}, Config{
		Countdown:    20 * time.Millisecond,
		TickInterval: 10 * time.Millisecond,
		SuccessDelay: time.Millisecond,
	})
	defer flow.Close()

	deadline := time.Now().Add(time.Second)
	for flow.State() != StateExpired {
		if time.Now().After(deadline) {
			t.Fatalf("flow did not expire, state=%q", flow.State())
		}
		time.Sleep(5 * time.Millisecond)
	}

	// 失効後の送信はネットワーク呼び出しなしで拒否される
	err := flow.Submit(context.Background(), "482913")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeExpiredChallenge {
		t.Errorf("Submit after expiry = %v, want expired challenge error", err)
	}
	if verify, _ := gw.calls(); verify != 0 {
		t.Error("expected no network call after local expiry")
	}
}

func TestCountdown_TickCallback_ReportsRemaining(t *testing.T) {
	var mu sync.Mutex
	var ticks []int

	flow := NewFlow(testChallenge(), &mockVerifier{}, &mockInstaller{}, Callbacks{
		OnTick: func(remaining int) {
			mu.Lock()
			ticks = append(ticks, remaining)
			mu.Unlock()
		},
	}, Config{
		Countdown:    50 * time.Millisecond,
		TickInterval: 10 * time.Millisecond,
		SuccessDelay: time.Millisecond,
	})
	defer flow.Close()

	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(ticks) == 0 {
		t.Fatal("expected tick callbacks")
	}
	for i := 1; i < len(ticks); i++ {
		if ticks[i] > ticks[i-1] {
			t.Errorf("remaining must be non-increasing: %v", ticks)
		}
	}
}

// TestClose_DiscardsInFlightResult はティアダウン後に解決した検証応答が
// 黙って破棄され、セッションが設置されないことを検証する。
func TestClose_DiscardsInFlightResult(t *testing.T) {
	release := make(chan struct{})
	gw := &mockVerifier{
		verifyFunc: func(ctx context.Context, challengeID, code string) (*model.Session, error) {
			<-release
			return verifiedSession(), nil
		},
	}
	installer := &mockInstaller{}
	flow := NewFlow(testChallenge(), gw, installer, Callbacks{}, longConfig())

	done := make(chan error, 1)
	go func() {
		done <- flow.Submit(context.Background(), "482913")
	}()

	// 送信中になるまで待つ
	deadline := time.Now().Add(time.Second)
	for flow.State() != StateSubmitting {
		if time.Now().After(deadline) {
			t.Fatalf("flow never entered submitting, state=%q", flow.State())
		}
		time.Sleep(time.Millisecond)
	}

	flow.Close()
	close(release)

	if err := <-done; err != nil {
		t.Errorf("discarded result must resolve to nil, got %v", err)
	}
	if installer.count() != 0 {
		t.Error("session must not be installed after teardown")
	}
}

func TestToggleBackupMode_RoutesToBackupEndpoint(t *testing.T) {
	gw := &mockVerifier{
		backupFunc: func(ctx context.Context, challengeID, code string) (*model.Session, error) {
			return verifiedSession(), nil
		},
	}
	flow := NewFlow(testChallenge(), gw, &mockInstaller{}, Callbacks{}, longConfig())
	defer flow.Close()

	if !flow.ToggleBackupMode() {
		t.Fatal("expected backup mode on")
	}

	// バックアップコードは6桁形式の検証を迂回する
	if err := flow.Submit(context.Background(), "A1B2-C3D4-E5F6"); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	verify, backup := gw.calls()
	if verify != 0 || backup != 1 {
		t.Errorf("calls verify=%d backup=%d, want 0/1", verify, backup)
	}
	if got := flow.State(); got != StateSucceeded {
		t.Errorf("State = %q, want succeeded", got)
	}
}

func TestCancel_IsIdempotent(t *testing.T) {
	flow := NewFlow(testChallenge(), &mockVerifier{}, &mockInstaller{}, Callbacks{}, longConfig())

	flow.Cancel()
	flow.Cancel()
	flow.Close()

	if err := flow.Submit(context.Background(), "482913"); err == nil {
		t.Error("expected error submitting to a closed flow")
	}
}

func TestStateChangeCallback_DeliversTransitions(t *testing.T) {
	var mu sync.Mutex
	var states []State

	gw := &mockVerifier{
		verifyFunc: func(ctx context.Context, challengeID, code string) (*model.Session, error) {
			return verifiedSession(), nil
		},
	}
	flow := NewFlow(testChallenge(), gw, &mockInstaller{}, Callbacks{
		OnStateChange: func(s State) {
			mu.Lock()
			states = append(states, s)
			mu.Unlock()
		},
	}, longConfig())
	defer flow.Close()

	if err := flow.Submit(context.Background(), "482913"); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []State{StateSubmitting, StateSucceeded}
	if len(states) != len(want) {
		t.Fatalf("states = %v, want %v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Errorf("states[%d] = %q, want %q", i, states[i], want[i])
		}
	}
}
