package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/cropid/internal/model"
	"github.com/hitoshi/cropid/internal/storage"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	st, err := storage.New(dir)
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	return NewStore(st), dir
}

func completeSession() model.Session {
	return model.Session{
		AccessToken:  "access-token",
		RefreshToken: "refresh-token",
		UserID:       "42",
		Name:         "Asha Patel",
		Email:        "asha@example.com",
		Role:         model.RoleFarmer,
	}
}

func TestRestore_NoEntry_StartsUnauthenticated(t *testing.T) {
	s, _ := newTestStore(t)
	s.Restore()

	if s.IsAuthenticated() {
		t.Error("expected unauthenticated start")
	}
	if s.Current() != nil {
		t.Error("expected nil current session")
	}
}

func TestRestore_PersistedSession_IsRestored(t *testing.T) {
	dir := t.TempDir()
	st, err := storage.New(dir)
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}

	first := NewStore(st)
	first.Login(completeSession())

	second := NewStore(st)
	second.Restore()

	got := second.Current()
	if got == nil {
		t.Fatal("expected restored session")
	}
	if got.UserID != "42" || got.Role != model.RoleFarmer {
		t.Errorf("restored session = %+v", got)
	}
}

// TestRestore_CorruptEntry_StartsUnauthenticated は壊れた耐久エントリが
// 破棄され、未認証で開始することを検証する。
func TestRestore_CorruptEntry_StartsUnauthenticated(t *testing.T) {
	s, dir := newTestStore(t)

	if err := os.WriteFile(filepath.Join(dir, "session.json"), []byte("{broken"), 0o600); err != nil {
		t.Fatalf("failed to write corrupt entry: %v", err)
	}

	s.Restore()
	if s.IsAuthenticated() {
		t.Error("expected corrupt entry to be discarded")
	}
}

func TestRestore_IncompleteEntry_StartsUnauthenticated(t *testing.T) {
	dir := t.TempDir()
	st, err := storage.New(dir)
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}

	incomplete := model.Session{AccessToken: "token-only"}
	if err := st.Write(storage.KeySession, incomplete); err != nil {
		t.Fatalf("failed to seed entry: %v", err)
	}

	s := NewStore(st)
	s.Restore()
	if s.IsAuthenticated() {
		t.Error("expected incomplete entry to be discarded")
	}
}

func TestCurrent_ReturnsCopy(t *testing.T) {
	s, _ := newTestStore(t)
	s.Login(completeSession())

	got := s.Current()
	got.Role = model.RoleAdmin

	if s.Current().Role != model.RoleFarmer {
		t.Error("mutating the returned session must not affect the store")
	}
}

func TestSubscribe_ReplaysCurrentValue(t *testing.T) {
	s, _ := newTestStore(t)
	s.Login(completeSession())

	var replayed *model.Session
	unsubscribe := s.Subscribe(func(sess *model.Session) {
		replayed = sess
	})
	defer unsubscribe()

	if replayed == nil || replayed.UserID != "42" {
		t.Errorf("expected immediate replay of current session, got %+v", replayed)
	}
}

func TestSubscribe_DeliversTransitionsInOrder(t *testing.T) {
	s, _ := newTestStore(t)

	var seen []string
	unsubscribe := s.Subscribe(func(sess *model.Session) {
		if sess == nil {
			seen = append(seen, "nil")
		} else {
			seen = append(seen, string(sess.Role))
		}
	})
	defer unsubscribe()

	s.Login(completeSession())
	s.SetRole(model.RoleCustomer)
	s.Logout()

	want := []string{"nil", "farmer", "customer", "nil"}
	if len(seen) != len(want) {
		t.Fatalf("seen = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("seen[%d] = %q, want %q", i, seen[i], want[i])
		}
	}
}

func TestUnsubscribe_StopsDelivery(t *testing.T) {
	s, _ := newTestStore(t)

	count := 0
	unsubscribe := s.Subscribe(func(*model.Session) { count++ })
	unsubscribe()

	s.Login(completeSession())
	if count != 1 {
		t.Errorf("expected only the replay delivery, got %d", count)
	}
}

func TestSetRole_WithoutSession_IsNoOp(t *testing.T) {
	s, _ := newTestStore(t)

	notified := 0
	unsubscribe := s.Subscribe(func(*model.Session) { notified++ })
	defer unsubscribe()

	s.SetRole(model.RoleAdmin)

	if s.IsAuthenticated() {
		t.Error("expected store to stay unauthenticated")
	}
	if notified != 1 {
		t.Errorf("expected no notification beyond replay, got %d", notified)
	}
}

func TestSetRole_InvalidRole_IsIgnored(t *testing.T) {
	s, _ := newTestStore(t)
	s.Login(completeSession())

	s.SetRole(model.Role("astronaut"))

	if got := s.Current().Role; got != model.RoleFarmer {
		t.Errorf("role = %q, want farmer", got)
	}
}

func TestSetRole_PersistsAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	st, err := storage.New(dir)
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}

	first := NewStore(st)
	first.Login(completeSession())
	first.SetRole(model.RoleCallCenter)

	second := NewStore(st)
	second.Restore()
	if got := second.Current().Role; got != model.RoleCallCenter {
		t.Errorf("restored role = %q, want callcenter", got)
	}
}

func TestLogout_RemovesDurableEntry(t *testing.T) {
	dir := t.TempDir()
	st, err := storage.New(dir)
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}

	first := NewStore(st)
	first.Login(completeSession())
	first.Logout()

	second := NewStore(st)
	second.Restore()
	if second.IsAuthenticated() {
		t.Error("expected no session after logout + restart")
	}
}

func TestAccessToken_Unauthenticated_ReturnsEmpty(t *testing.T) {
	s, _ := newTestStore(t)
	if got := s.AccessToken(); got != "" {
		t.Errorf("AccessToken = %q, want empty", got)
	}
}

func TestTokenExpiry_ReadsExpClaimWithoutVerification(t *testing.T) {
	s, _ := newTestStore(t)

	exp := time.Now().Add(30 * time.Minute).Truncate(time.Second)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "42",
		"exp": exp.Unix(),
	})
	signed, err := token.SignedString([]byte("test-key-never-checked"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	sess := completeSession()
	sess.AccessToken = signed
	s.Login(sess)

	got := s.TokenExpiry()
	if !got.Equal(exp) {
		t.Errorf("TokenExpiry = %v, want %v", got, exp)
	}
}

func TestTokenExpiry_OpaqueToken_ReturnsZero(t *testing.T) {
	s, _ := newTestStore(t)
	s.Login(completeSession())

	if got := s.TokenExpiry(); !got.IsZero() {
		t.Errorf("TokenExpiry = %v, want zero time", got)
	}
}
