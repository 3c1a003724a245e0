// Package session は認証済みプリンシパルのクライアント側状態を管理する。
//
// Storeがセッションの唯一の所有者であり、すべての遷移（ログイン、ロール
// 変更、ログアウト）は同期的に耐久ストレージへミラーされる。購読者には
// 変更が適用順に通知され、新規購読者には現在値が即座に再生される。
package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/cropid/internal/model"
	"github.com/hitoshi/cropid/internal/storage"
)

// Observer はセッション遷移ごとに新しい値で呼び出されるコールバック。
// 未認証への遷移ではnilが渡される。
//
// オブザーバは通知ロックを保持したまま呼び出される。配送順序を変更の
// 適用順序と一致させるための制約であり、オブザーバの中からStoreの
// ミューテーション（Login, SetRole, Logout）やSubscribeを呼び返すと
// デッドロックする。
type Observer func(*model.Session)

// Store は現在のセッションを保持し、変更通知と耐久ミラーを提供する。
type Store struct {
	storage *storage.Store

	mu      sync.Mutex
	current *model.Session
	subs    map[int]Observer
	nextID  int

	// notifyMuは通知の配送順序を変更の適用順序と一致させる。
	// コアレッシングは行わない。
	notifyMu sync.Mutex
}

// NewStore はStoreを生成する。復元は行わない（Restoreを明示的に呼ぶ）。
func NewStore(st *storage.Store) *Store {
	return &Store{
		storage: st,
		subs:    make(map[int]Observer),
	}
}

// Restore は耐久エントリからセッションを復元する。プロセス起動時に
// 1回だけ呼ぶ。エントリが不在・壊れている・形が不正な場合は未認証の
// まま開始する（古い識別情報へ倒すことはしない）。
func (s *Store) Restore() {
	var sess model.Session
	found, err := s.storage.Read(storage.KeySession, &sess)
	if err != nil {
		slog.Warn("discarding corrupt session entry", slog.String("error", err.Error()))
		return
	}
	if !found {
		return
	}
	if !sess.IsComplete() {
		slog.Warn("discarding incomplete session entry", slog.String("user_id", sess.UserID))
		return
	}

	s.mu.Lock()
	s.current = &sess
	s.mu.Unlock()

	slog.Info("session restored",
		slog.String("user_id", sess.UserID),
		slog.String("role", string(sess.Role)),
	)
}

// Current は現在のセッションを返す。未認証の場合はnil。
// 同期的でブロックしない。返り値は呼び出し側が変更してよいコピー。
func (s *Store) Current() *model.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	copied := *s.current
	return &copied
}

// IsAuthenticated はセッションが存在するかを返す。
// セッションの存在がロール別ビューの唯一のゲートとなる。
func (s *Store) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}

// AccessToken は保持中のベアラートークンを返す。未認証なら空文字列。
// ゲートウェイクライアントのTokenSourceとして使用される。
func (s *Store) AccessToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return ""
	}
	return s.current.AccessToken
}

// TokenExpiry はアクセストークンのexpクレームを検証なしで読み取る。
// クライアントは署名鍵を持たないため検証はできず、表示目的に限る。
// トークンが無い・パースできない・expが無い場合はゼロ値を返す。
func (s *Store) TokenExpiry() time.Time {
	token := s.AccessToken()
	if token == "" {
		return time.Time{}
	}

	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}

// Subscribe はオブザーバを登録し、現在値を即座に1回再生してから
// 以後の遷移を適用順で配送する。返された関数で購読を解除する。
func (s *Store) Subscribe(fn Observer) (unsubscribe func()) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	current := s.current
	if current != nil {
		copied := *current
		current = &copied
	}
	s.mu.Unlock()

	// 再生: 新規購読者は以後の変更より前に現在値を受け取る
	fn(current)

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Login は完全なセッションを設置し、購読者へ通知し、耐久ストレージへ
// 書き込む。
func (s *Store) Login(sess model.Session) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	s.current = &sess
	s.mu.Unlock()

	s.persist(&sess)
	s.dispatch(&sess)

	slog.Info("session established",
		slog.String("user_id", sess.UserID),
		slog.String("role", string(sess.Role)),
	)
}

// SetRole は既存セッションのロールをその場で変更する。
// セッションが存在しない場合は黙って何もしない。
func (s *Store) SetRole(role model.Role) {
	if !role.IsValid() {
		slog.Warn("ignoring invalid role", slog.String("role", string(role)))
		return
	}

	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return
	}
	s.current.Role = role
	updated := *s.current
	s.mu.Unlock()

	s.persist(&updated)
	s.dispatch(&updated)

	slog.Info("session role changed", slog.String("role", string(role)))
}

// Logout はセッションを破棄し、購読者へnilを通知し、耐久エントリを
// 削除する。
func (s *Store) Logout() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()

	if err := s.storage.Delete(storage.KeySession); err != nil {
		slog.Error("failed to remove session entry", slog.String("error", err.Error()))
	}
	s.dispatch(nil)

	slog.Info("session cleared")
}

// persist はセッションを耐久ストレージへ同期的に書き込む。
func (s *Store) persist(sess *model.Session) {
	if err := s.storage.Write(storage.KeySession, sess); err != nil {
		slog.Error("failed to persist session", slog.String("error", err.Error()))
	}
}

// dispatch は全購読者へ新しい値を配送する。notifyMuを保持したまま
// 呼ばれるため、配送順序は変更の適用順序と一致する。
func (s *Store) dispatch(sess *model.Session) {
	s.mu.Lock()
	observers := make([]Observer, 0, len(s.subs))
	for _, fn := range s.subs {
		observers = append(observers, fn)
	}
	s.mu.Unlock()

	for _, fn := range observers {
		var copied *model.Session
		if sess != nil {
			c := *sess
			copied = &c
		}
		fn(copied)
	}
}
