// Package locale はプロセス全体の表示言語と文字方向の状態を提供する。
package locale

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/hitoshi/cropid/internal/storage"
)

// DefaultLanguage はフォールバック先の既定言語。
const DefaultLanguage = "en"

// rtlLanguages は右から左へ書く言語コードの固定セット。
var rtlLanguages = map[string]struct{}{
	"ar": {},
	"fa": {},
	"he": {},
	"ur": {},
}

// Observer は言語変更ごとに新しい言語コードで呼び出されるコールバック。
type Observer func(lang string)

// Provider は現在の表示言語を保持し、翻訳と方向の導出を提供する。
// 耐久ストレージの"language"キーの唯一の書き込み者。
type Provider struct {
	storage *storage.Store

	mu     sync.Mutex
	lang   string
	subs   map[int]Observer
	nextID int
}

// NewProvider はProviderを生成し、耐久エントリから言語を初期化する。
// エントリが不在・壊れている・未対応の言語の場合は既定言語で開始する。
func NewProvider(st *storage.Store, defaultLang string) *Provider {
	if defaultLang == "" {
		defaultLang = DefaultLanguage
	}

	p := &Provider{
		storage: st,
		lang:    defaultLang,
		subs:    make(map[int]Observer),
	}

	var saved string
	found, err := st.Read(storage.KeyLanguage, &saved)
	if err != nil {
		slog.Warn("discarding corrupt language entry", slog.String("error", err.Error()))
		return p
	}
	if found {
		if _, ok := catalog[saved]; ok {
			p.lang = saved
		} else {
			slog.Warn("ignoring unsupported saved language", slog.String("lang", saved))
		}
	}
	return p
}

// Get は現在の言語コードを返す。同期的でブロックしない。
func (p *Provider) Get() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lang
}

// Set は言語を変更して永続化し、購読者へ通知する。
// 未対応の言語コードはエラーを返し、状態を変更しない。
func (p *Provider) Set(lang string) error {
	if _, ok := catalog[lang]; !ok {
		return fmt.Errorf("unsupported language: %s", lang)
	}

	p.mu.Lock()
	p.lang = lang
	observers := make([]Observer, 0, len(p.subs))
	for _, fn := range p.subs {
		observers = append(observers, fn)
	}
	p.mu.Unlock()

	if err := p.storage.Write(storage.KeyLanguage, lang); err != nil {
		slog.Error("failed to persist language", slog.String("error", err.Error()))
	}

	for _, fn := range observers {
		fn(lang)
	}
	return nil
}

// Subscribe はオブザーバを登録し、現在の言語を即座に1回再生する。
// 返された関数で購読を解除する。
func (p *Provider) Subscribe(fn Observer) (unsubscribe func()) {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.subs[id] = fn
	current := p.lang
	p.mu.Unlock()

	fn(current)

	return func() {
		p.mu.Lock()
		delete(p.subs, id)
		p.mu.Unlock()
	}
}

// IsRightToLeft は現在の言語が右から左へ書く言語かを返す。
func (p *Provider) IsRightToLeft() bool {
	_, ok := rtlLanguages[p.Get()]
	return ok
}

// Translate はキーを現在の言語の文字列に解決する。
// 現在の言語に無い場合は既定言語、そこにも無い場合はキーをそのまま返す。
// 決して空文字列を返さず、決して失敗しない。
// paramsが与えられた場合、文字列中の{name}プレースホルダを置換する。
func (p *Provider) Translate(key string, params map[string]string) string {
	lang := p.Get()

	text, ok := catalog[lang][key]
	if !ok {
		text, ok = catalog[DefaultLanguage][key]
	}
	if !ok {
		return key
	}

	if len(params) > 0 {
		pairs := make([]string, 0, len(params)*2)
		for name, value := range params {
			pairs = append(pairs, "{"+name+"}", value)
		}
		text = strings.NewReplacer(pairs...).Replace(text)
	}
	return text
}
