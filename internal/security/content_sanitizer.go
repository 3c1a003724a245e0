package security

import (
	"net/url"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService は製品お知らせフィードのHTML本文をサニタイズする。
// サニタイズ結果は記事の要約としてそのまま保持され、端末表示用の
// プレーンテキスト縮約の入力にもなる。
type ContentSanitizerService interface {
	// Sanitize はお知らせ本文をサニタイズして安全なHTMLを返す。
	// 営農アドバイザリが実際に使うマークアップ
	// （段落、改行、箇条書き、強調、リンク、圃場写真）のみを通過させ、
	// script・iframe・style等の能動的コンテンツとon*イベント属性を除去する。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(rawHTML string) string
}

// contentSanitizer はContentSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type contentSanitizer struct {
	policy *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerServiceの新しいインスタンスを生成する。
// ポリシーはお知らせ本文（アドバイザリ、告知、リリースノート）の
// マークアップに合わせた許可リスト:
//   - 本文構造: p, br, ul, ol, li
//   - 強調: strong, em
//   - リンク: a[href] 絶対URLのみ。target="_blank" と
//     rel="noopener noreferrer" を強制付与する
//   - 圃場写真: img[src, alt] srcはhttpsスキームのみ
//
// それ以外のタグは許可リスト外として除去される。on*イベント属性は
// bluemondayのデフォルトで通過しない。
func NewContentSanitizer() *contentSanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"p", "br", "ul", "ol", "li",
		"strong", "em",
	)

	p.AllowAttrs("href").OnElements("a")
	p.AllowRelativeURLs(false)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	p.AllowAttrs("src").OnElements("img")
	p.AllowAttrs("alt").OnElements("img")
	p.AllowURLSchemeWithCustomPolicy("https", func(u *url.URL) bool {
		return true
	})

	return &contentSanitizer{
		policy: p,
	}
}

// Sanitize はお知らせ本文をサニタイズして安全なHTMLを返す。
func (s *contentSanitizer) Sanitize(rawHTML string) string {
	return s.policy.Sanitize(rawHTML)
}
