package news

import (
	"strings"

	"golang.org/x/net/html"
)

// HTMLToText はサニタイズ済みHTMLを端末表示向けのプレーンテキストへ
// 縮約する。ブロック要素の境界は改行に、連続する空白は1つに畳まれる。
// パースに失敗した場合は入力をそのまま返す。
func HTMLToText(s string) string {
	if s == "" {
		return ""
	}

	doc, err := html.Parse(strings.NewReader(s))
	if err != nil {
		return s
	}

	var b strings.Builder
	walkText(doc, &b)
	return collapseWhitespace(b.String())
}

// blockElements は改行として扱うブロック要素。
var blockElements = map[string]bool{
	"p":          true,
	"br":         true,
	"ul":         true,
	"ol":         true,
	"li":         true,
	"blockquote": true,
	"pre":        true,
	"div":        true,
}

// walkText はノードツリーを辿ってテキストを収集する。
func walkText(n *html.Node, b *strings.Builder) {
	if n.Type == html.TextNode {
		b.WriteString(n.Data)
	}
	if n.Type == html.ElementNode && blockElements[n.Data] {
		b.WriteString("\n")
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkText(c, b)
	}
}

// collapseWhitespace は行内の連続空白を1つに畳み、空行を除去する。
func collapseWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		out = append(out, strings.Join(fields, " "))
	}
	return strings.Join(out, "\n")
}
