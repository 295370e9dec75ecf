// Package security はアプリケーションのセキュリティ機能を提供する。
//
// Sanitizer はクリエイターが入力したテキストを保存前に無害化する。
// URLGuard は外部URLの参照と外部APIへのリクエストをSSRFから保護する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はユーザー入力テキストの無害化インターフェース。
type TextSanitizer interface {
	// Plain はすべてのHTMLタグを除去したテキストを返す。
	// タイトル、表示名、文字起こし、タグに使用する。
	Plain(s string) string

	// Rich は段落や箇条書きなど最小限の書式タグのみを残す。
	// コースとレッスンの説明文に使用する。
	Rich(s string) string
}

// Sanitizer はbluemondayのポリシーを使ったTextSanitizerの実装。
// ポリシーは生成後に変更しないため、複数goroutineから安全に使用できる。
type Sanitizer struct {
	strict *bluemonday.Policy
	rich   *bluemonday.Policy
}

// NewSanitizer はSanitizerを生成する。
func NewSanitizer() *Sanitizer {
	rich := bluemonday.NewPolicy()
	rich.AllowElements(
		"p", "br", "ul", "ol", "li",
		"strong", "em", "code", "pre", "blockquote",
	)
	rich.AllowAttrs("href").OnElements("a")
	rich.AllowURLSchemes("https")
	rich.RequireParseableURLs(true)
	rich.AllowRelativeURLs(false)
	rich.AddTargetBlankToFullyQualifiedLinks(true)
	rich.RequireNoReferrerOnLinks(true)

	return &Sanitizer{
		strict: bluemonday.StrictPolicy(),
		rich:   rich,
	}
}

// Plain はすべてのHTMLタグを除去し、前後の空白を取り除く。
// StrictPolicyはエスケープ済みの文字列を返すため、実体参照を元に戻す。
func (s *Sanitizer) Plain(in string) string {
	return strings.TrimSpace(html.UnescapeString(s.strict.Sanitize(in)))
}

// Rich は許可リストにある書式タグ以外を除去する。
func (s *Sanitizer) Rich(in string) string {
	return strings.TrimSpace(s.rich.Sanitize(in))
}

// PlainAll はスライスの各要素にPlainを適用し、空になった要素を除く。
func PlainAll(san TextSanitizer, in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if p := san.Plain(v); p != "" {
			out = append(out, p)
		}
	}
	return out
}

var _ TextSanitizer = (*Sanitizer)(nil)
