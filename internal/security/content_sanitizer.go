// Package security はユーザー投稿コンテンツのサニタイズを提供する。
//
// 記事本文とコメントは保存前にbluemondayの許可リストポリシーで無害化し、
// テンプレートでは信頼済みHTMLとして出力する。
package security

import (
	"regexp"

	"github.com/microcosm-cc/bluemonday"
)

var httpsURL = regexp.MustCompile(`^https://`)

// ContentSanitizerService はユーザー投稿コンテンツのサニタイズ機能のインターフェース。
type ContentSanitizerService interface {
	// SanitizePost は記事本文をサニタイズする。
	// 許可タグ（p, br, a, ul, ol, li, blockquote, pre, code, strong, em, h2, h3, img）のみを通過させる。
	// imgのsrcはhttpsのみ、aのhrefはhttp/https/mailtoのみ許可し、
	// 外部リンクにはtarget="_blank"とrel="noopener noreferrer"を付与する。
	SanitizePost(raw string) string

	// SanitizeComment はコメント本文から全てのタグを除去する。
	// テキストはHTMLエスケープされた状態で返す。
	SanitizeComment(raw string) string
}

// contentSanitizer はContentSanitizerServiceの実装。
// bluemondayのポリシーはスレッドセーフに共有できる。
type contentSanitizer struct {
	post    *bluemonday.Policy
	comment *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerServiceの新しいインスタンスを生成する。
func NewContentSanitizer() *contentSanitizer {
	p := bluemonday.NewPolicy()

	// script, iframe, style等は許可リストに含めないことで除去される
	p.AllowElements(
		"p", "br", "ul", "ol", "li",
		"blockquote", "pre", "code",
		"strong", "em", "h2", "h3",
	)

	p.AllowAttrs("href").OnElements("a")
	p.AllowURLSchemes("http", "https", "mailto")
	p.RequireParseableURLs(true)
	p.AllowRelativeURLs(false)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	// imgのsrcはhttpsのみ
	p.AllowAttrs("alt").OnElements("img")
	p.AllowAttrs("src").Matching(httpsURL).OnElements("img")

	return &contentSanitizer{
		post:    p,
		comment: bluemonday.StrictPolicy(),
	}
}

// SanitizePost は記事本文をサニタイズする。
func (s *contentSanitizer) SanitizePost(raw string) string {
	return s.post.Sanitize(raw)
}

// SanitizeComment はコメント本文から全てのタグを除去する。
func (s *contentSanitizer) SanitizeComment(raw string) string {
	return s.comment.Sanitize(raw)
}
