package flasky

import (
	"github.com/microcosm-cc/bluemonday"
	"github.com/russross/blackfriday/v2"
)

// Tag allowlists mirror what the web layer is willing to render. Posts
// get headings and block elements; comments are restricted to inline
// markup and lists.
var (
	postPolicy    = newMarkupPolicy("a", "abbr", "acronym", "b", "blockquote", "code", "em", "i", "li", "ol", "pre", "strong", "ul", "h1", "h2", "h3", "p")
	commentPolicy = newMarkupPolicy("a", "abbr", "acronym", "b", "code", "em", "i", "strong")
)

func newMarkupPolicy(elements ...string) *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements(elements...)
	p.AllowAttrs("href").OnElements("a")
	p.RequireNoFollowOnLinks(true)
	return p
}

// RenderMarkdown converts post source markup to sanitized HTML. Any tag
// outside the allowlist is stripped, not escaped.
func RenderMarkdown(src string) string {
	unsafe := blackfriday.Run([]byte(src))
	return postPolicy.Sanitize(string(unsafe))
}

// RenderCommentMarkdown converts comment source markup to sanitized
// HTML using the restricted allowlist.
func RenderCommentMarkdown(src string) string {
	unsafe := blackfriday.Run([]byte(src))
	return commentPolicy.Sanitize(string(unsafe))
}
