package render

import (
	"regexp"

	"github.com/microcosm-cc/bluemonday"
)

// Sanitizer cleans untrusted HTML fragments against an explicit allow-list
// of tags, attributes, and URL protocols. A nil *Sanitizer means no
// sanitizer is available and callers must fail closed (escaped output).
type Sanitizer struct {
	policy *bluemonday.Policy
}

// NewSanitizer builds the default policy: basic formatting, tables, links,
// and images; http/https/mailto links plus data URIs for images; bare URLs
// are linkified with rel=nofollow.
func NewSanitizer() *Sanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"p", "br", "hr",
		"b", "strong", "i", "em", "u", "blockquote",
		"pre", "code",
		"ul", "ol", "li",
		"h1", "h2", "h3", "h4", "h5", "h6",
		"table", "thead", "tbody", "tr", "th", "td",
		"span", "div",
	)
	p.AllowAttrs("class").Globally()

	p.AllowAttrs("href", "title", "target", "rel").OnElements("a")
	p.AllowAttrs("src", "alt", "title", "width", "height").OnElements("img")

	p.AllowStandardURLs()
	p.AllowURLSchemes("http", "https", "mailto")
	p.AllowDataURIImages()
	p.RequireNoFollowOnLinks(true)

	return &Sanitizer{policy: p}
}

// Sanitize strips script/style blocks, linkifies bare URLs, and cleans the
// fragment against the allow-list.
func (s *Sanitizer) Sanitize(html string) string {
	html = StripScriptAndStyleBlocks(html)
	html = linkify(html)
	return s.policy.Sanitize(html)
}

var (
	scriptBlockRe = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script\s*>`)
	styleBlockRe  = regexp.MustCompile(`(?is)<style\b[^>]*>.*?</style\s*>`)
)

// StripScriptAndStyleBlocks removes whole script and style elements,
// including their contents, before sanitization.
func StripScriptAndStyleBlocks(html string) string {
	html = scriptBlockRe.ReplaceAllString(html, "")
	return styleBlockRe.ReplaceAllString(html, "")
}

// bareURLRe matches http(s) URLs that are not already inside an attribute
// value or an existing anchor.
var bareURLRe = regexp.MustCompile(`(^|[\s>])(https?://[^\s<>"']+)`)

func linkify(html string) string {
	return bareURLRe.ReplaceAllString(html, `$1<a href="$2" rel="nofollow">$2</a>`)
}
