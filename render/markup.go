package render

import (
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strings"
)

var (
	codeBlockRe  = regexp.MustCompile("```([^`]+)```")
	inlineCodeRe = regexp.MustCompile("`([^`]+)`")
	boldRe       = regexp.MustCompile(`\*\*([^\*]+)\*\*`)
	italicRe     = regexp.MustCompile(`__([^_]+)__`)
	strikeRe     = regexp.MustCompile(`~~([^~]+)~~`)
	linkRe       = regexp.MustCompile(`\[([^\]]+)\]\(([^\)]+)\)`)
)

// Markup converts the lightweight markup used in descriptions to HTML.
// Supported:
// - **bold**
// - __italic__
// - `code`
// - ```pre```
// - ~~strike~~
// - [text](url), http and https links only
func Markup(text string) string {
	if text == "" {
		return ""
	}

	// Escape HTML first
	text = html.EscapeString(text)

	text = codeBlockRe.ReplaceAllString(text, "<pre><code>$1</code></pre>")
	text = inlineCodeRe.ReplaceAllString(text, "<code>$1</code>")
	text = boldRe.ReplaceAllString(text, "<strong>$1</strong>")
	text = italicRe.ReplaceAllString(text, "<em>$1</em>")
	text = strikeRe.ReplaceAllString(text, "<del>$1</del>")
	text = linkRe.ReplaceAllStringFunc(text, func(m string) string {
		parts := linkRe.FindStringSubmatch(m)
		if !safeLink(html.UnescapeString(parts[2])) {
			return parts[1]
		}
		return fmt.Sprintf(`<a href="%s">%s</a>`, parts[2], parts[1])
	})

	text = strings.ReplaceAll(text, "\n", "<br>\n")

	return fmt.Sprintf("<p>%s</p>", text)
}

func safeLink(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}
