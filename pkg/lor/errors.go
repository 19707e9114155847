package lor

import (
	"regexp"
	"strings"
)

var (
	titleRe    = regexp.MustCompile(`(?is)<title>(.*?)</title>`)
	errorDivRe = regexp.MustCompile(`(?is)<div class="error">(.*?)</div>`)
	tagRe      = regexp.MustCompile(`(?s)<[^>]*>`)
)

// PageTitle extracts the <title> text of a forum page, used to report
// login failures.
func PageTitle(body []byte) string {
	m := titleRe.FindSubmatch(body)
	if m == nil {
		return ""
	}
	return cleanText(string(m[1]))
}

// ErrorDiv extracts the text of the forum's submission error container
// (`<div class="error">…</div>`), empty when the page carries none.
func ErrorDiv(body []byte) string {
	m := errorDivRe.FindSubmatch(body)
	if m == nil {
		return ""
	}
	return cleanText(string(m[1]))
}

func cleanText(s string) string {
	s = tagRe.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(s), " ")
}
