package pull

import (
	"strings"

	"golang.org/x/net/html"
)

// wrapWidth is the hard-wrap column of rendered bodies; leading quote and
// list prefixes do not count against it.
const wrapWidth = 72

// RenderBody converts a forum message body fragment to plain UTF-8 text:
// paragraphs wrapped at 72 columns, nested unordered lists with "*"/"-"
// bullets alternating by depth, blockquotes prefixed with ">" per depth,
// code blocks verbatim between blank lines, anchors collapsed to the bare
// URL when their text repeats (or truncates) the href.
func RenderBody(n *html.Node) string {
	r := &renderer{}
	r.walk(n)
	r.endPara()
	out := strings.Join(r.lines, "\n")
	out = strings.Trim(out, "\n")
	if out != "" {
		out += "\n"
	}
	return out
}

type renderer struct {
	lines []string

	segs []string // hard-broken segments of the current paragraph
	cur  strings.Builder

	quote    int
	list     int
	inItem   bool
	lastItem bool
}

func (r *renderer) walk(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		r.text(n.Data)
		return
	case html.ElementNode:
		switch n.Data {
		case "br":
			r.segs = append(r.segs, r.cur.String())
			r.cur.Reset()
			return
		case "p", "div":
			r.endPara()
			r.walkChildren(n)
			r.endPara()
			return
		case "blockquote":
			r.endPara()
			r.quote++
			r.walkChildren(n)
			r.endPara()
			r.quote--
			return
		case "ul", "ol":
			r.endPara()
			r.list++
			r.walkChildren(n)
			r.list--
			r.endPara()
			return
		case "li":
			r.endPara()
			r.inItem = true
			r.walkChildren(n)
			r.endPara()
			return
		case "pre":
			r.endPara()
			r.verbatim(textContent(n))
			return
		case "a":
			r.text(anchorText(n))
			return
		case "img", "script", "style":
			return
		}
	}
	r.walkChildren(n)
}

func (r *renderer) walkChildren(n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		r.walk(c)
	}
}

// text appends space-normalized inline text to the current paragraph.
func (r *renderer) text(s string) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return
	}
	if r.cur.Len() > 0 {
		r.cur.WriteByte(' ')
	}
	r.cur.WriteString(strings.Join(fields, " "))
}

// endPara wraps and emits the accumulated paragraph with the current
// quote/list prefixes.
func (r *renderer) endPara() {
	segs := r.segs
	if r.cur.Len() > 0 {
		segs = append(segs, r.cur.String())
	}
	r.segs = nil
	r.cur.Reset()
	item := r.inItem
	r.inItem = false
	var kept []string
	for _, s := range segs {
		if s != "" {
			kept = append(kept, s)
		}
	}
	segs = kept
	if len(segs) == 0 {
		return
	}

	prefix := ""
	if r.quote > 0 {
		prefix = strings.Repeat(">", r.quote) + " "
	}
	first, rest := prefix, prefix
	if r.list > 0 {
		indent := strings.Repeat("  ", r.list-1)
		bullet := "*"
		if r.list%2 == 0 {
			bullet = "-"
		}
		if item {
			first += indent + bullet + " "
		} else {
			first += indent + "  "
		}
		rest += indent + "  "
	}

	// list items follow each other without separating blanks
	if len(r.lines) > 0 && r.lines[len(r.lines)-1] != "" && !(item && r.lastItem) {
		r.lines = append(r.lines, "")
	}
	r.lastItem = item

	lead := first
	for _, seg := range segs {
		if seg == "" {
			continue
		}
		for _, line := range wrap(seg, wrapWidth) {
			r.lines = append(r.lines, lead+line)
			lead = rest
		}
	}
}

// verbatim emits a code block untouched, separated by blank lines.
func (r *renderer) verbatim(code string) {
	code = strings.Trim(code, "\n")
	if code == "" {
		return
	}
	if len(r.lines) > 0 {
		r.lines = append(r.lines, "")
	}
	r.lines = append(r.lines, strings.Split(code, "\n")...)
	r.lines = append(r.lines, "")
	r.lastItem = false
}

// wrap hard-wraps text at width columns, breaking on spaces. Words longer
// than the width stay unbroken.
func wrap(text string, width int) []string {
	var lines []string
	var line strings.Builder
	lineLen := 0
	for _, word := range strings.Fields(text) {
		wl := len([]rune(word))
		if lineLen > 0 && lineLen+1+wl > width {
			lines = append(lines, line.String())
			line.Reset()
			lineLen = 0
		}
		if lineLen > 0 {
			line.WriteByte(' ')
			lineLen++
		}
		line.WriteString(word)
		lineLen += wl
	}
	if line.Len() > 0 {
		lines = append(lines, line.String())
	}
	return lines
}

// anchorText renders a link: the bare URL when the anchor text equals the
// href or is a visible truncation of it, "text (url)" otherwise.
func anchorText(n *html.Node) string {
	href := attrValue(n, "href")
	text := strings.Join(strings.Fields(textContent(n)), " ")
	switch {
	case href == "":
		return text
	case text == "" || text == href:
		return href
	}
	trimmed := strings.TrimSuffix(strings.TrimSuffix(text, "..."), "…")
	if trimmed != text && strings.HasPrefix(href, trimmed) {
		return href
	}
	return text + " (" + href + ")"
}

func attrValue(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}
