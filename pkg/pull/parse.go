package pull

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// ErrLayout is wrapped by parse errors: the forum changed its markup and a
// human must update the parser.
var ErrLayout = errors.New("Forum changed its layout")

// ListEntry is one thread row of a group-lastmod listing page.
type ListEntry struct {
	Topic   int64
	Pages   int
	Clipped bool
	Age     string
}

// Message is one parsed forum message. The topic body has ID 0.
type Message struct {
	ID      int64
	ReplyTo int64
	Subject string
	Author  string
	Banned  bool
	Stars   string
	Date    time.Time
	Body    string

	// topic-only extras
	Tags           string
	ImageURL       string
	Moderator      string
	ModerationDate string
}

// ThreadPage is the parsed form of one view-message.jsp page.
type ThreadPage struct {
	Subject  string
	Pages    int
	Messages []*Message // topic (ID 0) first when the page carries it
}

// ParseListPage extracts the thread entries of a group-lastmod listing.
func ParseListPage(body []byte) ([]*ListEntry, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLayout, err)
	}
	var entries []*ListEntry
	for _, row := range findAll(doc, "tr", "") {
		e := &ListEntry{Pages: 1}
		for _, a := range findAll(row, "a", "") {
			msgid, page, ok := messageLink(attrValue(a, "href"))
			if !ok {
				continue
			}
			if e.Topic == 0 {
				e.Topic = msgid
			}
			if msgid == e.Topic && page+1 > e.Pages {
				e.Pages = page + 1
			}
		}
		if e.Topic == 0 {
			continue // header or spacer row
		}
		for _, img := range findAll(row, "img", "") {
			if strings.Contains(attrValue(img, "src"), "clip") {
				e.Clipped = true
			}
		}
		if cell := find(row, "td", "dateinterval"); cell != nil {
			e.Age = collapse(textContent(cell))
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// ParseThreadPage extracts the topic and comments of a thread page.
func ParseThreadPage(body []byte) (*ThreadPage, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLayout, err)
	}
	tp := &ThreadPage{Pages: 1}

	h1 := find(doc, "h1", "")
	if h1 == nil {
		return nil, fmt.Errorf("%w: no topic title", ErrLayout)
	}
	tp.Subject = collapse(textContent(h1))

	if pages := find(doc, "div", "pages"); pages != nil {
		for _, a := range findAll(pages, "a", "") {
			if _, page, ok := messageLink(attrValue(a, "href")); ok && page+1 > tp.Pages {
				tp.Pages = page + 1
			}
		}
	}

	for _, div := range findAll(doc, "div", "msg") {
		id := attrValue(div, "id")
		var m *Message
		switch {
		case strings.HasPrefix(id, "topic-"):
			m = &Message{Subject: tp.Subject}
		case strings.HasPrefix(id, "comment-"):
			n, err := strconv.ParseInt(strings.TrimPrefix(id, "comment-"), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: bad comment id %q", ErrLayout, id)
			}
			m = &Message{ID: n}
		default:
			continue
		}
		if err := parseMessage(div, m); err != nil {
			return nil, err
		}
		tp.Messages = append(tp.Messages, m)
	}
	return tp, nil
}

func parseMessage(div *html.Node, m *Message) error {
	if title := find(div, "div", "title"); title != nil {
		if a := find(title, "a", ""); a != nil {
			if _, cid, ok := commentLink(attrValue(a, "href")); ok {
				m.ReplyTo = cid
			}
		}
		if m.ID != 0 {
			if subj := ownText(title); subj != "" {
				m.Subject = subj
			}
		}
	}

	bodyDiv := find(div, "div", "msgbody")
	if bodyDiv == nil {
		return fmt.Errorf("%w: message %d has no body", ErrLayout, m.ID)
	}
	m.Body = RenderBody(bodyDiv)
	if m.ID == 0 {
		if img := find(bodyDiv, "img", ""); img != nil {
			m.ImageURL = attrValue(img, "src")
		}
		if tags := find(div, "p", "tags"); tags != nil {
			var ts []string
			for _, a := range findAll(tags, "a", "") {
				ts = append(ts, collapse(textContent(a)))
			}
			m.Tags = strings.Join(ts, ", ")
		}
	}

	sign := find(div, "div", "sign")
	if sign == nil {
		return fmt.Errorf("%w: message %d has no signature", ErrLayout, m.ID)
	}
	for _, a := range findAll(sign, "a", "") {
		href := attrValue(a, "href")
		if !strings.HasPrefix(href, "/people/") {
			continue
		}
		m.Author = collapse(textContent(a))
		for p := a.Parent; p != nil && p != sign; p = p.Parent {
			if p.Type == html.ElementNode && p.Data == "s" {
				m.Banned = true
			}
		}
		break
	}
	if m.Author == "" {
		return fmt.Errorf("%w: message %d has no author", ErrLayout, m.ID)
	}
	if img := find(sign, "img", "stars"); img != nil {
		m.Stars = attrValue(img, "alt")
	}
	if span := find(sign, "span", "date"); span != nil {
		t, err := parseForumDate(collapse(textContent(span)))
		if err != nil {
			return fmt.Errorf("%w: message %d: %v", ErrLayout, m.ID, err)
		}
		m.Date = t
	} else {
		return fmt.Errorf("%w: message %d has no date", ErrLayout, m.ID)
	}
	if m.ID == 0 {
		if mod := find(sign, "span", "moderator"); mod != nil {
			if a := find(mod, "a", ""); a != nil {
				m.Moderator = collapse(textContent(a))
			}
			if span := find(mod, "span", "date"); span != nil {
				m.ModerationDate = collapse(textContent(span))
			}
		}
	}
	return nil
}

var forumDateLayouts = []string{
	"02.01.2006 15:04:05",
	"02.01.2006 15:04",
}

// parseForumDate parses the forum's displayed timestamps in the install's
// local zone, as the forum renders wall-clock times.
func parseForumDate(s string) (time.Time, error) {
	for _, layout := range forumDateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", s)
}

// messageLink extracts msgid and page from a view-message.jsp href.
func messageLink(href string) (msgid int64, page int, ok bool) {
	u, err := url.Parse(href)
	if err != nil || !strings.Contains(u.Path, "view-message.jsp") {
		return 0, 0, false
	}
	q := u.Query()
	msgid, err = strconv.ParseInt(q.Get("msgid"), 10, 64)
	if err != nil || msgid <= 0 {
		return 0, 0, false
	}
	if p := q.Get("page"); p != "" {
		page, err = strconv.Atoi(p)
		if err != nil || page < 0 {
			page = 0
		}
	}
	return msgid, page, true
}

// commentLink extracts msgid and cid from a reply href.
func commentLink(href string) (msgid, cid int64, ok bool) {
	u, err := url.Parse(href)
	if err != nil || !strings.Contains(u.Path, "view-message.jsp") {
		return 0, 0, false
	}
	q := u.Query()
	msgid, _ = strconv.ParseInt(q.Get("msgid"), 10, 64)
	cid, err = strconv.ParseInt(q.Get("cid"), 10, 64)
	if err != nil || cid <= 0 {
		return 0, 0, false
	}
	return msgid, cid, true
}

// find returns the first element with the given tag and (when non-empty)
// class.
func find(n *html.Node, tag, class string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag &&
		(class == "" || hasClass(n, class)) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := find(c, tag, class); found != nil {
			return found
		}
	}
	return nil
}

func findAll(n *html.Node, tag, class string) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == tag &&
			(class == "" || hasClass(n, class)) {
			out = append(out, n)
			// do not descend into matching nodes: forum messages never nest
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attrValue(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

// ownText collects the direct text of a node, skipping child elements.
func ownText(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return collapse(b.String())
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
