// Package pull maintains the article store from the forum: it walks the
// group-lastmod listings, parses thread pages into articles and appends
// them through the store, running age-based expiry first.
package pull

import (
	"bytes"
	"fmt"
	"net/mail"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/dmaluka/lornews/pkg/article"
	"github.com/dmaluka/lornews/pkg/config"
	"github.com/dmaluka/lornews/pkg/logger"
	"github.com/dmaluka/lornews/pkg/lor"
	"github.com/dmaluka/lornews/pkg/pattern"
	"github.com/dmaluka/lornews/pkg/store"
	"github.com/dmaluka/lornews/pkg/telemetry"
)

const (
	// listPageSize is the forum's group-lastmod page length.
	listPageSize = 30
	// commentsPerPage is the forum's thread page length, used by the
	// freshness heuristic.
	commentsPerPage = 25
	// voteMarker is the link label of poll topics.
	voteMarker = "Голосовать"
)

// Puller walks the forum and maintains the store.
type Puller struct {
	Root       string
	Client     *lor.Client
	Catalog    *config.Catalog
	Days       int // pull window; < 0 disables pulling
	ExpireDays int // < 0 disables expiry; 0 expires everything
}

// Run expires and pulls every catalog group matching the pattern. Remote
// errors are fatal for the invocation.
func (p *Puller) Run(pat *pattern.Pattern) error {
	for i := range p.Catalog.Groups {
		g := &p.Catalog.Groups[i]
		if !pat.Match(g.Name) {
			continue
		}
		if err := p.group(g); err != nil {
			return fmt.Errorf("group %s: %w", g.Name, err)
		}
	}
	return nil
}

func (p *Puller) group(g *config.Group) error {
	ix, err := store.Open(p.Root, g.Name, store.Create)
	if err != nil {
		return err
	}
	defer ix.Close()

	if p.ExpireDays >= 0 {
		n, err := store.Expire(ix, p.ExpireDays)
		if err != nil {
			return err
		}
		if n > 0 {
			telemetry.ArticlesExpired.Add(float64(n))
			logger.Info("expired", "group", g.Name, "articles", n)
		}
	}
	if p.Days < 0 {
		return nil
	}

	pulled := 0
	bytesPulled := 0
	start := time.Now()
walk:
	for offset := 0; ; offset += listPageSize {
		q := url.Values{
			"group":  {strconv.FormatInt(g.ID, 10)},
			"offset": {strconv.Itoa(offset)},
		}
		body, err := p.Client.Get("/group-lastmod.jsp", q)
		if err != nil {
			return err
		}
		entries, err := ParseListPage(body)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			break
		}
		for _, e := range entries {
			// clipped threads display unreliable ages; never gate on them
			if !e.Clipped {
				age, err := ParseAge(e.Age)
				if err != nil {
					return fmt.Errorf("thread %d: %w", e.Topic, err)
				}
				if age > float64(p.Days) {
					break walk
				}
			}
			if pagesFor(ix.TopicCount(e.Topic)) >= e.Pages {
				continue // page counter has not grown; assume up to date
			}
			n, b, err := p.thread(ix, g, e)
			if err != nil {
				return fmt.Errorf("thread %d: %w", e.Topic, err)
			}
			pulled += n
			bytesPulled += b
		}
		if len(entries) < listPageSize {
			break
		}
	}

	if pulled > 0 {
		telemetry.ArticlesPulled.Add(float64(pulled))
	}
	logger.Info("pulled", "group", g.Name,
		"articles", humanize.Comma(int64(pulled)),
		"bytes", humanize.Bytes(uint64(bytesPulled)),
		"elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}

// pagesFor estimates how many thread pages the stored article count fills.
// The freshness test compares this against the rendered page count, so a
// thread only refreshes when it has grown by a whole page.
func pagesFor(stored int64) int {
	if stored == 0 {
		return 0
	}
	return int((stored + commentsPerPage - 1) / commentsPerPage)
}

// thread fetches a thread's comment pages in reverse order and appends the
// missing messages in chronological order, so article numbering matches
// the forum's own order.
func (p *Puller) thread(ix *store.Index, g *config.Group, e *ListEntry) (count, size int, err error) {
	var msgs []*Message
	subject := ""
	for page := e.Pages - 1; page >= 0; page-- {
		q := url.Values{
			"msgid": {strconv.FormatInt(e.Topic, 10)},
			"page":  {strconv.Itoa(page)},
		}
		body, err := p.Client.Get("/view-message.jsp", q)
		if err != nil {
			return 0, 0, err
		}
		tp, err := ParseThreadPage(body)
		if err != nil {
			return 0, 0, err
		}
		msgs = append(tp.Messages, msgs...)
		subject = tp.Subject
	}

	for _, m := range msgs {
		if ix.HasArticle(e.Topic, m.ID) {
			continue
		}
		a, err := p.buildArticle(ix, g, e.Topic, subject, m)
		if err != nil {
			return count, size, err
		}
		if _, err := store.Append(ix, a); err != nil {
			return count, size, err
		}
		count++
		size += len(a.Body)
		logger.Debug("appended", "group", g.Name, "message_id", a.MessageID())
	}
	return count, size, nil
}

// buildArticle turns a parsed message into a news article, deriving the
// References chain and promoting a trailing ">>> label (url)" line into
// the link headers.
func (p *Puller) buildArticle(ix *store.Index, g *config.Group, topic int64, topicSubject string, m *Message) (*article.Article, error) {
	a := &article.Article{
		Newsgroup: g.Name,
		From:      m.Author,
		Date:      m.Date,
		Topic:     topic,
		Comment:   m.ID,
		Stars:     m.Stars,
		Injection: time.Now().UTC(),
		Body:      m.Body,
	}
	if m.Subject != "" {
		a.Subject = m.Subject
	} else {
		a.Subject = "Re: " + topicSubject
	}
	if m.ID != 0 {
		refs, err := referencesFor(ix, topic, m.ReplyTo)
		if err != nil {
			return nil, err
		}
		a.References = refs
	} else {
		a.Keywords = m.Tags
		a.ImageURL = m.ImageURL
		a.Moderator = m.Moderator
		a.ModerationDate = m.ModerationDate
	}
	promoteTrailingLink(a)
	return a, nil
}

// referencesFor builds the References header of a comment: the parent's
// references followed by the parent itself, or the bare topic ID for
// first-level comments.
func referencesFor(ix *store.Index, topic, replyTo int64) (string, error) {
	if replyTo == 0 {
		return article.MessageID(topic, 0), nil
	}
	parentPath := ix.FilePath(topic, replyTo)
	b, err := os.ReadFile(parentPath)
	if err != nil {
		// parent expired or beyond the pull window; root at the topic
		return article.MessageID(topic, 0), nil
	}
	msg, err := mail.ReadMessage(bytes.NewReader(b))
	if err != nil {
		return "", fmt.Errorf("parse parent article %s: %w", parentPath, err)
	}
	parent := article.MessageID(topic, replyTo)
	if refs := msg.Header.Get("References"); refs != "" {
		return refs + " " + parent, nil
	}
	return parent, nil
}

// promoteTrailingLink strips a final ">>> label (url)" body line and
// raises it into X-Link-URL/X-Link-Text, or X-Vote-URL for poll topics.
func promoteTrailingLink(a *article.Article) {
	body := strings.TrimRight(a.Body, "\n")
	idx := strings.LastIndex(body, "\n")
	last := body[idx+1:]
	if !strings.HasPrefix(last, ">>> ") {
		return
	}
	rest := strings.TrimPrefix(last, ">>> ")

	var label, u string
	if open := strings.LastIndex(rest, " ("); open >= 0 && strings.HasSuffix(rest, ")") {
		label = rest[:open]
		u = rest[open+2 : len(rest)-1]
	} else {
		label = rest
		u = rest
	}
	if label == voteMarker {
		a.VoteURL = u
	} else {
		a.LinkURL = u
		a.LinkText = label
	}
	if idx < 0 {
		a.Body = ""
		return
	}
	a.Body = strings.TrimRight(body[:idx], "\n") + "\n"
}
