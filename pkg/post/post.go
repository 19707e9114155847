// Package post submits a fully-formed news article to the forum: a new
// topic via add.jsp or a comment via add_comment.jsp, reusing the user's
// persisted login session.
package post

import (
	"fmt"
	"io"
	"net/mail"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/dmaluka/lornews/pkg/article"
	"github.com/dmaluka/lornews/pkg/config"
	"github.com/dmaluka/lornews/pkg/lor"
)

// Poster validates and submits one message.
type Poster struct {
	Root    string
	Catalog *config.Catalog
	BaseURL string
	Timeout time.Duration
}

// message is the validated form of the input article.
type message struct {
	nick     string
	group    *config.Group
	subject  string
	body     string
	topic    int64 // 0 for a new topic
	replyTo  int64 // comment being answered, 0 for none
	linkText string
	linkURL  string
	tags     string
	image    string
}

// Submit reads an article from r and posts it. On failure the returned
// error carries the single diagnostic line for stderr.
func (p *Poster) Submit(r io.Reader) error {
	m, err := p.parse(r)
	if err != nil {
		return err
	}

	passwd, err := config.ReadPassword(p.Root, m.nick)
	if err != nil {
		return err
	}

	// concurrent postings for one user serialize on the cookies file
	unlock, err := lockUser(p.Root, m.nick)
	if err != nil {
		return err
	}
	defer unlock()

	jar, err := lor.LoadJar(config.CookiesFile(p.Root, m.nick))
	if err != nil {
		return err
	}
	client, err := lor.New(p.BaseURL, p.Timeout, jar)
	if err != nil {
		return err
	}
	if err := client.EnsureSession(m.nick, passwd, p.Timeout); err != nil {
		return err
	}

	form := url.Values{
		"session":  {client.SessionID()},
		"topic":    {topicField(m.topic)},
		"replyto":  {topicField(m.replyTo)},
		"title":    {m.subject},
		"msg":      {m.body},
		"linktext": {m.linkText},
		"url":      {m.linkURL},
		"tags":     {m.tags},
		"autourl":  {"1"},
	}
	endpoint := "/add_comment.jsp"
	if m.topic == 0 {
		endpoint = "/add.jsp"
		form.Set("group", strconv.FormatInt(m.group.ID, 10))
		form.Set("mode", "tex")
	} else {
		form.Set("mode", "ntobrq")
	}

	var body []byte
	if m.image != "" {
		body, err = client.PostMultipart(endpoint, form, "image", m.image)
	} else {
		body, err = client.PostForm(endpoint, form)
	}
	if err != nil {
		return err
	}
	if msg := lor.ErrorDiv(body); msg != "" {
		return fmt.Errorf("%s", msg)
	}
	return nil
}

func topicField(id int64) string {
	if id == 0 {
		return ""
	}
	return strconv.FormatInt(id, 10)
}

// parse validates the input message headers per the posting contract.
func (p *Poster) parse(r io.Reader) (*message, error) {
	msg, err := mail.ReadMessage(r)
	if err != nil {
		return nil, fmt.Errorf("parse article: %w", err)
	}
	h := msg.Header

	addrs, err := h.AddressList("From")
	if err != nil || len(addrs) != 1 {
		return nil, fmt.Errorf("From must carry exactly one address")
	}
	nick := addrs[0].Name
	if nick == "" {
		nick, _, _ = strings.Cut(addrs[0].Address, "@")
	}
	if nick == "" || strings.EqualFold(nick, "anonymous") {
		return nil, fmt.Errorf("anonymous posting is not supported")
	}

	groups := strings.TrimSpace(h.Get("Newsgroups"))
	if groups == "" || strings.ContainsAny(groups, ", \t") {
		return nil, fmt.Errorf("Newsgroups must name exactly one group")
	}
	group := p.Catalog.Find(groups)
	if group == nil {
		return nil, fmt.Errorf("unknown newsgroup %s", groups)
	}

	subject := article.DecodeHeader(h.Get("Subject"))
	if strings.TrimSpace(subject) == "" {
		return nil, fmt.Errorf("Subject is missing")
	}

	m := &message{
		nick:     nick,
		group:    group,
		subject:  subject,
		linkText: article.DecodeHeader(h.Get("X-Link-Text")),
		linkURL:  h.Get("X-Link-URL"),
		tags:     article.DecodeHeader(h.Get("Keywords")),
		image:    h.Get("X-Image-Path"),
	}

	// the last reference selects the thread and the reply target
	if refs := strings.Fields(h.Get("References")); len(refs) > 0 {
		last := refs[len(refs)-1]
		topic, comment, err := article.ParseMessageID(last)
		if err != nil {
			return nil, fmt.Errorf("References: %w", err)
		}
		m.topic = topic
		m.replyTo = comment
	}

	body, err := io.ReadAll(msg.Body)
	if err != nil {
		return nil, fmt.Errorf("read article body: %w", err)
	}
	m.body = string(body)
	return m, nil
}

// lockUser takes the per-user advisory lock serializing cookie access.
func lockUser(root, nick string) (func(), error) {
	dir := config.UserDir(root, nick)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(filepath.Join(dir, "cookies.lock"), os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		f.Close()
		return nil, fmt.Errorf("lock user %s: %w", nick, err)
	}
	return func() {
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
	}, nil
}
