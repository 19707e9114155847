// Package article defines the news article model shared by the store, the
// puller, the poster and the NNTP server: the message-ID scheme, the header
// set emitted for topics and comments, and the overview record.
package article

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"net/mail"
	"strconv"
	"strings"
	"time"
)

// Host is the message-ID and Path host of the forum.
const Host = "linux.org.ru"

// MessageID builds a message-ID for a topic (comment == 0) or a comment.
func MessageID(topic, comment int64) string {
	if comment == 0 {
		return fmt.Sprintf("<lor%d@%s>", topic, Host)
	}
	return fmt.Sprintf("<lor%d.%d@%s>", topic, comment, Host)
}

// ParseMessageID parses a message-ID of the forum scheme. Comment is 0 for
// a topic ID.
func ParseMessageID(id string) (topic, comment int64, err error) {
	s := strings.TrimSpace(id)
	if !strings.HasPrefix(s, "<lor") || !strings.HasSuffix(s, "@"+Host+">") {
		return 0, 0, fmt.Errorf("malformed message-id %q", id)
	}
	s = strings.TrimSuffix(strings.TrimPrefix(s, "<lor"), "@"+Host+">")
	ts, cs, dotted := strings.Cut(s, ".")
	topic, err = strconv.ParseInt(ts, 10, 64)
	if err != nil || topic <= 0 {
		return 0, 0, fmt.Errorf("malformed message-id %q", id)
	}
	if dotted {
		comment, err = strconv.ParseInt(cs, 10, 64)
		if err != nil || comment <= 0 {
			return 0, 0, fmt.Errorf("malformed message-id %q", id)
		}
	}
	return topic, comment, nil
}

// Article is a fully-formed news article before encoding. Topic articles
// have Comment == 0.
type Article struct {
	Newsgroup string
	Subject   string
	From      string // display name (the forum nick)
	Date      time.Time
	Topic     int64
	Comment   int64

	// References carries the parent chain for comments, empty for topics.
	References string

	Keywords       string
	LinkURL        string
	LinkText       string
	ImageURL       string
	VoteURL        string
	Moderator      string
	ModerationDate string
	Stars          string

	Injection time.Time

	// Body uses LF line endings and no trailing newline requirement;
	// Encode terminates the last line.
	Body string
}

// MessageID returns the article's message-ID.
func (a *Article) MessageID() string {
	return MessageID(a.Topic, a.Comment)
}

// FromAddress renders the From header value for the forum nick.
func (a *Article) FromAddress() string {
	addr := mail.Address{Name: a.From, Address: a.From + "@" + Host}
	return addr.String()
}

const dateLayout = "Mon, 02 Jan 2006 15:04:05 -0700"

// Encode renders the article as an RFC-5322 message with LF line endings,
// the on-disk format. Headers with non-ASCII content are MIME-word
// encoded; the body passes through as raw UTF-8.
func (a *Article) Encode() []byte {
	var b bytes.Buffer
	w := func(name, value string) {
		if value != "" {
			fmt.Fprintf(&b, "%s: %s\n", name, value)
		}
	}
	w("Path", Host+"!not-for-mail")
	w("From", a.FromAddress())
	w("Newsgroups", a.Newsgroup)
	w("Subject", EncodeHeader(a.Subject))
	w("Date", a.Date.Format(dateLayout))
	w("Message-ID", a.MessageID())
	w("References", a.References)
	w("MIME-Version", "1.0")
	w("Content-Type", "text/plain; charset=utf-8")
	w("Content-Transfer-Encoding", "8bit")
	w("Injection-Date", a.Injection.UTC().Format(dateLayout))
	w("Keywords", EncodeHeader(a.Keywords))
	w("X-Link-URL", a.LinkURL)
	w("X-Link-Text", EncodeHeader(a.LinkText))
	w("X-Image-URL", a.ImageURL)
	w("X-Vote-URL", a.VoteURL)
	w("X-Moderator", EncodeHeader(a.Moderator))
	w("X-Moderation-Date", a.ModerationDate)
	w("X-Stars", a.Stars)
	b.WriteByte('\n')
	b.WriteString(a.Body)
	if a.Body != "" && !strings.HasSuffix(a.Body, "\n") {
		b.WriteByte('\n')
	}
	return b.Bytes()
}

// EncodeHeader MIME-word encodes a header value when it is not plain
// ASCII.
func EncodeHeader(s string) string {
	return mime.QEncoding.Encode("utf-8", s)
}

// DecodeHeader undoes MIME-word encoding; a value that fails to decode is
// passed through as-is.
func DecodeHeader(s string) string {
	dec := mime.WordDecoder{}
	out, err := dec.DecodeHeader(s)
	if err != nil {
		return s
	}
	return out
}

// Overview is the summary record stored under ":N" and served by OVER.
// Subject and From are kept MIME-header-encoded in the store; the server
// decodes them on the way out.
type Overview struct {
	Subject    string
	From       string
	Date       string
	MessageID  string
	References string
	Stars      string
	Bytes      int
	Lines      int
}

// Overview derives the article's overview record from its encoded form.
func (a *Article) Overview() Overview {
	enc := a.Encode()
	return Overview{
		Subject:    EncodeHeader(a.Subject),
		From:       a.FromAddress(),
		Date:       a.Date.Format(dateLayout),
		MessageID:  a.MessageID(),
		References: a.References,
		Stars:      a.Stars,
		Bytes:      len(enc),
		Lines:      countLines(a.Body),
	}
}

func countLines(body string) int {
	if body == "" {
		return 0
	}
	n := strings.Count(body, "\n")
	if !strings.HasSuffix(body, "\n") {
		n++
	}
	return n
}

// Record renders the overview as the tab-separated index value.
func (o Overview) Record() string {
	return strings.Join([]string{
		o.Subject,
		o.From,
		o.Date,
		o.MessageID,
		o.References,
		"X-Stars: " + o.Stars,
		strconv.Itoa(o.Bytes),
		strconv.Itoa(o.Lines),
	}, "\t")
}

// ParseOverview parses a stored overview record.
func ParseOverview(s string) (Overview, error) {
	f := strings.Split(s, "\t")
	if len(f) != 8 {
		return Overview{}, fmt.Errorf("overview record has %d fields, want 8", len(f))
	}
	stars := strings.TrimPrefix(f[5], "X-Stars: ")
	b, err := strconv.Atoi(f[6])
	if err != nil {
		return Overview{}, fmt.Errorf("overview bytes field: %w", err)
	}
	l, err := strconv.Atoi(f[7])
	if err != nil {
		return Overview{}, fmt.Errorf("overview lines field: %w", err)
	}
	return Overview{
		Subject:    f[0],
		From:       f[1],
		Date:       f[2],
		MessageID:  f[3],
		References: f[4],
		Stars:      stars,
		Bytes:      b,
		Lines:      l,
	}, nil
}

// ReadOverview regenerates an overview record from an encoded article, as
// the puller stored it. The tests use it to check stored ":N" records
// against the article files.
func ReadOverview(r io.Reader) (Overview, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return Overview{}, err
	}
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return Overview{}, fmt.Errorf("parse article: %w", err)
	}
	body, err := io.ReadAll(msg.Body)
	if err != nil {
		return Overview{}, err
	}
	// header values are stored MIME-encoded in the file; keep them verbatim
	return Overview{
		Subject:    msg.Header.Get("Subject"),
		From:       msg.Header.Get("From"),
		Date:       msg.Header.Get("Date"),
		MessageID:  msg.Header.Get("Message-ID"),
		References: msg.Header.Get("References"),
		Stars:      msg.Header.Get("X-Stars"),
		Bytes:      len(raw),
		Lines:      countLines(string(body)),
	}, nil
}
