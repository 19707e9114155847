package article

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestMessageIDRoundTrip(t *testing.T) {
	cases := []struct {
		id      string
		topic   int64
		comment int64
	}{
		{"<lor12345@linux.org.ru>", 12345, 0},
		{"<lor12345.678@linux.org.ru>", 12345, 678},
	}
	for _, c := range cases {
		topic, comment, err := ParseMessageID(c.id)
		if err != nil {
			t.Fatalf("ParseMessageID(%q): %v", c.id, err)
		}
		if topic != c.topic || comment != c.comment {
			t.Errorf("ParseMessageID(%q) = (%d, %d), want (%d, %d)",
				c.id, topic, comment, c.topic, c.comment)
		}
		if got := MessageID(c.topic, c.comment); got != c.id {
			t.Errorf("MessageID(%d, %d) = %q, want %q", c.topic, c.comment, got, c.id)
		}
	}
}

func TestParseMessageIDRejectsGarbage(t *testing.T) {
	bad := []string{
		"",
		"<lor@linux.org.ru>",
		"<lorx@linux.org.ru>",
		"<lor12.@linux.org.ru>",
		"<lor12.34@example.com>",
		"lor12@linux.org.ru",
		"<12345@linux.org.ru>",
	}
	for _, id := range bad {
		if _, _, err := ParseMessageID(id); err == nil {
			t.Errorf("ParseMessageID(%q): expected error", id)
		}
	}
}

func testArticle() *Article {
	date := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	return &Article{
		Newsgroup:  "lor.forum.talks",
		Subject:    "Про свободное ПО",
		From:       "maxcom",
		Date:       date,
		Topic:      12345,
		Comment:    678,
		References: "<lor12345@linux.org.ru>",
		Stars:      "*****",
		Injection:  date,
		Body:       "Привет.\n\nВторой абзац.\n",
	}
}

func TestEncodeHeaders(t *testing.T) {
	enc := testArticle().Encode()
	head, _, found := bytes.Cut(enc, []byte("\n\n"))
	if !found {
		t.Fatalf("no header/body separator in encoded article")
	}
	for _, want := range []string{
		"Path: linux.org.ru!not-for-mail",
		"Newsgroups: lor.forum.talks",
		"Message-ID: <lor12345.678@linux.org.ru>",
		"References: <lor12345@linux.org.ru>",
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=utf-8",
		"Content-Transfer-Encoding: 8bit",
		"X-Stars: *****",
	} {
		if !bytes.Contains(head, []byte(want)) {
			t.Errorf("encoded headers missing %q", want)
		}
	}
	if bytes.Contains(head, []byte("Про свободное ПО")) {
		t.Errorf("subject not MIME-encoded in headers")
	}
	if !bytes.Contains(enc, []byte("Привет.")) {
		t.Errorf("body must pass through as raw UTF-8")
	}
}

func TestOverviewRecordRoundTrip(t *testing.T) {
	ov := testArticle().Overview()
	rec := ov.Record()
	if strings.Count(rec, "\t") != 7 {
		t.Fatalf("overview record has %d tabs, want 7", strings.Count(rec, "\t"))
	}
	back, err := ParseOverview(rec)
	if err != nil {
		t.Fatalf("ParseOverview: %v", err)
	}
	if back != ov {
		t.Errorf("overview round trip mismatch:\n got %+v\nwant %+v", back, ov)
	}
}

func TestOverviewMatchesEncodedArticle(t *testing.T) {
	a := testArticle()
	ov := a.Overview()
	re, err := ReadOverview(bytes.NewReader(a.Encode()))
	if err != nil {
		t.Fatalf("ReadOverview: %v", err)
	}
	if re.Record() != ov.Record() {
		t.Errorf("overview regenerated from file differs:\n got %q\nwant %q",
			re.Record(), ov.Record())
	}
}

func TestOverviewLineCount(t *testing.T) {
	a := testArticle()
	a.Body = "one\ntwo\nthree"
	if got := a.Overview().Lines; got != 3 {
		t.Errorf("Lines = %d, want 3", got)
	}
	a.Body = ""
	if got := a.Overview().Lines; got != 0 {
		t.Errorf("Lines = %d, want 0 for empty body", got)
	}
}
