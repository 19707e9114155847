package pull

import (
	"errors"
	"strings"
	"testing"
)

const listFixture = `<html><body><table>
<tr><th>Тема</th><th>Последнее сообщение</th></tr>
<tr>
  <td class="subject"><a href="/view-message.jsp?msgid=12345">Про свободное ПО</a>
      <a href="/view-message.jsp?msgid=12345&amp;page=1">2</a></td>
  <td class="dateinterval">3 часа назад</td>
</tr>
<tr>
  <td class="subject"><img src="/img/clip.gif"><a href="/view-message.jsp?msgid=222">Старая тема</a></td>
  <td class="dateinterval">10 дней назад</td>
</tr>
</table></body></html>`

func TestParseListPage(t *testing.T) {
	entries, err := ParseListPage([]byte(listFixture))
	if err != nil {
		t.Fatalf("ParseListPage: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	e := entries[0]
	if e.Topic != 12345 || e.Pages != 2 || e.Clipped || e.Age != "3 часа назад" {
		t.Errorf("first entry = %+v", e)
	}
	e = entries[1]
	if e.Topic != 222 || e.Pages != 1 || !e.Clipped {
		t.Errorf("second entry = %+v", e)
	}
}

const threadFixture = `<html><body>
<h1>Про свободное ПО</h1>
<div class="pages"><a href="/view-message.jsp?msgid=12345&amp;page=1">2</a></div>
<div class="msg" id="topic-12345">
  <div class="msgbody"><p>Тело топика.</p>
    <p>&gt;&gt;&gt; <a href="http://example.com/">подробности</a></p></div>
  <p class="tags"><a href="/tag/linux">linux</a> <a href="/tag/gnu">gnu</a></p>
  <div class="sign"><a href="/people/maxcom/profile">maxcom</a>
    <img class="stars" alt="*****">
    <span class="date">01.03.2024 12:30</span></div>
</div>
<div class="msg" id="comment-678">
  <div class="title">Re: Про свободное ПО <a href="/view-message.jsp?msgid=12345&amp;cid=555">Ответ на</a></div>
  <div class="msgbody"><p>Не согласен.</p></div>
  <div class="sign"><s><a href="/people/troll/profile">troll</a></s>
    <span class="date">01.03.2024 13:00</span></div>
</div>
</body></html>`

func TestParseThreadPage(t *testing.T) {
	tp, err := ParseThreadPage([]byte(threadFixture))
	if err != nil {
		t.Fatalf("ParseThreadPage: %v", err)
	}
	if tp.Subject != "Про свободное ПО" {
		t.Errorf("subject = %q", tp.Subject)
	}
	if tp.Pages != 2 {
		t.Errorf("pages = %d, want 2", tp.Pages)
	}
	if len(tp.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(tp.Messages))
	}

	topic := tp.Messages[0]
	if topic.ID != 0 || topic.Author != "maxcom" || topic.Stars != "*****" {
		t.Errorf("topic = %+v", topic)
	}
	if topic.Tags != "linux, gnu" {
		t.Errorf("topic tags = %q", topic.Tags)
	}
	if !strings.Contains(topic.Body, "Тело топика.") {
		t.Errorf("topic body = %q", topic.Body)
	}
	if !strings.Contains(topic.Body, ">>> подробности (http://example.com/)") {
		t.Errorf("link line not rendered: %q", topic.Body)
	}
	if topic.Date.Day() != 1 || topic.Date.Hour() != 12 || topic.Date.Minute() != 30 {
		t.Errorf("topic date = %v", topic.Date)
	}

	c := tp.Messages[1]
	if c.ID != 678 || c.ReplyTo != 555 {
		t.Errorf("comment ids = %+v", c)
	}
	if c.Author != "troll" || !c.Banned {
		t.Errorf("comment author = %q banned %v", c.Author, c.Banned)
	}
	if c.Subject != "Re: Про свободное ПО" {
		t.Errorf("comment subject = %q", c.Subject)
	}
}

func TestParseThreadPageLayoutDrift(t *testing.T) {
	cases := []string{
		`<html><body><p>нет заголовка</p></body></html>`,
		`<html><body><h1>t</h1><div class="msg" id="comment-1"><div class="sign"><a href="/people/x/profile">x</a><span class="date">01.03.2024 13:00</span></div></div></body></html>`,
		`<html><body><h1>t</h1><div class="msg" id="comment-1"><div class="msgbody">b</div></div></body></html>`,
	}
	for _, body := range cases {
		if _, err := ParseThreadPage([]byte(body)); !errors.Is(err, ErrLayout) {
			t.Errorf("expected layout error, got %v for %q", err, body)
		}
	}
}

func TestParseAge(t *testing.T) {
	cases := []struct {
		in   string
		days float64
	}{
		{"3 часа назад", 0.125},
		{"30 минут назад", 30.0 / 1440},
		{"10 дней назад", 10},
		{"вчера", 1},
		{"позавчера", 2},
		{"сегодня", 0},
		{"2 недели назад", 14},
	}
	for _, c := range cases {
		got, err := ParseAge(c.in)
		if err != nil {
			t.Fatalf("ParseAge(%q): %v", c.in, err)
		}
		if got < c.days-0.001 || got > c.days+0.001 {
			t.Errorf("ParseAge(%q) = %v, want %v", c.in, got, c.days)
		}
	}
	if _, err := ParseAge("whenever"); err == nil {
		t.Errorf("expected error for unparseable age")
	}
}
