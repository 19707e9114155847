package pull

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmaluka/lornews/pkg/article"
	"github.com/dmaluka/lornews/pkg/config"
	"github.com/dmaluka/lornews/pkg/logger"
	"github.com/dmaluka/lornews/pkg/lor"
	"github.com/dmaluka/lornews/pkg/pattern"
	"github.com/dmaluka/lornews/pkg/store"
)

func TestMain(m *testing.M) {
	logger.InitWithLevel("error")
	os.Exit(m.Run())
}

const pullListFixture = `<html><body><table>
<tr>
  <td><a href="/view-message.jsp?msgid=12345">Про свободное ПО</a>
      <a href="/view-message.jsp?msgid=12345&amp;page=1">2</a></td>
  <td class="dateinterval">3 часа назад</td>
</tr>
</table></body></html>`

const threadPage0 = `<html><body>
<h1>Про свободное ПО</h1>
<div class="pages"><a href="/view-message.jsp?msgid=12345&amp;page=1">2</a></div>
<div class="msg" id="topic-12345">
  <div class="msgbody"><p>Тело топика.</p></div>
  <div class="sign"><a href="/people/maxcom/profile">maxcom</a>
    <img class="stars" alt="*****">
    <span class="date">01.03.2024 12:30</span></div>
</div>
<div class="msg" id="comment-678">
  <div class="msgbody"><p>Первый коммент.</p></div>
  <div class="sign"><a href="/people/anna/profile">anna</a>
    <span class="date">01.03.2024 13:00</span></div>
</div>
</body></html>`

const threadPage1 = `<html><body>
<h1>Про свободное ПО</h1>
<div class="pages"><a href="/view-message.jsp?msgid=12345&amp;page=1">2</a></div>
<div class="msg" id="comment-679">
  <div class="title">Re: Про свободное ПО <a href="/view-message.jsp?msgid=12345&amp;cid=678">Ответ на</a></div>
  <div class="msgbody"><p>Ответ на первый.</p></div>
  <div class="sign"><a href="/people/boris/profile">boris</a>
    <span class="date">01.03.2024 14:00</span></div>
</div>
</body></html>`

func forumServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/group-lastmod.jsp", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("offset") != "0" {
			w.Write([]byte("<html><body><table></table></body></html>"))
			return
		}
		w.Write([]byte(pullListFixture))
	})
	mux.HandleFunc("/view-message.jsp", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("page") {
		case "1":
			w.Write([]byte(threadPage1))
		default:
			w.Write([]byte(threadPage0))
		}
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func testPuller(t *testing.T, root, baseURL string) *Puller {
	t.Helper()
	if err := os.WriteFile(filepath.Join(root, "groups"),
		[]byte("lor.forum.talks 42 Talks\n"), 0o600); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	cat, err := config.LoadCatalog(root)
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	client, err := lor.New(baseURL, 5*time.Second, nil)
	if err != nil {
		t.Fatalf("lor.New: %v", err)
	}
	return &Puller{Root: root, Client: client, Catalog: cat, Days: 1, ExpireDays: -1}
}

func TestPullSingleTopic(t *testing.T) {
	root := t.TempDir()
	ts := forumServer(t)
	p := testPuller(t, root, ts.URL)

	if err := p.Run(pattern.All); err != nil {
		t.Fatalf("Run: %v", err)
	}

	ix, err := store.Open(root, "lor.forum.talks", store.ReadOnly)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ix.Close()

	if ix.Count() != 3 || ix.Min() != 1 || ix.Max() != 3 {
		t.Fatalf("counters = (%d, %d, %d), want (3, 1, 3)", ix.Count(), ix.Min(), ix.Max())
	}

	// numbering follows the forum's chronological order
	wantPaths := []struct {
		n       int64
		topic   int64
		comment int64
	}{{1, 12345, 0}, {2, 12345, 678}, {3, 12345, 679}}
	for _, w := range wantPaths {
		topic, comment, ok := ix.Number(w.n)
		if !ok || topic != w.topic || comment != w.comment {
			t.Errorf("Number(%d) = (%d, %d, %v), want (%d, %d)", w.n, topic, comment, ok, w.topic, w.comment)
		}
	}

	// first-level comment references the topic
	ov, ok := ix.Overview(2)
	if !ok {
		t.Fatalf("Overview(2) missing")
	}
	if ov.References != "<lor12345@linux.org.ru>" {
		t.Errorf("comment references = %q", ov.References)
	}
	if ov.MessageID != "<lor12345.678@linux.org.ru>" {
		t.Errorf("comment message-id = %q", ov.MessageID)
	}

	// a reply carries the parent chain
	ov3, ok := ix.Overview(3)
	if !ok {
		t.Fatalf("Overview(3) missing")
	}
	if ov3.References != "<lor12345@linux.org.ru> <lor12345.678@linux.org.ru>" {
		t.Errorf("reply references = %q", ov3.References)
	}

	if got := ix.TopicCount(12345); got != 3 {
		t.Errorf("TopicCount = %d, want 3", got)
	}
}

func TestPullIsIdempotent(t *testing.T) {
	root := t.TempDir()
	ts := forumServer(t)
	p := testPuller(t, root, ts.URL)

	for i := 0; i < 2; i++ {
		if err := p.Run(pattern.All); err != nil {
			t.Fatalf("Run %d: %v", i, err)
		}
	}
	ix, err := store.Open(root, "lor.forum.talks", store.ReadOnly)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ix.Close()
	if ix.Count() != 3 || ix.Max() != 3 {
		t.Fatalf("second pull duplicated articles: counters = (%d, %d, %d)",
			ix.Count(), ix.Min(), ix.Max())
	}
}

func TestPullSkipsGroupsOutsidePattern(t *testing.T) {
	root := t.TempDir()
	ts := forumServer(t)
	p := testPuller(t, root, ts.URL)

	pat, err := pattern.Compile("lor.linux.*")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if err := p.Run(pat); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, err := store.Open(root, "lor.forum.talks", store.ReadOnly); err == nil {
		t.Fatalf("group outside pattern was pulled")
	}
}

func TestPullWindowTerminatesWalk(t *testing.T) {
	root := t.TempDir()
	mux := http.NewServeMux()
	mux.HandleFunc("/group-lastmod.jsp", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><table>
<tr><td><a href="/view-message.jsp?msgid=999">Старое</a></td>
<td class="dateinterval">30 дней назад</td></tr>
</table></body></html>`))
	})
	threads := 0
	mux.HandleFunc("/view-message.jsp", func(w http.ResponseWriter, r *http.Request) {
		threads++
		w.Write([]byte(threadPage0))
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	p := testPuller(t, root, ts.URL)
	if err := p.Run(pattern.All); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if threads != 0 {
		t.Errorf("thread beyond the pull window was fetched")
	}
}

func TestPromoteTrailingLink(t *testing.T) {
	a := &article.Article{Body: "Текст.\n\n>>> подробности (http://example.com/)\n"}
	promoteTrailingLink(a)
	if a.LinkURL != "http://example.com/" || a.LinkText != "подробности" {
		t.Errorf("link not promoted: %+v", a)
	}
	if a.Body != "Текст.\n" {
		t.Errorf("body after promotion = %q", a.Body)
	}

	vote := &article.Article{Body: "Опрос.\n\n>>> Голосовать (http://example.com/vote)\n"}
	promoteTrailingLink(vote)
	if vote.VoteURL != "http://example.com/vote" || vote.LinkURL != "" {
		t.Errorf("vote link not promoted: %+v", vote)
	}

	plain := &article.Article{Body: "Просто текст.\n"}
	promoteTrailingLink(plain)
	if plain.Body != "Просто текст.\n" || plain.LinkURL != "" {
		t.Errorf("plain body changed: %+v", plain)
	}
}
