package post

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dmaluka/lornews/pkg/config"
	"github.com/dmaluka/lornews/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.InitWithLevel("error")
	os.Exit(m.Run())
}

func setupRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "groups"),
		[]byte("lor.forum.talks 42 Talks\n"), 0o600); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	userDir := filepath.Join(root, "users", "maxcom")
	if err := os.MkdirAll(userDir, 0o700); err != nil {
		t.Fatalf("mkdir user: %v", err)
	}
	if err := os.WriteFile(filepath.Join(userDir, "passwd"), []byte("secret\n"), 0o600); err != nil {
		t.Fatalf("write passwd: %v", err)
	}
	return root
}

type capture struct {
	path string
	form url.Values
}

func forumServer(t *testing.T, got *capture, errorPage string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/login.jsp", func(w http.ResponseWriter, r *http.Request) {
		if r.FormValue("nick") != "maxcom" || r.FormValue("passwd") != "secret" {
			w.Write([]byte("<html><title>Неверный пароль</title></html>"))
			return
		}
		http.SetCookie(w, &http.Cookie{
			Name: "JSESSIONID", Value: "sess-1", Expires: time.Now().Add(time.Hour),
		})
		w.Write([]byte("<html></html>"))
	})
	submit := func(w http.ResponseWriter, r *http.Request) {
		r.ParseMultipartForm(1 << 20)
		got.path = r.URL.Path
		got.form = r.Form
		if errorPage != "" {
			w.Write([]byte(errorPage))
			return
		}
		w.Write([]byte("<html><title>ok</title></html>"))
	}
	mux.HandleFunc("/add.jsp", submit)
	mux.HandleFunc("/add_comment.jsp", submit)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func poster(t *testing.T, root, baseURL string) *Poster {
	t.Helper()
	cat, err := config.LoadCatalog(root)
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	return &Poster{Root: root, Catalog: cat, BaseURL: baseURL, Timeout: 20 * time.Second}
}

const commentArticle = `From: maxcom <maxcom@linux.org.ru>
Newsgroups: lor.forum.talks
Subject: Re: Про свободное ПО
References: <lor12345@linux.org.ru>

.Hello from the reader.
`

func TestSubmitComment(t *testing.T) {
	root := setupRoot(t)
	var got capture
	ts := forumServer(t, &got, "")
	p := poster(t, root, ts.URL)

	if err := p.Submit(strings.NewReader(commentArticle)); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if got.path != "/add_comment.jsp" {
		t.Fatalf("submitted to %q", got.path)
	}
	checks := map[string]string{
		"mode":    "ntobrq",
		"topic":   "12345",
		"replyto": "",
		"session": "sess-1",
		"title":   "Re: Про свободное ПО",
		"autourl": "1",
	}
	for k, want := range checks {
		if got.form.Get(k) != want {
			t.Errorf("form[%s] = %q, want %q", k, got.form.Get(k), want)
		}
	}
	if !strings.Contains(got.form.Get("msg"), ".Hello from the reader.") {
		t.Errorf("body lost: %q", got.form.Get("msg"))
	}
}

func TestSubmitReplyToComment(t *testing.T) {
	root := setupRoot(t)
	var got capture
	ts := forumServer(t, &got, "")
	p := poster(t, root, ts.URL)

	art := strings.Replace(commentArticle,
		"References: <lor12345@linux.org.ru>",
		"References: <lor12345@linux.org.ru> <lor12345.678@linux.org.ru>", 1)
	if err := p.Submit(strings.NewReader(art)); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if got.form.Get("topic") != "12345" || got.form.Get("replyto") != "678" {
		t.Errorf("topic/replyto = %q/%q", got.form.Get("topic"), got.form.Get("replyto"))
	}
}

const topicArticle = `From: maxcom <maxcom@linux.org.ru>
Newsgroups: lor.forum.talks
Subject: Новая тема
Keywords: linux, gnu
X-Link-URL: http://example.com/
X-Link-Text: подробности

Текст темы.
`

func TestSubmitNewTopic(t *testing.T) {
	root := setupRoot(t)
	var got capture
	ts := forumServer(t, &got, "")
	p := poster(t, root, ts.URL)

	if err := p.Submit(strings.NewReader(topicArticle)); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if got.path != "/add.jsp" {
		t.Fatalf("submitted to %q", got.path)
	}
	checks := map[string]string{
		"mode":     "tex",
		"group":    "42",
		"topic":    "",
		"tags":     "linux, gnu",
		"url":      "http://example.com/",
		"linktext": "подробности",
	}
	for k, want := range checks {
		if got.form.Get(k) != want {
			t.Errorf("form[%s] = %q, want %q", k, got.form.Get(k), want)
		}
	}
}

func TestSubmitSurfacesFormError(t *testing.T) {
	root := setupRoot(t)
	var got capture
	ts := forumServer(t, &got, `<html><div class="error">Слишком быстро постите</div></html>`)
	p := poster(t, root, ts.URL)

	err := p.Submit(strings.NewReader(commentArticle))
	if err == nil || err.Error() != "Слишком быстро постите" {
		t.Fatalf("error = %v", err)
	}
}

func TestSubmitValidation(t *testing.T) {
	root := setupRoot(t)
	p := poster(t, root, "http://unused.invalid")

	cases := []struct {
		name string
		art  string
	}{
		{"anonymous", strings.Replace(commentArticle,
			"From: maxcom <maxcom@linux.org.ru>",
			"From: anonymous <anonymous@linux.org.ru>", 1)},
		{"two groups", strings.Replace(commentArticle,
			"Newsgroups: lor.forum.talks",
			"Newsgroups: lor.forum.talks,lor.linux.general", 1)},
		{"unknown group", strings.Replace(commentArticle,
			"Newsgroups: lor.forum.talks",
			"Newsgroups: lor.unknown", 1)},
		{"no subject", strings.Replace(commentArticle,
			"Subject: Re: Про свободное ПО", "Subject: ", 1)},
		{"foreign reference", strings.Replace(commentArticle,
			"References: <lor12345@linux.org.ru>",
			"References: <xyz@example.com>", 1)},
	}
	for _, c := range cases {
		if err := p.Submit(strings.NewReader(c.art)); err == nil {
			t.Errorf("%s: expected validation error", c.name)
		}
	}
}
