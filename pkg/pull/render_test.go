package pull

import (
	"strings"
	"testing"

	"golang.org/x/net/html"
)

func render(t *testing.T, fragment string) string {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(fragment))
	if err != nil {
		t.Fatalf("parse fixture: %v", err)
	}
	return RenderBody(doc)
}

func TestRenderWrapsAt72(t *testing.T) {
	long := strings.Repeat("слово ", 40)
	out := render(t, "<p>"+long+"</p>")
	for _, line := range strings.Split(strings.TrimRight(out, "\n"), "\n") {
		if n := len([]rune(line)); n > 72 {
			t.Errorf("line exceeds 72 columns (%d): %q", n, line)
		}
	}
	if !strings.Contains(out, "слово") {
		t.Fatalf("text lost: %q", out)
	}
}

func TestRenderParagraphsSeparatedByBlankLine(t *testing.T) {
	out := render(t, "<p>раз</p><p>два</p>")
	if out != "раз\n\nдва\n" {
		t.Errorf("got %q", out)
	}
}

func TestRenderBlockquoteDepth(t *testing.T) {
	out := render(t, "<blockquote>quoted<blockquote>deeper</blockquote></blockquote>")
	if !strings.Contains(out, "> quoted") {
		t.Errorf("first depth not prefixed: %q", out)
	}
	if !strings.Contains(out, ">> deeper") {
		t.Errorf("second depth not prefixed: %q", out)
	}
}

func TestRenderQuotePrefixExcludedFromWidth(t *testing.T) {
	long := strings.Repeat("word ", 30)
	out := render(t, "<blockquote>"+long+"</blockquote>")
	for _, line := range strings.Split(strings.TrimRight(out, "\n"), "\n") {
		body := strings.TrimPrefix(line, "> ")
		if n := len([]rune(body)); n > 72 {
			t.Errorf("quoted text exceeds 72 columns (%d): %q", n, line)
		}
	}
}

func TestRenderNestedLists(t *testing.T) {
	out := render(t, "<ul><li>one</li><li>two<ul><li>inner</li></ul></li></ul>")
	if !strings.Contains(out, "* one") || !strings.Contains(out, "* two") {
		t.Errorf("outer bullets missing: %q", out)
	}
	if !strings.Contains(out, "  - inner") {
		t.Errorf("nested bullet must alternate to '-': %q", out)
	}
}

func TestRenderCodeBlockVerbatim(t *testing.T) {
	out := render(t, "<p>см. код:</p><pre>for (;;) {\n        break;   \n}</pre><p>дальше</p>")
	if !strings.Contains(out, "\n\nfor (;;) {\n        break;   \n}\n\n") {
		t.Errorf("code block not preserved verbatim between blank lines: %q", out)
	}
}

func TestRenderAnchors(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{`<p><a href="http://example.com/x">http://example.com/x</a></p>`,
			"http://example.com/x\n"},
		{`<p><a href="http://example.com/very/long/path">http://example.com/very/lo...</a></p>`,
			"http://example.com/very/long/path\n"},
		{`<p><a href="http://example.com/">тут</a></p>`,
			"тут (http://example.com/)\n"},
	}
	for _, c := range cases {
		if out := render(t, c.in); out != c.want {
			t.Errorf("render(%q) = %q, want %q", c.in, out, c.want)
		}
	}
}

func TestRenderBrBreaksLine(t *testing.T) {
	out := render(t, "<p>раз<br>два</p>")
	if out != "раз\nдва\n" {
		t.Errorf("got %q", out)
	}
}

func TestRenderSkipsImagesAndScripts(t *testing.T) {
	out := render(t, `<p>текст<img src="/img/x.png"><script>alert(1)</script></p>`)
	if out != "текст\n" {
		t.Errorf("got %q", out)
	}
}
