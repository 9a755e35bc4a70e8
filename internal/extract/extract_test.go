package extract

import (
	"strings"
	"testing"
)

func TestCleanText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"entities", "Tom &amp; Jerry &quot;live&quot;", `Tom & Jerry "live"`},
		{"whitespace", "a\n\n  b\t c", "a b c"},
		{"zero width", "a\u200Bb", "ab"},
		{"byte order mark", "\uFEFFtitle", "title"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanText(tt.in); got != tt.want {
				t.Errorf("CleanText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestFromHTMLPlainText(t *testing.T) {
	in := "Just a plain description without any markup in it."
	if got := FromHTML(in, ""); got != in {
		t.Errorf("plain text changed: %q", got)
	}
}

func TestFromHTMLTooShort(t *testing.T) {
	if got := FromHTML("tiny", ""); got != "" {
		t.Errorf("short input should yield empty, got %q", got)
	}
}

func TestFromHTMLParagraphs(t *testing.T) {
	html := `<html><body><article>
		<p>First paragraph with enough words to pass the length filter.</p>
		<p>Second paragraph also long enough to be kept by the scraper.</p>
		<p>Third paragraph rounding out the article body for the test.</p>
	</article><footer><p>short</p></footer></body></html>`

	got := FromHTML(html, "https://example.com/story")
	if !strings.Contains(got, "First paragraph") || !strings.Contains(got, "Third paragraph") {
		t.Errorf("paragraph content lost:\n%q", got)
	}
	if strings.Contains(got, "<p>") {
		t.Errorf("markup leaked into output:\n%q", got)
	}
}

func TestFromHTMLStripFallback(t *testing.T) {
	html := `<div><span>Fragment markup</span> with <b>no paragraph structure</b> at all here.</div>`
	got := FromHTML(html, "")
	if !strings.Contains(got, "Fragment markup") || !strings.Contains(got, "no paragraph structure") {
		t.Errorf("tag-strip fallback lost content:\n%q", got)
	}
}
