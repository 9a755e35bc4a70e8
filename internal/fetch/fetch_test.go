package fetch

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestOrigin(t *testing.T) {
	tests := []struct {
		url, want string
	}{
		{"https://www.example.com/path?q=1", "https://www.example.com"},
		{"http://example.com", "http://example.com"},
		{"not-a-url", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := origin(tt.url); got != tt.want {
			t.Errorf("origin(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestAmpVariants(t *testing.T) {
	got := ampVariants("https://example.com/news/story")
	want := []string{
		"https://example.com/news/story/amp/",
		"https://example.com/news/story?amp=1",
		"https://example.com/news/story?outputType=amp",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ampVariants mismatch (-want +got):\n%s", diff)
	}
}

func TestPrimaryHeadersReferer(t *testing.T) {
	h := primaryHeaders("https://example.com/a/b")
	if h["Referer"] != "https://example.com" {
		t.Errorf("Referer = %q, want page origin", h["Referer"])
	}

	h = primaryHeaders("::bad::")
	if h["Referer"] == "" {
		t.Error("bad URL should still get a generic referer")
	}
}
