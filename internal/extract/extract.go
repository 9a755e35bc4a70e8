// Package extract turns HTML into plain article text through an ordered list
// of strategies, tried until one produces non-empty output.
package extract

import (
	"html"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
)

var (
	tagRe       = regexp.MustCompile(`<[^>]+>`)
	spaceRe     = regexp.MustCompile(`\s+`)
	zeroWidthRe = regexp.MustCompile("[\u200B-\u200F\uFEFF]")
)

// Paragraph selectors for the structural fallback, most specific first.
var paragraphSelectors = []string{
	"article p",
	".article-body p",
	".article-content p",
	".post-content p",
	".entry-content p",
	".content p",
	"main p",
	"p",
}

type strategy func(htmlStr string, pageURL *url.URL) string

// FromHTML extracts readable text from an HTML document or fragment.
// Returns "" when nothing useful could be recovered.
func FromHTML(htmlStr, pageURL string) string {
	if len(htmlStr) < 30 {
		return ""
	}

	if !strings.Contains(htmlStr, "<") || !strings.Contains(htmlStr, ">") {
		// Already plain text.
		return CleanText(htmlStr)
	}

	var u *url.URL
	if pageURL != "" {
		u, _ = url.Parse(pageURL)
	}

	for _, s := range []strategy{readableText, paragraphText, strippedText} {
		if txt := s(htmlStr, u); txt != "" {
			return txt
		}
	}
	return ""
}

// readableText runs the readability extractor over the full document.
func readableText(htmlStr string, pageURL *url.URL) string {
	article, err := readability.FromReader(strings.NewReader(htmlStr), pageURL)
	if err != nil {
		return ""
	}
	return CleanText(article.TextContent)
}

// paragraphText scrapes paragraphs using common article selectors.
func paragraphText(htmlStr string, _ *url.URL) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlStr))
	if err != nil {
		return ""
	}

	for _, selector := range paragraphSelectors {
		var paragraphs []string
		doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			text := strings.TrimSpace(s.Text())
			if len(text) > 20 {
				paragraphs = append(paragraphs, text)
			}
		})
		if len(paragraphs) >= 3 || (selector == "p" && len(paragraphs) > 0) {
			return CleanText(strings.Join(paragraphs, "\n\n"))
		}
	}
	return ""
}

// strippedText is the last resort: drop tags, unescape entities.
func strippedText(htmlStr string, _ *url.URL) string {
	return CleanText(tagRe.ReplaceAllString(htmlStr, " "))
}

// CleanText unescapes HTML entities, removes zero-width characters and
// collapses whitespace.
func CleanText(s string) string {
	if s == "" {
		return ""
	}
	s = html.UnescapeString(s)
	s = zeroWidthRe.ReplaceAllString(s, "")
	s = spaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
