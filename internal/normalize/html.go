package normalize

import (
	"regexp"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"golang.org/x/net/html"
)

// htmlTagPattern detects whether a string carries HTML markup.
var htmlTagPattern = regexp.MustCompile(`<(p|br|div|span|b|i|strong|em|a|ul|ol|li|h[1-6]|blockquote)[\s>/]`)

var htmlTagRegex = regexp.MustCompile(`<[^>]*>`)

func containsHTML(s string) bool {
	return htmlTagPattern.MatchString(strings.ToLower(s))
}

// Synopsis converts an HTML synopsis to Markdown.
// Plain text is returned trimmed; conversion failures return the input.
func Synopsis(s string) string {
	if s == "" || !containsHTML(s) {
		return strings.TrimSpace(s)
	}

	markdown, err := htmltomarkdown.ConvertString(s)
	if err != nil {
		return s
	}
	return strings.TrimSpace(markdown)
}

// StripHTML removes all markup and returns collapsed plain text.
func StripHTML(s string) string {
	if s == "" {
		return ""
	}

	doc, err := html.Parse(strings.NewReader(s))
	if err != nil {
		s = htmlTagRegex.ReplaceAllString(s, " ")
		return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
	}

	var buf strings.Builder
	extractText(doc, &buf)
	return strings.TrimSpace(whitespace.ReplaceAllString(buf.String(), " "))
}

func extractText(n *html.Node, buf *strings.Builder) {
	if n.Type == html.TextNode {
		buf.WriteString(n.Data)
	}
	if n.Type == html.ElementNode {
		switch n.Data {
		case "p", "div", "br", "li", "h1", "h2", "h3", "h4", "h5", "h6":
			buf.WriteByte(' ')
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		extractText(c, buf)
	}
	if n.Type == html.ElementNode {
		switch n.Data {
		case "p", "div", "li", "h1", "h2", "h3", "h4", "h5", "h6":
			buf.WriteByte(' ')
		}
	}
}
