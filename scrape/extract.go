package scrape

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// invisible lists elements whose text is never shown to a reader.
const invisible = "script, style, noscript, template"

// textSeparator joins the text nodes of a page.
const textSeparator = " \n"

// ExtractText parses an HTML page and returns its visible text, one trimmed
// text node per line, normalized.
func ExtractText(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc.Find(invisible).Remove()

	var parts []string
	for _, n := range doc.Nodes {
		parts = collectText(n, parts)
	}
	return Normalize(strings.Join(parts, textSeparator)), nil
}

func collectText(n *html.Node, parts []string) []string {
	if n.Type == html.TextNode {
		if s := strings.TrimSpace(n.Data); s != "" {
			parts = append(parts, s)
		}
		return parts
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		parts = collectText(c, parts)
	}
	return parts
}
