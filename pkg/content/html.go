package content

import (
	"net/url"
	"strings"

	"market-sentiment/pkg/domain"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const maxLinks = 200

// page wraps a parsed document; doc is nil when the markup could not be parsed.
type page struct {
	doc *goquery.Document
}

func parseHTML(raw string) page {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return page{}
	}
	return page{doc: doc}
}

// fallbackTitle returns the <title> text, then og:title.
func (p page) fallbackTitle() string {
	if p.doc == nil {
		return ""
	}
	if title := normalizeText(p.doc.Find("title").First().Text()); title != "" {
		return title
	}
	if title, exists := p.doc.Find("meta[property='og:title']").Attr("content"); exists {
		return normalizeText(title)
	}
	return ""
}

// links collects absolute http(s) links, fragment-stripped and deduplicated in document
// order, capped at limit.
func (p page) links(base *url.URL, limit int) []domain.Link {
	if p.doc == nil {
		return nil
	}

	var links []domain.Link
	seen := make(map[string]bool)
	p.doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return true
		}
		if base != nil {
			ref = base.ResolveReference(ref)
		}
		if ref.Scheme != "http" && ref.Scheme != "https" || ref.Host == "" {
			return true
		}
		ref.Fragment = ""
		ref.RawFragment = ""

		abs := ref.String()
		if seen[abs] {
			return true
		}
		seen[abs] = true
		links = append(links, domain.Link{URL: abs, SameDomain: sameDomain(base, ref)})
		return len(links) < limit
	})
	return links
}

func sameDomain(a, b *url.URL) bool {
	if a == nil || b == nil {
		return false
	}
	return strings.EqualFold(bareHost(a), bareHost(b))
}

func bareHost(u *url.URL) string {
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// visibleText joins every text node under sel with spaces so adjacent block elements do
// not run together.
func visibleText(sel *goquery.Selection) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return b.String()
}

// articleMarkers are independent hints that a page is an article.
var articleMarkers = []string{
	"<article",
	"schema.org/article",
	`"@type":"article"`,
	`"@type": "article"`,
	`property="og:type" content="article"`,
	`property='og:type' content='article'`,
}

// IsArticleLike reports whether at least two distinct article markers appear in raw.
func IsArticleLike(raw string) bool {
	lower := strings.ToLower(raw)
	hits := 0
	for _, m := range articleMarkers {
		if strings.Contains(lower, m) {
			hits++
		}
	}
	return hits >= 2
}
