package citations

import (
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Article is a published page that answers can cite.
type Article struct {
	Title         string `json:"title"`
	URL           string `json:"url"`
	Domain        string `json:"domain"`
	PublishedDate string `json:"publishedDate,omitempty"`
	Excerpt       string `json:"excerpt,omitempty"`
	Thumbnail     string `json:"thumbnail,omitempty"`
	Body          string `json:"body"`
}

var spaces = regexp.MustCompile(`\s+`)

// ParseArticle extracts an article from an HTML page served at pageURL.
// OpenGraph tags win over the document's own title and first paragraph.
func ParseArticle(pageURL string, r io.Reader) (Article, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return Article{}, fmt.Errorf("failed to parse html: %w", err)
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return Article{}, fmt.Errorf("failed to parse url: %w", err)
	}

	a := Article{URL: pageURL, Domain: strings.TrimPrefix(base.Hostname(), "www.")}
	if canonical := meta(doc, "og:url"); canonical != "" {
		a.URL = resolve(base, canonical)
	}
	a.Title = firstNonEmpty(meta(doc, "og:title"), text(doc.Find("title")), text(doc.Find("h1")))
	a.Excerpt = firstNonEmpty(meta(doc, "og:description"), meta(doc, "description"))
	a.PublishedDate = meta(doc, "article:published_time")
	if img := meta(doc, "og:image"); img != "" {
		a.Thumbnail = resolve(base, img)
	}

	body := doc.Find("article p")
	if body.Length() == 0 {
		body = doc.Find("p")
	}
	var paragraphs []string
	body.Each(func(_ int, s *goquery.Selection) {
		if p := text(s); p != "" {
			paragraphs = append(paragraphs, p)
		}
	})
	a.Body = strings.Join(paragraphs, "\n\n")
	if a.Excerpt == "" && len(paragraphs) > 0 {
		a.Excerpt = paragraphs[0]
	}

	if a.Title == "" && a.Body == "" {
		return Article{}, fmt.Errorf("no article content found at %s", pageURL)
	}
	return a, nil
}

func meta(doc *goquery.Document, name string) string {
	sel := doc.Find(fmt.Sprintf(`meta[property=%q], meta[name=%q]`, name, name)).First()
	v, _ := sel.Attr("content")
	return strings.TrimSpace(v)
}

func text(s *goquery.Selection) string {
	return strings.TrimSpace(spaces.ReplaceAllString(s.First().Text(), " "))
}

func resolve(base *url.URL, ref string) string {
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
