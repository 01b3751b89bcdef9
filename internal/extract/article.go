package extract

import (
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/TobiSchelling/feedwatch/internal/datenorm"
)

// Extraction methods recorded in item provenance.
const (
	MethodSelector    = "selector-based"
	MethodReadability = "readability"
)

// Quality issue names shared by all extraction paths.
const (
	IssueShortTitle        = "short_title"
	IssueShortContent      = "short_content"
	IssueNoImage           = "no_image"
	IssueIncompleteContent = "incomplete_content"
)

const (
	untitled         = "Untitled"
	minArticleText   = 50
	maxFallbackParas = 15
)

var (
	titleSelectors   = []string{"h1", ".headline", ".article-title", `[itemprop="headline"]`}
	contentSelectors = []string{"article", ".article-body", ".post-content", `[itemprop="articleBody"]`}
	mainSelectors    = []string{"main", "#content", ".content", "body"}
	dateSelectors    = []string{`[itemprop="datePublished"]`, "time", ".date", ".published"}
	imageSelectors   = []string{".featured-image img", ".hero-image img", `[itemprop="image"]`, ".article-image img"}
	authorSelectors  = []string{`[rel="author"]`, `[itemprop="author"]`, ".author", ".byline", `meta[name="author"]`}
)

// Article is the canonical representation of one extracted page.
type Article struct {
	Title          string
	Link           string
	Description    string
	Content        string // HTML fragment
	Text           string // plain-text rendering of Content
	Author         string
	ImageURL       string
	PublishedAt    time.Time
	WordCount      int
	HasFullContent bool
	QualityIssues  []string
	Method         string
	ContentLength  int
}

// Extractor turns a single article page into an Article. ok is false when
// no content could be found; that is not an error and callers skip the page.
type Extractor interface {
	Extract(doc *goquery.Document, pageURL string, hints Hints) (Article, bool)
}

// SelectorExtractor extracts articles with hint selectors first and a fixed
// list of common selectors after that.
type SelectorExtractor struct {
	Dates datenorm.Normalizer
}

// NewSelectorExtractor returns an extractor using the wall clock.
func NewSelectorExtractor() *SelectorExtractor {
	return &SelectorExtractor{}
}

// Extract implements Extractor.
func (e *SelectorExtractor) Extract(doc *goquery.Document, pageURL string, hints Hints) (Article, bool) {
	content, text, ok := ExtractContent(doc, hints)
	if !ok {
		return Article{}, false
	}

	title := extractTitle(doc, hints)
	a := Article{
		Title:       title,
		Link:        pageURL,
		Content:     content,
		Text:        text,
		Author:      extractAuthor(doc),
		ImageURL:    extractImage(doc, content, pageURL),
		PublishedAt: e.extractDate(doc, hints),
		Method:      MethodSelector,
	}
	finish(&a)

	if a.ContentLength < minArticleText {
		a.QualityIssues = append(a.QualityIssues, IssueShortContent)
	}
	if title == untitled {
		a.QualityIssues = append(a.QualityIssues, IssueIncompleteContent)
	}
	return a, true
}

// finish derives the metrics that depend only on the plain text.
func finish(a *Article) {
	a.Description = Summarize(a.Text)
	a.WordCount = WordCount(a.Text)
	a.ContentLength = TextLength(a.Text)
	a.HasFullContent = HasFullContent(a.Text)
}

// ExtractContent finds the article body. It returns the body as HTML and as
// plain text, or ok == false when nothing matched.
func ExtractContent(doc *goquery.Document, hints Hints) (content, text string, ok bool) {
	if hints.Content != "" {
		if sel := doc.Find(hints.Content).First(); sel.Length() > 0 {
			if html := outerHTML(sel); html != "" {
				return html, selectionText(sel), true
			}
		}
	}

	for _, s := range contentSelectors {
		if sel := doc.Find(s).First(); sel.Length() > 0 {
			if html := outerHTML(sel); html != "" {
				return html, selectionText(sel), true
			}
		}
	}

	for _, s := range mainSelectors {
		main := doc.Find(s).First()
		if main.Length() == 0 {
			continue
		}
		paras := main.Find("p").Slice(0, min(main.Find("p").Length(), maxFallbackParas))
		if paras.Length() == 0 {
			return "", "", false
		}
		var b strings.Builder
		texts := make([]string, 0, paras.Length())
		paras.Each(func(_ int, p *goquery.Selection) {
			b.WriteString(outerHTML(p))
			texts = append(texts, selectionText(p))
		})
		return b.String(), collapse(strings.Join(texts, " ")), true
	}

	return "", "", false
}

func extractTitle(doc *goquery.Document, hints Hints) string {
	if hints.Title != "" {
		if t := selectionText(doc.Find(hints.Title).First()); t != "" {
			return t
		}
	}
	if t := selectionText(doc.Find("title").First()); t != "" {
		return t
	}
	for _, s := range titleSelectors {
		if t := selectionText(doc.Find(s).First()); t != "" {
			return t
		}
	}
	return untitled
}

func (e *SelectorExtractor) extractDate(doc *goquery.Document, hints Hints) time.Time {
	if hints.Date != "" {
		if raw := dateString(doc.Find(hints.Date).First()); raw != "" {
			return e.Dates.Parse(raw)
		}
	}
	for _, s := range dateSelectors {
		if raw := dateString(doc.Find(s).First()); raw != "" {
			return e.Dates.Parse(raw)
		}
	}
	return e.Dates.FromTime(nil)
}

// dateString prefers the machine-readable datetime attribute.
func dateString(sel *goquery.Selection) string {
	if sel.Length() == 0 {
		return ""
	}
	if dt := strings.TrimSpace(sel.AttrOr("datetime", "")); dt != "" {
		return dt
	}
	if c := strings.TrimSpace(sel.AttrOr("content", "")); c != "" {
		return c
	}
	return selectionText(sel)
}

func extractImage(doc *goquery.Document, content, pageURL string) string {
	for _, s := range imageSelectors {
		img := doc.Find(s).First()
		if src := strings.TrimSpace(img.AttrOr("src", "")); src != "" {
			return ResolveURL(pageURL, src)
		}
	}
	return FirstImage(content, pageURL)
}

func extractAuthor(doc *goquery.Document) string {
	for _, s := range authorSelectors {
		sel := doc.Find(s).First()
		if sel.Length() == 0 {
			continue
		}
		if goquery.NodeName(sel) == "meta" {
			if c := strings.TrimSpace(sel.AttrOr("content", "")); c != "" {
				return c
			}
		}
		return selectionText(sel)
	}
	return ""
}
