package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/TobiSchelling/feedwatch/internal/datenorm"
)

// ReadabilityExtractor extracts articles with Mozilla's readability
// algorithm instead of selectors. Hints only contribute the date selector.
type ReadabilityExtractor struct {
	Dates datenorm.Normalizer
}

// NewReadabilityExtractor returns a readability-backed extractor.
func NewReadabilityExtractor() *ReadabilityExtractor {
	return &ReadabilityExtractor{}
}

// Extract implements Extractor.
func (e *ReadabilityExtractor) Extract(doc *goquery.Document, pageURL string, hints Hints) (Article, bool) {
	// readability mutates the tree it is given, so work on a copy.
	html, err := doc.Html()
	if err != nil {
		return Article{}, false
	}
	u, _ := url.Parse(pageURL)
	parsed, err := readability.FromReader(strings.NewReader(html), u)
	if err != nil {
		return Article{}, false
	}

	content := strings.TrimSpace(parsed.Content)
	text := collapse(parsed.TextContent)
	if content == "" || text == "" {
		return Article{}, false
	}

	title := strings.TrimSpace(parsed.Title)
	if title == "" {
		title = extractTitle(doc, hints)
	}
	image := strings.TrimSpace(parsed.Image)
	if image != "" {
		image = ResolveURL(pageURL, image)
	} else {
		image = extractImage(doc, content, pageURL)
	}
	author := strings.TrimSpace(parsed.Byline)
	if author == "" {
		author = extractAuthor(doc)
	}

	sel := &SelectorExtractor{Dates: e.Dates}
	a := Article{
		Title:       title,
		Link:        pageURL,
		Content:     content,
		Text:        text,
		Author:      author,
		ImageURL:    image,
		PublishedAt: sel.extractDate(doc, hints),
		Method:      MethodReadability,
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

// NewExtractor returns the extractor registered under name. Unknown names
// fall back to the selector extractor.
func NewExtractor(name string) Extractor {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "readability":
		return NewReadabilityExtractor()
	default:
		return NewSelectorExtractor()
	}
}
