package extract

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// articleURLTokens mark URLs that usually point at a single story.
var articleURLTokens = []string{"article", "story", "news", "post", "read", "/a/", "/s/"}

var articleMarkerExpr = regexp.MustCompile(`article|story|post`)

const (
	minHeadlineLength  = 20
	listingLinkMinimum = 20
)

// IsArticle guesses whether a page is a single article (true) or a listing
// such as a home or section page (false). The first decisive signal wins.
// Misclassification is expected; extraction downstream falls back either way.
func IsArticle(doc *goquery.Document, pageURL string) bool {
	lower := strings.ToLower(pageURL)
	for _, token := range articleURLTokens {
		if strings.Contains(lower, token) {
			return true
		}
	}

	if hasArticleMarker(doc) {
		return true
	}

	h1 := doc.Find("h1")
	if h1.Length() == 1 && utf8.RuneCountInString(strings.TrimSpace(h1.Text())) > minHeadlineLength {
		return true
	}

	return doc.Find("a[href]").Length() < listingLinkMinimum
}

func hasArticleMarker(doc *goquery.Document) bool {
	if doc.Find("article").Length() > 0 {
		return true
	}
	marked := doc.Find("[class], [id]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return articleMarkerExpr.MatchString(s.AttrOr("class", "")) ||
			articleMarkerExpr.MatchString(s.AttrOr("id", ""))
	})
	if marked.Length() > 0 {
		return true
	}
	for _, sel := range []string{
		`[itemprop="articleBody"]`,
		`[property="articleBody"]`,
		`meta[property="og:type"][content="article"]`,
	} {
		if doc.Find(sel).Length() > 0 {
			return true
		}
	}
	return false
}
