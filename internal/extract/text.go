package extract

import (
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

const (
	// FullContentThreshold is the plain-text length above which an item is
	// considered to carry its full body rather than a teaser.
	FullContentThreshold = 200

	descriptionLength = 200
)

var wordExpr = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// PlainText renders an HTML fragment as whitespace-collapsed text.
func PlainText(fragment string) string {
	if strings.TrimSpace(fragment) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return collapse(fragment)
	}
	return collapse(doc.Text())
}

// WordCount counts word tokens in plain text.
func WordCount(text string) int {
	return len(wordExpr.FindAllStringIndex(text, -1))
}

// TextLength is the length of plain text in characters.
func TextLength(text string) int {
	return utf8.RuneCountInString(text)
}

// HasFullContent reports whether plain text is long enough to count as a
// full article body.
func HasFullContent(text string) bool {
	return TextLength(text) > FullContentThreshold
}

// Summarize cuts plain text down to a short description.
func Summarize(text string) string {
	if TextLength(text) <= descriptionLength {
		return text
	}
	r := []rune(text)
	return string(r[:descriptionLength]) + "..."
}

// FirstImage returns the src of the first <img> in an HTML fragment,
// resolved against base when possible.
func FirstImage(fragment, base string) string {
	if !strings.Contains(fragment, "<img") {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return ""
	}
	src := ""
	doc.Find("img[src]").EachWithBreak(func(_ int, img *goquery.Selection) bool {
		src = strings.TrimSpace(img.AttrOr("src", ""))
		return src == ""
	})
	if src == "" {
		return ""
	}
	return ResolveURL(base, src)
}

// ResolveURL resolves ref against base. When either fails to parse, ref is
// returned unchanged.
func ResolveURL(base, ref string) string {
	r, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ref
	}
	b, err := url.Parse(base)
	if err != nil || base == "" {
		return r.String()
	}
	return b.ResolveReference(r).String()
}

func selectionText(s *goquery.Selection) string {
	return collapse(s.Text())
}

func outerHTML(s *goquery.Selection) string {
	html, err := goquery.OuterHtml(s)
	if err != nil {
		return ""
	}
	return html
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
