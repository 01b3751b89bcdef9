package extract

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

var (
	suggestContentSelectors = []string{
		"article", ".article", ".post", ".entry", ".content", "#content",
		`[itemprop="articleBody"]`, ".article-content", ".post-content",
		".entry-content", ".story-body", ".article-body", ".main-content",
	}
	suggestTitleSelectors = []string{
		"h1", ".title", ".headline", `[itemprop="headline"]`, ".article-title", ".post-title",
	}
	suggestDateSelectors = []string{
		`[itemprop="datePublished"]`, "[datetime]", "time", ".date", ".published",
		".timestamp", ".article-date", ".meta-date",
	}
	suggestListSelectors = []string{
		"article", ".article", ".post", ".entry", ".card", ".news-item",
		".list-item", "li.article", ".article-card",
	}
)

var dateTextExpr = regexp.MustCompile(`(?i)\d{1,4}[/.-]\d{1,2}[/.-]\d{1,4}|\d{1,2}\s+(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)\w*\s+\d{4}`)

const minRepeated = 3

type scored struct {
	selector string
	score    int
}

// best returns the highest scoring selector; ties go to the earliest.
func best(candidates []scored) (string, bool) {
	if len(candidates) == 0 {
		return "", false
	}
	top := candidates[0]
	for _, c := range candidates[1:] {
		if c.score > top.score {
			top = c
		}
	}
	return top.selector, true
}

// SuggestHints inspects a page and proposes hints an operator can start
// from when configuring a scraped source.
func SuggestHints(doc *goquery.Document, pageURL string) Hints {
	if IsArticle(doc, pageURL) {
		return suggestArticleHints(doc)
	}
	return suggestListingHints(doc)
}

func suggestArticleHints(doc *goquery.Document) Hints {
	var h Hints

	var content []scored
	for _, s := range suggestContentSelectors {
		doc.Find(s).Each(func(_ int, el *goquery.Selection) {
			if n := utf8.RuneCountInString(selectionText(el)); n > FullContentThreshold {
				content = append(content, scored{s, n})
			}
		})
	}
	h.Content, _ = best(content)

	var titles []scored
	for _, s := range suggestTitleSelectors {
		doc.Find(s).Each(func(_ int, el *goquery.Selection) {
			n := utf8.RuneCountInString(selectionText(el))
			if n < 10 || n > 200 {
				return
			}
			score := n
			if insideArticle(el) {
				score += 50
			}
			if goquery.NodeName(el) == "h1" {
				score += 100
			}
			titles = append(titles, scored{s, score})
		})
	}
	h.Title, _ = best(titles)

	h.Date = suggestDate(doc)
	return h
}

func insideArticle(el *goquery.Selection) bool {
	found := false
	el.Parents().EachWithBreak(func(_ int, p *goquery.Selection) bool {
		if goquery.NodeName(p) == "article" || strings.Contains(strings.ToLower(p.AttrOr("class", "")), "article") {
			found = true
		}
		return !found
	})
	return found
}

func suggestDate(doc *goquery.Document) string {
	for _, s := range suggestDateSelectors {
		match := doc.Find(s).FilterFunction(func(_ int, el *goquery.Selection) bool {
			_, has := el.Attr("datetime")
			return has || goquery.NodeName(el) == "time"
		})
		if match.Length() > 0 {
			return s
		}
	}

	selector := ""
	doc.Find("span, div, p, time").EachWithBreak(func(_ int, el *goquery.Selection) bool {
		if !dateTextExpr.MatchString(selectionText(el)) {
			return true
		}
		if classes := strings.Fields(el.AttrOr("class", "")); len(classes) > 0 {
			selector = "." + strings.Join(classes, ".")
		} else if id := el.AttrOr("id", ""); id != "" {
			selector = "#" + id
		} else if goquery.NodeName(el) == "time" {
			selector = "time"
		}
		return selector == ""
	})
	return selector
}

func suggestListingHints(doc *goquery.Document) Hints {
	var h Hints

	var lists []scored
	for _, s := range suggestListSelectors {
		els := doc.Find(s)
		if els.Length() < minRepeated {
			continue
		}
		withLinks := els.FilterFunction(func(_ int, el *goquery.Selection) bool {
			return el.Find("a[href]").Length() > 0
		}).Length()
		if withLinks >= minRepeated {
			lists = append(lists, scored{s, withLinks})
		}
	}

	if item, ok := best(lists); ok {
		h.ListItem = item
		h.Link = suggestItemLink(doc, item)
		return h
	}

	var patterns []scored
	index := map[string]int{}
	count := func(sel string, n int) {
		if i, ok := index[sel]; ok {
			patterns[i].score += n
			return
		}
		index[sel] = len(patterns)
		patterns = append(patterns, scored{sel, n})
	}
	for _, tag := range []string{"h2", "h3"} {
		if n := doc.Find(tag + " a").Length(); n >= minRepeated {
			count(tag+" a", n)
		}
	}
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		if classes := strings.Fields(a.AttrOr("class", "")); len(classes) > 0 {
			count("a."+strings.Join(classes, "."), 1)
		}
	})
	if sel, ok := best(patterns); ok {
		for _, p := range patterns {
			if p.selector == sel && p.score >= minRepeated {
				h.Link = sel
			}
		}
	}
	return h
}

func suggestItemLink(doc *goquery.Document, item string) string {
	var links []*goquery.Selection
	doc.Find(item).Slice(0, min(doc.Find(item).Length(), minRepeated)).Each(func(_ int, el *goquery.Selection) {
		el.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
			links = append(links, a)
		})
	})
	if len(links) == 0 {
		return ""
	}
	for _, a := range links {
		switch parent := goquery.NodeName(a.Parent()); parent {
		case "h1", "h2", "h3", "h4":
			return item + " " + parent + " a"
		}
	}
	for _, a := range links {
		if classes := strings.Fields(a.AttrOr("class", "")); len(classes) > 0 {
			return "a." + strings.Join(classes, ".")
		}
	}
	return item + " a"
}
