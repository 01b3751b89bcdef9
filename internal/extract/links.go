package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// MaxDiscoveredLinks is the hard cap callers apply before fetching
// discovered links.
const MaxDiscoveredLinks = 15

type linkPattern struct {
	container string
	link      string // empty: container selects the anchors directly
}

// linkPatterns are probed in order when no hint selects any link.
var linkPatterns = []linkPattern{
	{"li.article", "a"},
	{".article", "a"},
	{".post", "a"},
	{".card", "a"},
	{".news-item", "a"},
	{".story", "a"},
	{".item", "a"},

	{"h2", "a"},
	{"h3", "a"},
	{".headline", "a"},
	{".title", "a"},

	{"a.article-link", ""},
	{"a.headline", ""},
	{"a.title", ""},
}

var linkURLTokens = []string{"article", "story", "news", "post", "/a/", "/s/"}

var socialDomains = []string{"facebook", "twitter", "instagram", "linkedin", "tiktok"}

// DiscoverLinks collects candidate article URLs from a listing page. URLs are
// absolute, unique and in first-seen order. A page without qualifying links
// yields an empty slice.
func DiscoverLinks(doc *goquery.Document, baseURL string, hints Hints) []string {
	var found []string
	add := func(a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		href = strings.TrimSpace(href)
		if href == "" {
			return
		}
		found = append(found, ResolveURL(baseURL, href))
	}

	if hints.Link != "" {
		doc.Find(hints.Link).Each(func(_ int, s *goquery.Selection) {
			if goquery.NodeName(s) == "a" {
				add(s)
				return
			}
			s.Find("a[href]").Each(func(_ int, a *goquery.Selection) { add(a) })
		})
	}

	if len(found) == 0 {
		for _, p := range linkPatterns {
			if p.link == "" {
				doc.Find(p.container).Each(func(_ int, a *goquery.Selection) { add(a) })
				continue
			}
			doc.Find(p.container).Each(func(_ int, c *goquery.Selection) {
				c.Find(p.link).Each(func(_ int, a *goquery.Selection) { add(a) })
			})
		}
	}

	if len(found) == 0 {
		doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
			href := strings.ToLower(strings.TrimSpace(a.AttrOr("href", "")))
			if isNoiseLink(href) {
				return
			}
			for _, token := range linkURLTokens {
				if strings.Contains(href, token) {
					add(a)
					return
				}
			}
		})
	}

	return dedupe(found)
}

func isNoiseLink(href string) bool {
	if href == "" || strings.HasPrefix(href, "#") {
		return true
	}
	if strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") {
		return true
	}
	for _, domain := range socialDomains {
		if strings.Contains(href, domain) {
			return true
		}
	}
	if u, err := url.Parse(href); err == nil {
		host := u.Hostname()
		return host == "x.com" || strings.HasSuffix(host, ".x.com")
	}
	return false
}

func dedupe(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
