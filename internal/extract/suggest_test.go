package extract

import (
	"fmt"
	"strings"
	"testing"
)

func TestSuggestHintsArticle(t *testing.T) {
	body := strings.Repeat("Some meaningful sentence for the article body. ", 10)
	doc := mustDoc(t, `<html><body><article>
		<h1>An Interesting Headline</h1>
		<time datetime="2024-01-01">Jan 1</time>
		<div class="entry-content"><p>`+body+`</p></div>
	</article></body></html>`)

	h := SuggestHints(doc, "https://example.com/article/1")
	if h.Content != "article" {
		t.Errorf("content = %q", h.Content)
	}
	if h.Title != "h1" {
		t.Errorf("title = %q", h.Title)
	}
	if h.Date != "[datetime]" {
		t.Errorf("date = %q", h.Date)
	}
}

func TestSuggestHintsDateText(t *testing.T) {
	doc := mustDoc(t, `<html><body><div><span class="meta when">12 March 2024</span></div></body></html>`)
	if got := suggestDate(doc); got != ".meta.when" {
		t.Errorf("date = %q", got)
	}
}

func TestSuggestHintsListing(t *testing.T) {
	var cards strings.Builder
	for i := 0; i < 5; i++ {
		fmt.Fprintf(&cards, `<div class="card"><h3><a href="/p/%d">Item %d</a></h3></div>`, i, i)
	}
	doc := mustDoc(t, "<html><body>"+cards.String()+navLinks(30)+"</body></html>")

	h := SuggestHints(doc, "https://example.com/")
	if h.ListItem != ".card" {
		t.Errorf("list item = %q", h.ListItem)
	}
	if h.Link != ".card h3 a" {
		t.Errorf("link = %q", h.Link)
	}
}

func TestSuggestHintsListingLinkPattern(t *testing.T) {
	var links strings.Builder
	for i := 0; i < 4; i++ {
		fmt.Fprintf(&links, `<a class="teaser-link" href="/p/%d">Item %d</a>`, i, i)
	}
	doc := mustDoc(t, "<html><body>"+links.String()+navLinks(30)+"</body></html>")

	h := SuggestHints(doc, "https://example.com/")
	if h.ListItem != "" {
		t.Errorf("list item = %q", h.ListItem)
	}
	if h.Link != "a.teaser-link" {
		t.Errorf("link = %q", h.Link)
	}
}
