package extract

import (
	"reflect"
	"testing"
)

func TestDiscoverLinksHint(t *testing.T) {
	doc := mustDoc(t, `<html><body>
		<div class="teaser"><a href="/p/1">One</a></div>
		<div class="teaser"><span><a href="/p/2">Two</a></span></div>
		<a class="direct" href="https://other.com/p/3">Three</a>
		<div class="card"><a href="/ignored">Ignored</a></div>
	</body></html>`)

	got := DiscoverLinks(doc, "https://example.com/news/", Hints{Link: ".teaser, a.direct"})
	want := []string{
		"https://example.com/p/1",
		"https://example.com/p/2",
		"https://other.com/p/3",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestDiscoverLinksPatternsInOrder(t *testing.T) {
	doc := mustDoc(t, `<html><body>
		<h2><a href="/b">B</a></h2>
		<div class="card"><a href="/a">A</a></div>
		<h2><a href="/a">A again</a></h2>
		<a class="title" href="/c">C</a>
	</body></html>`)

	got := DiscoverLinks(doc, "https://example.com/", Hints{})
	want := []string{
		"https://example.com/a",
		"https://example.com/b",
		"https://example.com/c",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestDiscoverLinksFallbackFiltersNoise(t *testing.T) {
	doc := mustDoc(t, `<html><body>
		<a href="/story/1">Story</a>
		<a href="#news">Jump</a>
		<a href="javascript:void('article')">JS</a>
		<a href="mailto:news@example.com">Mail</a>
		<a href="https://facebook.com/share/post">Share</a>
		<a href="https://x.com/example/status/article">X</a>
		<a href="/about">About</a>
		<a href="/post/2">Post</a>
		<a href="/story/1">Duplicate</a>
	</body></html>`)

	got := DiscoverLinks(doc, "https://example.com/", Hints{})
	want := []string{
		"https://example.com/story/1",
		"https://example.com/post/2",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestDiscoverLinksEmpty(t *testing.T) {
	doc := mustDoc(t, `<html><body><p>No links at all</p><a href="/about">About</a></body></html>`)
	got := DiscoverLinks(doc, "https://example.com/", Hints{})
	if got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", got)
	}
}

func TestDiscoverLinksNoDuplicates(t *testing.T) {
	doc := mustDoc(t, `<html><body>
		<div class="post"><a href="/p/1">1</a><a href="/p/1#comments">1c</a></div>
		<div class="post"><a href="/p/1">1 again</a><a href="/p/2">2</a></div>
	</body></html>`)

	got := DiscoverLinks(doc, "https://example.com/", Hints{})
	seen := map[string]bool{}
	for _, u := range got {
		if seen[u] {
			t.Fatalf("duplicate %s in %v", u, got)
		}
		seen[u] = true
	}
	if got[0] != "https://example.com/p/1" {
		t.Errorf("expected first-seen order, got %v", got)
	}
}
