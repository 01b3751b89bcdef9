package collect

import (
	"context"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"

	"github.com/TobiSchelling/feedwatch/internal/fetch"
)

// fakePages serves canned HTML and records every requested URL.
type fakePages struct {
	mu    sync.Mutex
	pages map[string]string
	calls []string
}

func (f *fakePages) Page(_ context.Context, url string) (*fetch.Page, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	html, ok := f.pages[url]
	f.mu.Unlock()
	if !ok {
		return nil, &fetch.StatusError{Code: 404, URL: url}
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}
	return &fetch.Page{URL: url, Doc: doc}, nil
}

func (f *fakePages) Pages(ctx context.Context, urls []string) []fetch.PageResult {
	results := make([]fetch.PageResult, len(urls))
	for i, u := range urls {
		p, err := f.Page(ctx, u)
		results[i] = fetch.PageResult{URL: u, Page: p, Err: err}
	}
	return results
}

func (f *fakePages) requested() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}
