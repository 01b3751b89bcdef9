package fetch

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

// Page is a fetched and parsed HTML document.
type Page struct {
	URL string // final URL after redirects
	Doc *goquery.Document
}

// PageResult is one entry of a batch fetch. Exactly one of Page and Err is set.
type PageResult struct {
	URL  string
	Page *Page
	Err  error
}

// Scraper fetches web pages with colly.
type Scraper struct {
	opts Options
	log  *zap.Logger
}

// NewScraper creates a scraper. A nil logger disables logging.
func NewScraper(opts Options, log *zap.Logger) *Scraper {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scraper{opts: opts.withDefaults(), log: log}
}

// Workers is the number of pages fetched in parallel by Pages.
func (s *Scraper) Workers() int { return s.opts.Workers }

func (s *Scraper) collector(async bool) (*colly.Collector, error) {
	options := []colly.CollectorOption{
		colly.UserAgent(s.opts.UserAgent),
		colly.AllowURLRevisit(),
	}
	// colly.Async ignores its argument and always switches async on.
	if async {
		options = append(options, colly.Async())
	}
	c := colly.NewCollector(options...)
	c.SetRequestTimeout(s.opts.Timeout)
	if async {
		if err := c.Limit(&colly.LimitRule{DomainGlob: "*", Parallelism: s.opts.Workers}); err != nil {
			return nil, fmt.Errorf("setting limit: %w", err)
		}
	}
	return c, nil
}

// Page fetches and parses a single page.
func (s *Scraper) Page(ctx context.Context, url string) (*Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c, err := s.collector(false)
	if err != nil {
		return nil, err
	}

	var (
		page    *Page
		failure error
	)
	c.OnResponse(func(r *colly.Response) {
		page, failure = parsePage(r)
	})
	c.OnError(func(r *colly.Response, err error) {
		failure = responseError(r, err)
	})

	if err := c.Visit(url); err != nil && failure == nil {
		failure = err
	}
	c.Wait()
	if failure != nil {
		return nil, failure
	}
	if page == nil {
		return nil, fmt.Errorf("no response from %s", url)
	}
	return page, nil
}

// Pages fetches urls with at most Workers requests in flight. Results are
// returned in the order of urls; failed fetches carry Err.
func (s *Scraper) Pages(ctx context.Context, urls []string) []PageResult {
	results := make([]PageResult, len(urls))
	for i, u := range urls {
		results[i].URL = u
	}
	if len(urls) == 0 {
		return results
	}

	c, err := s.collector(true)
	if err != nil {
		for i := range results {
			results[i].Err = err
		}
		return results
	}

	var mu sync.Mutex
	index := func(r *colly.Response) (int, bool) {
		i, err := strconv.Atoi(r.Ctx.Get("index"))
		return i, err == nil && i >= 0 && i < len(results)
	}
	c.OnResponse(func(r *colly.Response) {
		i, ok := index(r)
		if !ok {
			return
		}
		page, err := parsePage(r)
		mu.Lock()
		results[i].Page, results[i].Err = page, err
		mu.Unlock()
	})
	c.OnError(func(r *colly.Response, err error) {
		i, ok := index(r)
		if !ok {
			return
		}
		mu.Lock()
		results[i].Page, results[i].Err = nil, responseError(r, err)
		mu.Unlock()
	})

	for i, u := range urls {
		if err := ctx.Err(); err != nil {
			results[i].Err = err
			continue
		}
		rctx := colly.NewContext()
		rctx.Put("index", strconv.Itoa(i))
		if err := c.Request("GET", u, nil, rctx, nil); err != nil {
			results[i].Err = err
		}
	}
	c.Wait()

	for i := range results {
		if results[i].Page == nil && results[i].Err == nil {
			results[i].Err = fmt.Errorf("no response from %s", results[i].URL)
		}
		if results[i].Err != nil {
			s.log.Debug("page fetch failed", zap.String("url", results[i].URL), zap.Error(results[i].Err))
		}
	}
	return results
}

func parsePage(r *colly.Response) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(r.Body))
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", r.Request.URL, err)
	}
	return &Page{URL: r.Request.URL.String(), Doc: doc}, nil
}

func responseError(r *colly.Response, err error) error {
	if r != nil && r.StatusCode >= 300 {
		u := ""
		if r.Request != nil && r.Request.URL != nil {
			u = r.Request.URL.String()
		}
		return &StatusError{Code: r.StatusCode, URL: u}
	}
	return err
}
