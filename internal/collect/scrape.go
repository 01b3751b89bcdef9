package collect

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/TobiSchelling/feedwatch/internal/database"
	"github.com/TobiSchelling/feedwatch/internal/extract"
	"github.com/TobiSchelling/feedwatch/internal/fetch"
)

// DefaultMaxArticles bounds how many discovered links are fetched per run.
const DefaultMaxArticles = 10

// ErrNothingExtracted is returned when a scraped page yields no items.
var ErrNothingExtracted = errors.New("No items could be extracted from the website")

// PageBatchFetcher fetches single pages and bounded batches of pages.
// *fetch.Scraper satisfies it.
type PageBatchFetcher interface {
	PageFetcher
	Pages(ctx context.Context, urls []string) []fetch.PageResult
}

// ScrapeStrategy extracts items straight from a source's web page.
type ScrapeStrategy struct {
	Pages       PageBatchFetcher
	Extractor   extract.Extractor
	MaxArticles int
	Log         *zap.Logger
}

// Name implements Strategy.
func (s *ScrapeStrategy) Name() string { return "scrape" }

func (s *ScrapeStrategy) logger() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

// Hints validates the scrape configuration of src and returns its hints.
// No network access happens here.
func Hints(src database.Source) (extract.Hints, error) {
	if src.OriginalURL == "" {
		return extract.Hints{}, &ConfigError{Msg: "Original URL is required for custom routes"}
	}
	hints, err := extract.ParseHints(src.CustomSelectors)
	if err != nil {
		return extract.Hints{}, &ConfigError{Msg: "Invalid custom selectors JSON"}
	}
	if hints.IsEmpty() {
		return extract.Hints{}, &ConfigError{Msg: "Custom selectors are required for custom routes"}
	}
	return hints, nil
}

// Collect implements Strategy. Article pages yield one item; listing pages
// yield one item per discovered link that could be fetched and extracted.
func (s *ScrapeStrategy) Collect(ctx context.Context, src database.Source) (*Result, error) {
	hints, err := Hints(src)
	if err != nil {
		return nil, err
	}

	page, err := s.Pages.Page(ctx, src.OriginalURL)
	if err != nil {
		return nil, err
	}

	var articles []extract.Article
	if extract.IsArticle(page.Doc, src.OriginalURL) {
		if a, ok := s.extractor().Extract(page.Doc, src.OriginalURL, hints); ok {
			articles = append(articles, a)
		}
	} else {
		links := extract.DiscoverLinks(page.Doc, src.OriginalURL, hints)
		links = links[:min(len(links), s.maxArticles())]
		s.logger().Debug("discovered article links",
			zap.String("source", src.Name), zap.Int("links", len(links)))

		for _, r := range s.Pages.Pages(ctx, links) {
			if r.Err != nil {
				s.logger().Warn("skipping article", zap.String("url", r.URL), zap.Error(r.Err))
				continue
			}
			a, ok := s.extractor().Extract(r.Page.Doc, r.URL, hints)
			if !ok {
				s.logger().Debug("no content in article", zap.String("url", r.URL))
				continue
			}
			articles = append(articles, a)
		}
	}

	if len(articles) == 0 {
		return nil, ErrNothingExtracted
	}

	items := make([]database.Item, 0, len(articles))
	for _, a := range articles {
		items = append(items, articleItem(a))
	}
	return &Result{
		Items:   items,
		Message: fmt.Sprintf("Successfully extracted %d articles from the website", len(items)),
	}, nil
}

func (s *ScrapeStrategy) extractor() extract.Extractor {
	if s.Extractor == nil {
		return extract.NewSelectorExtractor()
	}
	return s.Extractor
}

func (s *ScrapeStrategy) maxArticles() int {
	n := s.MaxArticles
	if n <= 0 {
		n = DefaultMaxArticles
	}
	return min(n, extract.MaxDiscoveredLinks)
}

func articleItem(a extract.Article) database.Item {
	return database.Item{
		Title:          a.Title,
		Link:           a.Link,
		GUID:           identity("", a.Link, a.Content),
		Description:    a.Description,
		Content:        a.Content,
		Author:         a.Author,
		ImageURL:       a.ImageURL,
		PublishedAt:    a.PublishedAt,
		WordCount:      a.WordCount,
		HasFullContent: a.HasFullContent,
		QualityIssues:  a.QualityIssues,
		ExtractionMetadata: database.ExtractionMetadata{
			Method:        a.Method,
			ContentLength: a.ContentLength,
		},
	}
}
