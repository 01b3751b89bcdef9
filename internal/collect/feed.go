package collect

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"

	"github.com/TobiSchelling/feedwatch/internal/database"
	"github.com/TobiSchelling/feedwatch/internal/datenorm"
	"github.com/TobiSchelling/feedwatch/internal/extract"
	"github.com/TobiSchelling/feedwatch/internal/fetch"
)

const (
	defaultTitle = "No Title"

	minTitleLength       = 10
	minFeedContentLength = 100
	previewTextLength    = 500

	// DefaultPreviewItems is how many entries Preview returns when limit is not positive.
	DefaultPreviewItems = 3
)

// Getter fetches a URL. *fetch.Client satisfies it.
type Getter interface {
	Fetch(ctx context.Context, url string) (*fetch.Response, error)
}

// PageFetcher fetches and parses a single web page. *fetch.Scraper satisfies it.
type PageFetcher interface {
	Page(ctx context.Context, url string) (*fetch.Page, error)
}

// ParseError reports a feed document that could not be parsed.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return "parsing feed: " + e.Err.Error() }
func (e *ParseError) Unwrap() error { return e.Err }

// FeedStrategy fetches routes from the feed gateway.
type FeedStrategy struct {
	BaseURL string
	Client  Getter
	Pages   PageFetcher // used to complete short entries when hints are set
	Dates   datenorm.Normalizer
	Log     *zap.Logger
}

// Name implements Strategy.
func (s *FeedStrategy) Name() string { return "feed" }

func (s *FeedStrategy) logger() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

// Endpoint resolves route against the gateway base URL. Absolute routes are
// returned as they are.
func (s *FeedStrategy) Endpoint(route string) (string, error) {
	if u, err := url.Parse(route); err == nil && u.IsAbs() {
		return route, nil
	}
	if strings.TrimSpace(s.BaseURL) == "" {
		return "", &ConfigError{Msg: "RSSHub base URL not configured"}
	}
	base, err := url.Parse(s.BaseURL)
	if err != nil {
		return "", &ConfigError{Msg: fmt.Sprintf("invalid RSSHub base URL: %v", err)}
	}
	ref, err := url.Parse(strings.TrimLeft(route, "/"))
	if err != nil {
		return "", &ConfigError{Msg: fmt.Sprintf("invalid route %q: %v", route, err)}
	}
	return base.ResolveReference(ref).String(), nil
}

// FetchFeed downloads and parses the feed behind route. Transport failures
// are returned as is; parse failures as *ParseError.
func (s *FeedStrategy) FetchFeed(ctx context.Context, route string) (*gofeed.Feed, error) {
	feed, _, err := s.fetchFeed(ctx, route)
	return feed, err
}

// fetchFeed is FetchFeed that also reports the HTTP status of the response.
func (s *FeedStrategy) fetchFeed(ctx context.Context, route string) (*gofeed.Feed, int, error) {
	endpoint, err := s.Endpoint(route)
	if err != nil {
		return nil, 0, err
	}
	resp, err := s.Client.Fetch(ctx, endpoint)
	if err != nil {
		return nil, 0, err
	}
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, resp.Status, &ParseError{Err: err}
	}
	return feed, resp.Status, nil
}

// Collect implements Strategy. An empty feed is not an error; the result
// simply carries no items.
func (s *FeedStrategy) Collect(ctx context.Context, src database.Source) (*Result, error) {
	feed, status, err := s.fetchFeed(ctx, src.Route)
	if err != nil {
		return nil, err
	}

	hints, err := extract.ParseHints(src.CustomSelectors)
	if err != nil {
		s.logger().Warn("ignoring invalid extraction hints",
			zap.String("source", src.Name), zap.Error(err))
		hints = extract.Hints{}
	}

	if len(feed.Items) == 0 {
		return &Result{Message: "Feed parsed but contains no items", HTTPStatus: &status}, nil
	}

	items := make([]database.Item, 0, len(feed.Items))
	for _, it := range feed.Items {
		if it == nil {
			continue
		}
		items = append(items, s.MapEntry(ctx, newEntry(it, feed.FeedType), hints))
	}
	return &Result{
		Items:      items,
		Message:    fmt.Sprintf("Successfully fetched %d items", len(items)),
		HTTPStatus: &status,
	}, nil
}

type contentTier struct {
	method string
	get    func(*Entry) string
}

// contentTiers are tried in order; the first non-empty value wins.
var contentTiers = []contentTier{
	{"content_field", func(e *Entry) string { return e.ContentField }},
	{"content_encoded", func(e *Entry) string { return e.ContentEncoded }},
	{"description", func(e *Entry) string { return e.Summary }},
	{"summary", func(e *Entry) string { return e.ITunesSummary }},
}

const methodCustomSelectors = "custom_selectors"

var authorAccessors = []func(*Entry) string{
	func(e *Entry) string { return e.Creator },
	func(e *Entry) string { return e.AuthorName },
}

// MapEntry converts one feed entry into an item.
func (s *FeedStrategy) MapEntry(ctx context.Context, e Entry, hints extract.Hints) database.Item {
	title := e.Title
	if title == "" {
		title = defaultTitle
	}

	content, method := "", "none"
	for _, tier := range contentTiers {
		if v := strings.TrimSpace(tier.get(&e)); v != "" {
			content, method = v, tier.method
			break
		}
	}
	if !hints.IsEmpty() && e.Link != "" && extract.TextLength(content) < extract.FullContentThreshold {
		if fromPage := s.contentFromPage(ctx, e.Link, hints); fromPage != "" {
			content, method = fromPage, methodCustomSelectors
		}
	}

	text := extract.PlainText(content)
	image := entryImage(&e, content)

	var issues []string
	if extract.TextLength(title) < minTitleLength {
		issues = append(issues, extract.IssueShortTitle)
	}
	if extract.TextLength(text) < minFeedContentLength {
		issues = append(issues, extract.IssueShortContent)
	}
	if image == "" {
		issues = append(issues, extract.IssueNoImage)
	}

	author := ""
	for _, get := range authorAccessors {
		if author = get(&e); author != "" {
			break
		}
	}

	return database.Item{
		Title:          title,
		Link:           e.Link,
		GUID:           identity(e.GUID, e.Link, content),
		Description:    e.Summary,
		Content:        content,
		Author:         author,
		ImageURL:       image,
		PublishedAt:    s.entryDate(&e),
		WordCount:      extract.WordCount(text),
		HasFullContent: extract.HasFullContent(text),
		QualityIssues:  issues,
		ExtractionMetadata: database.ExtractionMetadata{
			Method:        method,
			ContentLength: extract.TextLength(text),
		},
	}
}

// contentFromPage fetches the entry's page and extracts its body. Failures
// are logged and leave the feed content in place.
func (s *FeedStrategy) contentFromPage(ctx context.Context, link string, hints extract.Hints) string {
	if s.Pages == nil {
		return ""
	}
	page, err := s.Pages.Page(ctx, link)
	if err != nil {
		s.logger().Warn("fetching entry page failed", zap.String("url", link), zap.Error(err))
		return ""
	}
	content, _, ok := extract.ExtractContent(page.Doc, hints)
	if !ok {
		return ""
	}
	return content
}

func (s *FeedStrategy) entryDate(e *Entry) time.Time {
	switch {
	case e.Published != nil:
		return s.Dates.FromTime(e.Published)
	case e.Updated != nil:
		return s.Dates.FromTime(e.Updated)
	case e.PublishedRaw != "":
		return s.Dates.Parse(e.PublishedRaw)
	default:
		return s.Dates.Parse(e.UpdatedRaw)
	}
}

var imageExtensions = []string{".jpg", ".jpeg", ".png", ".gif"}

// entryImage walks the image sources in priority order: media content,
// image enclosures, the first <img> in the content, thumbnails and finally
// the feed-level item image.
func entryImage(e *Entry, content string) string {
	for _, m := range e.MediaContent {
		if m.URL == "" {
			continue
		}
		if strings.Contains(m.Type, "image") || hasImageExtension(m.URL) {
			return m.URL
		}
	}
	for _, enc := range e.Enclosures {
		if enc.URL != "" && strings.Contains(enc.Type, "image") {
			return enc.URL
		}
	}
	if img := extract.FirstImage(content, e.Link); img != "" {
		return img
	}
	for _, t := range e.Thumbnails {
		if t != "" {
			return t
		}
	}
	return e.Image
}

func hasImageExtension(u string) bool {
	lower := strings.ToLower(u)
	for _, ext := range imageExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// PreviewItem is an unsaved view of a feed entry.
type PreviewItem struct {
	Title       string `json:"title"`
	Link        string `json:"link"`
	Description string `json:"description"`
	Content     string `json:"content"`
	TextContent string `json:"text_content"`
	ImageURL    string `json:"image_url,omitempty"`
	Published   string `json:"published,omitempty"`
	WordCount   int    `json:"word_count"`
}

// Preview fetches route and maps its first limit entries without touching
// the store. Custom routes have no preview and yield nil.
func (s *FeedStrategy) Preview(ctx context.Context, route string, limit int) ([]PreviewItem, error) {
	if IsCustomRoute(route) {
		return nil, nil
	}
	if limit <= 0 {
		limit = DefaultPreviewItems
	}
	feed, err := s.FetchFeed(ctx, route)
	if err != nil {
		return nil, err
	}

	var out []PreviewItem
	for _, it := range feed.Items {
		if len(out) >= limit {
			break
		}
		if it == nil {
			continue
		}
		e := newEntry(it, feed.FeedType)
		content := ""
		for _, tier := range contentTiers {
			if v := strings.TrimSpace(tier.get(&e)); v != "" {
				content = v
				break
			}
		}
		text := extract.PlainText(content)
		title := e.Title
		if title == "" {
			title = defaultTitle
		}
		out = append(out, PreviewItem{
			Title:       title,
			Link:        e.Link,
			Description: e.Summary,
			Content:     content,
			TextContent: truncateText(text, previewTextLength),
			ImageURL:    entryImage(&e, content),
			Published:   e.PublishedRaw,
			WordCount:   extract.WordCount(text),
		})
	}
	return out, nil
}

func truncateText(text string, n int) string {
	r := []rune(text)
	if len(r) <= n {
		return text
	}
	return string(r[:n]) + "..."
}

// IsParseError reports whether err came from parsing the feed document.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}
