// Package pipeline runs sources through collection, scoring and persistence.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/TobiSchelling/feedwatch/internal/collect"
	"github.com/TobiSchelling/feedwatch/internal/config"
	"github.com/TobiSchelling/feedwatch/internal/database"
	"github.com/TobiSchelling/feedwatch/internal/extract"
	"github.com/TobiSchelling/feedwatch/internal/fetch"
	"github.com/TobiSchelling/feedwatch/internal/quality"
	"github.com/TobiSchelling/feedwatch/internal/runlock"
)

// StatusSkipped is reported when another run already holds the source.
// Skipped runs record nothing.
const StatusSkipped = "skipped"

// LowQualityThreshold is the score below which a successful run raises a
// warning alert.
const LowQualityThreshold = 50

// RunResult is what a single run reports back to its caller.
type RunResult struct {
	SourceID     int64  `json:"source_id"`
	Status       string `json:"status"`
	Message      string `json:"message"`
	ItemCount    int    `json:"item_count"`
	QualityScore int    `json:"quality_score"`
}

// RunObserver is told about every run that records an outcome.
type RunObserver interface {
	ObserveRun(sourceID int64, strategy, status string, seconds float64, items, score int)
}

// Pipeline checks sources and records their outcomes.
type Pipeline struct {
	db        *database.DB
	collector *collect.Collector
	locks     runlock.Locker
	log       *zap.Logger
	now       func() time.Time
	observer  RunObserver

	mu      sync.RWMutex
	baseURL string
}

// New creates a pipeline around an existing collector. A nil locker means
// an in-process one.
func New(db *database.DB, collector *collect.Collector, locks runlock.Locker, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	if locks == nil {
		locks = runlock.NewMemoryLocker()
	}
	p := &Pipeline{
		db:        db,
		collector: collector,
		locks:     locks,
		log:       log,
		now:       time.Now,
	}
	if collector.Feed != nil {
		p.baseURL = collector.Feed.BaseURL
	}
	return p
}

// FromConfig wires the transport, extraction and strategies described by cfg.
func FromConfig(cfg *config.Config, db *database.DB, locks runlock.Locker, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	opts := fetch.Options{
		Timeout:    cfg.Fetch.Timeout,
		Retries:    cfg.Fetch.Retries,
		RetryDelay: cfg.Fetch.RetryDelay,
		UserAgent:  cfg.Fetch.UserAgent,
		Workers:    cfg.Fetch.Workers,
	}
	client := fetch.NewClient(opts, log.Named("fetch"))
	scraper := fetch.NewScraper(opts, log.Named("scrape"))

	collector := &collect.Collector{
		Feed: &collect.FeedStrategy{
			BaseURL: cfg.RSSHub.BaseURL,
			Client:  client,
			Pages:   scraper,
			Log:     log.Named("feed"),
		},
		Scrape: &collect.ScrapeStrategy{
			Pages:       scraper,
			Extractor:   extract.NewExtractor(cfg.Extraction.Strategy),
			MaxArticles: cfg.Fetch.MaxArticles,
			Log:         log.Named("scrape"),
		},
	}
	return New(db, collector, locks, log)
}

// Observe registers o to receive run statistics. Call before the first run.
func (p *Pipeline) Observe(o RunObserver) {
	p.observer = o
}

func (p *Pipeline) observe(src database.Source, strategy string, r RunResult, seconds float64) {
	if p.observer != nil {
		p.observer.ObserveRun(src.ID, strategy, r.Status, seconds, r.ItemCount, r.QualityScore)
	}
}

// BaseURL returns the feed gateway base URL in effect.
func (p *Pipeline) BaseURL() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.baseURL
}

// SetBaseURL changes the feed gateway base URL for subsequent runs.
func (p *Pipeline) SetBaseURL(u string) {
	p.mu.Lock()
	p.baseURL = strings.TrimSpace(u)
	p.mu.Unlock()
}

// feed returns a copy of the feed strategy bound to the current base URL.
func (p *Pipeline) feed() *collect.FeedStrategy {
	f := *p.collector.Feed
	f.BaseURL = p.BaseURL()
	return &f
}

func (p *Pipeline) strategyFor(src database.Source) collect.Strategy {
	c := collect.Collector{Feed: p.feed(), Scrape: p.collector.Scrape}
	return c.StrategyFor(src)
}

// RunOne checks a source and replaces its items on success.
func (p *Pipeline) RunOne(ctx context.Context, src database.Source) RunResult {
	return p.Check(ctx, src, true)
}

// Check runs src once. Every run that starts records exactly one outcome;
// items are replaced only when saveItems is set and the run produced some.
func (p *Pipeline) Check(ctx context.Context, src database.Source, saveItems bool) RunResult {
	release, ok, err := p.locks.TryLock(ctx, runlock.Key(src.ID))
	if err != nil {
		p.log.Error("run lock unavailable", zap.Int64("source_id", src.ID), zap.Error(err))
		return RunResult{SourceID: src.ID, Status: database.StatusError, Message: err.Error()}
	}
	if !ok {
		p.log.Info("source already running, skipping", zap.String("source", src.Name))
		return RunResult{SourceID: src.ID, Status: StatusSkipped, Message: "A run for this source is already in progress"}
	}
	defer release()

	start := p.now()
	strategy := p.strategyFor(src)
	log := p.log.With(zap.String("source", src.Name), zap.String("strategy", strategy.Name()))
	log.Debug("checking source", zap.String("route", src.Route))

	res, err := strategy.Collect(ctx, src)
	elapsed := p.now().Sub(start).Seconds()
	if err != nil {
		return p.recordFailure(src, strategy.Name(), err, elapsed)
	}

	status := database.StatusSuccess
	if len(res.Items) == 0 {
		status = database.StatusWarning
	}
	m := measure(res.Items)

	rec := database.RunRecord{
		Outcome: database.FetchOutcome{
			SourceID:         src.ID,
			Status:           status,
			HTTPStatus:       res.HTTPStatus,
			ItemCount:        len(res.Items),
			AvgTitleLength:   m.avgTitle,
			AvgContentLength: m.avgContent,
			ImageCount:       m.images,
			QualityScore:     m.score,
			Duration:         elapsed,
		},
		Items:        res.Items,
		ReplaceItems: saveItems && len(res.Items) > 0,
	}
	if status == database.StatusWarning {
		rec.Outcome.ErrorMessage = res.Message
	}
	if status == database.StatusSuccess && m.score < LowQualityThreshold {
		rec.Alerts = append(rec.Alerts, database.Alert{
			SourceID: &src.ID,
			Level:    database.LevelWarning,
			Message:  fmt.Sprintf("Low quality feed: %s (Score: %d/100)", src.Name, m.score),
		})
	}

	if _, err := p.db.RecordRun(rec); err != nil {
		log.Error("saving run failed", zap.Error(err))
		return p.recordFailure(src, strategy.Name(), fmt.Errorf("saving run: %w", err), elapsed)
	}

	log.Info("source checked",
		zap.String("status", status),
		zap.Int("items", len(res.Items)),
		zap.Int("quality", m.score),
		zap.Float64("duration", elapsed))
	result := RunResult{
		SourceID:     src.ID,
		Status:       status,
		Message:      res.Message,
		ItemCount:    len(res.Items),
		QualityScore: m.score,
	}
	p.observe(src, strategy.Name(), result, elapsed)
	return result
}

// recordFailure stores an error outcome with its alert. Nothing else of the
// run is persisted.
func (p *Pipeline) recordFailure(src database.Source, strategy string, runErr error, elapsed float64) RunResult {
	msg := runErr.Error()
	outcome := database.FetchOutcome{
		SourceID:     src.ID,
		Status:       database.StatusError,
		ErrorMessage: msg,
		Duration:     elapsed,
	}
	if code, ok := fetch.StatusCode(runErr); ok {
		outcome.HTTPStatus = &code
	}

	prefix := "Failed to fetch feed"
	if strategy == "scrape" {
		prefix = "Failed to process custom route"
	}
	alert := database.Alert{
		SourceID: &src.ID,
		Level:    database.LevelError,
		Message:  fmt.Sprintf("%s: %s - %s", prefix, src.Name, msg),
	}

	var cfgErr *collect.ConfigError
	fields := []zap.Field{zap.String("source", src.Name), zap.Error(runErr), zap.Bool("config", errors.As(runErr, &cfgErr))}
	p.log.Warn("source check failed", fields...)

	if _, err := p.db.RecordRun(database.RunRecord{Outcome: outcome, Alerts: []database.Alert{alert}}); err != nil {
		p.log.Error("recording failed run", zap.String("source", src.Name), zap.Error(err))
	}
	result := RunResult{SourceID: src.ID, Status: database.StatusError, Message: msg}
	p.observe(src, strategy, result, elapsed)
	return result
}

type metrics struct {
	avgTitle   float64
	avgContent float64
	images     int
	score      int
}

// measure computes the run metrics over items. Content length is the plain
// text length recorded at extraction.
func measure(items []database.Item) metrics {
	var m metrics
	if len(items) == 0 {
		m.score = quality.Score(0, 0, 0)
		return m
	}
	var titles, contents int
	for _, it := range items {
		titles += utf8.RuneCountInString(it.Title)
		contents += it.ExtractionMetadata.ContentLength
		if it.ImageURL != "" {
			m.images++
		}
	}
	n := float64(len(items))
	m.avgTitle = float64(titles) / n
	m.avgContent = float64(contents) / n
	m.score = quality.Score(len(items), m.avgContent, float64(m.images)/n)
	return m
}

// RunAll checks every active source in turn and returns how many were run.
func (p *Pipeline) RunAll(ctx context.Context) (int, error) {
	sources, err := p.db.ListSources(database.SourceFilter{ActiveOnly: true})
	if err != nil {
		return 0, fmt.Errorf("listing active sources: %w", err)
	}

	p.log.Info("checking all active sources", zap.Int("sources", len(sources)))
	ran := 0
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return ran, err
		}
		if r := p.RunOne(ctx, src); r.Status != StatusSkipped {
			ran++
		}
	}
	return ran, nil
}

// Validate fetches and parses route without persisting anything.
func (p *Pipeline) Validate(ctx context.Context, route string) (bool, string) {
	if collect.IsCustomRoute(route) {
		return true, "Custom route format is valid"
	}

	feed, err := p.feed().FetchFeed(ctx, route)
	if err != nil {
		var cfgErr *collect.ConfigError
		var parseErr *collect.ParseError
		switch {
		case errors.As(err, &cfgErr):
			return false, cfgErr.Msg
		case errors.As(err, &parseErr):
			return false, "Parse error: " + parseErr.Err.Error()
		default:
			return false, "Request error: " + err.Error()
		}
	}
	if len(feed.Items) == 0 {
		return true, "Feed is valid but contains no items"
	}
	return true, fmt.Sprintf("Valid feed with %d items", len(feed.Items))
}

// Preview maps the first entries of route without persisting them.
func (p *Pipeline) Preview(ctx context.Context, route string, limit int) ([]collect.PreviewItem, error) {
	return p.feed().Preview(ctx, route, limit)
}

// SuggestHints fetches pageURL and proposes extraction hints for it.
func (p *Pipeline) SuggestHints(ctx context.Context, pageURL string) (extract.Hints, error) {
	page, err := p.collector.Scrape.Pages.Page(ctx, pageURL)
	if err != nil {
		return extract.Hints{}, fmt.Errorf("fetching %s: %w", pageURL, err)
	}
	return extract.SuggestHints(page.Doc, pageURL), nil
}
