// Package collect turns a source into normalized items. Feed routes are
// fetched from the gateway and parsed; custom routes are scraped directly.
package collect

import (
	"context"
	"strings"

	"github.com/TobiSchelling/feedwatch/internal/database"
)

// CustomRoutePrefix marks a route whose original URL is scraped instead of
// fetched through the gateway.
const CustomRoutePrefix = "custom/"

// Strategy obtains the items of one source.
type Strategy interface {
	// Name identifies the strategy in logs and alerts.
	Name() string
	Collect(ctx context.Context, src database.Source) (*Result, error)
}

// Result is what a strategy produced for a source.
type Result struct {
	Items      []database.Item
	Message    string
	HTTPStatus *int
}

// ConfigError reports a misconfigured source. It is returned before any
// network access takes place.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string { return e.Msg }

// IsCustomRoute reports whether route denotes direct page scraping.
func IsCustomRoute(route string) bool {
	return strings.HasPrefix(route, CustomRoutePrefix)
}

// Collector picks the strategy for a source.
type Collector struct {
	Feed   *FeedStrategy
	Scrape *ScrapeStrategy
}

// StrategyFor returns the scrape strategy for custom routes and the feed
// strategy for everything else.
func (c *Collector) StrategyFor(src database.Source) Strategy {
	if IsCustomRoute(src.Route) {
		return c.Scrape
	}
	return c.Feed
}
