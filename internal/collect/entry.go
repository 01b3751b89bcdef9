package collect

import (
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"
)

// Media is an attached media object (media:content or enclosure).
type Media struct {
	URL  string
	Type string
}

// Entry is the feed entry as seen by the item mapper. Every field is
// optional; empty means the feed did not carry it.
type Entry struct {
	Title          string
	Link           string
	GUID           string
	Summary        string // summary or RSS description
	ContentField   string // Atom content, JSON content_html
	ContentEncoded string // RSS content:encoded
	ITunesSummary  string
	Creator        string // dc:creator or the direct author
	AuthorName     string // first structured author
	Published      *time.Time
	Updated        *time.Time
	PublishedRaw   string
	UpdatedRaw     string
	MediaContent   []Media
	Enclosures     []Media
	Thumbnails     []string
	Image          string
}

// newEntry copies the fields the mapper needs out of a parsed item.
// feedType is the gofeed feed type ("rss", "atom" or "json"); it decides
// whether the item content is a content field or content:encoded.
func newEntry(item *gofeed.Item, feedType string) Entry {
	e := Entry{
		Title:        strings.TrimSpace(item.Title),
		Link:         strings.TrimSpace(item.Link),
		GUID:         strings.TrimSpace(item.GUID),
		Summary:      item.Description,
		Published:    item.PublishedParsed,
		Updated:      item.UpdatedParsed,
		PublishedRaw: item.Published,
		UpdatedRaw:   item.Updated,
	}

	if feedType == "rss" {
		e.ContentEncoded = item.Content
	} else {
		e.ContentField = item.Content
	}

	if item.ITunesExt != nil {
		e.ITunesSummary = item.ITunesExt.Summary
	}

	if item.DublinCoreExt != nil && len(item.DublinCoreExt.Creator) > 0 {
		e.Creator = strings.TrimSpace(item.DublinCoreExt.Creator[0])
	} else if item.Author != nil {
		e.Creator = strings.TrimSpace(item.Author.Name)
	}
	for _, p := range item.Authors {
		if p != nil && strings.TrimSpace(p.Name) != "" {
			e.AuthorName = strings.TrimSpace(p.Name)
			break
		}
	}

	for _, enc := range item.Enclosures {
		if enc != nil {
			e.Enclosures = append(e.Enclosures, Media{URL: enc.URL, Type: enc.Type})
		}
	}
	if item.Image != nil {
		e.Image = strings.TrimSpace(item.Image.URL)
	}

	if media, ok := item.Extensions["media"]; ok {
		for _, m := range mediaElements(media, "content") {
			e.MediaContent = append(e.MediaContent, Media{URL: m.Attrs["url"], Type: m.Attrs["type"]})
		}
		for _, m := range mediaElements(media, "thumbnail") {
			if u := m.Attrs["url"]; u != "" {
				e.Thumbnails = append(e.Thumbnails, u)
			}
		}
	}
	return e
}

// mediaElements returns the named media elements, including those nested in
// media:group.
func mediaElements(media map[string][]ext.Extension, name string) []ext.Extension {
	out := append([]ext.Extension(nil), media[name]...)
	for _, group := range media["group"] {
		out = append(out, group.Children[name]...)
	}
	return out
}
