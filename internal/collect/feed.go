package collect

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"
)

const maxPerFeed = 20

// FeedConfig represents a single feed configuration.
type FeedConfig struct {
	URL  string
	Name string
}

// FeedParser parses RSS/Atom feeds.
type FeedParser struct {
	feeds  []FeedConfig
	logger *zap.Logger
}

// NewFeedParser creates a new FeedParser.
func NewFeedParser(feeds []FeedConfig, logger *zap.Logger) *FeedParser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FeedParser{feeds: feeds, logger: logger}
}

// ParseAll parses all configured feeds and returns entries published within
// daysBack. A feed that fails to parse is logged and skipped.
func (fp *FeedParser) ParseAll(ctx context.Context, daysBack int) []Entry {
	cutoff := time.Now().AddDate(0, 0, -daysBack)
	var all []Entry

	parser := gofeed.NewParser()
	for _, fc := range fp.feeds {
		if ctx.Err() != nil {
			break
		}
		name := fc.Name
		if name == "" {
			name = extractSourceName(fc.URL)
		}

		entries, err := parseFeed(ctx, parser, fc.URL, name, cutoff)
		if err != nil {
			fp.logger.Warn("failed to parse feed", zap.String("url", fc.URL), zap.Error(err))
			continue
		}
		all = append(all, entries...)
		fp.logger.Info("parsed feed",
			zap.String("source", name),
			zap.Int("entries", len(entries)),
			zap.Int("days_back", daysBack),
		)
	}

	return all
}

func parseFeed(ctx context.Context, parser *gofeed.Parser, feedURL, sourceName string, cutoff time.Time) ([]Entry, error) {
	feed, err := parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, err
	}

	var entries []Entry
	for _, item := range feed.Items {
		if len(entries) >= maxPerFeed {
			break
		}

		entry := parseItem(item, sourceName)
		if entry == nil {
			continue
		}
		if isWithinWindow(entry.PublishedDate, cutoff) {
			entries = append(entries, *entry)
		}
	}

	return entries, nil
}

func parseItem(item *gofeed.Item, source string) *Entry {
	itemURL := item.Link
	if itemURL == "" {
		itemURL = item.GUID
	}
	if itemURL == "" {
		return nil
	}

	title := strings.TrimSpace(item.Title)
	if title == "" {
		return nil
	}

	var publishedDate string
	if item.PublishedParsed != nil {
		publishedDate = item.PublishedParsed.Format(dateLayout)
	} else if item.UpdatedParsed != nil {
		publishedDate = item.UpdatedParsed.Format(dateLayout)
	}

	var content string
	if item.Content != "" {
		content = stripHTML(item.Content)
	} else if item.Description != "" {
		content = stripHTML(item.Description)
	}

	return &Entry{
		URL:           itemURL,
		Title:         title,
		PublishedDate: publishedDate,
		Content:       content,
		Source:        source,
	}
}

func isWithinWindow(publishedDate string, cutoff time.Time) bool {
	if publishedDate == "" {
		return true
	}
	pub, err := time.Parse(dateLayout, publishedDate)
	if err != nil {
		return true
	}
	return !pub.Before(cutoff.Truncate(24 * time.Hour))
}

// stripHTML returns the text of an HTML fragment with whitespace collapsed.
func stripHTML(fragment string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return strings.Join(strings.Fields(fragment), " ")
	}
	doc.Find("script, style").Remove()
	var parts []string
	doc.Find("body").Contents().Each(func(_ int, s *goquery.Selection) {
		parts = append(parts, s.Text())
	})
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}

func extractSourceName(feedURL string) string {
	u, err := url.Parse(feedURL)
	if err != nil || u.Hostname() == "" {
		return feedURL
	}
	host := strings.ToLower(u.Hostname())

	for _, prefix := range []string{"www.", "blog.", "blogs.", "rss.", "feeds."} {
		host = strings.TrimPrefix(host, prefix)
	}

	parts := strings.Split(host, ".")
	if len(parts) >= 2 {
		name := parts[len(parts)-2]
		return strings.ToUpper(name[:1]) + name[1:]
	}
	return strings.ToUpper(host[:1]) + host[1:]
}
