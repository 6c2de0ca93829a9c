package collect

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/TobiSchelling/milcheck/internal/config"
)

const dateLayout = "2006-01-02"

const defaultNewsQuery = "breaking news"

// Entry is one collected article.
type Entry struct {
	URL           string `json:"url"`
	Title         string `json:"title"`
	PublishedDate string `json:"published_date,omitempty"`
	Content       string `json:"-"`
	Source        string `json:"source"`
}

// Text returns the text to analyze: the title followed by the content.
func (e Entry) Text() string {
	title := strings.TrimSpace(e.Title)
	content := strings.TrimSpace(e.Content)
	if content == "" {
		return title
	}
	if title == "" {
		return content
	}
	if !strings.ContainsAny(title[len(title)-1:], ".!?") {
		title += "."
	}
	return title + "\n\n" + content
}

// Result holds the results of a collection run.
type Result struct {
	TotalFound int
	Duplicates int
	Sources    map[string]int
	Entries    []Entry
}

// Collector gathers articles from RSS feeds and NewsAPI.
type Collector struct {
	feedParser *FeedParser
	newsClient *NewsAPIClient
	newsQuery  string
	daysBack   int
	logger     *zap.Logger
}

// NewCollector creates a new article collector.
func NewCollector(cfg *config.Config, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("collect")

	c := &Collector{
		daysBack: cfg.Fetch.DaysBack,
		logger:   logger,
	}
	if c.daysBack < 1 {
		c.daysBack = 1
	}

	if len(cfg.Sources.Feeds) > 0 {
		feeds := make([]FeedConfig, len(cfg.Sources.Feeds))
		for i, f := range cfg.Sources.Feeds {
			feeds[i] = FeedConfig{URL: f.URL, Name: f.Name}
		}
		c.feedParser = NewFeedParser(feeds, logger)
	}

	apiCfg := cfg.Sources.APIs.NewsAPI
	if apiCfg.Enabled {
		c.newsClient = NewNewsAPIClient(apiCfg.APIKeyEnv, logger)
		c.newsQuery = apiCfg.Query
		if c.newsQuery == "" {
			c.newsQuery = defaultNewsQuery
		}
	}

	return c
}

// Collect gathers entries from every configured source, dropping repeated
// URLs.
func (c *Collector) Collect(ctx context.Context) *Result {
	r := &Result{Sources: make(map[string]int)}
	seen := make(map[string]struct{})

	add := func(entries []Entry) {
		r.TotalFound += len(entries)
		for _, e := range entries {
			if _, dup := seen[e.URL]; dup {
				r.Duplicates++
				continue
			}
			seen[e.URL] = struct{}{}
			r.Entries = append(r.Entries, e)
			r.Sources[e.Source]++
		}
	}

	if c.feedParser != nil {
		c.logger.Info("collecting from RSS feeds")
		add(c.feedParser.ParseAll(ctx, c.daysBack))
	}

	if c.newsClient != nil {
		if !c.newsClient.IsConfigured() {
			c.logger.Warn("NewsAPI enabled but no API key set, skipping")
		} else {
			c.logger.Info("collecting from NewsAPI")
			articles, err := c.newsClient.Search(ctx, c.newsQuery, c.daysBack, 100)
			if err != nil {
				c.logger.Warn("NewsAPI search failed", zap.Error(err))
			}
			add(articles)
		}
	}

	c.logger.Info("collection complete",
		zap.Int("found", r.TotalFound),
		zap.Int("unique", len(r.Entries)),
		zap.Int("duplicates", r.Duplicates),
	)
	return r
}
