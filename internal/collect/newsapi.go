package collect

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const newsAPIBaseURL = "https://newsapi.org/v2/everything"

// NewsAPIClient fetches articles from NewsAPI.
type NewsAPIClient struct {
	BaseURL string

	apiKey string
	client *http.Client
	logger *zap.Logger
}

// NewNewsAPIClient creates a new NewsAPI client reading its key from
// apiKeyEnv.
func NewNewsAPIClient(apiKeyEnv string, logger *zap.Logger) *NewsAPIClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NewsAPIClient{
		BaseURL: newsAPIBaseURL,
		apiKey:  os.Getenv(apiKeyEnv),
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
}

// IsConfigured returns whether the API key is available.
func (c *NewsAPIClient) IsConfigured() bool {
	return c.apiKey != ""
}

type newsAPIResponse struct {
	Status   string `json:"status"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Articles []struct {
		URL         string `json:"url"`
		Title       string `json:"title"`
		PublishedAt string `json:"publishedAt"`
		Content     string `json:"content"`
		Description string `json:"description"`
		Source      struct {
			Name string `json:"name"`
		} `json:"source"`
	} `json:"articles"`
}

// Search searches for English articles matching query published within
// daysBack.
func (c *NewsAPIClient) Search(ctx context.Context, query string, daysBack, pageSize int) ([]Entry, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("newsapi: no API key configured")
	}

	now := time.Now()
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 100
	}

	params := url.Values{
		"q":        {query},
		"from":     {now.AddDate(0, 0, -daysBack).Format(dateLayout)},
		"to":       {now.Format(dateLayout)},
		"language": {"en"},
		"pageSize": {strconv.Itoa(pageSize)},
		"sortBy":   {"relevancy"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("newsapi: building request: %w", err)
	}
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("newsapi: %w", err)
	}
	defer resp.Body.Close()

	var result newsAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("newsapi: HTTP %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("newsapi: decoding response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || result.Status != "ok" {
		return nil, fmt.Errorf("newsapi: HTTP %d: %s %s", resp.StatusCode, result.Code, result.Message)
	}

	var entries []Entry
	for _, a := range result.Articles {
		if a.URL == "" || a.Title == "" {
			continue
		}
		if a.Title == "[Removed]" || a.URL == "https://removed.com" {
			continue
		}

		var pubDate string
		if a.PublishedAt != "" {
			if t, err := time.Parse(time.RFC3339, a.PublishedAt); err == nil {
				pubDate = t.Format(dateLayout)
			}
		}

		content := a.Content
		if content == "" {
			content = a.Description
		}

		source := "NewsAPI"
		if a.Source.Name != "" {
			source = a.Source.Name
		}

		entries = append(entries, Entry{
			URL:           a.URL,
			Title:         strings.TrimSpace(a.Title),
			PublishedDate: pubDate,
			Content:       trimTruncationMarker(strings.TrimSpace(content)),
			Source:        source,
		})
	}

	c.logger.Info("fetched articles from NewsAPI", zap.Int("articles", len(entries)), zap.String("query", query))
	return entries, nil
}

// trimTruncationMarker drops the "[+123 chars]" suffix NewsAPI appends to
// truncated content.
func trimTruncationMarker(content string) string {
	i := strings.LastIndex(content, "[+")
	if i < 0 || !strings.HasSuffix(content, " chars]") {
		return content
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(content[:i]), "…"))
}
