package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
	"go.uber.org/zap"

	"github.com/TobiSchelling/milcheck/internal/collect"
)

const userAgent = "milcheck/1.0 (content analysis)"

// minArticleRunes is the shortest extraction accepted as article text.
const minArticleRunes = 100

const maxPageBytes = 5 << 20

// ErrNoContent is returned when a page has no extractable article text.
var ErrNoContent = errors.New("no extractable content")

// HTTPError is a non-success HTTP status from the origin.
type HTTPError struct {
	Code int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d: %s", e.Code, http.StatusText(e.Code))
}

// Result holds the results of a content fetch run.
type Result struct {
	Fetched           int
	AlreadyHadContent int
	Failed            int
}

// ContentFetcher fetches full article text via HTTP + readability extraction.
type ContentFetcher struct {
	client *http.Client
	logger *zap.Logger
}

// NewContentFetcher creates a new content fetcher.
func NewContentFetcher(timeout time.Duration, logger *zap.Logger) *ContentFetcher {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ContentFetcher{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		logger: logger.Named("fetch"),
	}
}

// FetchText downloads articleURL and returns its readable text.
func (f *ContentFetcher) FetchText(ctx context.Context, articleURL string) (string, error) {
	parsedURL, err := url.Parse(articleURL)
	if err != nil {
		return "", fmt.Errorf("parsing url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, articleURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching %s: %w", articleURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", &HTTPError{Code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", articleURL, err)
	}

	article, err := readability.FromReader(strings.NewReader(string(body)), parsedURL)
	if err != nil {
		return "", fmt.Errorf("extracting %s: %w", articleURL, err)
	}

	text := strings.TrimSpace(article.TextContent)
	if len([]rune(text)) < minArticleRunes {
		return "", ErrNoContent
	}
	return text, nil
}

// FetchMissingContent fills Content for entries that only carry a summary.
// After an HTTP error the remaining entries from the same domain are
// skipped.
func (f *ContentFetcher) FetchMissingContent(ctx context.Context, entries []collect.Entry) *Result {
	result := &Result{}
	failedDomains := make(map[string]struct{})

	for i := range entries {
		entry := &entries[i]
		if entry.Content != "" {
			result.AlreadyHadContent++
			continue
		}
		if ctx.Err() != nil {
			result.Failed++
			continue
		}

		domain := ""
		if u, err := url.Parse(entry.URL); err == nil {
			domain = strings.ToLower(u.Host)
		}
		if _, failed := failedDomains[domain]; failed {
			result.Failed++
			continue
		}

		text, err := f.FetchText(ctx, entry.URL)
		if err != nil {
			result.Failed++
			var httpErr *HTTPError
			if errors.As(err, &httpErr) && domain != "" {
				failedDomains[domain] = struct{}{}
				f.logger.Warn("http error, skipping remaining entries from domain",
					zap.String("url", entry.URL),
					zap.String("domain", domain),
					zap.Int("status", httpErr.Code),
				)
				continue
			}
			f.logger.Debug("no content fetched", zap.String("url", entry.URL), zap.Error(err))
			continue
		}

		entry.Content = text
		result.Fetched++
		f.logger.Debug("fetched content", zap.String("title", entry.Title))
	}

	f.logger.Info("content fetch complete",
		zap.Int("fetched", result.Fetched),
		zap.Int("failed", result.Failed),
		zap.Int("already_had_content", result.AlreadyHadContent),
	)
	return result
}
