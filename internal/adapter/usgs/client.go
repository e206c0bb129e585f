package usgs

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/quake-notifier/internal/domain"
	"github.com/jonboulle/clockwork"
)

// maxFeedBytes caps the response body; the all_day feed is well under this.
const maxFeedBytes = 32 << 20

// Client implements dispatch.FeedFetcher against a USGS GeoJSON summary feed.
type Client struct {
	feedURL    string
	httpClient *http.Client
	clock      clockwork.Clock
	logger     *slog.Logger
}

// NewClient creates a feed client for feedURL with a per-request timeout.
func NewClient(feedURL string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		feedURL: feedURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		clock:  clockwork.NewRealClock(),
		logger: logger,
	}
}

// Fetch downloads and parses the feed. FetchedAt is taken before the
// request is sent so no event generated during the request is skipped by
// the next watermark.
func (c *Client) Fetch(ctx context.Context) (domain.Feed, error) {
	fetchedAt := c.clock.Now().UTC()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.feedURL, nil)
	if err != nil {
		return domain.Feed{}, fmt.Errorf("%w: create request: %w", domain.ErrFeedUnavailable, err)
	}
	req.Header.Set("Accept", "application/geo+json, application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Feed{}, fmt.Errorf("%w: %w", domain.ErrFeedUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.Feed{}, fmt.Errorf("%w: status %d: %s", domain.ErrFeedUnavailable, resp.StatusCode, body)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return domain.Feed{}, fmt.Errorf("%w: read body: %w", domain.ErrFeedUnavailable, err)
	}

	events, err := domain.ParseFeed(data)
	if err != nil {
		return domain.Feed{}, err
	}

	c.logger.Debug("feed fetched", "url", c.feedURL, "events", len(events), "bytes", len(data))
	return domain.Feed{Events: events, FetchedAt: fetchedAt}, nil
}
