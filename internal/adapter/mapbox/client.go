package mapbox

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/couchcryptid/quake-notifier/internal/domain"
	"github.com/couchcryptid/quake-notifier/internal/observability"
)

const (
	defaultBaseURL = "https://api.mapbox.com/styles/v1"
	defaultStyle   = "mapbox/streets-v12"

	// Card thumbnails: 120x180 at 2x density, marker on the epicenter.
	mapZoom      = 7
	mapWidth     = 120
	mapHeight    = 180
	markerColor  = "ff0000"
	maxImageSize = 2 << 20
)

// Client implements domain.MapImageProvider using the Mapbox Static Images API.
type Client struct {
	token      string
	httpClient *http.Client
	baseURL    string
	style      string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a Mapbox static image client.
func NewClient(token string, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		token: token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: defaultBaseURL,
		style:   defaultStyle,
		metrics: metrics,
		logger:  logger,
	}
}

// FetchImage renders a map centered on (lon, lat) with a pin on that point.
func (c *Client) FetchImage(ctx context.Context, lon, lat float64) ([]byte, error) {
	start := time.Now()
	defer func() {
		c.metrics.MapDuration.Observe(time.Since(start).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.imageURL(lon, lat), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %w", domain.ErrMapImageUnavailable, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: static image request: %w", domain.ErrMapImageUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: mapbox API error: status %d: %s", domain.ErrMapImageUnavailable, resp.StatusCode, body)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "image/") {
		return nil, fmt.Errorf("%w: unexpected content type %q", domain.ErrMapImageUnavailable, ct)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageSize))
	if err != nil {
		return nil, fmt.Errorf("%w: read image: %w", domain.ErrMapImageUnavailable, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty image", domain.ErrMapImageUnavailable)
	}

	c.logger.Debug("map image fetched", "lon", lon, "lat", lat, "bytes", len(data))
	return data, nil
}

func (c *Client) imageURL(lon, lat float64) string {
	// Mapbox uses lon,lat order.
	coord := fmt.Sprintf("%.4f,%.4f", lon, lat)
	overlay := fmt.Sprintf("pin-m+%s(%s)", markerColor, coord)
	u := fmt.Sprintf("%s/%s/static/%s/%s,%d/%dx%d@2x",
		c.baseURL, c.style, overlay, coord, mapZoom, mapWidth, mapHeight)
	params := url.Values{
		"access_token": {c.token},
	}
	return u + "?" + params.Encode()
}
