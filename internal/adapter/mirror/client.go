// Package mirror delivers notification cards to a user's timeline through
// the Google Mirror API.
package mirror

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/couchcryptid/quake-notifier/internal/domain"
)

// DefaultBaseURL is the Google APIs host serving the Mirror API.
const DefaultBaseURL = "https://www.googleapis.com"

const (
	timelinePath = "/mirror/v1/timeline"
	uploadPath   = "/upload/mirror/v1/timeline"
	imageType    = "image/png"
)

// Client implements dispatch.DeliveryChannel. One Deliver call inserts one
// timeline item.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a timeline client. An empty baseURL uses DefaultBaseURL.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// timelineItem is the JSON metadata of a Mirror timeline insert.
type timelineItem struct {
	DisplayTime   string     `json:"displayTime"`
	HTML          string     `json:"html"`
	BundleID      string     `json:"bundleId,omitempty"`
	IsBundleCover bool       `json:"isBundleCover,omitempty"`
	MenuItems     []menuItem `json:"menuItems"`
	Notification  *notifyCfg `json:"notification,omitempty"`
}

type menuItem struct {
	Action string `json:"action"`
}

type notifyCfg struct {
	Level string `json:"level"`
}

func newTimelineItem(card domain.NotificationCard) timelineItem {
	item := timelineItem{
		DisplayTime:   card.DisplayTimeString(),
		HTML:          card.BodyHTML,
		BundleID:      card.BundleID,
		IsBundleCover: card.IsBundleCover,
		MenuItems:     []menuItem{{Action: "DELETE"}},
	}
	// Only the card the user sees first chimes.
	if card.BundleID == "" || card.IsBundleCover {
		item.Notification = &notifyCfg{Level: "DEFAULT"}
	}
	return item
}

// Deliver inserts card into the user's timeline. A 401 or 403 response is
// reported as domain.ErrCredentialInvalid; any other failure as
// domain.ErrDeliveryFailed.
func (c *Client) Deliver(ctx context.Context, userID string, cred domain.Credential, card domain.NotificationCard) error {
	meta, err := json.Marshal(newTimelineItem(card))
	if err != nil {
		return fmt.Errorf("%w: encode timeline item: %w", domain.ErrDeliveryFailed, err)
	}

	req, err := c.newRequest(ctx, meta, card.MapImage)
	if err != nil {
		return fmt.Errorf("%w: create request: %w", domain.ErrDeliveryFailed, err)
	}
	req.Header.Set("Authorization", cred.AuthorizationHeader())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: timeline insert: %w", domain.ErrDeliveryFailed, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: status %d: %s", domain.ErrCredentialInvalid, resp.StatusCode, body)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("%w: status %d: %s", domain.ErrDeliveryFailed, resp.StatusCode, body)
	}

	c.logger.Debug("timeline item inserted",
		"user_id", userID,
		"event_id", card.EventID,
		"bundle_id", card.BundleID,
		"cover", card.IsBundleCover,
		"with_map", len(card.MapImage) > 0,
	)
	return nil
}

func (c *Client) newRequest(ctx context.Context, meta, image []byte) (*http.Request, error) {
	if len(image) > 0 {
		return c.multipartRequest(ctx, meta, image)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+timelinePath, bytes.NewReader(meta))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	return req, nil
}

// multipartRequest builds a multipart/related upload carrying the item
// metadata followed by the map attachment.
func (c *Client) multipartRequest(ctx context.Context, meta, image []byte) (*http.Request, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	metaPart, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"application/json; charset=UTF-8"},
	})
	if err != nil {
		return nil, err
	}
	if _, err := metaPart.Write(meta); err != nil {
		return nil, err
	}

	imagePart, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type": {imageType},
	})
	if err != nil {
		return nil, err
	}
	if _, err := imagePart.Write(image); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+uploadPath+"?uploadType=multipart", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "multipart/related; boundary="+mw.Boundary())
	return req, nil
}
