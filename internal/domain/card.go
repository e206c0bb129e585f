package domain

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"html/template"
	"time"

	"github.com/google/uuid"
)

// NotificationCard is one timeline item. BundleID is empty for unbundled
// cards and MapImage is nil when no map could be fetched.
type NotificationCard struct {
	EventID       string
	DisplayTime   time.Time
	BodyHTML      string
	MapImage      []byte
	BundleID      string
	IsBundleCover bool
	BundleSize    int // number of cards a cover summarizes
}

// DisplayTimeString formats DisplayTime as RFC 3339 in UTC without
// fractional seconds.
func (c NotificationCard) DisplayTimeString() string {
	return c.DisplayTime.UTC().Truncate(time.Second).Format(time.RFC3339)
}

var (
	quakeCardTmpl = template.Must(template.New("quake").Parse(
		`<article><section><p class="text-auto-size">` +
			`Magnitude <strong class="yellow">{{.MagnitudeText}}</strong> earthquake</p>` +
			`<p class="text-small">{{.Place}}</p></section>` +
			`<footer><p>USGS</p></footer></article>`))

	coverCardTmpl = template.Must(template.New("cover").Parse(
		`<article><section><p class="text-auto-size">{{.}} earthquakes</p></section></article>`))
)

// CardBuilder turns earthquakes into timeline cards. A nil map provider
// disables map images.
type CardBuilder struct {
	maps MapImageProvider
}

// NewCardBuilder creates a CardBuilder.
func NewCardBuilder(maps MapImageProvider) *CardBuilder {
	return &CardBuilder{maps: maps}
}

// MapsEnabled reports whether a map provider is configured.
func (b *CardBuilder) MapsEnabled() bool {
	return b.maps != nil
}

// BuildCard renders the card for one earthquake. Pass an empty bundleID for
// an unbundled card.
func (b *CardBuilder) BuildCard(event Earthquake, bundleID string) NotificationCard {
	var body bytes.Buffer
	if err := quakeCardTmpl.Execute(&body, event); err != nil {
		// The template only reads strings; execution cannot fail.
		panic(fmt.Sprintf("render quake card: %v", err))
	}
	return NotificationCard{
		EventID:     event.ID,
		DisplayTime: event.OccurredAt.UTC().Truncate(time.Second),
		BodyHTML:    body.String(),
		BundleID:    bundleID,
	}
}

// BuildCoverCard renders the cover card stating how many cards the bundle
// holds. now is the cover's display time; the dispatcher passes its own
// clock reading.
func (b *CardBuilder) BuildCoverCard(bundleID string, count int, now time.Time) NotificationCard {
	var body bytes.Buffer
	if err := coverCardTmpl.Execute(&body, count); err != nil {
		panic(fmt.Sprintf("render cover card: %v", err))
	}
	return NotificationCard{
		DisplayTime:   now.UTC().Truncate(time.Second),
		BodyHTML:      body.String(),
		BundleID:      bundleID,
		IsBundleCover: true,
		BundleSize:    count,
	}
}

// FetchMapImage fetches a map of the epicenter. Failures are reported in
// the returned MapImage, never as an error.
func (b *CardBuilder) FetchMapImage(ctx context.Context, event Earthquake) MapImage {
	if b.maps == nil {
		return unavailableImage(nil)
	}
	data, err := b.maps.FetchImage(ctx, event.Lon, event.Lat)
	if err != nil {
		return unavailableImage(err)
	}
	if len(data) == 0 {
		return unavailableImage(nil)
	}
	return MapImage{Data: data}
}

// NewBundleID returns a short opaque token grouping the cards of one
// delivery.
func NewBundleID() string {
	id := uuid.New()
	return base64.RawURLEncoding.EncodeToString(id[:])
}
