package domain

import (
	"strconv"
	"time"
)

// Point is a WGS-84 coordinate pair.
type Point struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// Earthquake is a single event parsed from the feed. It is never persisted.
type Earthquake struct {
	ID          string    `json:"id"`
	Lon         float64   `json:"lon"`
	Lat         float64   `json:"lat"`
	Depth       float64   `json:"depth_km,omitempty"`
	Magnitude   float64   `json:"magnitude"`
	NoMagnitude bool      `json:"magnitude_unknown,omitempty"` // feed reported mag: null
	Place       string    `json:"place"`
	OccurredAt  time.Time `json:"occurred_at"`
	URL         string    `json:"url,omitempty"`
}

// MagnitudeText formats the magnitude as reported, without rounding, or
// "unknown" when the feed carried none.
func (e Earthquake) MagnitudeText() string {
	if e.NoMagnitude {
		return "unknown"
	}
	return strconv.FormatFloat(e.Magnitude, 'f', -1, 64)
}

// Epicenter returns the event location as a Point.
func (e Earthquake) Epicenter() Point {
	return Point{Lon: e.Lon, Lat: e.Lat}
}

// InterestPoint is a location a user wants earthquake alerts for.
type InterestPoint struct {
	ID          string  `json:"id"`
	OwnerUserID string  `json:"owner_user_id"`
	Description string  `json:"description"`
	Lon         float64 `json:"lon"`
	Lat         float64 `json:"lat"`
}

// Point returns the interest point location.
func (p InterestPoint) Point() Point {
	return Point{Lon: p.Lon, Lat: p.Lat}
}

// Feed is the result of one successful feed fetch.
type Feed struct {
	Events    []Earthquake
	FetchedAt time.Time
}

// Credential is an already-obtained per-user authorization for the
// timeline API.
type Credential struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type,omitempty"`
	Expiry      time.Time `json:"expiry,omitempty"`
}

// Valid reports whether the credential carries a token that has not expired
// at the given time. A zero Expiry never expires.
func (c Credential) Valid(now time.Time) bool {
	if c.AccessToken == "" {
		return false
	}
	return c.Expiry.IsZero() || now.Before(c.Expiry)
}

// AuthorizationHeader formats the credential for an HTTP Authorization header.
func (c Credential) AuthorizationHeader() string {
	tokenType := c.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	return tokenType + " " + c.AccessToken
}

// DeliveryRecord describes one card successfully inserted into a user's
// timeline.
type DeliveryRecord struct {
	UserID        string    `json:"user_id"`
	EventID       string    `json:"event_id,omitempty"`
	BundleID      string    `json:"bundle_id,omitempty"`
	IsBundleCover bool      `json:"is_bundle_cover"`
	BundleSize    int       `json:"bundle_size,omitempty"`
	Magnitude     float64   `json:"magnitude,omitempty"`
	Place         string    `json:"place,omitempty"`
	HasMapImage   bool      `json:"has_map_image"`
	DeliveredAt   time.Time `json:"delivered_at"`
}
