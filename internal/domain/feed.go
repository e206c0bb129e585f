package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// DefaultInitialLookback bounds the first cycle after startup.
const DefaultInitialLookback = 30 * time.Minute

// geoJSONFeed mirrors the subset of the USGS summary format we read.
type geoJSONFeed struct {
	Type     string           `json:"type"`
	Features []geoJSONFeature `json:"features"`
}

type geoJSONFeature struct {
	ID         string `json:"id"`
	Properties struct {
		Mag   *float64 `json:"mag"`
		Place string   `json:"place"`
		Time  *int64   `json:"time"`
		URL   string   `json:"url"`
	} `json:"properties"`
	Geometry struct {
		Coordinates []float64 `json:"coordinates"` // [lon, lat, depth]
	} `json:"geometry"`
}

// ParseFeed decodes a GeoJSON earthquake document. Any structural problem
// is reported as ErrFeedMalformed.
func ParseFeed(data []byte) ([]Earthquake, error) {
	var doc geoJSONFeed
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFeedMalformed, err)
	}
	if doc.Features == nil {
		return nil, fmt.Errorf("%w: missing features", ErrFeedMalformed)
	}

	events := make([]Earthquake, 0, len(doc.Features))
	for i, f := range doc.Features {
		if f.ID == "" {
			return nil, fmt.Errorf("%w: feature %d has no id", ErrFeedMalformed, i)
		}
		if len(f.Geometry.Coordinates) < 2 {
			return nil, fmt.Errorf("%w: feature %d (%q) has no coordinates", ErrFeedMalformed, i, f.ID)
		}
		if f.Properties.Time == nil {
			return nil, fmt.Errorf("%w: feature %d (%q) has no time", ErrFeedMalformed, i, f.ID)
		}

		e := Earthquake{
			ID:         f.ID,
			Lon:        f.Geometry.Coordinates[0],
			Lat:        f.Geometry.Coordinates[1],
			Place:      f.Properties.Place,
			OccurredAt: time.UnixMilli(*f.Properties.Time).UTC(),
			URL:        f.Properties.URL,
		}
		if len(f.Geometry.Coordinates) > 2 {
			e.Depth = f.Geometry.Coordinates[2]
		}
		if f.Properties.Mag != nil {
			e.Magnitude = *f.Properties.Mag
		} else {
			e.NoMagnitude = true
		}
		events = append(events, e)
	}
	return events, nil
}

// SelectNew keeps the events that occurred strictly after watermark.
func SelectNew(events []Earthquake, watermark time.Time) []Earthquake {
	var out []Earthquake
	for _, e := range events {
		if e.OccurredAt.After(watermark) {
			out = append(out, e)
		}
	}
	return out
}

// InitialWatermark is the watermark used when no cycle has succeeded yet:
// lookback before now, so the first cycle neither replays the whole feed
// nor misses events from the startup window.
func InitialWatermark(now time.Time, lookback time.Duration) time.Time {
	if lookback <= 0 {
		lookback = DefaultInitialLookback
	}
	return now.UTC().Add(-lookback)
}
