package domain

import (
	"context"
	"errors"
)

// MapImageProvider renders a static map centered on a coordinate.
type MapImageProvider interface {
	FetchImage(ctx context.Context, lon, lat float64) ([]byte, error)
}

// MapImage is the outcome of a best-effort map fetch: either image data or
// the reason it is unavailable. It is never returned as an error.
type MapImage struct {
	Data []byte
	Err  error
}

// Available reports whether the fetch produced image data.
func (m MapImage) Available() bool {
	return m.Err == nil && len(m.Data) > 0
}

// unavailableImage wraps reason with ErrMapImageUnavailable.
func unavailableImage(reason error) MapImage {
	if reason == nil {
		return MapImage{Err: ErrMapImageUnavailable}
	}
	if errors.Is(reason, ErrMapImageUnavailable) {
		return MapImage{Err: reason}
	}
	return MapImage{Err: errors.Join(ErrMapImageUnavailable, reason)}
}
