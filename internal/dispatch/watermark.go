package dispatch

import (
	"context"
	"sync/atomic"
	"time"
)

// WatermarkStore holds the time of the last successful feed fetch. It is
// read once at cycle start and written once at cycle end.
type WatermarkStore interface {
	// Load returns the stored watermark and whether one has been stored.
	Load(ctx context.Context) (time.Time, bool, error)
	Store(ctx context.Context, t time.Time) error
}

// MemoryWatermark is a process-local WatermarkStore.
type MemoryWatermark struct {
	nanos atomic.Int64
	set   atomic.Bool
}

// NewMemoryWatermark returns an empty MemoryWatermark.
func NewMemoryWatermark() *MemoryWatermark {
	return &MemoryWatermark{}
}

func (m *MemoryWatermark) Load(_ context.Context) (time.Time, bool, error) {
	if !m.set.Load() {
		return time.Time{}, false, nil
	}
	return time.Unix(0, m.nanos.Load()).UTC(), true, nil
}

func (m *MemoryWatermark) Store(_ context.Context, t time.Time) error {
	m.nanos.Store(t.UnixNano())
	m.set.Store(true)
	return nil
}
