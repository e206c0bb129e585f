package dispatch

import (
	"time"

	"github.com/couchcryptid/quake-notifier/internal/domain"
)

// State is the phase of a dispatch cycle.
type State int32

const (
	StateIdle State = iota
	StateFetching
	StateMatching
	StateDelivering
)

func (s State) String() string {
	switch s {
	case StateFetching:
		return "fetching"
	case StateMatching:
		return "matching"
	case StateDelivering:
		return "delivering"
	default:
		return "idle"
	}
}

// Cycle outcomes.
const (
	OutcomeCompleted       = "completed"
	OutcomeFetchFailed     = "fetch_failed"
	OutcomeWatermarkFailed = "watermark_failed"
	OutcomeDirectoryFailed = "directory_failed"
	OutcomeSkipped         = "skipped"
)

// Per-user outcomes.
const (
	OutcomeNoMatch           = "no_match"
	OutcomeDelivered         = "delivered"
	OutcomePartial           = "partial"
	OutcomeDeliveryFailed    = "delivery_failed"
	OutcomeCredentialMissing = "credential_missing"
	OutcomeCredentialInvalid = "credential_invalid"
	OutcomeCredentialError   = "credential_error"
	OutcomeDirectoryError    = "directory_error"
	OutcomeUserPanicked      = "panicked"
)

// CycleReport summarizes one dispatch cycle.
type CycleReport struct {
	StartedAt         time.Time
	Outcome           string
	Err               error
	Watermark         time.Time // watermark after the cycle
	WatermarkAdvanced bool
	FetchedAt         time.Time
	FetchedEvents     int
	NewEvents         []domain.Earthquake
	Users             []UserResult
}

// CardsDelivered is the total number of cards delivered across users.
func (r CycleReport) CardsDelivered() int {
	n := 0
	for _, u := range r.Users {
		n += u.Delivered
	}
	return n
}

// User returns the result for userID.
func (r CycleReport) User(userID string) (UserResult, bool) {
	for _, u := range r.Users {
		if u.UserID == userID {
			return u, true
		}
	}
	return UserResult{}, false
}

// UserResult is the outcome of processing one user in a cycle.
type UserResult struct {
	UserID    string
	Outcome   string
	Matched   int
	Delivered int
	Failed    int
	BundleID  string
	Err       error
}
