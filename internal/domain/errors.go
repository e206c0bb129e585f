package domain

import "errors"

// Cycle-level failures. Both abandon the cycle and leave the watermark as is.
var (
	ErrFeedUnavailable = errors.New("feed unavailable")
	ErrFeedMalformed   = errors.New("feed malformed")
)

// User-level failures. The affected user is skipped for the cycle.
var (
	ErrCredentialMissing = errors.New("credential missing")
	ErrCredentialInvalid = errors.New("credential invalid")
)

// Item-level failures.
var (
	ErrDeliveryFailed      = errors.New("delivery failed")
	ErrMapImageUnavailable = errors.New("map image unavailable")
)
