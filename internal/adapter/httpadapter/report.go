package httpadapter

import (
	"time"

	"github.com/couchcryptid/quake-notifier/internal/dispatch"
)

// ReportView is the JSON rendering of a dispatch.CycleReport.
type ReportView struct {
	Outcome           string           `json:"outcome"`
	Error             string           `json:"error,omitempty"`
	StartedAt         time.Time        `json:"started_at"`
	FetchedAt         *time.Time       `json:"fetched_at,omitempty"`
	Watermark         time.Time        `json:"watermark"`
	WatermarkAdvanced bool             `json:"watermark_advanced"`
	FetchedEvents     int              `json:"fetched_events"`
	NewEvents         []string         `json:"new_events"`
	CardsDelivered    int              `json:"cards_delivered"`
	Users             []UserResultView `json:"users"`
}

// UserResultView is the JSON rendering of a dispatch.UserResult.
type UserResultView struct {
	UserID    string `json:"user_id"`
	Outcome   string `json:"outcome"`
	Matched   int    `json:"matched"`
	Delivered int    `json:"delivered"`
	Failed    int    `json:"failed"`
	BundleID  string `json:"bundle_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// NewReportView converts a cycle report for serialization.
func NewReportView(r dispatch.CycleReport) ReportView {
	v := ReportView{
		Outcome:           r.Outcome,
		StartedAt:         r.StartedAt,
		Watermark:         r.Watermark,
		WatermarkAdvanced: r.WatermarkAdvanced,
		FetchedEvents:     r.FetchedEvents,
		NewEvents:         make([]string, 0, len(r.NewEvents)),
		CardsDelivered:    r.CardsDelivered(),
		Users:             make([]UserResultView, 0, len(r.Users)),
	}
	if r.Err != nil {
		v.Error = r.Err.Error()
	}
	if !r.FetchedAt.IsZero() {
		fetchedAt := r.FetchedAt
		v.FetchedAt = &fetchedAt
	}
	for _, e := range r.NewEvents {
		v.NewEvents = append(v.NewEvents, e.ID)
	}
	for _, u := range r.Users {
		uv := UserResultView{
			UserID:    u.UserID,
			Outcome:   u.Outcome,
			Matched:   u.Matched,
			Delivered: u.Delivered,
			Failed:    u.Failed,
			BundleID:  u.BundleID,
		}
		if u.Err != nil {
			uv.Error = u.Err.Error()
		}
		v.Users = append(v.Users, uv)
	}
	return v
}
