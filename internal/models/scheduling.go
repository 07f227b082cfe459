package models

import "time"

type FallbackPolicy string

const (
	FallbackSkip       FallbackPolicy = "skip"
	FallbackDoubleBook FallbackPolicy = "double_book"
	FallbackManual     FallbackPolicy = "manual"
)

// SlotConfig is the input to the slot generator: the window of allowed
// day/time combinations in which candidate send timestamps may be placed.
type SlotConfig struct {
	DateRangeStart time.Time     `json:"dateRangeStart"`
	DateRangeEnd   time.Time     `json:"dateRangeEnd"`
	Weekdays       []int         `json:"weekdays"` // 0=Sunday .. 6=Saturday
	StartHour      int           `json:"startHour"`
	EndHour        int           `json:"endHour"`
	Timezone       string        `json:"timezone"`
	MinGap         time.Duration `json:"minGap"`
	MinLeadDays    int           `json:"minLeadDays"` // business days
	MaxLeadDays    int           `json:"maxLeadDays"` // business days
}

// SchedulingSettings governs collision handling at dispatch time.
type SchedulingSettings struct {
	AllowDoubleBooking       bool           `json:"allowDoubleBooking"`
	MaxDoubleBookingsPerSlot int            `json:"maxDoubleBookingsPerSlot"`
	FallbackPolicy           FallbackPolicy `json:"fallbackPolicy"`
	EventDuration            time.Duration  `json:"eventDuration"`
}

// ValidationResult is the outcome of validating a slot configuration.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// QueueStatus is the counts-by-status projection for dashboards.
type QueueStatus struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

// CampaignRsvpStats aggregates response tracking for one campaign.
type CampaignRsvpStats struct {
	Total          int     `json:"total"`
	Sent           int     `json:"sent"`
	Accepted       int     `json:"accepted"`
	Declined       int     `json:"declined"`
	Tentative      int     `json:"tentative"`
	NoResponse     int     `json:"noResponse"`
	AcceptanceRate float64 `json:"acceptanceRate"`
	ResponseRate   float64 `json:"responseRate"`
}
