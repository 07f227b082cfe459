package models

import "time"

// Campaign is the slice of campaign state this core needs to enqueue work.
// CRUD, templates, and recipient ingestion live in the external layer that
// calls ProcessCampaign.
type Campaign struct {
	ID         string             `json:"id"`
	Name       string             `json:"name"`
	Recipients []Recipient        `json:"recipients"`
	AccountIDs []string           `json:"accountIds"`
	Scheduling *SlotConfig        `json:"scheduling,omitempty"` // nil means send-as-soon-as-eligible
	Settings   SchedulingSettings `json:"settings"`
	CreatedAt  time.Time          `json:"createdAt"`
}
