package models

import "time"

type InviteStatus string

const (
	InviteStatusPending  InviteStatus = "pending"
	InviteStatusSent     InviteStatus = "sent"
	InviteStatusAccepted InviteStatus = "accepted"
	InviteStatusDeclined InviteStatus = "declined"
	InviteStatusCanceled InviteStatus = "canceled"
	InviteStatusFailed   InviteStatus = "failed"
)

type RSVPStatus string

const (
	RSVPPending     RSVPStatus = "pending"
	RSVPAccepted    RSVPStatus = "accepted"
	RSVPDeclined    RSVPStatus = "declined"
	RSVPTentative   RSVPStatus = "tentative"
	RSVPNeedsAction RSVPStatus = "needsAction"
)

// IsTerminal reports whether polling can stop for an invite with this RSVP.
func (s RSVPStatus) IsTerminal() bool {
	return s == RSVPAccepted || s == RSVPDeclined
}

type ResponseSource string

const (
	SourcePolling ResponseSource = "polling"
	SourceWebhook ResponseSource = "webhook"
	SourceManual  ResponseSource = "manual"
)

// ScheduledInvite is the externally visible projection of a dispatched job.
// Exactly one non-terminal invite exists per underlying queue job.
type ScheduledInvite struct {
	ID              string       `db:"id"`
	JobID           string       `db:"job_id"`
	CampaignID      string       `db:"campaign_id"`
	AccountID       string       `db:"account_id"`
	RecipientEmail  string       `db:"recipient_email"`
	RecipientName   string       `db:"recipient_name"`
	ProviderEventID string       `db:"provider_event_id"`
	ScheduledForUTC time.Time    `db:"scheduled_for_utc"`
	RecipientLocal  string       `db:"recipient_local"`
	Status          InviteStatus `db:"status"`
	RSVP            RSVPStatus   `db:"rsvp"`
	WasDoubleBooked bool         `db:"was_double_booked"`
	CreatedAt       time.Time    `db:"created_at"`
	UpdatedAt       time.Time    `db:"updated_at"`
}

// ResponseEvent is an observed RSVP transition. A row is recorded only when
// the observation actually changes the invite's stored status; no-op
// duplicates are dropped before they reach storage.
type ResponseEvent struct {
	ID         int64          `db:"id"`
	InviteID   string         `db:"invite_id"`
	OldStatus  RSVPStatus     `db:"old_status"`
	NewStatus  RSVPStatus     `db:"new_status"`
	Source     ResponseSource `db:"source"`
	DetectedAt time.Time      `db:"detected_at"`
}

// UnresolvedWebhook stores a provider push payload that could not be matched
// to a known invite, kept for audit rather than dropped.
type UnresolvedWebhook struct {
	ID         int64     `db:"id"`
	EventType  string    `db:"event_type"`
	RawPayload string    `db:"raw_payload"`
	Reason     string    `db:"reason"`
	Processed  bool      `db:"processed"`
	ReceivedAt time.Time `db:"received_at"`
}
