package models

import (
	"time"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// IsTerminal reports whether a job in this status can never be dispatched again.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// Recipient is the payload carried by a queue job: who receives the invite
// and what event should be created for them.
type Recipient struct {
	Email       string            `json:"email"`
	Name        string            `json:"name"`
	Timezone    string            `json:"timezone,omitempty"`
	MergeFields map[string]string `json:"mergeFields,omitempty"`
	Event       EventRequest      `json:"event"`
}

// EventRequest describes the calendar event a job should create.
type EventRequest struct {
	Subject         string `json:"subject"`
	Body            string `json:"body,omitempty"`
	DurationMinutes int    `json:"durationMinutes"`
	Location        string `json:"location,omitempty"`
}

// QueueJob is one scheduled send: a (campaign, recipient) pair with a target
// timestamp. The dispatch loop is the only writer of Status once a job is
// created; exactly one job exists per (campaign, recipient) pair.
type QueueJob struct {
	ID           string    `db:"id"`
	CampaignID   string    `db:"campaign_id"`
	Recipient    Recipient `db:"recipient"`
	ScheduledFor time.Time `db:"scheduled_for"`
	Status       JobStatus `db:"status"`
	Attempts     int       `db:"attempts"`
	AccountID    *string   `db:"account_id"`
	LastError    *string   `db:"last_error"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// SendingAccount is a mailbox/calendar identity used to dispatch invites.
// Account connection lifecycle is owned externally; the core reads and
// updates only the usage fields.
type SendingAccount struct {
	ID          string     `db:"id"`
	Email       string     `db:"email"`
	DisplayName string     `db:"display_name"`
	IsActive    bool       `db:"is_active"`
	IsPaused    bool       `db:"is_paused"`
	PauseReason *string    `db:"pause_reason"`
	SendsToday  int        `db:"sends_today"`
	LastUsedAt  *time.Time `db:"last_used_at"`
	CreatedAt   time.Time  `db:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at"`
}

// BookedSlot records a committed time window on one account's calendar.
// Rows are only created as part of a dispatch, never independently.
type BookedSlot struct {
	ID        int64     `db:"id"`
	AccountID string    `db:"account_id"`
	StartTime time.Time `db:"start_time"`
	EndTime   time.Time `db:"end_time"`
	CreatedAt time.Time `db:"created_at"`
}
