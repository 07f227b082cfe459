package service

import (
	"context"
	"time"

	"calreach/internal/models"
)

// JobStore is the queue persistence surface the dispatch loop depends on.
type JobStore interface {
	CreateQueueJobs(ctx context.Context, jobs []*models.QueueJob) error
	GetNextPendingJob(ctx context.Context, now time.Time) (*models.QueueJob, error)
	GetJob(ctx context.Context, id string) (*models.QueueJob, error)
	ClaimJob(ctx context.Context, id string) (bool, error)
	UpdateJobStatus(ctx context.Context, id string, status models.JobStatus, lastError *string) error
	RescheduleJob(ctx context.Context, id string, newTime time.Time, reason string) error
	CancelCampaignJobs(ctx context.Context, campaignID string) (int64, error)
	GetQueueStatus(ctx context.Context) (*models.QueueStatus, error)
}

// AccountStore persists sending account identity and usage counters.
type AccountStore interface {
	GetAccount(ctx context.Context, id string) (*models.SendingAccount, error)
	GetActiveAccounts(ctx context.Context) ([]*models.SendingAccount, error)
	RecordAccountSend(ctx context.Context, id string, now time.Time) error
	SetAccountPaused(ctx context.Context, id string, paused bool, reason *string) error
	ResetDailyCounters(ctx context.Context) error
	IncrementGlobalSends(ctx context.Context, day string) error
	GetGlobalSends(ctx context.Context, day string) (int, error)
}

// BookingStore persists committed calendar slots per account.
type BookingStore interface {
	BookSlot(ctx context.Context, slot *models.BookedSlot) error
	CountOverlappingBookings(ctx context.Context, accountID string, start, end time.Time) (int, error)
	ClearStaleBookings(ctx context.Context, before time.Time) (int64, error)
}

// InviteStore persists dispatched invites and their observed responses.
type InviteStore interface {
	CreateScheduledInvite(ctx context.Context, invite *models.ScheduledInvite) error
	GetInviteByID(ctx context.Context, id string) (*models.ScheduledInvite, error)
	GetInviteByJobID(ctx context.Context, jobID string) (*models.ScheduledInvite, error)
	GetInviteByProviderEventID(ctx context.Context, eventID string) (*models.ScheduledInvite, error)
	ListInvitesAwaitingResponse(ctx context.Context, limit int) ([]*models.ScheduledInvite, error)
	UpdateInviteRSVP(ctx context.Context, id string, expectedCurrent, next models.RSVPStatus) (bool, error)
	UpdateInviteStatus(ctx context.Context, id string, status models.InviteStatus) error
	GetCampaignRsvpStats(ctx context.Context, campaignID string) (*models.CampaignRsvpStats, error)
	RecordResponseEvent(ctx context.Context, event *models.ResponseEvent) error
	StoreUnresolvedWebhook(ctx context.Context, hook *models.UnresolvedWebhook) error
}
