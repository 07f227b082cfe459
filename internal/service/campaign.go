package service

import (
	"context"
	"strings"
	"time"

	apperrors "calreach/internal/errors"
	"calreach/internal/metrics"
	"calreach/internal/models"
	"calreach/internal/scheduling"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// CampaignService turns a campaign definition into queue jobs. Campaign CRUD
// and recipient ingestion live outside the core; this is the boundary where
// they hand work to the dispatch pipeline.
type CampaignService struct {
	jobs      JobStore
	invites   InviteStore
	generator *scheduling.Generator
	logger    *logrus.Logger
	now       func() time.Time
}

func NewCampaignService(jobs JobStore, invites InviteStore, generator *scheduling.Generator, logger *logrus.Logger) *CampaignService {
	return &CampaignService{
		jobs:      jobs,
		invites:   invites,
		generator: generator,
		logger:    logger,
		now:       time.Now,
	}
}

// ProcessCampaign validates the campaign, assigns each recipient a send slot,
// and enqueues one job per recipient in a single transaction. Returns the
// number of jobs created.
func (cs *CampaignService) ProcessCampaign(ctx context.Context, campaign *models.Campaign) (int, error) {
	if err := validateCampaign(campaign); err != nil {
		return 0, err
	}

	slots, overAllocated, err := cs.assignSlots(campaign)
	if err != nil {
		return 0, err
	}

	jobs := make([]*models.QueueJob, 0, len(campaign.Recipients))
	for i, recipient := range campaign.Recipients {
		job := &models.QueueJob{
			ID:           uuid.New().String(),
			CampaignID:   campaign.ID,
			Recipient:    recipient,
			ScheduledFor: slots[i],
			Status:       models.JobStatusPending,
		}
		// Campaigns pinned to specific accounts spread recipients across them
		// round-robin; the dispatcher honors the assignment.
		if len(campaign.AccountIDs) > 0 {
			id := campaign.AccountIDs[i%len(campaign.AccountIDs)]
			job.AccountID = &id
		}
		jobs = append(jobs, job)
	}

	if err := cs.jobs.CreateQueueJobs(ctx, jobs); err != nil {
		return 0, apperrors.NewDatabaseError("enqueue campaign jobs", err)
	}

	cs.logger.WithFields(logrus.Fields{
		LogFieldCampaignID: campaign.ID,
		LogFieldCount:      len(jobs),
		"over_allocated":   overAllocated,
	}).Info("Campaign enqueued")
	metrics.AddToCounter("campaign_jobs_enqueued_total", float64(len(jobs)),
		map[string]string{"campaign": campaign.ID},
		"Queue jobs created from campaigns")
	return len(jobs), nil
}

func (cs *CampaignService) assignSlots(campaign *models.Campaign) ([]time.Time, int, error) {
	n := len(campaign.Recipients)

	// Without a scheduling window every job is due immediately and the
	// dispatch loop spreads sends by account cooldown alone.
	if campaign.Scheduling == nil {
		now := cs.now()
		slots := make([]time.Time, n)
		for i := range slots {
			slots[i] = now
		}
		return slots, 0, nil
	}

	result, err := cs.generator.GenerateSlots(*campaign.Scheduling, n, campaign.Settings.AllowDoubleBooking)
	if err != nil {
		return nil, 0, err
	}
	return result.Slots, result.OverAllocated, nil
}

func validateCampaign(campaign *models.Campaign) error {
	if campaign == nil || campaign.ID == "" {
		return apperrors.NewConfigError("id", "campaign id is required")
	}
	if len(campaign.Recipients) == 0 {
		return apperrors.NewConfigError("recipients", "campaign has no recipients")
	}
	for i, r := range campaign.Recipients {
		if !strings.Contains(r.Email, "@") {
			return apperrors.New(apperrors.ErrCodeInvalidInput,
				"recipient "+r.Email+" has an invalid address").
				WithContext("index", i)
		}
	}
	return nil
}

// CancelCampaign cancels every still-pending job of the campaign. Jobs
// already being dispatched finish; completed and failed jobs are untouched.
// Returns the number of jobs cancelled.
func (cs *CampaignService) CancelCampaign(ctx context.Context, campaignID string) (int64, error) {
	cancelled, err := cs.jobs.CancelCampaignJobs(ctx, campaignID)
	if err != nil {
		return 0, apperrors.NewDatabaseError("cancel campaign jobs", err)
	}
	cs.logger.WithFields(logrus.Fields{
		LogFieldCampaignID: campaignID,
		LogFieldCount:      cancelled,
	}).Info("Campaign queue cancelled")
	return cancelled, nil
}

// GetQueueStatus reports queue depth by job status.
func (cs *CampaignService) GetQueueStatus(ctx context.Context) (*models.QueueStatus, error) {
	status, err := cs.jobs.GetQueueStatus(ctx)
	if err != nil {
		return nil, apperrors.NewDatabaseError("queue status", err)
	}
	return status, nil
}

// GetCampaignRsvpStats aggregates response tracking for one campaign.
func (cs *CampaignService) GetCampaignRsvpStats(ctx context.Context, campaignID string) (*models.CampaignRsvpStats, error) {
	stats, err := cs.invites.GetCampaignRsvpStats(ctx, campaignID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("campaign rsvp stats", err)
	}
	return stats, nil
}
