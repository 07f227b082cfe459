package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"calreach/internal/constants"
	apperrors "calreach/internal/errors"
	"calreach/internal/metrics"
	"calreach/internal/models"
	calendartypes "calreach/pkg/calendar/types"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// collision fallback probe limits for the skip policy
const (
	maxFreeSlotProbes   = 48
	collisionRetryDelay = 24 * time.Hour
)

// Dispatcher drains due queue jobs: it picks an account, resolves calendar
// collisions, sends the invite through the provider, and records the
// resulting booking and invite rows. Ticks are single-flight; a tick that
// fires while the previous one is still running is skipped.
type Dispatcher struct {
	jobs     JobStore
	invites  InviteStore
	accounts *AccountTracker
	ledger   *BookingLedger
	provider calendartypes.Client
	cfg      models.DispatchConfig
	sched    models.SchedulingConfig
	settings models.SchedulingSettings
	logger   *logrus.Logger
	now      func() time.Time

	busy   atomic.Bool
	active atomic.Bool
	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewDispatcher(jobs JobStore, invites InviteStore, accounts *AccountTracker, ledger *BookingLedger, provider calendartypes.Client, cfg models.DispatchConfig, sched models.SchedulingConfig, settings models.SchedulingSettings, logger *logrus.Logger) *Dispatcher {
	if cfg.TickIntervalSec <= 0 {
		cfg.TickIntervalSec = constants.DefaultTickIntervalSec
	}
	if cfg.GlobalDailyCap <= 0 {
		cfg.GlobalDailyCap = constants.DefaultGlobalDailyCap
	}
	if cfg.ProviderTimeoutSec <= 0 {
		cfg.ProviderTimeoutSec = constants.DefaultProviderTimeoutSec
	}
	if cfg.CooldownMinutes <= 0 {
		cfg.CooldownMinutes = constants.DefaultCooldownMinutes
	}
	if sched.MinGapMinutes <= 0 {
		sched.MinGapMinutes = constants.DefaultMinGapMinutes
	}
	if sched.DefaultDurationMin <= 0 {
		sched.DefaultDurationMin = constants.DefaultEventDurationMinutes
	}
	d := &Dispatcher{
		jobs:     jobs,
		invites:  invites,
		accounts: accounts,
		ledger:   ledger,
		provider: provider,
		cfg:      cfg,
		sched:    sched,
		settings: settings,
		logger:   logger,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
	d.active.Store(cfg.StartActive)
	return d
}

// SetActive toggles the global dispatch switch. While inactive, ticks still
// fire but dispatch nothing.
func (d *Dispatcher) SetActive(active bool) {
	d.active.Store(active)
	d.logger.WithField(LogFieldStatus, active).Info("Dispatch active state changed")
}

func (d *Dispatcher) IsActive() bool {
	return d.active.Load()
}

// Start runs the tick loop until the context is cancelled or Stop is called.
func (d *Dispatcher) Start(ctx context.Context) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		ticker := time.NewTicker(time.Duration(d.cfg.TickIntervalSec) * time.Second)
		defer ticker.Stop()

		d.logger.WithFields(logrus.Fields{
			"interval": d.cfg.TickIntervalSec,
			"active":   d.IsActive(),
		}).Info("Dispatch loop started")

		for {
			select {
			case <-ctx.Done():
				d.logger.Info("Dispatch loop context cancelled, stopping")
				return
			case <-d.stopCh:
				d.logger.Info("Dispatch loop stop signal received, stopping")
				return
			case <-ticker.C:
				if err := d.Tick(ctx); err != nil {
					d.logger.WithError(err).Error("Dispatch tick failed")
				}
			}
		}
	}()
}

// Stop signals the loop and waits for the in-flight tick to finish.
func (d *Dispatcher) Stop() {
	close(d.stopCh)
	d.wg.Wait()
}

// Tick dispatches at most one due job; pacing comes from the tick interval,
// not from draining the queue. Overlapping ticks collapse: if a previous tick
// is still running this call returns immediately.
func (d *Dispatcher) Tick(ctx context.Context) error {
	if !d.busy.CompareAndSwap(false, true) {
		d.logger.Debug("Previous tick still running, skipping")
		metrics.IncrementCounter("dispatch_ticks_skipped_total", nil, "Ticks skipped because the previous tick was still running")
		return nil
	}
	defer d.busy.Store(false)

	if !d.IsActive() {
		d.logger.Debug("Dispatch inactive, skipping tick")
		return nil
	}

	start := d.now()
	defer func() {
		metrics.RecordTimer("dispatch_tick_duration", d.now().Sub(start), nil, "Duration of one dispatch tick")
	}()

	if err := d.accounts.MaybeResetDaily(ctx); err != nil {
		d.logger.WithError(err).Error("Daily counter reset failed")
	}

	day := d.accounts.DayKey(d.now())
	sentToday, err := d.accounts.store.GetGlobalSends(ctx, day)
	if err != nil {
		return apperrors.NewDatabaseError("read global send counter", err)
	}
	if sentToday >= d.cfg.GlobalDailyCap {
		d.logger.WithFields(logrus.Fields{
			LogFieldDay:   day,
			LogFieldCount: sentToday,
		}).Info("Global daily cap reached")
		return nil
	}

	job, err := d.jobs.GetNextPendingJob(ctx, d.now())
	if err != nil {
		return apperrors.NewDatabaseError("fetch next pending job", err)
	}
	if job == nil {
		return nil
	}

	// A job bound to an account waits for that account; only unassigned jobs
	// take the least-recently-used pick.
	var candidates []string
	if job.AccountID != nil && *job.AccountID != "" {
		candidates = append(candidates, *job.AccountID)
	}

	account, err := d.accounts.SelectEligibleAccount(ctx, candidates...)
	if err != nil {
		return err
	}
	if account == nil {
		d.parkUntilAccountFree(ctx, job, candidates...)
		return nil
	}

	sent, err := d.dispatchJob(ctx, job, account, day)
	if err != nil {
		d.logger.WithFields(logrus.Fields{
			LogFieldJobID:     job.ID,
			LogFieldAccountID: account.ID,
		}).WithError(err).Error("Job dispatch failed")
	}
	if sent {
		metrics.IncrementCounter("invites_dispatched_total", nil, "Invites dispatched")
	}
	return nil
}

func (d *Dispatcher) parkUntilAccountFree(ctx context.Context, job *models.QueueJob, candidates ...string) {
	next, err := d.accounts.NextEligibleAt(ctx, candidates...)
	if err != nil || next.Before(d.now()) {
		next = d.now().Add(time.Duration(d.cfg.CooldownMinutes) * time.Minute)
	}
	ineligible := apperrors.NewAccountIneligibleError(next)
	if err := d.jobs.RescheduleJob(ctx, job.ID, next, ineligible.Message); err != nil {
		d.logger.WithField(LogFieldJobID, job.ID).WithError(err).Error("Failed to park job")
		return
	}
	d.logger.WithFields(logrus.Fields{
		LogFieldJobID: job.ID,
		LogFieldSlot:  next,
	}).Info("No eligible account, job parked")
}

// dispatchJob sends one job. The bool result reports whether an invite
// actually went out (collision deferrals and claim races return false, nil).
func (d *Dispatcher) dispatchJob(ctx context.Context, job *models.QueueJob, account *models.SendingAccount, day string) (bool, error) {
	duration := time.Duration(job.Recipient.Event.DurationMinutes) * time.Minute
	if duration <= 0 {
		duration = time.Duration(d.sched.DefaultDurationMin) * time.Minute
	}
	slotStart := job.ScheduledFor
	slotEnd := slotStart.Add(duration)

	occupied, err := d.ledger.CountAt(ctx, account.ID, slotStart, slotEnd)
	if err != nil {
		return false, err
	}

	doubleBooked := false
	if occupied > 0 {
		proceed, err := d.resolveCollision(ctx, job, account, slotStart, duration, occupied)
		if err != nil || !proceed {
			return false, err
		}
		doubleBooked = true
	}

	claimed, err := d.jobs.ClaimJob(ctx, job.ID)
	if err != nil {
		return false, apperrors.NewDatabaseError("claim job", err)
	}
	if !claimed {
		return false, nil
	}

	event := calendartypes.EventDetails{
		Subject:       job.Recipient.Event.Subject,
		Body:          job.Recipient.Event.Body,
		Location:      job.Recipient.Event.Location,
		Start:         slotStart,
		End:           slotEnd,
		AttendeeEmail: job.Recipient.Email,
		AttendeeName:  job.Recipient.Name,
	}

	pctx, cancel := context.WithTimeout(ctx, time.Duration(d.cfg.ProviderTimeoutSec)*time.Second)
	resp, sendErr := d.provider.SendInvite(pctx, account.ID, event)
	cancel()
	if sendErr != nil {
		return false, d.failJob(ctx, job, sendErr)
	}

	invite := &models.ScheduledInvite{
		ID:              uuid.New().String(),
		JobID:           job.ID,
		CampaignID:      job.CampaignID,
		AccountID:       account.ID,
		RecipientEmail:  job.Recipient.Email,
		RecipientName:   job.Recipient.Name,
		ProviderEventID: resp.EventID,
		ScheduledForUTC: slotStart.UTC(),
		RecipientLocal:  formatRecipientLocal(slotStart, job.Recipient.Timezone),
		Status:          models.InviteStatusSent,
		RSVP:            models.RSVPPending,
		WasDoubleBooked: doubleBooked,
	}
	if err := d.invites.CreateScheduledInvite(ctx, invite); err != nil {
		return false, d.failJob(ctx, job, apperrors.NewDatabaseError("store scheduled invite", err))
	}
	if err := d.ledger.Book(ctx, account.ID, slotStart, slotEnd); err != nil {
		d.logger.WithField(LogFieldJobID, job.ID).WithError(err).Error("Failed to record booking for sent invite")
	}
	if err := d.accounts.RecordSend(ctx, account.ID); err != nil {
		d.logger.WithField(LogFieldAccountID, account.ID).WithError(err).Error("Failed to record account send")
	}
	if err := d.accounts.store.IncrementGlobalSends(ctx, day); err != nil {
		d.logger.WithField(LogFieldDay, day).WithError(err).Error("Failed to bump global send counter")
	}
	if err := d.jobs.UpdateJobStatus(ctx, job.ID, models.JobStatusCompleted, nil); err != nil {
		return true, apperrors.NewDatabaseError("complete job", err)
	}

	LogDispatch(ctx, d.logger, job.ID, account.ID, job.Recipient.Email)
	return true, nil
}

// resolveCollision applies the fallback policy when the job's slot is
// occupied on the chosen account. It returns true when dispatch should
// proceed into the occupied slot (double booking), false when the job was
// deferred or failed instead.
func (d *Dispatcher) resolveCollision(ctx context.Context, job *models.QueueJob, account *models.SendingAccount, slotStart time.Time, duration time.Duration, occupied int) (bool, error) {
	policy := d.settings.FallbackPolicy
	if d.settings.AllowDoubleBooking && policy == "" {
		policy = models.FallbackDoubleBook
	}

	switch policy {
	case models.FallbackDoubleBook:
		limit := d.settings.MaxDoubleBookingsPerSlot
		if limit <= 0 {
			limit = constants.DefaultMaxDoubleBookings
		}
		if occupied <= limit {
			d.logger.WithFields(logrus.Fields{
				LogFieldJobID:     job.ID,
				LogFieldAccountID: account.ID,
				LogFieldSlot:      slotStart,
				LogFieldCount:     occupied,
			}).Warn("Slot occupied, double booking")
			metrics.IncrementCounter("dispatch_double_bookings_total", nil, "Invites sent into already-booked slots")
			return true, nil
		}
		// Slot saturated; fall through to the skip behavior.
		fallthrough

	case models.FallbackSkip, "":
		next, err := d.findNextFreeSlot(ctx, account.ID, slotStart, duration)
		if err != nil {
			return false, err
		}
		if err := d.jobs.RescheduleJob(ctx, job.ID, next, "slot collision"); err != nil {
			return false, apperrors.NewDatabaseError("reschedule collided job", err)
		}
		d.logger.WithFields(logrus.Fields{
			LogFieldJobID: job.ID,
			LogFieldSlot:  next,
		}).Info("Slot occupied, job moved to next free slot")
		metrics.IncrementCounter("dispatch_collisions_deferred_total", nil, "Jobs moved off occupied slots")
		return false, nil

	case models.FallbackManual:
		collision := apperrors.NewCollisionError(account.ID, slotStart)
		if err := d.failJob(ctx, job, collision); err != nil {
			return false, err
		}
		return false, nil

	default:
		return false, apperrors.NewConfigError("fallback_policy", fmt.Sprintf("unknown fallback policy %q", policy))
	}
}

// findNextFreeSlot probes forward from start in minimum-gap steps. If every
// probe within the horizon is occupied the job retries a day later.
func (d *Dispatcher) findNextFreeSlot(ctx context.Context, accountID string, start time.Time, duration time.Duration) (time.Time, error) {
	step := time.Duration(d.sched.MinGapMinutes) * time.Minute
	candidate := start
	for i := 0; i < maxFreeSlotProbes; i++ {
		candidate = candidate.Add(step)
		free, err := d.ledger.IsFree(ctx, accountID, candidate, candidate.Add(duration))
		if err != nil {
			return time.Time{}, err
		}
		if free {
			return candidate, nil
		}
	}
	return start.Add(collisionRetryDelay), nil
}

func (d *Dispatcher) failJob(ctx context.Context, job *models.QueueJob, cause error) error {
	msg := cause.Error()
	if err := d.jobs.UpdateJobStatus(ctx, job.ID, models.JobStatusFailed, &msg); err != nil {
		return apperrors.NewDatabaseError("mark job failed", err)
	}
	metrics.IncrementCounter("dispatch_jobs_failed_total", nil, "Jobs that ended in the failed state")
	return cause
}

func formatRecipientLocal(t time.Time, timezone string) string {
	if timezone == "" {
		return t.UTC().Format(time.RFC3339)
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return t.UTC().Format(time.RFC3339)
	}
	return t.In(loc).Format(time.RFC3339)
}
