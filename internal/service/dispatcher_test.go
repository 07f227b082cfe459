package service

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"calreach/internal/constants"
	"calreach/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	cur time.Time
}

func newTestClock(t time.Time) *testClock {
	return &testClock{cur: t}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur = c.cur.Add(d)
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type dispatcherFixture struct {
	dispatcher *Dispatcher
	jobs       *fakeJobStore
	accounts   *fakeAccountStore
	bookings   *fakeBookingStore
	invites    *fakeInviteStore
	provider   *mockCalendarClient
	clock      *testClock
}

func newDispatcherFixture(t *testing.T, cfg models.DispatchConfig, settings models.SchedulingSettings, accounts ...*models.SendingAccount) *dispatcherFixture {
	t.Helper()

	logger := testLogger()
	clock := newTestClock(time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC))

	jobStore := newFakeJobStore()
	accountStore := newFakeAccountStore(accounts...)
	bookingStore := newFakeBookingStore()
	inviteStore := newFakeInviteStore()
	provider := &mockCalendarClient{}

	tracker := NewAccountTracker(accountStore, cfg, logger)
	tracker.now = clock.Now
	ledger := NewBookingLedger(bookingStore, logger)
	ledger.now = clock.Now

	sched := models.SchedulingConfig{MinGapMinutes: 30, DefaultDurationMin: 30}
	d := NewDispatcher(jobStore, inviteStore, tracker, ledger, provider, cfg, sched, settings, logger)
	d.now = clock.Now

	return &dispatcherFixture{
		dispatcher: d,
		jobs:       jobStore,
		accounts:   accountStore,
		bookings:   bookingStore,
		invites:    inviteStore,
		provider:   provider,
		clock:      clock,
	}
}

func testAccount(id string) *models.SendingAccount {
	return &models.SendingAccount{
		ID:          id,
		Email:       id + "@sender.example.com",
		DisplayName: "Sender " + id,
		IsActive:    true,
	}
}

func dueJob(id, campaignID string, scheduledFor time.Time) *models.QueueJob {
	return &models.QueueJob{
		ID:         id,
		CampaignID: campaignID,
		Recipient: models.Recipient{
			Email:    id + "@prospect.example.com",
			Name:     "Prospect " + id,
			Timezone: "America/New_York",
			Event: models.EventRequest{
				Subject:         "Intro call",
				DurationMinutes: 30,
			},
		},
		ScheduledFor: scheduledFor,
		Status:       models.JobStatusPending,
	}
}

func defaultDispatchConfig() models.DispatchConfig {
	return models.DispatchConfig{
		TickIntervalSec:    60,
		GlobalDailyCap:     200,
		PerAccountDailyCap: 20,
		CooldownMinutes:    30,
		ProviderTimeoutSec: 5,
		ReferenceTimezone:  "UTC",
		StartActive:        true,
	}
}

func TestNewDispatcherAppliesConfigDefaults(t *testing.T) {
	f := newDispatcherFixture(t, models.DispatchConfig{StartActive: true}, models.SchedulingSettings{}, testAccount("acct-1"))

	cfg := f.dispatcher.cfg
	assert.Equal(t, constants.DefaultTickIntervalSec, cfg.TickIntervalSec)
	assert.Equal(t, constants.DefaultGlobalDailyCap, cfg.GlobalDailyCap)
	assert.Equal(t, constants.DefaultProviderTimeoutSec, cfg.ProviderTimeoutSec)
	// parking falls back to the cooldown when no account projects an
	// eligibility time, so an unset value must not collapse to zero
	assert.Equal(t, constants.DefaultCooldownMinutes, cfg.CooldownMinutes)
}

func TestDispatcherTickDispatchesDueJob(t *testing.T) {
	f := newDispatcherFixture(t, defaultDispatchConfig(), models.SchedulingSettings{}, testAccount("acct-1"))
	ctx := context.Background()

	job := dueJob("job-1", "camp-1", f.clock.Now().Add(-time.Minute))
	require.NoError(t, f.jobs.CreateQueueJobs(ctx, []*models.QueueJob{job}))

	require.NoError(t, f.dispatcher.Tick(ctx))

	stored, err := f.jobs.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, stored.Status)

	invite, err := f.invites.GetInviteByJobID(ctx, "job-1")
	require.NoError(t, err)
	require.NotNil(t, invite)
	assert.Equal(t, "acct-1", invite.AccountID)
	assert.Equal(t, models.InviteStatusSent, invite.Status)
	assert.Equal(t, models.RSVPPending, invite.RSVP)
	assert.False(t, invite.WasDoubleBooked)
	assert.NotEmpty(t, invite.ProviderEventID)

	// the slot is now committed on the account calendar
	count, err := f.bookings.CountOverlappingBookings(ctx, "acct-1", job.ScheduledFor, job.ScheduledFor.Add(30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// usage counters advanced
	account, err := f.accounts.GetAccount(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, 1, account.SendsToday)
	require.NotNil(t, account.LastUsedAt)

	day := f.clock.Now().Format("2006-01-02")
	global, err := f.accounts.GetGlobalSends(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, 1, global)
}

func TestDispatcherInactiveSkipsWork(t *testing.T) {
	cfg := defaultDispatchConfig()
	cfg.StartActive = false
	f := newDispatcherFixture(t, cfg, models.SchedulingSettings{}, testAccount("acct-1"))
	ctx := context.Background()

	require.NoError(t, f.jobs.CreateQueueJobs(ctx, []*models.QueueJob{dueJob("job-1", "camp-1", f.clock.Now().Add(-time.Minute))}))
	require.NoError(t, f.dispatcher.Tick(ctx))

	assert.Equal(t, 0, f.provider.sendCount())
	assert.Equal(t, 1, f.jobs.countByStatus(models.JobStatusPending))

	f.dispatcher.SetActive(true)
	require.NoError(t, f.dispatcher.Tick(ctx))
	assert.Equal(t, 1, f.provider.sendCount())
}

func TestDispatcherTickSingleFlight(t *testing.T) {
	f := newDispatcherFixture(t, defaultDispatchConfig(), models.SchedulingSettings{}, testAccount("acct-1"))
	ctx := context.Background()

	require.NoError(t, f.jobs.CreateQueueJobs(ctx, []*models.QueueJob{dueJob("job-1", "camp-1", f.clock.Now().Add(-time.Minute))}))

	// simulate a tick still in flight
	f.dispatcher.busy.Store(true)
	require.NoError(t, f.dispatcher.Tick(ctx))
	assert.Equal(t, 0, f.provider.sendCount())

	f.dispatcher.busy.Store(false)
	require.NoError(t, f.dispatcher.Tick(ctx))
	assert.Equal(t, 1, f.provider.sendCount())
}

func TestDispatcherFutureJobNotDispatched(t *testing.T) {
	f := newDispatcherFixture(t, defaultDispatchConfig(), models.SchedulingSettings{}, testAccount("acct-1"))
	ctx := context.Background()

	require.NoError(t, f.jobs.CreateQueueJobs(ctx, []*models.QueueJob{dueJob("job-1", "camp-1", f.clock.Now().Add(2*time.Hour))}))
	require.NoError(t, f.dispatcher.Tick(ctx))

	assert.Equal(t, 0, f.provider.sendCount())
	assert.Equal(t, 1, f.jobs.countByStatus(models.JobStatusPending))
}

func TestDispatcherGlobalDailyCap(t *testing.T) {
	cfg := defaultDispatchConfig()
	cfg.GlobalDailyCap = 2
	cfg.CooldownMinutes = 1
	// three accounts so the cooldown never becomes the limiting factor
	f := newDispatcherFixture(t, cfg, models.SchedulingSettings{},
		testAccount("acct-1"), testAccount("acct-2"), testAccount("acct-3"))
	ctx := context.Background()

	var jobs []*models.QueueJob
	for i := 0; i < 5; i++ {
		jobs = append(jobs, dueJob(jobID(i), "camp-1", f.clock.Now().Add(-time.Minute)))
	}
	require.NoError(t, f.jobs.CreateQueueJobs(ctx, jobs))

	require.NoError(t, f.dispatcher.Tick(ctx))
	require.NoError(t, f.dispatcher.Tick(ctx))

	assert.Equal(t, 2, f.provider.sendCount())
	assert.Equal(t, 2, f.jobs.countByStatus(models.JobStatusCompleted))
	assert.Equal(t, 3, f.jobs.countByStatus(models.JobStatusPending))

	// further ticks on the same day stay capped
	f.clock.Advance(5 * time.Minute)
	require.NoError(t, f.dispatcher.Tick(ctx))
	assert.Equal(t, 2, f.provider.sendCount())
}

func jobID(i int) string {
	return "job-" + string(rune('a'+i))
}

func TestDispatcherParksJobWhenNoAccountEligible(t *testing.T) {
	account := testAccount("acct-1")
	lastUsed := time.Date(2024, 6, 10, 8, 45, 0, 0, time.UTC) // 15 min before fixture clock
	account.LastUsedAt = &lastUsed

	f := newDispatcherFixture(t, defaultDispatchConfig(), models.SchedulingSettings{}, account)
	ctx := context.Background()

	require.NoError(t, f.jobs.CreateQueueJobs(ctx, []*models.QueueJob{dueJob("job-1", "camp-1", f.clock.Now().Add(-time.Minute))}))
	require.NoError(t, f.dispatcher.Tick(ctx))

	assert.Equal(t, 0, f.provider.sendCount())

	stored, err := f.jobs.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, stored.Status)
	// parked until the cooldown expires at 09:15
	assert.Equal(t, lastUsed.Add(30*time.Minute), stored.ScheduledFor)

	// once the cooldown has passed the job goes out
	f.clock.Advance(20 * time.Minute)
	require.NoError(t, f.dispatcher.Tick(ctx))
	assert.Equal(t, 1, f.provider.sendCount())
}

func TestDispatcherPerAccountCapAcrossTicks(t *testing.T) {
	cfg := defaultDispatchConfig()
	cfg.PerAccountDailyCap = 20
	cfg.CooldownMinutes = 30
	settings := models.SchedulingSettings{
		AllowDoubleBooking:       true,
		FallbackPolicy:           models.FallbackDoubleBook,
		MaxDoubleBookingsPerSlot: 100,
	}
	f := newDispatcherFixture(t, cfg, settings, testAccount("acct-1"))
	ctx := context.Background()

	var jobs []*models.QueueJob
	for i := 0; i < 25; i++ {
		jobs = append(jobs, dueJob(jobID(i), "camp-1", f.clock.Now().Add(-time.Minute)))
	}
	require.NoError(t, f.jobs.CreateQueueJobs(ctx, jobs))

	// tick repeatedly, advancing past the cooldown each time but staying
	// within the same day; the cap, not the queue, must stop dispatch at 20
	for i := 0; i < 25; i++ {
		require.NoError(t, f.dispatcher.Tick(ctx))
		f.clock.Advance(31 * time.Minute)
	}

	assert.Equal(t, 20, f.provider.sendCount())
	assert.Equal(t, 20, f.jobs.countByStatus(models.JobStatusCompleted))
	assert.Equal(t, 5, f.jobs.countByStatus(models.JobStatusPending))
	assert.Equal(t, 0, f.jobs.countByStatus(models.JobStatusFailed))
}

func TestDispatcherCollisionSkipPolicy(t *testing.T) {
	f := newDispatcherFixture(t, defaultDispatchConfig(), models.SchedulingSettings{FallbackPolicy: models.FallbackSkip}, testAccount("acct-1"))
	ctx := context.Background()

	slot := f.clock.Now().Add(-time.Minute)
	require.NoError(t, f.bookings.BookSlot(ctx, &models.BookedSlot{
		AccountID: "acct-1",
		StartTime: slot,
		EndTime:   slot.Add(30 * time.Minute),
	}))

	require.NoError(t, f.jobs.CreateQueueJobs(ctx, []*models.QueueJob{dueJob("job-1", "camp-1", slot)}))
	require.NoError(t, f.dispatcher.Tick(ctx))

	assert.Equal(t, 0, f.provider.sendCount())
	stored, err := f.jobs.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, stored.Status)
	assert.Equal(t, slot.Add(30*time.Minute), stored.ScheduledFor)
}

func TestDispatcherCollisionDoubleBookPolicy(t *testing.T) {
	settings := models.SchedulingSettings{
		AllowDoubleBooking:       true,
		FallbackPolicy:           models.FallbackDoubleBook,
		MaxDoubleBookingsPerSlot: 1,
	}
	f := newDispatcherFixture(t, defaultDispatchConfig(), settings, testAccount("acct-1"))
	ctx := context.Background()

	slot := f.clock.Now().Add(-time.Minute)
	require.NoError(t, f.bookings.BookSlot(ctx, &models.BookedSlot{
		AccountID: "acct-1",
		StartTime: slot,
		EndTime:   slot.Add(30 * time.Minute),
	}))

	require.NoError(t, f.jobs.CreateQueueJobs(ctx, []*models.QueueJob{dueJob("job-1", "camp-1", slot)}))
	require.NoError(t, f.dispatcher.Tick(ctx))

	assert.Equal(t, 1, f.provider.sendCount())
	invite, err := f.invites.GetInviteByJobID(ctx, "job-1")
	require.NoError(t, err)
	require.NotNil(t, invite)
	assert.True(t, invite.WasDoubleBooked)
}

func TestDispatcherCollisionDoubleBookSaturatedFallsBackToSkip(t *testing.T) {
	settings := models.SchedulingSettings{
		AllowDoubleBooking:       true,
		FallbackPolicy:           models.FallbackDoubleBook,
		MaxDoubleBookingsPerSlot: 1,
	}
	f := newDispatcherFixture(t, defaultDispatchConfig(), settings, testAccount("acct-1"))
	ctx := context.Background()

	slot := f.clock.Now().Add(-time.Minute)
	for i := 0; i < 2; i++ {
		require.NoError(t, f.bookings.BookSlot(ctx, &models.BookedSlot{
			AccountID: "acct-1",
			StartTime: slot.Add(time.Duration(i) * time.Second),
			EndTime:   slot.Add(30 * time.Minute),
		}))
	}

	require.NoError(t, f.jobs.CreateQueueJobs(ctx, []*models.QueueJob{dueJob("job-1", "camp-1", slot)}))
	require.NoError(t, f.dispatcher.Tick(ctx))

	assert.Equal(t, 0, f.provider.sendCount())
	stored, err := f.jobs.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, stored.Status)
	assert.True(t, stored.ScheduledFor.After(slot))
}

func TestDispatcherCollisionManualPolicy(t *testing.T) {
	f := newDispatcherFixture(t, defaultDispatchConfig(), models.SchedulingSettings{FallbackPolicy: models.FallbackManual}, testAccount("acct-1"))
	ctx := context.Background()

	slot := f.clock.Now().Add(-time.Minute)
	require.NoError(t, f.bookings.BookSlot(ctx, &models.BookedSlot{
		AccountID: "acct-1",
		StartTime: slot,
		EndTime:   slot.Add(30 * time.Minute),
	}))

	require.NoError(t, f.jobs.CreateQueueJobs(ctx, []*models.QueueJob{dueJob("job-1", "camp-1", slot)}))
	require.NoError(t, f.dispatcher.Tick(ctx))

	assert.Equal(t, 0, f.provider.sendCount())
	stored, err := f.jobs.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, stored.Status)
	require.NotNil(t, stored.LastError)
	assert.Contains(t, *stored.LastError, "COLLISION_UNRESOLVED")
}

func TestDispatcherProviderFailureMarksJobFailed(t *testing.T) {
	f := newDispatcherFixture(t, defaultDispatchConfig(), models.SchedulingSettings{}, testAccount("acct-1"))
	f.provider.sendInviteErr = errors.New("provider unavailable")
	ctx := context.Background()

	require.NoError(t, f.jobs.CreateQueueJobs(ctx, []*models.QueueJob{dueJob("job-1", "camp-1", f.clock.Now().Add(-time.Minute))}))
	require.NoError(t, f.dispatcher.Tick(ctx))

	stored, err := f.jobs.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, stored.Status)
	require.NotNil(t, stored.LastError)
	assert.Contains(t, *stored.LastError, "provider unavailable")

	// no counters move on failure
	day := f.clock.Now().Format("2006-01-02")
	global, err := f.accounts.GetGlobalSends(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, 0, global)

	invite, err := f.invites.GetInviteByJobID(ctx, "job-1")
	require.NoError(t, err)
	assert.Nil(t, invite)
}

func TestDispatcherRecipientLocalTime(t *testing.T) {
	f := newDispatcherFixture(t, defaultDispatchConfig(), models.SchedulingSettings{}, testAccount("acct-1"))
	ctx := context.Background()

	slot := time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC)
	require.NoError(t, f.jobs.CreateQueueJobs(ctx, []*models.QueueJob{dueJob("job-1", "camp-1", slot)}))
	require.NoError(t, f.dispatcher.Tick(ctx))

	invite, err := f.invites.GetInviteByJobID(ctx, "job-1")
	require.NoError(t, err)
	require.NotNil(t, invite)
	assert.Equal(t, slot.UTC(), invite.ScheduledForUTC)
	// 08:00 UTC is 04:00 in New York during DST
	assert.Equal(t, "2024-06-10T04:00:00-04:00", invite.RecipientLocal)
}

func TestDispatcherRoundRobinAcrossAccounts(t *testing.T) {
	cfg := defaultDispatchConfig()
	f := newDispatcherFixture(t, cfg, models.SchedulingSettings{}, testAccount("acct-1"), testAccount("acct-2"))
	ctx := context.Background()

	require.NoError(t, f.jobs.CreateQueueJobs(ctx, []*models.QueueJob{
		dueJob("job-1", "camp-1", f.clock.Now().Add(-2*time.Minute)),
		dueJob("job-2", "camp-1", f.clock.Now().Add(-time.Minute)),
	}))

	require.NoError(t, f.dispatcher.Tick(ctx))
	require.NoError(t, f.dispatcher.Tick(ctx))

	// consecutive ticks alternate accounts because selection is LRU
	assert.Equal(t, 2, f.provider.sendCount())
	assert.ElementsMatch(t, []string{"acct-1", "acct-2"}, f.provider.sendCalls)
}

func TestDispatcherSendsAtMostOneJobPerTick(t *testing.T) {
	f := newDispatcherFixture(t, defaultDispatchConfig(), models.SchedulingSettings{}, testAccount("acct-1"), testAccount("acct-2"))
	ctx := context.Background()

	require.NoError(t, f.jobs.CreateQueueJobs(ctx, []*models.QueueJob{
		dueJob("job-1", "camp-1", f.clock.Now().Add(-2*time.Minute)),
		dueJob("job-2", "camp-1", f.clock.Now().Add(-time.Minute)),
	}))

	// both jobs are due and both accounts are eligible, yet one tick sends
	// exactly one invite: throughput is paced by the tick interval
	require.NoError(t, f.dispatcher.Tick(ctx))

	assert.Equal(t, 1, f.provider.sendCount())
	assert.Equal(t, 1, f.jobs.countByStatus(models.JobStatusCompleted))
	assert.Equal(t, 1, f.jobs.countByStatus(models.JobStatusPending))

	require.NoError(t, f.dispatcher.Tick(ctx))
	assert.Equal(t, 2, f.provider.sendCount())
}

func TestDispatcherHonorsJobAccountAssignment(t *testing.T) {
	f := newDispatcherFixture(t, defaultDispatchConfig(), models.SchedulingSettings{}, testAccount("acct-a"), testAccount("acct-b"))
	ctx := context.Background()

	// acct-a would be the LRU pick; the job is pinned to acct-b
	assigned := "acct-b"
	job := dueJob("job-1", "camp-1", f.clock.Now().Add(-time.Minute))
	job.AccountID = &assigned
	require.NoError(t, f.jobs.CreateQueueJobs(ctx, []*models.QueueJob{job}))

	require.NoError(t, f.dispatcher.Tick(ctx))

	assert.Equal(t, []string{"acct-b"}, f.provider.sendCalls)
	invite, err := f.invites.GetInviteByJobID(ctx, "job-1")
	require.NoError(t, err)
	require.NotNil(t, invite)
	assert.Equal(t, "acct-b", invite.AccountID)

	account, err := f.accounts.GetAccount(ctx, "acct-b")
	require.NoError(t, err)
	assert.Equal(t, 1, account.SendsToday)
}

func TestDispatcherParksJobWhenAssignedAccountCoolingDown(t *testing.T) {
	free := testAccount("acct-a")
	cooling := testAccount("acct-b")
	lastUsed := time.Date(2024, 6, 10, 8, 45, 0, 0, time.UTC) // 15 min before fixture clock
	cooling.LastUsedAt = &lastUsed

	f := newDispatcherFixture(t, defaultDispatchConfig(), models.SchedulingSettings{}, free, cooling)
	ctx := context.Background()

	assigned := "acct-b"
	job := dueJob("job-1", "camp-1", f.clock.Now().Add(-time.Minute))
	job.AccountID = &assigned
	require.NoError(t, f.jobs.CreateQueueJobs(ctx, []*models.QueueJob{job}))

	// acct-a is free but the job waits for its own account's cooldown
	require.NoError(t, f.dispatcher.Tick(ctx))
	assert.Equal(t, 0, f.provider.sendCount())

	stored, err := f.jobs.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, stored.Status)
	assert.Equal(t, lastUsed.Add(30*time.Minute), stored.ScheduledFor)

	f.clock.Advance(20 * time.Minute)
	require.NoError(t, f.dispatcher.Tick(ctx))
	assert.Equal(t, []string{"acct-b"}, f.provider.sendCalls)
}
