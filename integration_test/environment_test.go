package integration_test

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"calreach/internal/database"
	"calreach/internal/models"
	"calreach/internal/scheduling"
	"calreach/internal/service"
	calendartypes "calreach/pkg/calendar/types"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

// scriptedProvider is a controllable in-memory calendar provider. Tests set
// failure modes and RSVP answers per account or per event.
type scriptedProvider struct {
	mu           sync.Mutex
	nextEventSeq int
	sendErr      error
	sentEvents   map[string]calendartypes.EventDetails // event id -> details
	sentAccounts map[string]string                     // event id -> account id
	responses    map[string]string                     // event id -> provider response status
	statusErr    error
	cancelledIDs []string
}

func newScriptedProvider() *scriptedProvider {
	return &scriptedProvider{
		sentEvents:   make(map[string]calendartypes.EventDetails),
		sentAccounts: make(map[string]string),
		responses:    make(map[string]string),
	}
}

func (p *scriptedProvider) SendInvite(ctx context.Context, accountID string, event calendartypes.EventDetails) (*calendartypes.SendInviteResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sendErr != nil {
		return nil, p.sendErr
	}
	p.nextEventSeq++
	eventID := fmt.Sprintf("evt-%d", p.nextEventSeq)
	p.sentEvents[eventID] = event
	p.sentAccounts[eventID] = accountID
	p.responses[eventID] = calendartypes.ResponseNone
	return &calendartypes.SendInviteResponse{EventID: eventID, Status: "confirmed"}, nil
}

func (p *scriptedProvider) GetEventResponseStatus(ctx context.Context, accountID, eventID string) (*calendartypes.ResponseStatusResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.statusErr != nil {
		return nil, p.statusErr
	}
	status, ok := p.responses[eventID]
	if !ok {
		return nil, fmt.Errorf("unknown event %s", eventID)
	}
	return &calendartypes.ResponseStatusResult{EventID: eventID, ResponseStatus: status}, nil
}

func (p *scriptedProvider) CancelEvent(ctx context.Context, accountID, eventID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelledIDs = append(p.cancelledIDs, eventID)
	return nil
}

func (p *scriptedProvider) setSendError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sendErr = err
}

func (p *scriptedProvider) setResponse(eventID, status string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.responses[eventID] = status
}

func (p *scriptedProvider) sentCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sentEvents)
}

func (p *scriptedProvider) eventIDs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, len(p.sentEvents))
	for id := range p.sentEvents {
		ids = append(ids, id)
	}
	return ids
}

// TestEnvironment wires the full dispatch pipeline against a real sqlite
// database and a scripted provider. Loops are driven synchronously via
// Tick and PollOnce so tests stay deterministic.
type TestEnvironment struct {
	DB         *database.Database
	Provider   *scriptedProvider
	Accounts   *service.AccountTracker
	Ledger     *service.BookingLedger
	Campaigns  *service.CampaignService
	Dispatcher *service.Dispatcher
	Tracker    *service.ResponseTracker
	Poller     *service.ResponsePoller
}

type environmentOptions struct {
	dispatch models.DispatchConfig
	settings models.SchedulingSettings
}

func defaultEnvironmentOptions() environmentOptions {
	return environmentOptions{
		dispatch: models.DispatchConfig{
			TickIntervalSec:    60,
			GlobalDailyCap:     200,
			PerAccountDailyCap: 20,
			CooldownMinutes:    30,
			ProviderTimeoutSec: 5,
			ReferenceTimezone:  "UTC",
			StartActive:        true,
		},
		settings: models.SchedulingSettings{FallbackPolicy: models.FallbackSkip},
	}
}

func newTestEnvironment(t *testing.T, opts environmentOptions) *TestEnvironment {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "integration.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	provider := newScriptedProvider()
	accounts := service.NewAccountTracker(db, opts.dispatch, logger)
	ledger := service.NewBookingLedger(db, logger)
	campaigns := service.NewCampaignService(db, db, scheduling.NewGenerator(logger), logger)
	tracker := service.NewResponseTracker(db, logger)
	dispatcher := service.NewDispatcher(db, db, accounts, ledger, provider, opts.dispatch,
		models.SchedulingConfig{MinGapMinutes: 30, DefaultDurationMin: 30}, opts.settings, logger)
	poller := service.NewResponsePoller(provider, tracker, db,
		models.PollingConfig{Enabled: true, IntervalSec: 300, TimeoutSec: 5, BatchSize: 50},
		models.RetryConfig{InitialBackoffMs: 10, MaxBackoffMs: 100, MaxAttempts: 2}, logger)

	return &TestEnvironment{
		DB:         db,
		Provider:   provider,
		Accounts:   accounts,
		Ledger:     ledger,
		Campaigns:  campaigns,
		Dispatcher: dispatcher,
		Tracker:    tracker,
		Poller:     poller,
	}
}

func (env *TestEnvironment) seedAccount(t *testing.T, id string) {
	t.Helper()
	require.NoError(t, env.DB.UpsertAccount(context.Background(), &models.SendingAccount{
		ID:       id,
		Email:    id + "@sender.example.com",
		IsActive: true,
	}))
}

func (env *TestEnvironment) enqueueImmediateCampaign(t *testing.T, campaignID string, recipientCount int) {
	t.Helper()
	campaign := &models.Campaign{
		ID:   campaignID,
		Name: campaignID,
	}
	for i := 0; i < recipientCount; i++ {
		campaign.Recipients = append(campaign.Recipients, models.Recipient{
			Email:    fmt.Sprintf("prospect-%d@example.com", i+1),
			Name:     fmt.Sprintf("Prospect %d", i+1),
			Timezone: "UTC",
			Event:    models.EventRequest{Subject: "Intro call", DurationMinutes: 30},
		})
	}
	enqueued, err := env.Campaigns.ProcessCampaign(context.Background(), campaign)
	require.NoError(t, err)
	require.Equal(t, recipientCount, enqueued)
}

// tickUntilIdle runs dispatch ticks until a tick makes no progress, with a
// bounded number of rounds.
func (env *TestEnvironment) tickUntilIdle(t *testing.T, maxTicks int) {
	t.Helper()
	for i := 0; i < maxTicks; i++ {
		before := env.Provider.sentCount()
		require.NoError(t, env.Dispatcher.Tick(context.Background()))
		if env.Provider.sentCount() == before {
			return
		}
		// The single-flight guard releases before Tick returns, but leave
		// a breath between rounds anyway.
		time.Sleep(time.Millisecond)
	}
}
