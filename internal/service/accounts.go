package service

import (
	"context"
	"sync"
	"time"

	"calreach/internal/constants"
	apperrors "calreach/internal/errors"
	"calreach/internal/metrics"
	"calreach/internal/models"

	"github.com/sirupsen/logrus"
)

// AccountTracker decides which sending account carries the next invite.
// Selection is least-recently-used among eligible accounts; an account is
// eligible when it is active, not paused, under its daily cap, and past its
// cooldown since the previous send.
type AccountTracker struct {
	store    AccountStore
	dailyCap int
	cooldown time.Duration
	loc      *time.Location
	logger   *logrus.Logger
	now      func() time.Time

	mu           sync.Mutex
	lastResetDay string
}

func NewAccountTracker(store AccountStore, cfg models.DispatchConfig, logger *logrus.Logger) *AccountTracker {
	dailyCap := cfg.PerAccountDailyCap
	if dailyCap <= 0 {
		dailyCap = constants.DefaultPerAccountDailyCap
	}
	cooldownMin := cfg.CooldownMinutes
	if cooldownMin <= 0 {
		cooldownMin = constants.DefaultCooldownMinutes
	}
	loc, err := time.LoadLocation(cfg.ReferenceTimezone)
	if err != nil || cfg.ReferenceTimezone == "" {
		if cfg.ReferenceTimezone != "" {
			logger.WithField(LogFieldReason, cfg.ReferenceTimezone).Warn("Unknown reference timezone, falling back to UTC")
		}
		loc = time.UTC
	}
	return &AccountTracker{
		store:    store,
		dailyCap: dailyCap,
		cooldown: time.Duration(cooldownMin) * time.Minute,
		loc:      loc,
		logger:   logger,
		now:      time.Now,
	}
}

// DayKey returns the reference-timezone day bucket used for daily counters.
func (t *AccountTracker) DayKey(now time.Time) string {
	return now.In(t.loc).Format("2006-01-02")
}

func (t *AccountTracker) eligible(account *models.SendingAccount, now time.Time) bool {
	if !account.IsActive || account.IsPaused {
		return false
	}
	if account.SendsToday >= t.dailyCap {
		return false
	}
	if account.LastUsedAt != nil && now.Sub(*account.LastUsedAt) < t.cooldown {
		return false
	}
	return true
}

// SelectEligibleAccount returns the least-recently-used eligible account,
// or (nil, nil) when no account can send right now. A non-empty candidate
// list restricts selection to those account IDs.
func (t *AccountTracker) SelectEligibleAccount(ctx context.Context, candidates ...string) (*models.SendingAccount, error) {
	accounts, err := t.store.GetActiveAccounts(ctx)
	if err != nil {
		return nil, apperrors.NewDatabaseError("select eligible account", err)
	}

	now := t.now()
	for _, account := range accounts {
		if !inCandidates(account.ID, candidates) {
			continue
		}
		if t.eligible(account, now) {
			return account, nil
		}
	}
	return nil, nil
}

func inCandidates(id string, candidates []string) bool {
	if len(candidates) == 0 {
		return true
	}
	for _, c := range candidates {
		if c == id {
			return true
		}
	}
	return false
}

// NextEligibleAt returns the earliest instant at which any account becomes
// eligible again, so callers can park work instead of busy-polling. Accounts
// at their daily cap become eligible at the next reference-timezone midnight.
// A non-empty candidate list restricts the computation to those account IDs.
func (t *AccountTracker) NextEligibleAt(ctx context.Context, candidates ...string) (time.Time, error) {
	accounts, err := t.store.GetActiveAccounts(ctx)
	if err != nil {
		return time.Time{}, apperrors.NewDatabaseError("next eligible at", err)
	}

	now := t.now()
	nextMidnight := t.nextDailyReset(now)
	best := nextMidnight

	for _, account := range accounts {
		if !inCandidates(account.ID, candidates) {
			continue
		}
		if !account.IsActive || account.IsPaused {
			continue
		}
		var candidate time.Time
		switch {
		case account.SendsToday >= t.dailyCap:
			candidate = nextMidnight
		case account.LastUsedAt != nil && now.Sub(*account.LastUsedAt) < t.cooldown:
			candidate = account.LastUsedAt.Add(t.cooldown)
		default:
			candidate = now
		}
		if candidate.Before(best) {
			best = candidate
		}
	}
	return best, nil
}

func (t *AccountTracker) nextDailyReset(now time.Time) time.Time {
	local := now.In(t.loc)
	return time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, t.loc)
}

// RecordSend bumps the account's usage counters after a successful dispatch.
func (t *AccountTracker) RecordSend(ctx context.Context, accountID string) error {
	if err := t.store.RecordAccountSend(ctx, accountID, t.now()); err != nil {
		return apperrors.NewDatabaseError("record account send", err)
	}
	metrics.IncrementCounter("account_sends_total",
		map[string]string{"account": accountID},
		"Invites sent per account")
	return nil
}

// Pause takes an account out of rotation without deactivating it.
func (t *AccountTracker) Pause(ctx context.Context, accountID, reason string) error {
	var r *string
	if reason != "" {
		r = &reason
	}
	return t.store.SetAccountPaused(ctx, accountID, true, r)
}

// Resume puts a paused account back into rotation.
func (t *AccountTracker) Resume(ctx context.Context, accountID string) error {
	return t.store.SetAccountPaused(ctx, accountID, false, nil)
}

// MaybeResetDaily zeroes per-account counters when the reference-timezone day
// has rolled over since the last check. Safe to call on every tick.
func (t *AccountTracker) MaybeResetDaily(ctx context.Context) error {
	day := t.DayKey(t.now())

	t.mu.Lock()
	if t.lastResetDay == day {
		t.mu.Unlock()
		return nil
	}
	previous := t.lastResetDay
	t.lastResetDay = day
	t.mu.Unlock()

	// First call after startup just records the current day; counters in the
	// store already reflect today.
	if previous == "" {
		return nil
	}

	if err := t.store.ResetDailyCounters(ctx); err != nil {
		t.mu.Lock()
		t.lastResetDay = previous
		t.mu.Unlock()
		return apperrors.NewDatabaseError("reset daily counters", err)
	}
	t.logger.WithField(LogFieldDay, day).Info("Daily send counters reset")
	return nil
}
