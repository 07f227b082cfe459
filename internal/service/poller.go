package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"calreach/internal/constants"
	"calreach/internal/models"
	calendartypes "calreach/pkg/calendar/types"

	"github.com/sirupsen/logrus"
)

// ResponsePoller periodically asks the provider for the RSVP of every invite
// still awaiting a response. It backs up the webhook stream for providers
// that drop or delay push notifications.
type ResponsePoller struct {
	provider    calendartypes.Client
	tracker     *ResponseTracker
	invites     InviteStore
	config      models.PollingConfig
	retryConfig models.RetryConfig
	logger      *logrus.Logger
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	running     bool
	mu          sync.RWMutex
}

func NewResponsePoller(provider calendartypes.Client, tracker *ResponseTracker, invites InviteStore, pollingConfig models.PollingConfig, retryConfig models.RetryConfig, logger *logrus.Logger) *ResponsePoller {
	if pollingConfig.IntervalSec <= 0 {
		pollingConfig.IntervalSec = constants.DefaultPollIntervalSec
	}
	if pollingConfig.TimeoutSec <= 0 {
		pollingConfig.TimeoutSec = constants.DefaultPollTimeoutSec
	}
	if pollingConfig.BatchSize <= 0 {
		pollingConfig.BatchSize = constants.DefaultPollBatchSize
	}
	return &ResponsePoller{
		provider:    provider,
		tracker:     tracker,
		invites:     invites,
		config:      pollingConfig,
		retryConfig: retryConfig,
		logger:      logger,
	}
}

// Start begins the background polling process
func (rp *ResponsePoller) Start(ctx context.Context) error {
	rp.mu.Lock()
	defer rp.mu.Unlock()

	if rp.running {
		return fmt.Errorf("response poller is already running")
	}

	if !rp.config.Enabled {
		rp.logger.Info("Response polling is disabled in configuration")
		return nil
	}

	rp.ctx, rp.cancel = context.WithCancel(ctx)
	rp.running = true

	rp.wg.Add(1)
	go rp.pollLoop()

	rp.logger.WithFields(logrus.Fields{
		"interval": rp.config.IntervalSec,
		"batch":    rp.config.BatchSize,
	}).Info("Response poller started")

	return nil
}

// Stop gracefully stops the polling process
func (rp *ResponsePoller) Stop() {
	rp.mu.Lock()
	defer rp.mu.Unlock()

	if !rp.running {
		return
	}

	rp.logger.Info("Stopping response poller...")
	rp.cancel()
	rp.wg.Wait()
	rp.running = false
	rp.logger.Info("Response poller stopped")
}

// IsRunning returns whether the poller is currently active
func (rp *ResponsePoller) IsRunning() bool {
	rp.mu.RLock()
	defer rp.mu.RUnlock()
	return rp.running
}

func (rp *ResponsePoller) pollLoop() {
	defer rp.wg.Done()

	ticker := time.NewTicker(time.Duration(rp.config.IntervalSec) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-rp.ctx.Done():
			return
		case <-ticker.C:
			rp.pollWithRetry()
		}
	}
}

// pollWithRetry executes a single poll pass with exponential backoff on failure
func (rp *ResponsePoller) pollWithRetry() {
	ctx, cancel := context.WithTimeout(rp.ctx, time.Duration(rp.config.TimeoutSec)*time.Second)
	defer cancel()

	backoff := time.Duration(rp.retryConfig.InitialBackoffMs) * time.Millisecond
	maxBackoff := time.Duration(rp.retryConfig.MaxBackoffMs) * time.Millisecond

	for attempt := 0; attempt < rp.retryConfig.MaxAttempts; attempt++ {
		err := rp.PollOnce(ctx)
		if err == nil {
			return
		}

		rp.logger.WithFields(logrus.Fields{
			LogFieldAttempt: attempt + 1,
			"error":         err,
			"backoff":       backoff,
		}).Warn("Response polling failed, retrying with backoff")

		if attempt < rp.retryConfig.MaxAttempts-1 {
			select {
			case <-rp.ctx.Done():
				return
			case <-time.After(backoff):
				backoff *= 2
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
			}
		}
	}

	rp.logger.Error("Response polling failed after all retry attempts")
}

// PollOnce fetches one batch of invites awaiting a response and reconciles
// each against the provider's current view. Individual invite failures are
// logged and skipped; only a batch-level failure is returned.
func (rp *ResponsePoller) PollOnce(ctx context.Context) error {
	batch, err := rp.invites.ListInvitesAwaitingResponse(ctx, rp.config.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to list invites awaiting response: %w", err)
	}
	if len(batch) == 0 {
		rp.logger.Debug("No invites awaiting response")
		return nil
	}

	updated := 0
	for _, invite := range batch {
		result, err := rp.provider.GetEventResponseStatus(ctx, invite.AccountID, invite.ProviderEventID)
		if err != nil {
			rp.logger.WithFields(logrus.Fields{
				LogFieldInviteID: invite.ID,
				LogFieldEventID:  SanitizeEventID(ctx, invite.ProviderEventID),
			}).WithError(err).Warn("Failed to poll invite response")
			continue
		}

		next, ok := MapProviderStatus(result.ResponseStatus)
		if !ok {
			continue
		}
		won, err := rp.tracker.ApplyResponse(ctx, invite, next, models.SourcePolling)
		if err != nil {
			rp.logger.WithField(LogFieldInviteID, invite.ID).WithError(err).Warn("Failed to apply polled response")
			continue
		}
		if won {
			updated++
		}
	}

	if updated > 0 {
		rp.logger.WithField(LogFieldCount, updated).Info("Polled RSVP updates applied")
	} else {
		rp.logger.WithField(LogFieldCount, len(batch)).Debug("Poll pass found no RSVP changes")
	}
	return nil
}
