package service

import (
	"context"
	"encoding/json"
	"time"

	apperrors "calreach/internal/errors"
	"calreach/internal/metrics"
	"calreach/internal/models"
	calendartypes "calreach/pkg/calendar/types"

	"github.com/sirupsen/logrus"
)

// ResponseTracker owns the RSVP state machine. All observed responses,
// whether from provider push or polling, funnel through ApplyResponse so a
// transition is recorded exactly once no matter how many channels report it.
type ResponseTracker struct {
	invites InviteStore
	logger  *logrus.Logger
	now     func() time.Time
}

func NewResponseTracker(invites InviteStore, logger *logrus.Logger) *ResponseTracker {
	return &ResponseTracker{invites: invites, logger: logger, now: time.Now}
}

// MapProviderStatus translates the provider's response vocabulary onto the
// canonical RSVP set. ok is false for statuses that carry no attendee
// signal, such as the organizer's own row.
func MapProviderStatus(status string) (models.RSVPStatus, bool) {
	switch status {
	case calendartypes.ResponseAccepted:
		return models.RSVPAccepted, true
	case calendartypes.ResponseDeclined:
		return models.RSVPDeclined, true
	case calendartypes.ResponseTentative, calendartypes.ResponseTentativelyAccepted:
		return models.RSVPTentative, true
	case calendartypes.ResponseNeedsAction:
		return models.RSVPNeedsAction, true
	case calendartypes.ResponseNone:
		return models.RSVPPending, true
	default:
		return models.RSVPPending, false
	}
}

// ApplyResponse advances the invite's RSVP to next. The update is guarded on
// the currently stored value, so concurrent observers of the same change
// produce exactly one response event. Returns whether this call won the
// transition.
func (rt *ResponseTracker) ApplyResponse(ctx context.Context, invite *models.ScheduledInvite, next models.RSVPStatus, source models.ResponseSource) (bool, error) {
	if invite.RSVP == next {
		rt.logger.WithFields(logrus.Fields{
			LogFieldInviteID: invite.ID,
			LogFieldRSVP:     string(next),
			LogFieldSource:   string(source),
		}).Debug("RSVP unchanged, skipping")
		return false, nil
	}
	// A decided invite never regresses to an undecided state; accepted and
	// declined may still flip to each other when the attendee changes their
	// answer.
	if invite.RSVP.IsTerminal() && !next.IsTerminal() {
		rt.logger.WithFields(logrus.Fields{
			LogFieldInviteID: invite.ID,
			LogFieldRSVP:     string(next),
			LogFieldSource:   string(source),
		}).Debug("Ignoring regression from decided RSVP")
		return false, nil
	}

	won, err := rt.invites.UpdateInviteRSVP(ctx, invite.ID, invite.RSVP, next)
	if err != nil {
		return false, apperrors.NewDatabaseError("update invite rsvp", err)
	}
	if !won {
		return false, nil
	}

	event := &models.ResponseEvent{
		InviteID:   invite.ID,
		OldStatus:  invite.RSVP,
		NewStatus:  next,
		Source:     source,
		DetectedAt: rt.now(),
	}
	if err := rt.invites.RecordResponseEvent(ctx, event); err != nil {
		rt.logger.WithField(LogFieldInviteID, invite.ID).WithError(err).Error("Failed to record response event")
	}

	switch next {
	case models.RSVPAccepted:
		err = rt.invites.UpdateInviteStatus(ctx, invite.ID, models.InviteStatusAccepted)
	case models.RSVPDeclined:
		err = rt.invites.UpdateInviteStatus(ctx, invite.ID, models.InviteStatusDeclined)
	}
	if err != nil {
		return true, apperrors.NewDatabaseError("update invite status", err)
	}

	rt.logger.WithFields(logrus.Fields{
		LogFieldInviteID: invite.ID,
		LogFieldRSVP:     string(next),
		LogFieldSource:   string(source),
	}).Info("RSVP transition recorded")
	metrics.IncrementCounter("rsvp_transitions_total",
		map[string]string{"to": string(next), "source": string(source)},
		"Recorded RSVP transitions")
	return true, nil
}

// ProcessWebhookEvent handles one raw provider push payload. Payloads that
// cannot be matched to a known invite are stored for audit instead of being
// dropped; storing one is not an error to the caller.
func (rt *ResponseTracker) ProcessWebhookEvent(ctx context.Context, payload []byte) error {
	var hook models.CalendarWebhookPayload
	if err := json.Unmarshal(payload, &hook); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInvalidInput, "malformed webhook payload")
	}

	switch hook.EventType {
	case models.EventResponseUpdated:
		return rt.handleResponseUpdated(ctx, &hook, payload)
	case models.EventCancelled:
		return rt.handleCancelled(ctx, &hook, payload)
	case models.EventCreated:
		// Our own sends echo back as creation events; nothing to track.
		rt.logger.WithField(LogFieldEventID, SanitizeEventID(ctx, hook.Resource.EventID)).Debug("Ignoring event creation echo")
		return nil
	default:
		return rt.storeUnresolved(ctx, &hook, payload, "unsupported event type")
	}
}

func (rt *ResponseTracker) handleResponseUpdated(ctx context.Context, hook *models.CalendarWebhookPayload, payload []byte) error {
	invite, err := rt.invites.GetInviteByProviderEventID(ctx, hook.Resource.EventID)
	if err != nil {
		return apperrors.NewDatabaseError("resolve webhook invite", err)
	}
	if invite == nil {
		return rt.storeUnresolved(ctx, hook, payload, "unknown event id")
	}
	if hook.Resource.AttendeeEmail != "" && hook.Resource.AttendeeEmail != invite.RecipientEmail {
		return rt.storeUnresolved(ctx, hook, payload, "attendee mismatch")
	}

	next, ok := MapProviderStatus(hook.Resource.ResponseStatus)
	if !ok {
		return rt.storeUnresolved(ctx, hook, payload, "unknown response status")
	}

	_, err = rt.ApplyResponse(ctx, invite, next, models.SourceWebhook)
	return err
}

func (rt *ResponseTracker) handleCancelled(ctx context.Context, hook *models.CalendarWebhookPayload, payload []byte) error {
	invite, err := rt.invites.GetInviteByProviderEventID(ctx, hook.Resource.EventID)
	if err != nil {
		return apperrors.NewDatabaseError("resolve webhook invite", err)
	}
	if invite == nil {
		return rt.storeUnresolved(ctx, hook, payload, "unknown event id")
	}
	if err := rt.invites.UpdateInviteStatus(ctx, invite.ID, models.InviteStatusCanceled); err != nil {
		return apperrors.NewDatabaseError("cancel invite", err)
	}
	rt.logger.WithField(LogFieldInviteID, invite.ID).Info("Invite cancelled by provider event")
	return nil
}

func (rt *ResponseTracker) storeUnresolved(ctx context.Context, hook *models.CalendarWebhookPayload, payload []byte, reason string) error {
	record := &models.UnresolvedWebhook{
		EventType:  hook.EventType,
		RawPayload: string(payload),
		Reason:     reason,
		ReceivedAt: rt.now(),
	}
	if err := rt.invites.StoreUnresolvedWebhook(ctx, record); err != nil {
		return apperrors.NewDatabaseError("store unresolved webhook", err)
	}
	rt.logger.WithFields(logrus.Fields{
		"event_type":   hook.EventType,
		LogFieldReason: reason,
	}).Warn("Stored unresolved webhook")
	metrics.IncrementCounter("webhooks_unresolved_total",
		map[string]string{"reason": reason},
		"Webhook payloads that could not be matched to an invite")
	return nil
}
