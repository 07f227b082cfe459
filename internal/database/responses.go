package database

import (
	"context"
	"fmt"

	"calreach/internal/models"
)

// RecordResponseEvent appends an RSVP transition to the audit trail. Callers
// only invoke this after an actual status change won the guarded update.
func (d *Database) RecordResponseEvent(ctx context.Context, event *models.ResponseEvent) error {
	return retryableDBOperationNoReturn(ctx, func() error {
		_, err := d.db.ExecContext(ctx, insertResponseEventQuery,
			event.InviteID,
			event.OldStatus,
			event.NewStatus,
			event.Source,
			event.DetectedAt.UTC(),
		)
		return err
	}, "record response event")
}

func (d *Database) CountResponseEvents(ctx context.Context, inviteID string) (int, error) {
	var count int
	err := d.db.QueryRowContext(ctx, countResponseEventsQuery, inviteID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count response events: %w", err)
	}
	return count, nil
}

// StoreUnresolvedWebhook keeps a push payload that could not be matched to an
// invite, for later audit.
func (d *Database) StoreUnresolvedWebhook(ctx context.Context, hook *models.UnresolvedWebhook) error {
	return retryableDBOperationNoReturn(ctx, func() error {
		_, err := d.db.ExecContext(ctx, insertUnresolvedWebhookQuery,
			hook.EventType, hook.RawPayload, hook.Reason)
		return err
	}, "store unresolved webhook")
}

func (d *Database) CountUnresolvedWebhooks(ctx context.Context) (int, error) {
	var count int
	err := d.db.QueryRowContext(ctx, countUnresolvedWebhooksQuery).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unresolved webhooks: %w", err)
	}
	return count, nil
}
