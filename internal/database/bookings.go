package database

import (
	"context"
	"fmt"
	"time"

	"calreach/internal/models"
)

// BookSlot records a committed window on one account's calendar. Idempotent
// for identical (account, start, end) tuples.
func (d *Database) BookSlot(ctx context.Context, slot *models.BookedSlot) error {
	return retryableDBOperationNoReturn(ctx, func() error {
		_, err := d.db.ExecContext(ctx, insertBookedSlotQuery,
			slot.AccountID, slot.StartTime.UTC(), slot.EndTime.UTC())
		return err
	}, "book slot")
}

// CountOverlappingBookings returns how many committed windows on the account
// intersect the half-open interval [start, end).
func (d *Database) CountOverlappingBookings(ctx context.Context, accountID string, start, end time.Time) (int, error) {
	var count int
	err := d.db.QueryRowContext(ctx, countOverlappingBookingsQuery,
		accountID, end.UTC(), start.UTC()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count overlapping bookings: %w", err)
	}
	return count, nil
}

// ClearStaleBookings purges bookings whose end time is before the cutoff.
// The cutoff is clamped to the current time so future bookings survive even
// when a caller passes a too-generous bound.
func (d *Database) ClearStaleBookings(ctx context.Context, before time.Time) (int64, error) {
	cutoff := before
	if now := time.Now(); cutoff.After(now) {
		cutoff = now
	}

	res, err := d.db.ExecContext(ctx, clearStaleBookingsQuery, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to clear stale bookings: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read cleanup result: %w", err)
	}
	return affected, nil
}
