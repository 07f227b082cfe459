package service

import (
	"context"
	"time"

	apperrors "calreach/internal/errors"

	"calreach/internal/models"

	"github.com/sirupsen/logrus"
)

// BookingLedger is the authority on whether an account's calendar window is
// free. All overlap checks and slot commits go through it.
type BookingLedger struct {
	store  BookingStore
	logger *logrus.Logger
	now    func() time.Time
}

func NewBookingLedger(store BookingStore, logger *logrus.Logger) *BookingLedger {
	return &BookingLedger{store: store, logger: logger, now: time.Now}
}

// CountAt returns the number of committed bookings overlapping the window.
func (l *BookingLedger) CountAt(ctx context.Context, accountID string, start, end time.Time) (int, error) {
	count, err := l.store.CountOverlappingBookings(ctx, accountID, start, end)
	if err != nil {
		return 0, apperrors.NewDatabaseError("count overlapping bookings", err)
	}
	return count, nil
}

// IsFree reports whether the window has no committed booking at all.
func (l *BookingLedger) IsFree(ctx context.Context, accountID string, start, end time.Time) (bool, error) {
	count, err := l.CountAt(ctx, accountID, start, end)
	if err != nil {
		return false, err
	}
	return count == 0, nil
}

// Book commits the window on the account's calendar. Booking the same window
// twice is a no-op, so a retried dispatch cannot duplicate rows.
func (l *BookingLedger) Book(ctx context.Context, accountID string, start, end time.Time) error {
	slot := &models.BookedSlot{
		AccountID: accountID,
		StartTime: start,
		EndTime:   end,
	}
	if err := l.store.BookSlot(ctx, slot); err != nil {
		return apperrors.NewDatabaseError("book slot", err)
	}
	return nil
}

// ClearStale removes bookings whose window ended more than retention ago.
// Future and in-flight bookings are never touched.
func (l *BookingLedger) ClearStale(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := l.now().Add(-retention)
	removed, err := l.store.ClearStaleBookings(ctx, cutoff)
	if err != nil {
		return 0, apperrors.NewDatabaseError("clear stale bookings", err)
	}
	if removed > 0 {
		l.logger.WithField(LogFieldCount, removed).Info("Cleared stale bookings")
	}
	return removed, nil
}
