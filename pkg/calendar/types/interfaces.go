package types

import "context"

// Client is the calendar/mail provider capability. Implementations must
// surface timeouts and API failures as errors, never as silent defaults.
type Client interface {
	// SendInvite creates a calendar event with one attendee on the given
	// sending account and returns the provider's event id.
	SendInvite(ctx context.Context, accountID string, event EventDetails) (*SendInviteResponse, error)

	// GetEventResponseStatus returns the attendee's current RSVP as the
	// provider reports it.
	GetEventResponseStatus(ctx context.Context, accountID, eventID string) (*ResponseStatusResult, error)

	// CancelEvent revokes a previously created event.
	CancelEvent(ctx context.Context, accountID, eventID string) error
}
