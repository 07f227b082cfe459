package types

import (
	"fmt"
	"time"
)

// Provider response status vocabulary. Providers differ; the service layer
// maps these onto the canonical RSVP set.
const (
	ResponseAccepted            = "accepted"
	ResponseDeclined            = "declined"
	ResponseTentative           = "tentative"
	ResponseTentativelyAccepted = "tentativelyAccepted"
	ResponseNeedsAction         = "needsAction"
	ResponseNone                = "none"
	ResponseOrganizer           = "organizer"
)

// EventDetails describes the calendar event to create on the provider side.
type EventDetails struct {
	Subject       string    `json:"subject"`
	Body          string    `json:"body,omitempty"`
	Location      string    `json:"location,omitempty"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	AttendeeEmail string    `json:"attendeeEmail"`
	AttendeeName  string    `json:"attendeeName,omitempty"`
}

// SendInviteResponse is the provider's acknowledgement of a created event.
type SendInviteResponse struct {
	EventID string `json:"eventId"`
	Status  string `json:"status"`
}

// ResponseStatusResult is the provider's view of one attendee's RSVP.
type ResponseStatusResult struct {
	EventID        string `json:"eventId"`
	AttendeeEmail  string `json:"attendeeEmail"`
	ResponseStatus string `json:"responseStatus"`
}

// APIError is a typed provider failure carrying the HTTP status, so callers
// can distinguish rate limiting and server faults from bad requests.
type APIError struct {
	StatusCode int
	Endpoint   string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider API %s returned %d: %s", e.Endpoint, e.StatusCode, e.Message)
}

// ClientConfig configures the provider REST client.
type ClientConfig struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	RetryCount int
}
