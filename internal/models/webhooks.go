package models

// Calendar provider push event types
const (
	EventResponseUpdated = "event.response.updated"
	EventCancelled       = "event.cancelled"
	EventCreated         = "event.created"
)

// CalendarWebhookPayload is the provider push notification for an attendee
// response change. Providers wrap the interesting fields in a resource data
// envelope; only the fields the response tracker needs are modeled.
type CalendarWebhookPayload struct {
	ID        string `json:"id"`
	EventType string `json:"eventType"`
	Timestamp int64  `json:"timestamp"`
	Resource  struct {
		EventID        string `json:"eventId"`
		AccountID      string `json:"accountId"`
		AttendeeEmail  string `json:"attendeeEmail"`
		ResponseStatus string `json:"responseStatus"`
	} `json:"resource"`
}
