package privacy

import (
	"strings"
)

// MaskEmail masks a recipient address for log output, keeping the first
// character of the local part and the full domain.
// Example: "pat.prospect@example.com" -> "p***@example.com"
func MaskEmail(email string) string {
	if email == "" {
		return ""
	}

	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return "***"
	}

	local, domain := email[:at], email[at:]
	if len(local) == 1 {
		return "*" + domain
	}
	return local[:1] + "***" + domain
}

// MaskEventID shortens a provider event id so logs stay correlatable without
// leaking the full identifier.
// Example: "evt_8c12f0a9b3d4" -> "evt_8c12..."
func MaskEventID(eventID string) string {
	if eventID == "" {
		return ""
	}
	if len(eventID) <= 8 {
		return eventID
	}
	return eventID[:8] + "..."
}

// MaskAccountID keeps only the trailing characters of a sending account id.
func MaskAccountID(accountID string) string {
	if accountID == "" {
		return ""
	}
	if len(accountID) <= 4 {
		return "***"
	}
	return "***" + accountID[len(accountID)-4:]
}
