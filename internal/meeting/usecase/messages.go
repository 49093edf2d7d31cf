package usecase

import (
	"fmt"
	"time"

	"relaydesk-backend/internal/meeting/domain"
)

var failureMessages = map[string]string{
	domain.CodeCalendarNotConfigured: "I can't book meetings automatically right now, but our team will reach out to find a time that works for you.",
	domain.CodeInvalidDateFormat:     "I couldn't read the date and time you asked for. Could you send it again, for example \"2026-06-02 10:00\"?",
	domain.CodePastDate:              "That time has already passed. Could you suggest a time in the future?",
	domain.CodeTimeConflict:          "That time is already taken. Could you suggest another slot?",
	domain.CodeCalendarAPIError:      "Something went wrong while booking your meeting. Our team will confirm the details with you shortly.",
}

// MessageFor renders the customer-facing text for a booking outcome. An
// empty code means success; provider errors never reach this text.
func MessageFor(code, subject string, start time.Time, joinLink string) string {
	if code != "" {
		if msg, ok := failureMessages[code]; ok {
			return msg
		}
		return failureMessages[domain.CodeCalendarAPIError]
	}

	msg := fmt.Sprintf("Your meeting %q is booked for %s.", subject, start.Format("Monday, January 2 at 15:04"))
	if joinLink != "" {
		msg += " Join here: " + joinLink
	}
	return msg
}
