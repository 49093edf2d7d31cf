package ai

import (
	"fmt"
	"strings"
)

const schedulingInstruction = `If the customer asks to book a meeting, call or demo, confirm it in plain words and then append exactly one JSON object on its own line:
{"is_scheduling_request": true, "date_time": "YYYY-MM-DDTHH:MM", "email": "<customer email if known>", "subject": "<short subject>", "duration_minutes": 30, "description": "<one line>"}
Never mention the JSON object in the reply text.`

// BuildSystemPrompt assembles the instruction block shared by every provider.
func BuildSystemPrompt(req ReplyRequest) string {
	var b strings.Builder
	if req.SystemPrompt != "" {
		b.WriteString(strings.TrimSpace(req.SystemPrompt))
	} else {
		b.WriteString("You are a helpful customer support assistant. Answer briefly and politely.")
	}
	b.WriteString("\n\n")
	if req.Channel != "" {
		fmt.Fprintf(&b, "The customer is writing over %s.\n", req.Channel)
	}
	if !req.Now.IsZero() {
		fmt.Fprintf(&b, "Current date and time: %s (%s).\n", req.Now.Format("2006-01-02 15:04"), req.Now.Weekday())
	}
	b.WriteString(schedulingInstruction)

	if len(req.Similar) > 0 {
		b.WriteString("\n\nPast replies to similar questions, for tone and facts:\n")
		for _, s := range req.Similar {
			b.WriteString("- ")
			b.WriteString(strings.TrimSpace(s))
			b.WriteString("\n")
		}
	}
	return b.String()
}
