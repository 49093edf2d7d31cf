package domain

import (
	"errors"
	"time"
)

var ErrEmptyEvent = errors.New("event has no sender or content")

// InboundEvent is one customer message normalized from a webhook payload.
type InboundEvent struct {
	Sender     string
	SenderName string
	Message    string
	MediaURL   string
	Timestamp  time.Time
	ExternalID string
}

// Empty reports whether the event carries nothing to answer.
func (e InboundEvent) Empty() bool {
	return e.Sender == "" || (e.Message == "" && e.MediaURL == "")
}

// StatusUpdate is a delivery receipt for a message we sent.
type StatusUpdate struct {
	ExternalID string
	Status     string
	Timestamp  time.Time
}

// Payload is everything one webhook call carried.
type Payload struct {
	Events   []InboundEvent
	Statuses []StatusUpdate
}
