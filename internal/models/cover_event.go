package models

import "time"

// CoverEvent is a single log entry.
type CoverEvent struct {
	EventID     string    `json:"event_id"`
	OccurredAt  time.Time `json:"occurred_at"`
	Type        string    `json:"type"`        // COMMAND | EXTERNAL | CALIBRATION | CALIBRATION_TIMEOUT | ERROR
	Description string    `json:"description"` // human-readable
	Metadata    any       `json:"metadata,omitempty"`
}
