package models

import "time"

// CoverTimings are the measured timing constants the position estimator
// depends on, persisted in milliseconds. A zero value means "not measured
// yet, keep the configured default".
type CoverTimings struct {
	ID               int       `json:"id"`
	TravelOpenMs     int64     `json:"travel_open_ms"`
	TravelCloseMs    int64     `json:"travel_close_ms"`
	TiltOpenMs       int64     `json:"tilt_open_ms,omitempty"`
	TiltCloseMs      int64     `json:"tilt_close_ms,omitempty"`
	TravelOverheadMs int64     `json:"travel_overhead_ms,omitempty"`
	TiltOverheadMs   int64     `json:"tilt_overhead_ms,omitempty"`
	MinMovementMs    int64     `json:"min_movement_ms,omitempty"`
	UpdatedAt        time.Time `json:"updated_at"`
}
