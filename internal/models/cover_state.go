package models

import "time"

// PositionUnknown marks an axis whose position was never learned.
const PositionUnknown = -1

// CoverState is the persisted snapshot of the single cover: the last known
// positions plus the runtime flags the host exposes.
type CoverState struct {
	ID              int       `json:"id"`
	Position        int       `json:"position"` // 0 closed .. 100 open, -1 unknown
	Tilt            int       `json:"tilt"`     // same scale, -1 unknown
	Opening         bool      `json:"opening"`
	Closing         bool      `json:"closing"`
	State           string    `json:"state"` // orchestrator state name
	Calibrating     bool      `json:"calibrating"`
	CalibrationStep int       `json:"calibration_step,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}
