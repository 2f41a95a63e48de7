package service

import (
	"context"
	"time"

	"github.com/Sese-Schneider/ha-cover-time-based-sub000/internal/cover"
	"github.com/Sese-Schneider/ha-cover-time-based-sub000/internal/logger"
	"github.com/Sese-Schneider/ha-cover-time-based-sub000/internal/models"
	"github.com/Sese-Schneider/ha-cover-time-based-sub000/internal/repository"
)

type Authorization interface {
	SignUp(username, password string) (int, error)
	GenerateToken(username, password string) (string, error)
	ParseToken(accessToken string) (int, error)
}

// Cover exposes movement intents.
type Cover interface {
	Open(ctx context.Context) error
	Close(ctx context.Context) error
	Stop(ctx context.Context) error
	SetPosition(ctx context.Context, target int) error
	SetTilt(ctx context.Context, target int) error
	SetKnownPosition(ctx context.Context, p KnownPositionParams) error
}

// Calibration exposes the automated timing measurements.
type Calibration interface {
	StartCalibration(ctx context.Context, p CalibrationParams) error
	StopCalibration(ctx context.Context, cancel bool) error
}

// Monitoring exposes the live estimated state.
type Monitoring interface {
	GetState(ctx context.Context) (models.CoverState, error)
}

// EventLog exposes append-only logs with filtering access.
type EventLog interface {
	List(ctx context.Context, f LogFilter) ([]models.CoverEvent, error)
}

// KnownPositionParams overrides the stored estimates without motion.
// Nil fields leave the axis untouched.
type KnownPositionParams struct {
	Position *int
	Tilt     *int
}

// CalibrationParams starts a measurement session.
type CalibrationParams struct {
	Attribute string
	Timeout   time.Duration
	Opening   bool
}

// LogFilter supports history filtering by time range and type.
type LogFilter struct {
	From time.Time // inclusive; zero means no lower bound
	To   time.Time // inclusive; zero means no upper bound
	Type string    // "", "COMMAND", "EXTERNAL", "CALIBRATION", ...
}

// Service aggregates all sub-services.
type Service struct {
	Cover
	Calibration
	Monitoring
	EventLog
	Authorization
}

// NewService wires the cover controller and repository layer into the
// concrete services.
func NewService(repos *repository.Repository, ctrl *cover.Cover, signingKey string, log *logger.Logger) *Service {
	cs := NewCoverService(ctrl, repos.EventRepo, log)
	return &Service{
		Cover:         cs,
		Calibration:   cs,
		Monitoring:    NewMonitoringService(ctrl),
		EventLog:      NewEventLogService(repos.EventRepo),
		Authorization: NewAuthService(repos.Auth, signingKey),
	}
}
