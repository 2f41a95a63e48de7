package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Sese-Schneider/ha-cover-time-based-sub000/internal/cover"
	"github.com/Sese-Schneider/ha-cover-time-based-sub000/internal/logger"
	"github.com/Sese-Schneider/ha-cover-time-based-sub000/internal/models"
	"github.com/Sese-Schneider/ha-cover-time-based-sub000/internal/relay"
	"github.com/Sese-Schneider/ha-cover-time-based-sub000/internal/repository"
)

// persistTimeout bounds the background writes triggered by cover callbacks
// so a wedged database cannot stall the cover's event loop forever.
const persistTimeout = 3 * time.Second

// BuildCover constructs the movement orchestrator and glues it to the
// persistence layer: measured timings override file config, the last known
// position is restored (honoring the unknown sentinel), and every state
// change, calibration result and noteworthy event flows back into SQLite.
func BuildCover(cfg cover.Config, wiring relay.Wiring, driver relay.Driver, repos *repository.Repository, log *logger.Logger) (*cover.Cover, error) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	timings, err := repos.TimingRepo.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load timings: %w", err)
	}
	applyStoredTimings(&cfg, timings)

	ctrl, err := cover.New(cover.Options{
		Config: cfg,
		Wiring: wiring,
		Driver: driver,
		Log:    log,
		OnChange: func(snap cover.Snapshot) {
			pctx, pcancel := context.WithTimeout(context.Background(), persistTimeout)
			defer pcancel()
			if err := repos.StateRepo.Save(pctx, stateFromSnapshot(snap)); err != nil {
				log.Errorw("persist cover state failed", "err", err)
			}
		},
		OnCalibrated: func(attr cover.CalibrationAttribute, value time.Duration, liveCfg cover.Config) {
			pctx, pcancel := context.WithTimeout(context.Background(), persistTimeout)
			defer pcancel()
			if err := storeTiming(pctx, repos.TimingRepo, liveCfg); err != nil {
				log.Errorw("persist calibration result failed", "attribute", attr, "err", err)
			}
		},
		OnEvent: func(kind, message string) {
			pctx, pcancel := context.WithTimeout(context.Background(), persistTimeout)
			defer pcancel()
			if err := repos.EventRepo.Append(pctx, models.CoverEvent{Type: kind, Description: message}); err != nil {
				log.Errorw("append cover event failed", "err", err)
			}
		},
	})
	if err != nil {
		return nil, err
	}

	state, err := repos.StateRepo.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load cover state: %w", err)
	}
	if err := ctrl.SetKnownPosition(state.Position, state.Tilt); err != nil {
		return nil, fmt.Errorf("restore cover state: %w", err)
	}
	log.Infow("cover restored", "position", state.Position, "tilt", state.Tilt)
	return ctrl, nil
}

// applyStoredTimings overrides configured constants with measured ones.
func applyStoredTimings(cfg *cover.Config, t models.CoverTimings) {
	set := func(dst *time.Duration, ms int64) {
		if ms > 0 {
			*dst = time.Duration(ms) * time.Millisecond
		}
	}
	set(&cfg.TravelOpen, t.TravelOpenMs)
	set(&cfg.TravelClose, t.TravelCloseMs)
	set(&cfg.TiltOpen, t.TiltOpenMs)
	set(&cfg.TiltClose, t.TiltCloseMs)
	set(&cfg.StartupDelay, t.TravelOverheadMs)
	set(&cfg.TiltStartupDelay, t.TiltOverheadMs)
	set(&cfg.MinMovement, t.MinMovementMs)
}

// storeTiming snapshots the whole live timing config into the single row.
func storeTiming(ctx context.Context, repo repository.TimingRepo, cfg cover.Config) error {
	return repo.Save(ctx, models.CoverTimings{
		ID:               1,
		TravelOpenMs:     cfg.TravelOpen.Milliseconds(),
		TravelCloseMs:    cfg.TravelClose.Milliseconds(),
		TiltOpenMs:       cfg.TiltOpen.Milliseconds(),
		TiltCloseMs:      cfg.TiltClose.Milliseconds(),
		TravelOverheadMs: cfg.StartupDelay.Milliseconds(),
		TiltOverheadMs:   cfg.TiltStartupDelay.Milliseconds(),
		MinMovementMs:    cfg.MinMovement.Milliseconds(),
		UpdatedAt:        time.Now().UTC(),
	})
}

func stateFromSnapshot(snap cover.Snapshot) models.CoverState {
	return models.CoverState{
		ID:              1,
		Position:        snap.Position,
		Tilt:            snap.Tilt,
		Opening:         snap.Opening,
		Closing:         snap.Closing,
		State:           snap.State,
		Calibrating:     snap.Calibrating,
		CalibrationStep: snap.CalibrationStep,
		UpdatedAt:       snap.At.UTC(),
	}
}

// CoverService translates intents into orchestrator calls and records them
// in the event log.
type CoverService struct {
	ctrl      *cover.Cover
	eventRepo repository.EventRepo
	log       *logger.Logger
}

func NewCoverService(ctrl *cover.Cover, eventRepo repository.EventRepo, log *logger.Logger) *CoverService {
	return &CoverService{ctrl: ctrl, eventRepo: eventRepo, log: log}
}

func (s *CoverService) logCommand(ctx context.Context, description string) {
	if err := s.eventRepo.Append(ctx, models.CoverEvent{Type: "COMMAND", Description: description}); err != nil {
		s.log.Errorw("append command event failed", "err", err)
	}
}

func (s *CoverService) Open(ctx context.Context) error {
	if err := s.ctrl.Open(ctx); err != nil {
		return err
	}
	s.logCommand(ctx, "open")
	return nil
}

func (s *CoverService) Close(ctx context.Context) error {
	if err := s.ctrl.Close(ctx); err != nil {
		return err
	}
	s.logCommand(ctx, "close")
	return nil
}

func (s *CoverService) Stop(ctx context.Context) error {
	if err := s.ctrl.Stop(ctx); err != nil {
		return err
	}
	s.logCommand(ctx, "stop")
	return nil
}

func (s *CoverService) SetPosition(ctx context.Context, target int) error {
	if err := s.ctrl.MoveToPosition(ctx, target); err != nil {
		return err
	}
	s.logCommand(ctx, fmt.Sprintf("set position %d", target))
	return nil
}

func (s *CoverService) SetTilt(ctx context.Context, target int) error {
	if err := s.ctrl.MoveToTilt(ctx, target); err != nil {
		return err
	}
	s.logCommand(ctx, fmt.Sprintf("set tilt %d", target))
	return nil
}

func (s *CoverService) SetKnownPosition(ctx context.Context, p KnownPositionParams) error {
	position, tilt := cover.PositionUnknown, cover.PositionUnknown
	if p.Position != nil {
		position = *p.Position
	}
	if p.Tilt != nil {
		tilt = *p.Tilt
	}
	if err := s.ctrl.SetKnownPosition(position, tilt); err != nil {
		return err
	}
	s.logCommand(ctx, fmt.Sprintf("set known position %d tilt %d", position, tilt))
	return nil
}

func (s *CoverService) StartCalibration(ctx context.Context, p CalibrationParams) error {
	return s.ctrl.StartCalibration(ctx, cover.CalibrationAttribute(p.Attribute), p.Timeout, p.Opening)
}

func (s *CoverService) StopCalibration(ctx context.Context, cancel bool) error {
	return s.ctrl.StopCalibration(ctx, cancel)
}
