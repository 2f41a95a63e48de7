package service

import (
	"context"

	"github.com/Sese-Schneider/ha-cover-time-based-sub000/internal/cover"
	"github.com/Sese-Schneider/ha-cover-time-based-sub000/internal/models"
)

// MonitoringService serves live state straight from the orchestrator's
// estimate rather than from the database, so readers see the interpolated
// position while the motor is running, not the last persisted snapshot.
type MonitoringService struct {
	ctrl *cover.Cover
}

func NewMonitoringService(ctrl *cover.Cover) *MonitoringService {
	return &MonitoringService{ctrl: ctrl}
}

// GetState returns the current estimated cover state.
func (s *MonitoringService) GetState(ctx context.Context) (models.CoverState, error) {
	snap := s.ctrl.Snapshot()
	return stateFromSnapshot(snap), nil
}
