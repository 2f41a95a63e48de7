package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/Sese-Schneider/ha-cover-time-based-sub000/internal/models"
	"github.com/Sese-Schneider/ha-cover-time-based-sub000/internal/repository/db"
)

// InitDB opens the SQLite file and ensures the schema exists.
func InitDB(path string) (*sql.DB, error) {
	return db.InitDB(path)
}

type Authorization interface {
	Create(username, hash string) (int, error)
	GetByUsername(username string) (*models.User, error)
}

// StateRepo persists the last known cover position so a restart resumes
// estimating instead of falling back to "unknown".
type StateRepo interface {
	Save(ctx context.Context, s models.CoverState) error
	Load(ctx context.Context) (models.CoverState, error)
}

// TimingRepo stores the timing constants calibration measures.
type TimingRepo interface {
	Save(ctx context.Context, t models.CoverTimings) error
	Load(ctx context.Context) (models.CoverTimings, error)
}

// EventRepo is the append-only movement/calibration log.
type EventRepo interface {
	Append(ctx context.Context, e models.CoverEvent) error
	List(ctx context.Context, from, to time.Time, typ string) ([]models.CoverEvent, error)
}

type Repository struct {
	StateRepo  StateRepo
	TimingRepo TimingRepo
	EventRepo  EventRepo
	Auth       Authorization
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		StateRepo:  NewStateSQLite(db),
		TimingRepo: NewTimingSQLite(db),
		EventRepo:  NewEventSQLite(db),
		Auth:       NewUserRepository(db),
	}
}
